/*
 * Copyright 2020 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 *     Unless required by applicable law or agreed to in writing, software
 *     distributed under the License is distributed on an "AS IS" BASIS,
 *     WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *     See the License for the specific language governing permissions and
 *     limitations under the License.
 */
package signals

import "math"

const (
	// DefaultPickWidth is the width in samples of the bell shaped phase pick label.
	DefaultPickWidth = 100
	// DefaultDetectWidth is the width in samples of the rectangular detection label.
	DefaultDetectWidth = 200
)

// BellLabel returns a pick label of length n, 1 at peak and decaying as
// exp(-8 * (x - peak)^2 / width^2) on both sides.
// Peaks outside [0, n) are allowed and produce the visible tail only.
// A width <= 0 produces a single 1 at peak, if peak is inside the label.
func BellLabel(n, peak, width int) Float64Slice {
	res := make(Float64Slice, n)
	if width <= 0 {
		if peak >= 0 && peak < n {
			res[peak] = 1
		}
		return res
	}
	w2 := float64(width) * float64(width)
	for x := range res {
		d := float64(x - peak)
		res[x] = math.Exp(-8 * d * d / w2)
	}
	return res
}

// RectLabel returns a detection label of length n that is 1 on
// [peak - width/2, peak + width/2) and 0 elsewhere. The interval is clipped to [0, n).
func RectLabel(n, peak, width int) Float64Slice {
	res := make(Float64Slice, n)
	lo, hi := peak-width/2, peak+width/2
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	for x := lo; x < hi; x++ {
		res[x] = 1
	}
	return res
}
