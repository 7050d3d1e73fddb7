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
package catalog

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// MagnitudeBins are the edges of the magnitude histogram.
var MagnitudeBins = []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

// MagnitudeHistogram counts the non noise records per magnitude bin [MagnitudeBins[i], MagnitudeBins[i+1]).
// Records with unknown magnitude or magnitudes outside the bins are left out.
func MagnitudeHistogram(records []EnrichedSampleRecord) []float64 {
	mags := []float64{}
	for _, rec := range records {
		m := rec.Magnitude
		if rec.Noise || math.IsNaN(m) || m < MagnitudeBins[0] || m >= MagnitudeBins[len(MagnitudeBins)-1] {
			continue
		}
		mags = append(mags, m)
	}
	sort.Float64s(mags)
	return stat.Histogram(nil, MagnitudeBins, mags, nil)
}

// FormatHistogram renders counts as one text bar per bin.
func FormatHistogram(counts []float64) string {
	buf := &bytes.Buffer{}
	for idx, count := range counts {
		fmt.Fprintf(buf, "M%v-%v %5v %v\n", MagnitudeBins[idx], MagnitudeBins[idx+1], count, strings.Repeat("#", int(count)))
	}
	return buf.String()
}
