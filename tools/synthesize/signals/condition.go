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

import (
	"math"
	"math/rand"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// Demean subtracts the mean of the slice from every sample.
func (f Float64Slice) Demean() {
	if len(f) == 0 {
		return
	}
	mean := stat.Mean(f, nil)
	for idx := range f {
		f[idx] -= mean
	}
}

// Detrend subtracts the least squares line fitted through the samples.
func (f Float64Slice) Detrend() {
	if len(f) < 2 {
		f.Demean()
		return
	}
	xs := make([]float64, len(f))
	for idx := range xs {
		xs[idx] = float64(idx)
	}
	alpha, beta := stat.LinearRegression(xs, f, nil, false)
	for idx := range f {
		f[idx] -= alpha + beta*xs[idx]
	}
}

// AddUniformNoise adds noise drawn uniformly from [-1, 1), scaled by level and
// by the largest value of the slice.
func (f Float64Slice) AddUniformNoise(level float64, r *rand.Rand) {
	amplitude := f.Max()
	for idx := range f {
		f[idx] += amplitude * level * (2*r.Float64() - 1)
	}
}

// Resample returns the slice resampled from one rate to another, by truncating or
// zero padding its spectrum. The result has round(len(f) * to / from) samples.
func (f Float64Slice) Resample(from, to Hz) Float64Slice {
	if from == to || len(f) == 0 {
		return f.Copy()
	}
	n := len(f)
	m := int(math.Round(float64(n) * float64(to) / float64(from)))
	if m < 1 {
		m = 1
	}
	coefficients := fft.FFTReal(f)
	resampled := make([]complex128, m)
	// Bins strictly below the lower of the two Nyquist frequencies survive.
	keep := (n + 1) / 2
	if k := (m + 1) / 2; k < keep {
		keep = k
	}
	for bin := 0; bin < keep; bin++ {
		resampled[bin] = coefficients[bin]
		if bin > 0 {
			resampled[m-bin] = coefficients[n-bin]
		}
	}
	samples := fft.IFFT(resampled)
	scale := float64(m) / float64(n)
	res := make(Float64Slice, m)
	for idx := range samples {
		res[idx] = real(samples[idx]) * scale
	}
	return res
}
