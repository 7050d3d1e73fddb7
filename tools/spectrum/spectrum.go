/* Package spectrum estimates the per frequency signal and noise power of sample windows.
 *
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
package spectrum

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/cmplx"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/mjibson/go-dsp/fft"
)

// S is the spectrum of a window of samples.
type S struct {
	Coeffs []complex128
	// SignalPower is the power of the sinusoid at each bin below Nyquist.
	SignalPower []signals.DB
	// NoisePower is the power of everything except the bin, per bin below Nyquist.
	NoisePower []signals.DB
	BinWidth   signals.Hz
	Rate       signals.Hz
}

// Frequency returns the center frequency of bin.
func (s *S) Frequency(bin int) signals.Hz {
	return signals.Hz(bin) * s.BinWidth
}

// SNR returns the signal to noise ratio of each bin.
func (s *S) SNR() []signals.DB {
	res := make([]signals.DB, len(s.SignalPower))
	for bin := range res {
		res[bin] = s.SignalPower[bin] - s.NoisePower[bin]
	}
	return res
}

// Dominant returns the frequency with the highest signal to noise ratio within [from, to), ignoring the DC bin.
// It returns NaN if no bin is in range.
func (s *S) Dominant(from, to signals.Hz) signals.Hz {
	best := signals.Hz(math.NaN())
	bestSNR := signals.DB(math.Inf(-1))
	for bin, snr := range s.SNR() {
		f := s.Frequency(bin)
		if bin == 0 || f < from || f >= to {
			continue
		}
		if snr > bestSNR || math.IsNaN(float64(best)) {
			best, bestSNR = f, snr
		}
	}
	return best
}

// Print renders the gain of each bin below Nyquist as a horizontal bar of at most width characters.
func (s *S) Print(width int, w io.Writer) {
	headers := []string{}
	gains := []float64{}
	maxHeaderLen := 0
	maxGain := 0.0
	for bin := 0; bin < len(s.Coeffs)/2; bin++ {
		header := fmt.Sprintf("%.2fHz ", float64(s.Frequency(bin)))
		if len(header) > maxHeaderLen {
			maxHeaderLen = len(header)
		}
		headers = append(headers, header)
		gain := cmplx.Abs(s.Coeffs[bin])
		if gain > maxGain {
			maxGain = gain
		}
		gains = append(gains, gain)
	}
	barLen := width - maxHeaderLen
	for bin := range gains {
		stars := 0
		if maxGain > 0 {
			stars = int(gains[bin] / maxGain * float64(barLen))
		}
		fmt.Fprintf(w, "%-*s%s\n", maxHeaderLen, headers[bin], bytes.Repeat([]byte{'*'}, stars))
	}
}

// ComputeSignalPower computes the signal power of each bin of buffer.
func ComputeSignalPower(buffer signals.Float64Slice, rate signals.Hz) *S {
	spec := &S{
		BinWidth: rate / signals.Hz(len(buffer)),
		Rate:     rate,
		Coeffs:   fft.FFTReal(buffer),
	}
	invBuffer := 1.0 / float64(len(buffer))
	spec.SignalPower = make([]signals.DB, len(spec.Coeffs)/2)
	for bin := 1; bin < len(spec.SignalPower); bin++ {
		gain := cmplx.Abs(spec.Coeffs[bin]) * invBuffer * 2
		spec.SignalPower[bin] = signals.Power(0.5 * gain * gain).DB()
	}
	return spec
}

// Compute computes the signal and noise power of each bin of buffer.
func Compute(buffer signals.Float64Slice, rate signals.Hz) *S {
	spec := ComputeSignalPower(buffer, rate)
	halfCoefficients := len(spec.Coeffs) / 2
	invBuffer := 1.0 / float64(len(buffer))
	totalMean := (cmplx.Abs(spec.Coeffs[0]) + cmplx.Abs(spec.Coeffs[halfCoefficients])) * invBuffer

	totalSquares := 0.0
	squares := make([]float64, len(spec.Coeffs))
	for bin, coeff := range spec.Coeffs {
		squares[bin] = (real(coeff)*real(coeff) + imag(coeff)*imag(coeff)) * invBuffer
		totalSquares += squares[bin]
	}
	spec.NoisePower = make([]signals.DB, halfCoefficients)
	for bin := 1; bin < halfCoefficients; bin++ {
		noise := (totalSquares-squares[bin]-squares[len(spec.Coeffs)-bin])*invBuffer - totalMean*totalMean
		if noise <= 0 {
			noise = 1e-20
		}
		spec.NoisePower[bin] = signals.Power(noise).DB()
	}
	return spec
}
