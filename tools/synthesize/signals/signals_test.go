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
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	tolerance = 0.001
)

func makeSignal(frequency Hz, gain float64, rate Hz, len int) Float64Slice {
	result := Float64Slice{}
	period := rate.Period()
	for i := 0; i < len; i++ {
		result = append(result, gain*math.Sin(2*math.Pi*float64(i)*float64(period)*float64(frequency)))
	}
	return result
}

func TestOnset(t *testing.T) {
	signal := Float64Slice{1, 1, 1, 1, 1, 1}
	ts := TimeStretch{0, 6}
	for _, tc := range []struct {
		onset        Onset
		wantedResult Float64Slice
	}{
		{
			onset: Onset{
				Shape: Sudden,
				Delay: 2,
			},
			wantedResult: Float64Slice{0, 0, 1, 1, 1, 1},
		},
		{
			onset: Onset{
				Shape:    Linear,
				Delay:    1,
				Duration: 4,
			},
			wantedResult: Float64Slice{0, 0, 0.25, 0.5, 0.75, 1},
		},
	} {
		filterSignal := signal.Copy()
		err := tc.onset.Filter(filterSignal, ts)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(filterSignal, tc.wantedResult); diff != "" {
			t.Errorf("%+v produced %+v, but wanted %+v", tc.onset, filterSignal, tc.wantedResult)
		}
	}
}

func TestPower(t *testing.T) {
	rate := Hz(100.0)
	length := 100000
	for _, tc := range []struct {
		frequency   Hz
		gain        float64
		wantedPower Power
	}{
		{
			frequency:   1,
			gain:        1,
			wantedPower: 0.5,
		},
		{
			frequency:   1,
			gain:        0.5,
			wantedPower: 0.125,
		},
	} {
		signal := makeSignal(tc.frequency, tc.gain, rate, length)
		power := signal.Power()
		if math.Abs(float64(power-tc.wantedPower)) > tolerance {
			t.Errorf("got power %v, wanted %v", power, tc.wantedPower)
		}
	}
}

func TestParse(t *testing.T) {
	for _, testCase := range []struct {
		spec         string
		wantedSignal Sampler
		wantedError  error
	}{
		{
			spec: `{"Type": "Noise", "Params": {"LowerLimit": 0.1, "UpperLimit": 1, "Level": -15}}`,
			wantedSignal: &Noise{
				Color:      White,
				LowerLimit: 0.1,
				UpperLimit: 1,
				Level:      -15,
			},
		},
		{
			spec: `{"Type": "Signal", "Params": {"Frequency": 2, "Level": -10}}`,
			wantedSignal: &Signal{
				Shape:     Sine,
				Frequency: 2,
				Level:     -10,
			},
		},
		{
			spec: `{"Type": "Signal", "Params": {"Onset": {"Delay": 30}, "Frequency": 5, "Level": 20, "Decay": 4}}`,
			wantedSignal: &Signal{
				Onset: Onset{
					Shape: Sudden,
					Delay: 30,
				},
				Shape:     Sine,
				Frequency: 5,
				Level:     20,
				Decay:     4,
			},
		},
		{
			spec: `{"Type": "Superposition", "Params": [{"Type": "Signal", "Params": {"Frequency": 2}}]}`,
			wantedSignal: Superposition{
				&Signal{
					Shape:     Sine,
					Frequency: 2,
				},
			},
		},
		{
			spec:        `{"Type": "plur", "Params": {}}`,
			wantedError: fmt.Errorf(`unknown sampler type "plur"`),
		},
		{
			spec:        `..`,
			wantedError: fmt.Errorf(`invalid character '.' looking for beginning of value`),
		},
	} {
		foundSignal, foundError := ParseSampler(testCase.spec)
		if (foundError == nil) != (testCase.wantedError == nil) {
			t.Errorf("got error %v from %q, wanted %v", foundError, testCase.spec, testCase.wantedError)
		} else if foundError != nil && foundError.Error() != testCase.wantedError.Error() {
			t.Errorf("got error %v from %q, wanted %s", foundError.Error(), testCase.spec, testCase.wantedError.Error())
		}
		if diff := cmp.Diff(foundSignal, testCase.wantedSignal); diff != "" {
			t.Errorf("got %+v from %q, wanted %+v: %v", foundSignal, testCase.spec, testCase.wantedSignal, diff)
		}
	}
}

func TestSamplers(t *testing.T) {
	ts := TimeStretch{0, 10}
	rate := Hz(40)
	for _, tc := range []struct {
		s             Sampler
		wantedLen     int
		wantedPower   Power
		wantedSilence int
	}{
		{
			s:           Signal{Shape: Sine, Frequency: 2},
			wantedLen:   400,
			wantedPower: 0.5,
		},
		{
			s:           &Noise{Color: White, LowerLimit: 1, UpperLimit: 5},
			wantedLen:   400,
			wantedPower: 0.5,
		},
		{
			s: Superposition{
				Signal{Shape: Sine, Frequency: 2, Level: -6.020599913279624},
				Signal{Shape: Sine, Frequency: 4, Level: -6.020599913279624},
			},
			wantedLen:   400,
			wantedPower: 0.25,
		},
		{
			s:             Signal{Shape: Sine, Frequency: 2, Onset: Onset{Shape: Sudden, Delay: 5}},
			wantedLen:     400,
			wantedPower:   0.25,
			wantedSilence: 200,
		},
	} {
		signal, err := tc.s.Sample(ts, rate)
		if err != nil {
			t.Fatal(err)
		}
		if len(signal) != tc.wantedLen {
			t.Errorf("%+v produced %v samples, wanted %v", tc.s, len(signal), tc.wantedLen)
		}
		if power := signal.Power(); math.Abs(float64(power-tc.wantedPower)) > tolerance {
			t.Errorf("%+v produced power %v, wanted %v", tc.s, power, tc.wantedPower)
		}
		silence := 0
		for _, v := range signal {
			if v == 0 {
				silence++
			}
		}
		if tc.wantedSilence > 0 && silence < tc.wantedSilence {
			t.Errorf("%+v produced %v silent samples, wanted at least %v", tc.s, silence, tc.wantedSilence)
		}
	}
}

func TestDecay(t *testing.T) {
	s := Signal{Shape: Sine, Frequency: 1, Decay: 1, Onset: Onset{Shape: Sudden, Delay: 2}}
	signal, err := s.Sample(TimeStretch{0, 8}, 100)
	if err != nil {
		t.Fatal(err)
	}
	early := signal[200:300].AbsMax()
	late := signal[600:700].AbsMax()
	if late >= early*0.1 {
		t.Errorf("got late amplitude %v and early amplitude %v, wanted the late one to have decayed", late, early)
	}
}

func TestDetrend(t *testing.T) {
	for _, tc := range []struct {
		name   string
		signal Float64Slice
	}{
		{
			name:   "line",
			signal: Float64Slice{1, 3, 5, 7, 9, 11},
		},
		{
			name:   "offset",
			signal: Float64Slice{4, 4, 4, 4},
		},
		{
			name:   "single",
			signal: Float64Slice{17},
		},
	} {
		signal := tc.signal.Copy()
		signal.Detrend()
		if !signal.EqTol(make(Float64Slice, len(signal)), 1e-9) {
			t.Errorf("%v: got %v after detrend, wanted all zeros", tc.name, signal)
		}
	}
	trended := makeSignal(1, 1, 100, 1000)
	for idx := range trended {
		trended[idx] += 0.01 * float64(idx)
	}
	trended.Detrend()
	if power := trended.Power(); math.Abs(float64(power)-0.5) > 0.01 {
		t.Errorf("got power %v after detrending a trended sine, wanted about 0.5", power)
	}
}

func TestDemean(t *testing.T) {
	signal := Float64Slice{1, 2, 3, 6}
	signal.Demean()
	if diff := cmp.Diff(signal, Float64Slice{-2, -1, 0, 3}); diff != "" {
		t.Errorf("got %v, wanted zero mean: %v", signal, diff)
	}
}

func TestResample(t *testing.T) {
	for _, tc := range []struct {
		from, to  Hz
		wantedLen int
	}{
		{from: 40, to: 100, wantedLen: 1000},
		{from: 100, to: 40, wantedLen: 400},
		{from: 40, to: 40, wantedLen: 400},
	} {
		duration := Seconds(10)
		signal := makeSignal(2, 1, tc.from, tc.from.Samples(duration))
		resampled := signal.Resample(tc.from, tc.to)
		if len(resampled) != tc.wantedLen {
			t.Fatalf("resampling %v samples from %v to %v produced %v samples, wanted %v", len(signal), tc.from, tc.to, len(resampled), tc.wantedLen)
		}
		wanted := makeSignal(2, 1, tc.to, tc.wantedLen)
		if !resampled.EqTol(wanted, 1e-6) {
			t.Errorf("resampling from %v to %v did not produce the sine sampled at %v", tc.from, tc.to, tc.to)
		}
	}
	constant := Float64Slice{3, 3, 3, 3, 3, 3, 3, 3}
	if resampled := constant.Resample(8, 20); !resampled.EqTol(Float64Slice{3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3}, 1e-9) {
		t.Errorf("got %v from resampling a constant, wanted the constant", resampled)
	}
}

func TestAddUniformNoise(t *testing.T) {
	signal := makeSignal(1, 2, 100, 1000)
	noisy := signal.Copy()
	noisy.AddUniformNoise(0.1, rand.New(rand.NewSource(1)))
	maxDiff := 0.0
	for idx := range signal {
		if d := math.Abs(noisy[idx] - signal[idx]); d > maxDiff {
			maxDiff = d
		}
	}
	if maxDiff == 0 || maxDiff > 0.2 {
		t.Errorf("got largest noise %v, wanted in (0, 0.2]", maxDiff)
	}
	silent := make(Float64Slice, 10)
	silent.AddUniformNoise(0.5, rand.New(rand.NewSource(1)))
	if diff := cmp.Diff(silent, make(Float64Slice, 10)); diff != "" {
		t.Errorf("noise was added to a silent signal: %v", diff)
	}
}

func TestSNR(t *testing.T) {
	quiet := makeSignal(1, 0.1, 100, 500)
	loud := makeSignal(1, 1, 100, 500)
	signal := append(quiet.Copy(), loud...)
	if snr := signal.SNR(500); math.Abs(float64(snr)-20) > tolerance {
		t.Errorf("got SNR %v, wanted 20", snr)
	}
	if snr := signal.SNR(1); !math.IsNaN(float64(snr)) {
		t.Errorf("got SNR %v for a one sample noise window, wanted NaN", snr)
	}

	// Powers are summed over channels before the ratio is taken.
	silent := make(Float64Slice, 1000)
	if snr := SNR(500, signal, silent); math.Abs(float64(snr)-20) > tolerance {
		t.Errorf("got SNR %v with a silent channel, wanted 20", snr)
	}
	louder := append(makeSignal(1, 0.1, 100, 500), makeSignal(1, 0.1, 100, 500)...)
	want := DB(10 * math.Log10((0.5+0.005)/(0.005+0.005)))
	if snr := SNR(500, signal, louder); math.Abs(float64(snr-want)) > tolerance {
		t.Errorf("got SNR %v over two channels, wanted %v", snr, want)
	}
	if snr := SNR(500, signal, louder[:501]); !math.IsNaN(float64(snr)) {
		t.Errorf("got SNR %v with a short channel, wanted NaN", snr)
	}
	if snr := SNR(500); !math.IsNaN(float64(snr)) {
		t.Errorf("got SNR %v without channels, wanted NaN", snr)
	}
}

func TestWriteWAV(t *testing.T) {
	buf := &bytes.Buffer{}
	signal := makeSignal(1, 1000, 40, 400)
	if err := signal.WriteWAV(buf, 40); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("RIFF")) {
		t.Errorf("got %q as WAV prefix, wanted RIFF", buf.Bytes()[:4])
	}
	// 44 byte header and 2 bytes per mono sample.
	if got, want := buf.Len(), 44+2*len(signal); got != want {
		t.Errorf("got %v WAV bytes, wanted %v", got, want)
	}
}
