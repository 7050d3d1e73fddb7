/* Package signals contains logic to express, synthesize and condition seismic sample buffers. *
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
package signals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"reflect"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/youpy/go-wav"
)

const (
	// FullScaleSinePower is 0.5 due to power = avg(sum(v^2)) - avg(v)^2.
	FullScaleSinePower Power = 0.5
)

// Hz is cycles (or samples) per second.
type Hz float64

// Period returns the period of this frequency.
func (h Hz) Period() Seconds {
	return Seconds(1.0 / h)
}

// Samples returns the number of samples at this rate during d, rounded to the nearest integer.
func (h Hz) Samples(d Seconds) int {
	return int(math.Round(float64(h) * float64(d)))
}

// Power is the signal power, which is equivalent to the variance ( avg(sum(v^2)) - avg(v)^2 ) of a signal.
type Power float64

// DB returns the power converted to Decibel.
func (p Power) DB() DB {
	return DB(10 * math.Log10(float64(p)))
}

// DB is power expressed on a logarithm scale.
type DB float64

// Power returns the power of this Decibel level.
func (d DB) Power() Power {
	return Power(math.Pow(10, float64(d/10)))
}

// Gain returns the gain of this Decibel level.
func (d DB) Gain() float64 {
	return math.Pow(10, float64(d/20))
}

// Seconds is a duration, or a point in time relative to some origin.
type Seconds float64

// Duration returns s as a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(math.Round(float64(s) * float64(time.Second)))
}

// SecondsOf returns d expressed in Seconds.
func SecondsOf(d time.Duration) Seconds {
	return Seconds(d.Seconds())
}

// TimeStretch defines a stretch of time.
type TimeStretch struct {
	// FromInclusive is the start of the stretch of time, inclusive.
	FromInclusive Seconds
	// ToExclusive is the end of the stretch of time, exclusive.
	ToExclusive Seconds
}

// Len returns the length of this time stretch.
func (t TimeStretch) Len() Seconds {
	return t.ToExclusive - t.FromInclusive
}

// FrequencyDiscrimination returns the theoretical minim difference
// between two frequencies needed for a DCT or FFT to distinguish between
// them during this time stretch.
func (t TimeStretch) FrequencyDiscrimination() Hz {
	return Hz(1.0 / t.Len())
}

// Sampler can synthesize a signal for a given time.
type Sampler interface {
	// Sample returns samples during the provided time stretch at the given sample rate.
	Sample(t TimeStretch, rate Hz) (Float64Slice, error)
}

// NoiseColor defines a distribution of noise.
type NoiseColor int

const (
	// White defines a noise that has a average of zero, and where all frequencies within the limits
	// have equal gain.
	White NoiseColor = iota
)

func (n NoiseColor) String() string {
	switch n {
	case White:
		return "White"
	}
	return "Unknown"
}

// OnsetShape defines the shape of a signal onset.
type OnsetShape int

const (
	// Sudden is when the signal gets peak level between one sample and the next.
	Sudden OnsetShape = iota
	// Linear is when the signal increases linearly.
	Linear
)

func (o OnsetShape) String() string {
	switch o {
	case Sudden:
		return "Sudden"
	case Linear:
		return "Linear"
	}
	return "Unknown"
}

// Onset defines how a signal starts.
type Onset struct {
	// Shape is the shape of the ramp up.
	Shape OnsetShape
	// Delay is the delay before onset starts.
	Delay Seconds
	// Duration is how long it takes for the signal to reach peak level.
	Duration Seconds
}

// Filter filters the signal during the given time stretch with this onset.
func (o Onset) Filter(signal Float64Slice, ts TimeStretch) error {
	rate := Hz(float64(len(signal)) / float64(ts.Len()))
	period := rate.Period()
	switch o.Shape {
	case Sudden:
		t := ts.FromInclusive
		for idx := range signal {
			if t < o.Delay {
				signal[idx] = 0.0
			} else {
				break
			}
			t += period
		}
		return nil
	case Linear:
		peakT := o.Delay + o.Duration
		if ts.FromInclusive >= peakT {
			return nil
		}
		k := 1.0 / o.Duration
		t := ts.FromInclusive
		for idx := range signal {
			if t < o.Delay {
				signal[idx] = 0.0
			} else if t < peakT {
				signal[idx] *= float64(k) * float64(t-o.Delay)
			} else {
				break
			}
			t += period
		}
		return nil
	}
	return fmt.Errorf("unknown onset shape %v", o.Shape)
}

// Noise describes a band limited background noise source, such as microseism.
type Noise struct {
	// Onset is the onset of this noise.
	Onset Onset
	// Color is the distribution of this source.
	Color NoiseColor
	// LowerLimit is the lower (inclusive) limit of this source.
	LowerLimit Hz
	// UpperLimit is the upper (exclusive) limit of this source.
	UpperLimit Hz
	// Level is the level of this signal compared to a full scale sine.
	Level DB
	// Seed is the random seed for this source.
	Seed int64
}

func (n *Noise) String() string {
	return fmt.Sprintf("%+v", *n)
}

// Sample samples this noise source at the given rate within the given time slice.
// NB: Assumes that this duration is all that is sampled, and will generate samples
// that (for this duration) should be indistinguisable from noise.
func (n *Noise) Sample(ts TimeStretch, rate Hz) (Float64Slice, error) {
	switch n.Color {
	case White:
		nSamples := rate.Samples(ts.Len())
		coefficients := make([]complex128, nSamples)
		freqStepHz := ts.FrequencyDiscrimination()
		fMinIdx := int(math.Round(float64(n.LowerLimit / freqStepHz)))
		fMaxIdx := int(math.Round(float64(n.UpperLimit / freqStepHz)))
		if fMaxIdx > nSamples {
			fMaxIdx = nSamples
		}
		r := rand.New(rand.NewSource(n.Seed))
		for i := fMinIdx; i < fMaxIdx; i++ {
			coefficients[i] = complex(r.NormFloat64(), r.NormFloat64())
		}
		samples := fft.IFFT(coefficients)
		result := make(Float64Slice, len(samples))
		pc := &PowerCalculator{}
		for idx := range samples {
			sample := real(samples[idx])
			result[idx] = sample
			pc.Feed(sample)
		}
		result.AddLevel(FullScaleSinePower.DB() - pc.Power().DB() + n.Level)
		if err := n.Onset.Filter(result, ts); err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("unknown noise color %q, cant synthesize", n.Color)
}

// SignalShape defines the known shapes of synthetic signals.
type SignalShape int

const (
	// Sine defines a sine wave shape.
	Sine SignalShape = iota
)

func (s SignalShape) String() string {
	switch s {
	case Sine:
		return "Sine"
	}
	return "Unknown"
}

// Signal describes a sinusoidal wave train, optionally decaying after its onset
// the way a phase coda does.
type Signal struct {
	// Onset is the onset of this signal.
	Onset Onset
	// Shape is the shape of this signal.
	Shape SignalShape
	// Frequency is the frequency of this signal.
	Frequency Hz
	// Level is the level of this signal compared to a full scale sine.
	Level DB
	// Decay is the e-folding time of the amplitude after the onset delay. Zero means no decay.
	Decay Seconds
}

func (s *Signal) String() string {
	return fmt.Sprintf("%+v", *s)
}

// Sample samples this signal during the provided time stretch, at the provided rate.
func (s Signal) Sample(ts TimeStretch, rate Hz) (Float64Slice, error) {
	switch s.Shape {
	case Sine:
		n := rate.Samples(ts.Len())
		period := rate.Period()
		result := make(Float64Slice, n)
		gain := s.Level.Gain()
		for idx := range result {
			t := ts.FromInclusive + Seconds(idx)*period
			val := gain * math.Sin(2*math.Pi*float64(t)*float64(s.Frequency))
			if s.Decay > 0 && t > s.Onset.Delay {
				val *= math.Exp(-float64(t-s.Onset.Delay) / float64(s.Decay))
			}
			result[idx] = val
		}
		if err := s.Onset.Filter(result, ts); err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("unknown signal shape %q, can't synthesize", s.Shape)
}

// SamplerWrapper encodes a sampler by containing the type of sampler as a string
// along with the parameters of the underlying sampler type.
type SamplerWrapper struct {
	Type   string
	Params interface{}
}

var (
	typeMap = map[string]reflect.Type{
		reflect.TypeOf(Signal{}).Name(): reflect.TypeOf(Signal{}),
		reflect.TypeOf(Noise{}).Name():  reflect.TypeOf(Noise{}),
	}
)

// Sampler returns the sampler wrapped in the SamplerWrapper.
func (s *SamplerWrapper) Sampler() (Sampler, error) {
	if s.Type == reflect.TypeOf(Superposition{}).Name() {
		b, err := json.Marshal(s.Params)
		if err != nil {
			return nil, err
		}
		content := []SamplerWrapper{}
		if err := json.Unmarshal(b, &content); err != nil {
			return nil, fmt.Errorf("unable to decode %s as []SampleWrapper{}: %w", b, err)
		}
		super := Superposition{}
		for _, wrapper := range content {
			sampler, err := wrapper.Sampler()
			if err != nil {
				return nil, err
			}
			super = append(super, sampler)
		}
		return super, nil
	}
	template, found := typeMap[s.Type]
	if !found {
		return nil, fmt.Errorf("unknown sampler type %q", s.Type)
	}
	val := reflect.New(template)
	b, err := json.Marshal(s.Params)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, val.Interface()); err != nil {
		return nil, fmt.Errorf("unable to decode %s as %q: %w", b, s.Type, err)
	}
	return val.Interface().(Sampler), nil
}

// ParseSampler parses a spec and returns a Sampler.
func ParseSampler(spec string) (Sampler, error) {
	js := &SamplerWrapper{}
	if err := json.Unmarshal([]byte(spec), js); err != nil {
		return nil, err
	}
	return js.Sampler()
}

// Superposition is a superposition of signals.
type Superposition []Sampler

func (s Superposition) String() string {
	return fmt.Sprintf("%+v", []Sampler(s))
}

// Sample samples the superposition of these signals during the provided time stretch.
func (s Superposition) Sample(ts TimeStretch, rate Hz) (Float64Slice, error) {
	var result Float64Slice
	for samplerIdx, sampler := range s {
		sampled, err := sampler.Sample(ts, rate)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = make([]float64, len(sampled))
		} else if len(result) != len(sampled) {
			return nil, fmt.Errorf("sampler %v of %+v returned a different number of samples (%v) than the ones before (%v)", samplerIdx, s, len(sampled), len(result))
		}
		for sampleIdx := range sampled {
			result[sampleIdx] += sampled[sampleIdx]
		}
	}
	return result, nil
}

// Float64Slice represents a buffer of samples.
type Float64Slice []float64

// EqTol returns whether the other float slice is equal to this one,
// within the given tolerance.
func (f Float64Slice) EqTol(o Float64Slice, tol float64) bool {
	if len(f) != len(o) {
		return false
	}
	for idx := range f {
		if math.Abs(f[idx]-o[idx]) > tol {
			return false
		}
	}
	return true
}

// Copy returns a copy of the slice.
func (f Float64Slice) Copy() Float64Slice {
	if f == nil {
		return nil
	}
	res := make(Float64Slice, len(f))
	copy(res, f)
	return res
}

// Max returns the largest value of the slice, or 0 for an empty slice.
func (f Float64Slice) Max() float64 {
	if len(f) == 0 {
		return 0
	}
	max := f[0]
	for _, v := range f[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// AbsMax returns the largest absolute value of the slice.
func (f Float64Slice) AbsMax() float64 {
	max := 0.0
	for _, v := range f {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	return max
}

// ToFloat32 returns the slice as float32's.
func (f Float64Slice) ToFloat32() []float32 {
	f32slice := make([]float32, len(f))
	for idx := range f {
		f32slice[idx] = float32(f[idx])
	}
	return f32slice
}

// WriteWAV writes the samples as a mono 16 bit WAV file to a writer, declaring a given
// sample rate. The samples are normalized so that the largest absolute value maps to full scale.
func (f Float64Slice) WriteWAV(w io.Writer, rate Hz) error {
	scale := 0.0
	if max := f.AbsMax(); max > 0 {
		scale = float64(math.MaxInt16) / max
	}
	wavSamples := make([]wav.Sample, len(f))
	for idx := range f {
		val := int(f[idx] * scale)
		wavSamples[idx] = wav.Sample{
			Values: [2]int{val, val},
		}
	}
	buf := &bytes.Buffer{}
	wavWriter := wav.NewWriter(buf, uint32(len(f)), 1, uint32(math.Round(float64(rate))), 16)
	if err := wavWriter.WriteSamples(wavSamples); err != nil {
		return err
	}
	_, err := io.Copy(w, buf)
	return err
}

// PowerCalculator calculates power of signals.
type PowerCalculator struct {
	sum          float64
	sumOfSquares float64
	len          float64
}

// Feed feeds the calculator the next sample.
func (p *PowerCalculator) Feed(f float64) {
	p.sum += f
	p.sumOfSquares += f * f
	p.len++
}

// Power returns the power of the signal so far.
func (p *PowerCalculator) Power() Power {
	mean := p.sum / p.len
	return Power(p.sumOfSquares/p.len - mean*mean)
}

// Power returns the signal power of the slice.
func (f Float64Slice) Power() Power {
	pc := &PowerCalculator{}
	for _, val := range f {
		pc.Feed(val)
	}
	return pc.Power()
}

// SNR returns the ratio between the power of the samples at and after split and the
// power of the samples before split. It is NaN when either side has fewer than two samples.
func (f Float64Slice) SNR(split int) DB {
	return SNR(split, f)
}

// SNR returns the ratio between the summed power of the channels at and after split and
// their summed power before split. It is NaN when either side of any channel has fewer
// than two samples, or when there are no channels.
func SNR(split int, channels ...Float64Slice) DB {
	if len(channels) == 0 {
		return DB(math.NaN())
	}
	var before, after Power
	for _, ch := range channels {
		if split < 2 || len(ch)-split < 2 {
			return DB(math.NaN())
		}
		before += ch[:split].Power()
		after += ch[split:].Power()
	}
	return (after / before).DB()
}

// AddLevel adds a number of Decibel to the signal.
func (f Float64Slice) AddLevel(d DB) {
	scale := math.Pow(10, float64(d)/20.0)
	for idx := range f {
		f[idx] *= scale
	}
}
