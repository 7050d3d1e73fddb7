package filter

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/mjibson/go-dsp/fft"
)

// Type is the kind of pass band of a filter.
type Type int

const (
	None Type = iota
	Lowpass
	Highpass
	Bandpass
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	case Bandpass:
		return "bandpass"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType accepts both names and the numeric codes 0-3.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "none":
		return None, nil
	case "1", "lowpass":
		return Lowpass, nil
	case "2", "highpass":
		return Highpass, nil
	case "3", "bandpass":
		return Bandpass, nil
	}
	return None, fmt.Errorf("unknown filter type %q", s)
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Butterworth is a zero-phase Butterworth filter applied in the frequency domain.
// Lowpass uses FreqMax as corner, Highpass uses FreqMin, Bandpass uses both.
type Butterworth struct {
	Type    Type
	FreqMin signals.Hz
	FreqMax signals.Hz
	Corners int
}

const DefaultCorners = 4

func (b Butterworth) corners() float64 {
	if b.Corners <= 0 {
		return DefaultCorners
	}
	return float64(b.Corners)
}

// Validate checks the corner frequencies against the Nyquist frequency of rate.
func (b Butterworth) Validate(rate signals.Hz) error {
	nyquist := rate / 2
	switch b.Type {
	case None:
		return nil
	case Lowpass:
		if b.FreqMax <= 0 || b.FreqMax >= nyquist {
			return fmt.Errorf("lowpass corner %v must be in (0, %v)", b.FreqMax, nyquist)
		}
	case Highpass:
		if b.FreqMin <= 0 || b.FreqMin >= nyquist {
			return fmt.Errorf("highpass corner %v must be in (0, %v)", b.FreqMin, nyquist)
		}
	case Bandpass:
		if b.FreqMin <= 0 || b.FreqMax <= b.FreqMin || b.FreqMin >= nyquist {
			return fmt.Errorf("bandpass corners [%v, %v] must satisfy 0 < min < max and min < %v", b.FreqMin, b.FreqMax, nyquist)
		}
	default:
		return fmt.Errorf("unknown filter type %v", b.Type)
	}
	return nil
}

func lowpassGain(f, corner signals.Hz, order float64) float64 {
	return 1 / math.Sqrt(1+math.Pow(float64(f/corner), 2*order))
}

func highpassGain(f, corner signals.Hz, order float64) float64 {
	if f == 0 {
		return 0
	}
	return 1 / math.Sqrt(1+math.Pow(float64(corner/f), 2*order))
}

// H returns the magnitude response at f.
func (b Butterworth) H(f signals.Hz) float64 {
	f = signals.Hz(math.Abs(float64(f)))
	switch b.Type {
	case Lowpass:
		return lowpassGain(f, b.FreqMax, b.corners())
	case Highpass:
		return highpassGain(f, b.FreqMin, b.corners())
	case Bandpass:
		return highpassGain(f, b.FreqMin, b.corners()) * lowpassGain(f, b.FreqMax, b.corners())
	}
	return 1
}

// Apply returns s filtered as if sampled at rate.
func (b Butterworth) Apply(s signals.Float64Slice, rate signals.Hz) signals.Float64Slice {
	if b.Type == None || len(s) == 0 {
		return s.Copy()
	}
	coeffs := fft.FFTReal(s)
	n := len(coeffs)
	binWidth := rate / signals.Hz(n)
	for i := range coeffs {
		k := i
		if i > n/2 {
			k = n - i
		}
		coeffs[i] *= complex(b.H(binWidth*signals.Hz(k)), 0)
	}
	filtered := fft.IFFT(coeffs)
	res := make(signals.Float64Slice, n)
	for i := range filtered {
		res[i] = real(filtered[i])
	}
	return res
}

// Print renders the magnitude response between 0 and the Nyquist frequency of rate as text.
func (b Butterworth) Print(height, width int, rate signals.Hz, w io.Writer) {
	fPerLine := rate / 2 / signals.Hz(height)
	headers := []string{}
	gains := []float64{}
	maxHeaderLen := 0
	for i := 0; i < height; i++ {
		f := signals.Hz(i) * fPerLine
		header := fmt.Sprintf("%.2f ", f)
		if len(header) > maxHeaderLen {
			maxHeaderLen = len(header)
		}
		headers = append(headers, header)
		gains = append(gains, b.H(f))
	}
	gainLen := width - maxHeaderLen
	for i := 0; i < height; i++ {
		line := &bytes.Buffer{}
		fmt.Fprint(line, headers[i])
		for line.Len() < maxHeaderLen+int(gains[i]*float64(gainLen)) {
			fmt.Fprint(line, " ")
		}
		fmt.Fprintf(w, "%v*\n", line.String())
	}
}
