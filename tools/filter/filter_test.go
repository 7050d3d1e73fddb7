package filter

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
)

func sine(f, rate signals.Hz, n int) signals.Float64Slice {
	res := make(signals.Float64Slice, n)
	for i := range res {
		res[i] = math.Sin(2 * math.Pi * float64(f) * float64(i) / float64(rate))
	}
	return res
}

func TestApply(t *testing.T) {
	rate := signals.Hz(100)
	n := 1000
	low := sine(1, rate, n)
	high := sine(20, rate, n)
	mixed := make(signals.Float64Slice, n)
	for i := range mixed {
		mixed[i] = low[i] + high[i]
	}
	for _, tc := range []struct {
		filter Butterworth
		wanted signals.Float64Slice
		tol    float64
	}{
		{
			filter: Butterworth{Type: None},
			wanted: mixed,
			tol:    1e-12,
		},
		{
			filter: Butterworth{Type: Lowpass, FreqMax: 5},
			wanted: low,
			tol:    0.01,
		},
		{
			filter: Butterworth{Type: Highpass, FreqMin: 10},
			wanted: high,
			tol:    0.01,
		},
		{
			filter: Butterworth{Type: Bandpass, FreqMin: 10, FreqMax: 30},
			wanted: high,
			tol:    0.03,
		},
	} {
		if err := tc.filter.Validate(rate); err != nil {
			t.Fatal(err)
		}
		got := tc.filter.Apply(mixed, rate)
		if !got.EqTol(tc.wanted, tc.tol) {
			t.Errorf("%+v did not isolate the wanted component", tc.filter)
		}
	}
}

func TestValidate(t *testing.T) {
	rate := signals.Hz(40)
	for _, tc := range []struct {
		filter  Butterworth
		wantErr bool
	}{
		{filter: Butterworth{Type: None}},
		{filter: Butterworth{Type: Lowpass, FreqMax: 10}},
		{filter: Butterworth{Type: Lowpass, FreqMax: 20}, wantErr: true},
		{filter: Butterworth{Type: Highpass}, wantErr: true},
		{filter: Butterworth{Type: Bandpass, FreqMin: 5, FreqMax: 2}, wantErr: true},
		{filter: Butterworth{Type: Bandpass, FreqMin: 1, FreqMax: 5}},
		{filter: Butterworth{Type: Type(9)}, wantErr: true},
	} {
		if err := tc.filter.Validate(rate); (err != nil) != tc.wantErr {
			t.Errorf("%+v.Validate(%v) = %v, wanted error: %v", tc.filter, rate, err, tc.wantErr)
		}
	}
}

func TestParseType(t *testing.T) {
	for _, tc := range []struct {
		in      string
		wanted  Type
		wantErr bool
	}{
		{in: "", wanted: None},
		{in: "0", wanted: None},
		{in: "1", wanted: Lowpass},
		{in: "Highpass", wanted: Highpass},
		{in: " bandpass ", wanted: Bandpass},
		{in: "notch", wantErr: true},
	} {
		got, err := ParseType(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseType(%q) returned error %v, wanted error: %v", tc.in, err, tc.wantErr)
		}
		if got != tc.wanted {
			t.Errorf("ParseType(%q) = %v, wanted %v", tc.in, got, tc.wanted)
		}
	}
}

func TestPrint(t *testing.T) {
	buf := &bytes.Buffer{}
	Butterworth{Type: Lowpass, FreqMax: 5}.Print(10, 40, 40, buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Fatalf("got %v lines, wanted 10", len(lines))
	}
	if !strings.HasPrefix(lines[0], "0.00 ") || len(lines[0]) <= len(lines[9]) {
		t.Errorf("got %q and %q, wanted a falling response", lines[0], lines[9])
	}
}
