/* The synthesize command renders synthetic seismograms and label channels as WAV files.
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
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google-research/quakelabeler/tools/spectrum"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"
)

var (
	signalSpec      = flag.String("signal_spec", "", "The signal to synthesize, given as a SamplerWrapper JSON.")
	label           = flag.String("label", "", "Render a label channel instead of a signal, one of 'bell' or 'rect'.")
	labelPeak       = flag.Int("label_peak", 1500, "Peak sample index of the rendered label.")
	labelWidth      = flag.Int("label_width", 0, "Width in samples of the rendered label. Defaults to the pick width for bell and the detect width for rect.")
	sampleRate      = flag.Float64("sample_rate", 100.0, "Sample rate to use when synthesizing.")
	durationSeconds = flag.Float64("duration_seconds", 50.0, "Number of seconds to synthesize.")
	destination     = flag.String("destination", "", "WAV file to store the synthesized buffer in.")
	printSpectrum   = flag.Bool("print_spectrum", false, "Print the spectrum of the synthesized buffer.")
)

func render() (signals.Float64Slice, error) {
	rate := signals.Hz(*sampleRate)
	n := rate.Samples(signals.Seconds(*durationSeconds))
	switch *label {
	case "":
	case "bell":
		width := *labelWidth
		if width == 0 {
			width = signals.DefaultPickWidth
		}
		return signals.BellLabel(n, *labelPeak, width), nil
	case "rect":
		width := *labelWidth
		if width == 0 {
			width = signals.DefaultDetectWidth
		}
		return signals.RectLabel(n, *labelPeak, width), nil
	default:
		return nil, fmt.Errorf("unknown label %q", *label)
	}
	signal, err := signals.ParseSampler(*signalSpec)
	if err != nil {
		return nil, err
	}
	return signal.Sample(signals.TimeStretch{FromInclusive: 0, ToExclusive: signals.Seconds(*durationSeconds)}, rate)
}

func main() {
	flag.Parse()
	if (*signalSpec == "" && *label == "") || *destination == "" {
		flag.Usage()
		os.Exit(1)
	}

	samples, err := render()
	if err != nil {
		panic(err)
	}

	writer, err := os.Create(*destination)
	if err != nil {
		panic(err)
	}
	defer writer.Close()

	if err := samples.WriteWAV(writer, signals.Hz(*sampleRate)); err != nil {
		panic(err)
	}

	if *printSpectrum {
		spectrum.Compute(samples, signals.Hz(*sampleRate)).Print(80, os.Stdout)
	}
}
