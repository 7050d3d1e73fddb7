/* Package sample turns fetched waveforms into labeled, named and exported samples.
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
package sample

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google-research/quakelabeler/tools/catalog"
	"github.com/google-research/quakelabeler/tools/export"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/waveform"
)

const (
	// NameTimeLayout renders window times in sample names.
	NameTimeLayout = "20060102T150405"
	// NoiseSuffix is appended to the name of the primary sample to name its noise sibling.
	NoiseSuffix = "_Noise"
)

var (
	// ErrArrivalOutsideWindow is returned when the arrival doesn't fall on a sample of the fetched window.
	ErrArrivalOutsideWindow = errors.New("arrival outside window")
	// ErrChannelsMissing is returned when a noise window lacks a channel of its primary sample.
	ErrChannelsMissing = errors.New("channels missing")
)

// Mode selects how the channels of a stream are grouped into samples.
type Mode int

const (
	// SingleTrace exports every channel as a sample of its own.
	SingleTrace Mode = iota
	// MultiComponent exports all channels of a stream as one sample.
	MultiComponent
)

func (m Mode) String() string {
	switch m {
	case SingleTrace:
		return "SingleTrace"
	case MultiComponent:
		return "MultiComponent"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// LabelOptions configure the label channels exported with each sample.
type LabelOptions struct {
	Enabled     bool
	PickWidth   int
	DetectWidth int
}

// DefaultLabelOptions returns enabled labels of the default widths.
func DefaultLabelOptions() LabelOptions {
	return LabelOptions{
		Enabled:     true,
		PickWidth:   signals.DefaultPickWidth,
		DetectWidth: signals.DefaultDetectWidth,
	}
}

// Exporter writes artifacts and returns the written paths.
type Exporter interface {
	Write(a *export.Artifact) ([]string, error)
}

// Output is one assembled sample.
type Output struct {
	Record catalog.EnrichedSampleRecord
	// Paths are the files written for the sample.
	Paths []string
	// ExportErr is set when some, but not all, formats failed to write.
	ExportErr error
}

// Assembler assembles samples. It remembers every name it hands out, so one Assembler
// should be used per dataset.
type Assembler struct {
	Mode          Mode
	Labels        LabelOptions
	SimplifyPhase bool
	// IncludeEnd appends the window end time to multi component sample names.
	IncludeEnd bool
	// Spectra exports the spectrum of every channel alongside its trace.
	Spectra  bool
	Exporter Exporter

	names map[string]int
}

// Assemble builds, names and exports the samples of a stream fetched around rec.Arrival.
// In SingleTrace mode it returns one Output per trace, otherwise one in total.
// If exporting a sample fails completely, the outputs so far are returned with the error.
func (a *Assembler) Assemble(stream waveform.Stream, rec catalog.ArrivalRecord) ([]Output, error) {
	if len(stream) == 0 {
		return nil, fmt.Errorf("no traces to assemble for %v", rec.Station)
	}
	groups := []waveform.Stream{stream}
	if a.Mode == SingleTrace {
		groups = nil
		for _, tr := range stream {
			groups = append(groups, waveform.Stream{tr})
		}
	}
	res := []Output{}
	for _, group := range groups {
		out, err := a.assemble(group, rec)
		if err != nil {
			return res, err
		}
		res = append(res, out)
	}
	return res, nil
}

func (a *Assembler) assemble(group waveform.Stream, rec catalog.ArrivalRecord) (Output, error) {
	group = trim(group)
	first := group[0]
	n := first.Len()
	arrivalSample := first.IndexOf(rec.Arrival)
	peak := int(math.Round(arrivalSample))
	if arrivalSample < 0 || peak >= n {
		return Output{}, fmt.Errorf("%w: arrival sample %v of %v in %v", ErrArrivalOutsideWindow, arrivalSample, n, first.ID())
	}

	if a.SimplifyPhase {
		rec.Phase = catalog.SimplifiedPhase(rec.Phase)
	}
	if a.Mode == SingleTrace {
		rec.Channel = first.Channel
	}
	record := catalog.EnrichedSampleRecord{
		ArrivalRecord: rec,
		Network:       first.Network,
		Channels:      group.Channels(),
		Filename:      a.uniqueName(a.baseName(group)),
		WindowStart:   first.Start,
		ArrivalSample: arrivalSample,
		PointCount:    n,
		SamplingRate:  first.Rate,
		SNR:           snr(group, peak),
	}
	var labels *export.Labels
	if a.Labels.Enabled {
		labels = &export.Labels{
			Bell: signals.BellLabel(n, peak, a.Labels.PickWidth),
			Rect: signals.RectLabel(n, peak, a.Labels.DetectWidth),
		}
	}
	return a.export(group, record, labels)
}

// AssembleNoise builds and exports the noise sibling of primary from a stream fetched
// over a window without the arrival.
func (a *Assembler) AssembleNoise(stream waveform.Stream, primary catalog.EnrichedSampleRecord) (Output, error) {
	byChannel := map[string]*waveform.Trace{}
	for _, tr := range stream {
		if _, found := byChannel[tr.Channel]; !found {
			byChannel[tr.Channel] = tr
		}
	}
	group := waveform.Stream{}
	for _, channel := range primary.Channels {
		tr, found := byChannel[channel]
		if !found {
			return Output{}, fmt.Errorf("%w: %v in noise window of %v", ErrChannelsMissing, channel, primary.Filename)
		}
		group = append(group, tr)
	}
	if len(group) == 0 {
		return Output{}, fmt.Errorf("%w: %v has no channels", ErrChannelsMissing, primary.Filename)
	}
	group = trim(group)
	first := group[0]
	n := first.Len()

	record := primary
	record.Channels = group.Channels()
	record.Phase = catalog.NoisePhase
	record.ReportedPhase = catalog.NoisePhase
	record.Filename = a.uniqueName(primary.Filename + NoiseSuffix)
	record.WindowStart = first.Start
	record.ArrivalSample = math.NaN()
	record.PointCount = n
	record.SamplingRate = first.Rate
	record.SNR = catalog.SNRUnknown
	record.Noise = true
	var labels *export.Labels
	if a.Labels.Enabled {
		labels = &export.Labels{
			Bell: make(signals.Float64Slice, n),
			Rect: make(signals.Float64Slice, n),
		}
	}
	return a.export(group, record, labels)
}

func (a *Assembler) export(group waveform.Stream, record catalog.EnrichedSampleRecord, labels *export.Labels) (Output, error) {
	artifact := &export.Artifact{
		Name:          record.Filename,
		Rate:          record.SamplingRate,
		Start:         record.WindowStart,
		Labels:        labels,
		ArrivalSample: record.ArrivalSample,
		Record:        &record,
		Spectra:       a.Spectra,
	}
	for _, tr := range group {
		artifact.Channels = append(artifact.Channels, export.Channel{Name: tr.Channel, Data: tr.Data})
	}
	out := Output{Record: record}
	if a.Exporter == nil {
		return out, nil
	}
	paths, err := a.Exporter.Write(artifact)
	out.Paths = paths
	if err != nil {
		partial := &export.PartialError{}
		if errors.As(err, &partial) && !partial.Total() {
			out.ExportErr = err
			return out, nil
		}
		return Output{}, fmt.Errorf("exporting %v: %w", record.Filename, err)
	}
	return out, nil
}

func (a *Assembler) baseName(group waveform.Stream) string {
	first := group[0]
	name := fmt.Sprintf("%v.%v.%v.%v", first.Network, first.Station, strings.Join(group.Channels(), "."), first.Start.UTC().Format(NameTimeLayout))
	if a.IncludeEnd && a.Mode == MultiComponent {
		name = fmt.Sprintf("%v_%v", name, first.TimeOf(first.Len()).UTC().Format(NameTimeLayout))
	}
	return name
}

func (a *Assembler) uniqueName(base string) string {
	if a.names == nil {
		a.names = map[string]int{}
	}
	a.names[base]++
	if count := a.names[base]; count > 1 {
		name := fmt.Sprintf("%v-%v", base, count)
		a.names[name]++
		return name
	}
	return base
}

// trim truncates every trace to the shortest length in the group.
func trim(group waveform.Stream) waveform.Stream {
	n := group[0].Len()
	for _, tr := range group[1:] {
		if tr.Len() < n {
			n = tr.Len()
		}
	}
	return group.Conform(n)
}

// snr compares the summed power of the channels at and after split with the power before it.
func snr(group waveform.Stream, split int) signals.DB {
	channels := make([]signals.Float64Slice, len(group))
	for idx, tr := range group {
		channels[idx] = tr.Data
	}
	return signals.SNR(split, channels...)
}

// Window returns the time span covered by a sample record.
func Window(rec catalog.EnrichedSampleRecord) (time.Time, time.Time) {
	return rec.WindowStart, rec.WindowStart.Add(rec.Duration())
}
