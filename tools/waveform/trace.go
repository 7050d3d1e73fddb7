/* Package waveform describes continuous seismic recordings and the sources they are fetched from.
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
package waveform

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
)

// TimeLayout is the layout used when rendering trace times.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Trace is one channel of uniformly sampled data.
type Trace struct {
	Network  string
	Station  string
	Location string
	Channel  string
	// Start is the time of the first sample.
	Start time.Time
	Rate  signals.Hz
	Data  signals.Float64Slice
}

// ID returns the SEED identifier NET.STA.LOC.CHA.
func (t *Trace) ID() string {
	return fmt.Sprintf("%v.%v.%v.%v", t.Network, t.Station, t.Location, t.Channel)
}

// Len returns the number of samples.
func (t *Trace) Len() int {
	return len(t.Data)
}

// TimeOf returns the time of sample idx.
func (t *Trace) TimeOf(idx int) time.Time {
	return t.Start.Add(signals.Seconds(float64(idx) / float64(t.Rate)).Duration())
}

// End returns the time of the last sample.
func (t *Trace) End() time.Time {
	if len(t.Data) == 0 {
		return t.Start
	}
	return t.TimeOf(len(t.Data) - 1)
}

// IndexOf returns the possibly fractional sample index of tm.
func (t *Trace) IndexOf(tm time.Time) float64 {
	return float64(signals.SecondsOf(tm.Sub(t.Start))) * float64(t.Rate)
}

// Copy returns a deep copy.
func (t *Trace) Copy() *Trace {
	res := *t
	res.Data = t.Data.Copy()
	return &res
}

// Slice returns a copy holding the samples with times in [from, to), or nil if there are none.
func (t *Trace) Slice(from, to time.Time) *Trace {
	first := int(math.Ceil(t.IndexOf(from) - 1e-9))
	if first < 0 {
		first = 0
	}
	last := int(math.Ceil(t.IndexOf(to) - 1e-9))
	if last > len(t.Data) {
		last = len(t.Data)
	}
	if first >= last {
		return nil
	}
	res := *t
	res.Start = t.TimeOf(first)
	res.Data = t.Data[first:last].Copy()
	return &res
}

func (t *Trace) String() string {
	return fmt.Sprintf("%v | %v - %v | %v Hz, %v samples", t.ID(), t.Start.UTC().Format(TimeLayout), t.End().UTC().Format(TimeLayout), float64(t.Rate), len(t.Data))
}

// Stream is a set of traces, typically the components of one station.
type Stream []*Trace

// Copy returns a deep copy.
func (s Stream) Copy() Stream {
	res := make(Stream, len(s))
	for idx, tr := range s {
		res[idx] = tr.Copy()
	}
	return res
}

// Channels returns the channel codes in stream order.
func (s Stream) Channels() []string {
	res := make([]string, len(s))
	for idx, tr := range s {
		res[idx] = tr.Channel
	}
	return res
}

// Conform drops traces with fewer than pointCount samples and truncates the rest to pointCount.
func (s Stream) Conform(pointCount int) Stream {
	res := Stream{}
	for _, tr := range s {
		if tr.Len() < pointCount {
			continue
		}
		if tr.Len() > pointCount {
			tr = tr.Copy()
			tr.Data = tr.Data[:pointCount]
		}
		res = append(res, tr)
	}
	return res
}

func (s Stream) String() string {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%v Trace(s) in Stream:", len(s))
	for _, tr := range s {
		fmt.Fprintf(buf, "\n%v", tr)
	}
	return buf.String()
}
