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
package waveform

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
)

// Request identifies the data to fetch. Network, Location and Channel may contain
// the wildcards * and ?; an empty pattern matches anything.
type Request struct {
	Network  string
	Station  string
	Location string
	Channel  string
	Start    time.Time
	End      time.Time
}

func (r Request) String() string {
	return fmt.Sprintf("%v.%v.%v.%v [%v, %v]", r.Network, r.Station, r.Location, r.Channel, r.Start.UTC().Format(TimeLayout), r.End.UTC().Format(TimeLayout))
}

// Matches returns whether the trace identifiers match the request patterns.
func (r Request) Matches(network, station, location, channel string) bool {
	return match(r.Network, network) && match(r.Station, station) && match(r.Location, location) && match(r.Channel, channel)
}

func match(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, s)
	return err == nil && ok
}

// Status tells whether a fetch produced data.
type Status int

const (
	Fetched Status = iota
	Unavailable
)

func (s Status) String() string {
	switch s {
	case Fetched:
		return "Fetched"
	case Unavailable:
		return "Unavailable"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of a fetch. Stream is non-empty exactly when Status is Fetched.
type Result struct {
	Status Status
	Stream Stream
	// Reason explains an Unavailable result.
	Reason string
}

// FetchedResult returns a Fetched result, or an Unavailable one if s is empty.
func FetchedResult(s Stream) Result {
	if len(s) == 0 {
		return UnavailableResult("empty stream")
	}
	return Result{Status: Fetched, Stream: s}
}

// UnavailableResult returns an Unavailable result with a formatted reason.
func UnavailableResult(format string, args ...interface{}) Result {
	return Result{Status: Unavailable, Reason: fmt.Sprintf(format, args...)}
}

// Source fetches waveform data. Missing data is reported as an Unavailable result;
// errors are reserved for failures that should stop the caller, such as a cancelled context.
type Source interface {
	Fetch(ctx context.Context, req Request) (Result, error)
}

// Prober reports the sampling rate a fetch for req would be delivered at, without
// processing the data. ok is false when no data is available.
type Prober interface {
	Probe(ctx context.Context, req Request) (rate signals.Hz, ok bool, err error)
}

// NativeProber probes a Source by fetching and reporting the rate of the first trace.
type NativeProber struct {
	Source Source
}

func (n NativeProber) Probe(ctx context.Context, req Request) (signals.Hz, bool, error) {
	res, err := n.Source.Fetch(ctx, req)
	if err != nil {
		return 0, false, err
	}
	if res.Status != Fetched {
		return 0, false, nil
	}
	return res.Stream[0].Rate, true, nil
}
