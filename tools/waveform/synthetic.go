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
	"hash/fnv"
	"math"
	"time"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
)

// SyntheticSource generates deterministic seismograms: band limited background noise
// plus a decaying wave train starting at every registered arrival.
type SyntheticSource struct {
	// Network is the network code of every generated trace.
	Network string
	// Channels are the generated channel codes. Defaults to BHE, BHN and BHZ.
	Channels []string
	// Rate is the native sampling rate.
	Rate signals.Hz
	// Arrivals maps station codes to the arrival times that get a wave train.
	// Stations not present are silent except for background noise.
	Arrivals map[string][]time.Time
	// Missing lists stations that have no data at all.
	Missing map[string]bool
	// NoiseLevel and SignalLevel are relative to a full scale sine.
	NoiseLevel  signals.DB
	SignalLevel signals.DB
	Seed        int64
}

var defaultChannels = []string{"BHE", "BHN", "BHZ"}

func (s *SyntheticSource) channels() []string {
	if len(s.Channels) == 0 {
		return defaultChannels
	}
	return s.Channels
}

func (s *SyntheticSource) seed(req Request, channel string) int64 {
	h := fnv.New64a()
	h.Write([]byte(req.Station))
	h.Write([]byte(channel))
	h.Write([]byte(req.Start.UTC().Format(TimeLayout)))
	return s.Seed ^ int64(h.Sum64()&math.MaxInt64)
}

// Fetch synthesizes every matching channel over [req.Start, req.End).
func (s *SyntheticSource) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.Missing[req.Station] {
		return UnavailableResult("station %v has no data", req.Station), nil
	}
	ts := signals.TimeStretch{FromInclusive: 0, ToExclusive: signals.SecondsOf(req.End.Sub(req.Start))}
	if s.Rate.Samples(ts.Len()) <= 0 {
		return UnavailableResult("empty window %v", req), nil
	}
	stream := Stream{}
	for idx, channel := range s.channels() {
		if !req.Matches(s.Network, req.Station, "", channel) {
			continue
		}
		upper := s.Rate * 0.4
		if upper > 8 {
			upper = 8
		}
		super := signals.Superposition{
			&signals.Noise{
				Color:      signals.White,
				LowerLimit: 0.5,
				UpperLimit: upper,
				Level:      s.NoiseLevel,
				Seed:       s.seed(req, channel),
			},
		}
		for _, arrival := range s.Arrivals[req.Station] {
			delay := signals.SecondsOf(arrival.Sub(req.Start))
			if delay >= ts.ToExclusive {
				continue
			}
			super = append(super, signals.Signal{
				Onset:     signals.Onset{Shape: signals.Linear, Delay: delay, Duration: 0.5},
				Shape:     signals.Sine,
				Frequency: signals.Hz(2 + idx),
				Level:     s.SignalLevel,
				Decay:     8,
			})
		}
		data, err := super.Sample(ts, s.Rate)
		if err != nil {
			return Result{}, err
		}
		stream = append(stream, &Trace{
			Network: s.Network,
			Station: req.Station,
			Channel: channel,
			Start:   req.Start,
			Rate:    s.Rate,
			Data:    data,
		})
	}
	if len(stream) == 0 {
		return UnavailableResult("no channel matches %v", req), nil
	}
	return FetchedResult(stream), nil
}
