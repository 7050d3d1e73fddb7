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
package produce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google-research/quakelabeler/dataset/sample"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/waveform"
	"go.uber.org/zap"
)

// DefaultNoiseOffset is how long before each sample its noise sibling is fetched.
const DefaultNoiseOffset = time.Hour

// NoiseMirror adds a noise sample, fetched from the same station and channels earlier
// in time, for every primary sample of an Accumulator.
type NoiseMirror struct {
	Source    waveform.Source
	Assembler *sample.Assembler
	// Request holds the location pattern of every fetch.
	Request waveform.Request
	// Offset is how long before the primary window the noise window starts.
	Offset       time.Duration
	FetchPadding signals.Seconds
	Detrend      bool
	// Merged, if set, is committed after every added noise sample.
	Merged Staging
	Logger *zap.Logger
}

// Run mirrors every sample present in acc when called, and returns the number of noise samples added.
// Windows without data are skipped.
func (m *NoiseMirror) Run(ctx context.Context, acc *Accumulator) (int, error) {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	offset := m.Offset
	if offset == 0 {
		offset = DefaultNoiseOffset
	}
	n := acc.Len()
	added := 0
	for idx := 0; idx < n; idx++ {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		primary := acc.Record(idx)
		if primary.Noise {
			continue
		}
		from, to := sample.Window(primary)
		req := m.Request
		req.Network = primary.Network
		req.Station = primary.Station
		if len(primary.Channels) == 1 {
			req.Channel = primary.Channels[0]
		}
		req.Start = from.Add(-offset)
		req.End = to.Add(-offset).Add(m.FetchPadding.Duration())
		res, err := m.Source.Fetch(ctx, req)
		if err != nil {
			return added, fmt.Errorf("fetching %v: %w", req, err)
		}
		if res.Status != waveform.Fetched {
			logger.Debug("no noise window", zap.String("sample", primary.Filename), zap.String("reason", res.Reason))
			continue
		}
		stream := res.Stream.Conform(primary.PointCount)
		if m.Detrend {
			stream = stream.Copy()
			for _, tr := range stream {
				tr.Data.Detrend()
			}
		}
		out, err := m.Assembler.AssembleNoise(stream, primary)
		if errors.Is(err, sample.ErrChannelsMissing) {
			discard(m.Merged, nil)
			logger.Debug("incomplete noise window", zap.String("sample", primary.Filename), zap.Error(err))
			continue
		}
		if err != nil {
			discard(m.Merged, []sample.Output{out})
			return added, err
		}
		if err := commit(m.Merged); err != nil {
			discard(m.Merged, []sample.Output{out})
			return added, fmt.Errorf("committing merged example of %v: %w", out.Record.Filename, err)
		}
		if out.ExportErr != nil {
			logger.Warn("noise sample partially exported", zap.String("sample", out.Record.Filename), zap.Error(out.ExportErr))
		}
		acc.Add(out)
		added++
	}
	return added, nil
}
