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
	"math/rand"
	"sync"

	"github.com/google-research/quakelabeler/tools/filter"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"
)

// Processing describes the conditioning applied to every fetched trace, in field order.
type Processing struct {
	// Resample is the rate traces are resampled to. Zero keeps the native rate.
	Resample signals.Hz
	// Filter is applied after resampling.
	Filter filter.Butterworth
	// NoiseLevel scales uniform noise added relative to the trace maximum. Zero adds none.
	NoiseLevel float64
	// Seed seeds the noise generator.
	Seed int64
}

// EffectiveRate returns the rate a trace sampled at native is delivered at.
func (p Processing) EffectiveRate(native signals.Hz) signals.Hz {
	if p.Resample > 0 {
		return p.Resample
	}
	return native
}

// Processor is a Source that conditions the traces of another Source.
type Processor struct {
	Source     Source
	Processing Processing

	mu   sync.Mutex
	rand *rand.Rand
}

// NewProcessor returns a Processor conditioning the output of src.
func NewProcessor(src Source, p Processing) *Processor {
	return &Processor{
		Source:     src,
		Processing: p,
		rand:       rand.New(rand.NewSource(p.Seed)),
	}
}

// Fetch fetches req from the wrapped Source and conditions every trace.
func (p *Processor) Fetch(ctx context.Context, req Request) (Result, error) {
	res, err := p.Source.Fetch(ctx, req)
	if err != nil || res.Status != Fetched {
		return res, err
	}
	processed := make(Stream, 0, len(res.Stream))
	for _, tr := range res.Stream {
		conditioned, err := p.process(tr)
		if err != nil {
			return Result{}, fmt.Errorf("processing %v: %w", tr.ID(), err)
		}
		processed = append(processed, conditioned)
	}
	return FetchedResult(processed), nil
}

func (p *Processor) process(tr *Trace) (*Trace, error) {
	res := tr.Copy()
	rate := p.Processing.EffectiveRate(tr.Rate)
	if rate != tr.Rate {
		res.Data = res.Data.Resample(tr.Rate, rate)
		res.Rate = rate
	}
	if p.Processing.Filter.Type != filter.None {
		if err := p.Processing.Filter.Validate(res.Rate); err != nil {
			return nil, err
		}
		res.Data = p.Processing.Filter.Apply(res.Data, res.Rate)
	}
	if p.Processing.NoiseLevel > 0 {
		p.mu.Lock()
		if p.rand == nil {
			p.rand = rand.New(rand.NewSource(p.Processing.Seed))
		}
		res.Data.AddUniformNoise(p.Processing.NoiseLevel, p.rand)
		p.mu.Unlock()
	}
	return res, nil
}

// Probe reports the effective rate of req without conditioning any data.
func (p *Processor) Probe(ctx context.Context, req Request) (signals.Hz, bool, error) {
	native, ok, err := NativeProber{Source: p.Source}.Probe(ctx, req)
	if err != nil || !ok {
		return 0, ok, err
	}
	return p.Processing.EffectiveRate(native), true, nil
}
