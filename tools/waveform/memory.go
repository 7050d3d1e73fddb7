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
	"sync"
)

// MemorySource serves slices of continuous traces held in memory.
type MemorySource struct {
	mu      sync.Mutex
	traces  []*Trace
	fetches int
}

// NewMemorySource returns a MemorySource holding traces.
func NewMemorySource(traces ...*Trace) *MemorySource {
	return &MemorySource{traces: traces}
}

// Add adds a continuous trace.
func (m *MemorySource) Add(tr *Trace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces = append(m.traces, tr)
}

// Fetches returns the number of Fetch calls so far.
func (m *MemorySource) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// Fetch returns the samples of every matching trace within [req.Start, req.End).
func (m *MemorySource) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	stream := Stream{}
	for _, tr := range m.traces {
		if !req.Matches(tr.Network, tr.Station, tr.Location, tr.Channel) {
			continue
		}
		if sliced := tr.Slice(req.Start, req.End); sliced != nil {
			stream = append(stream, sliced)
		}
	}
	if len(stream) == 0 {
		return UnavailableResult("no data for %v", req), nil
	}
	return FetchedResult(stream), nil
}
