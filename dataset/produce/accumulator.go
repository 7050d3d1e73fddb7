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
	"github.com/google-research/quakelabeler/dataset/sample"
	"github.com/google-research/quakelabeler/tools/catalog"
)

// Accumulator holds the samples of a run in production order. It only ever grows.
type Accumulator struct {
	records []catalog.EnrichedSampleRecord
	groups  [][]string
	noise   []int
}

// Len returns the number of samples.
func (a *Accumulator) Len() int {
	return len(a.records)
}

// Record returns sample idx.
func (a *Accumulator) Record(idx int) catalog.EnrichedSampleRecord {
	return a.records[idx]
}

// Records returns a copy of every sample record, primary and noise, in production order.
func (a *Accumulator) Records() []catalog.EnrichedSampleRecord {
	return append([]catalog.EnrichedSampleRecord{}, a.records...)
}

// Groups returns the files of every sample, in production order.
func (a *Accumulator) Groups() [][]string {
	res := make([][]string, len(a.groups))
	for idx := range a.groups {
		res[idx] = append([]string{}, a.groups[idx]...)
	}
	return res
}

// Noise returns the noise sample records, in production order.
func (a *Accumulator) Noise() []catalog.EnrichedSampleRecord {
	res := make([]catalog.EnrichedSampleRecord, len(a.noise))
	for idx, recordIdx := range a.noise {
		res[idx] = a.records[recordIdx]
	}
	return res
}

// Add appends a sample.
func (a *Accumulator) Add(out sample.Output) {
	if out.Record.Noise {
		a.noise = append(a.noise, len(a.records))
	}
	a.records = append(a.records, out.Record)
	a.groups = append(a.groups, append([]string{}, out.Paths...))
}
