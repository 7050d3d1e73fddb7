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
package config

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google-research/quakelabeler/dataset/partition"
	"github.com/google-research/quakelabeler/dataset/produce"
	"github.com/google-research/quakelabeler/dataset/sample"
	"github.com/google-research/quakelabeler/dataset/window"
	"github.com/google-research/quakelabeler/tools/export"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/waveform"
	"go.uber.org/zap"
)

// Pipeline is the set of components of a run.
type Pipeline struct {
	// Dir is the dataset directory.
	Dir string
	// Container is the merged TFRecord container, if any.
	Container    *export.Container
	Writer       *export.Writer
	Assembler    *sample.Assembler
	Orchestrator *produce.Orchestrator
	// Mirror is nil unless noise mirroring is enabled.
	Mirror *produce.NoiseMirror
	// Partitioner is nil unless partitioning is enabled.
	Partitioner *partition.Partitioner
}

// ContainerName returns the base name of the merged container of a dataset directory.
func ContainerName(dir string) string {
	return filepath.Base(filepath.Clean(dir)) + ".tfrecord"
}

// Build creates the dataset directory and wires the components of a run reading from src.
// Fetched traces are conditioned as configured before use.
func (c *Config) Build(src waveform.Source, logger *zap.Logger, progress io.Writer, now time.Time) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := c.Dir(now)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	p := &Pipeline{Dir: dir}
	p.Writer = &export.Writer{
		Dir:     dir,
		Formats: c.Formats,
		Logger:  logger,
	}
	if c.MergedContainer {
		container, err := export.NewContainer(filepath.Join(dir, ContainerName(dir)))
		if err != nil {
			return nil, err
		}
		p.Container = container
		p.Writer.Merged = container
	}
	var merged produce.Staging
	if p.Container != nil {
		merged = p.Container
	}
	p.Assembler = &sample.Assembler{
		Mode:          c.Mode(),
		Labels:        c.Labels(),
		SimplifyPhase: c.SimplifyPhase,
		IncludeEnd:    c.IncludeEnd,
		Spectra:       c.Spectra,
		Exporter:      p.Writer,
	}
	processor := waveform.NewProcessor(src, c.Processing())
	p.Orchestrator = &produce.Orchestrator{
		Config: produce.Config{
			Volume:       c.Volume,
			Request:      c.Request(),
			Detrend:      c.Detrend,
			FetchPadding: signals.Seconds(c.FetchPadding),
			Dir:          dir,
			Progress:     progress,
		},
		Planner: &window.Planner{
			Params: c.windowParams(),
			Prober: processor,
			Rand:   rand.New(rand.NewSource(c.Seed)),
		},
		Source:    processor,
		Assembler: p.Assembler,
		Merged:    merged,
		Logger:    logger,
	}
	if c.NoiseMirror {
		p.Mirror = &produce.NoiseMirror{
			Source:       processor,
			Assembler:    p.Assembler,
			Request:      c.Request(),
			Offset:       signals.Seconds(c.NoiseOffset).Duration(),
			FetchPadding: signals.Seconds(c.FetchPadding),
			Detrend:      c.Detrend,
			Merged:       merged,
			Logger:       logger,
		}
	}
	if c.Partition.Enabled {
		p.Partitioner = &partition.Partitioner{
			Ratios:    c.Partition.Ratios,
			Container: ContainerName(dir),
			Logger:    logger,
		}
	}
	return p, nil
}

// Close closes the merged container, if any.
func (p *Pipeline) Close() error {
	if p.Container == nil {
		return nil
	}
	return p.Container.Close()
}
