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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google-research/quakelabeler/dataset/partition"
	"github.com/google-research/quakelabeler/dataset/produce"
	"github.com/google-research/quakelabeler/dataset/sample"
	"github.com/google-research/quakelabeler/tools/catalog"
	"github.com/google-research/quakelabeler/tools/export"
	"github.com/google-research/quakelabeler/tools/filter"
	"github.com/google-research/quakelabeler/tools/waveform"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, produce.Volume{N: 10}, cfg.Volume)
	assert.Equal(t, sample.SingleTrace, cfg.Mode())
	assert.Equal(t, sample.LabelOptions{Enabled: true, PickWidth: 100, DetectWidth: 200}, cfg.Labels())
	assert.Equal(t, waveform.Request{Network: "*", Location: "*", Channel: "BH?"}, cfg.Request())
	assert.Equal(t, "MyDataset2020-01-02", cfg.Dir(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.True(t, cfg.Tables.CSV)
	assert.Equal(t, 5000, cfg.windowParams().PointCount)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
volume: MAX
single_trace: false
sample_length: 3000
pre_offset: [5, 20]
sample_rate: 100
filter:
  type: bandpass
  freqmin: 1
  freqmax: 20
spectra: true
formats: [tfrecord, json, wav]
merged_container: true
noise_mirror: true
partition:
  enabled: true
  train: 0.5
  test: 0.25
tables:
  parquet: true
  sqlite: true
output: /tmp/quakes
`))
	require.NoError(t, err)
	assert.Equal(t, produce.MaxVolume, cfg.Volume)
	assert.Equal(t, sample.MultiComponent, cfg.Mode())
	assert.Equal(t, filter.Bandpass, cfg.Filter.Type)
	assert.EqualValues(t, 100, cfg.Processing().Resample)
	assert.True(t, cfg.Spectra)
	assert.Equal(t, []export.Format{export.TFRecord, export.JSON, export.WAV}, cfg.Formats)
	assert.Equal(t, partition.Ratios{Train: 0.5, Test: 0.25}, cfg.Partition.Ratios)
	assert.Equal(t, TablesConfig{CSV: true, Parquet: true, SQLite: true}, cfg.Tables)
	assert.Equal(t, "/tmp/quakes", cfg.Dir(time.Now()))
	params := cfg.windowParams()
	assert.EqualValues(t, 5, params.PreOffset.Min)
	assert.EqualValues(t, 20, params.PreOffset.Max)
	assert.EqualValues(t, 30, params.PostOffset.Min)
	assert.Equal(t, 3000, params.PointCount)

	cfg, err = Parse(strings.NewReader("volume: 25\nfilter:\n  type: 1\n  freqmax: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, produce.Volume{N: 25}, cfg.Volume)
	assert.Equal(t, filter.Lowpass, cfg.Filter.Type)

	cfg, err = Parse(strings.NewReader(""))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Error(diff)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name       string
		yaml       string
		wantErrors int
	}{
		{name: "unknown field", yaml: "colume: 3\n"},
		{name: "bad volume", yaml: "volume: lots\n"},
		{name: "bad format", yaml: "formats: [mseed]\n"},
		{name: "several problems", yaml: "pre_offset: [1]\nnoise_offset: -1\nformats: [json, json]\n", wantErrors: 3},
		{name: "filter above nyquist", yaml: "sample_rate: 20\nfilter:\n  type: lowpass\n  freqmax: 15\n", wantErrors: 1},
		{name: "merged container without tfrecord", yaml: "formats: [json]\nmerged_container: true\n", wantErrors: 1},
		{name: "bad ratios", yaml: "partition:\n  enabled: true\n  train: 0.9\n  test: 0.5\n", wantErrors: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.yaml))
			require.Error(t, err)
			if tc.wantErrors > 0 {
				joined, ok := err.(interface{ Unwrap() []error })
				require.True(t, ok, "got %v", err)
				assert.Len(t, joined.Unwrap(), tc.wantErrors)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("volume: 3\ndetrend: true\n"), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, produce.Volume{N: 3}, cfg.Volume)
	assert.True(t, cfg.Detrend)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildAndRun(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Output = filepath.Join(root, "quakes")
	cfg.Volume = produce.Volume{N: 2}
	cfg.SingleTrace = false
	cfg.SampleLength = 400
	cfg.Formats = []export.Format{export.TFRecord, export.JSON}
	cfg.MergedContainer = true
	cfg.NoiseMirror = true
	cfg.Partition.Enabled = true
	cfg.Partition.Ratios = partition.Ratios{Train: 0.5, Test: 0.25}
	cfg.Detrend = true
	require.NoError(t, cfg.Validate())

	t0 := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []catalog.ArrivalRecord{
		{EventID: 1, Station: "AAA", Phase: "P", Arrival: t0, Magnitude: 4},
		{EventID: 2, Station: "BBB", Phase: "S", Arrival: t0.Add(time.Hour), Magnitude: 5},
		{EventID: 3, Station: "CCC", Phase: "P", Arrival: t0.Add(2 * time.Hour), Magnitude: 6},
	}
	src := &waveform.SyntheticSource{Network: "XX", Rate: 20, NoiseLevel: -40, SignalLevel: -6, Arrivals: map[string][]time.Time{}}
	for _, rec := range records {
		src.Arrivals[rec.Station] = []time.Time{rec.Arrival}
	}

	p, err := cfg.Build(src, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, cfg.Output, p.Dir)
	require.NotNil(t, p.Mirror)
	require.NotNil(t, p.Partitioner)

	acc, sum, err := p.Orchestrator.Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Produced)
	added, err := p.Mirror.Run(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	require.NoError(t, p.Close())
	assert.Equal(t, 4, p.Container.Count())

	counts, err := p.Partitioner.PartitionGroups(p.Dir, acc.Groups())
	require.NoError(t, err)
	assert.Equal(t, partition.Counts{Training: 2, Test: 1, Validation: 1}, counts)
	assert.FileExists(t, filepath.Join(root, "quakes.tfrecord"))
	first := acc.Record(0).Filename
	assert.FileExists(t, filepath.Join(p.Dir, partition.Training, first+".tfrecord"))
	assert.FileExists(t, filepath.Join(p.Dir, partition.Training, first+".json"))
	lastNoise := acc.Record(3).Filename
	assert.True(t, strings.HasSuffix(lastNoise, sample.NoiseSuffix))
	assert.FileExists(t, filepath.Join(p.Dir, partition.Validation, lastNoise+".json"))
}
