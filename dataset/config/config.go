/* Package config holds the YAML run configuration of a labeling run and builds its components.
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
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google-research/quakelabeler/dataset/partition"
	"github.com/google-research/quakelabeler/dataset/produce"
	"github.com/google-research/quakelabeler/dataset/sample"
	"github.com/google-research/quakelabeler/dataset/window"
	"github.com/google-research/quakelabeler/tools/export"
	"github.com/google-research/quakelabeler/tools/filter"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/waveform"
	"gopkg.in/yaml.v3"
)

// FilterConfig configures the Butterworth filter applied to fetched traces.
type FilterConfig struct {
	Type    filter.Type `yaml:"type"`
	FreqMin float64     `yaml:"freqmin"`
	FreqMax float64     `yaml:"freqmax"`
	Corners int         `yaml:"corners"`
}

// PartitionConfig configures the final split of the dataset.
type PartitionConfig struct {
	Enabled          bool `yaml:"enabled"`
	partition.Ratios `yaml:",inline"`
}

// TablesConfig selects the sample table formats written at the end of a run.
type TablesConfig struct {
	CSV     bool `yaml:"csv"`
	Parquet bool `yaml:"parquet"`
	SQLite  bool `yaml:"sqlite"`
}

// Config is a labeling run.
type Config struct {
	Volume        produce.Volume `yaml:"volume"`
	FixedLength   bool           `yaml:"fixed_length"`
	SampleLength  int            `yaml:"sample_length"`
	RandomArrival bool           `yaml:"random_arrival"`
	// PreOffset and PostOffset are [min, max] ranges in seconds.
	PreOffset    []float64 `yaml:"pre_offset"`
	PostOffset   []float64 `yaml:"post_offset"`
	StartArrival float64   `yaml:"start_arrival"`
	EndArrival   float64   `yaml:"end_arrival"`
	MaxRedraws   int       `yaml:"max_redraws"`

	// SampleRate resamples every trace when positive.
	SampleRate float64      `yaml:"sample_rate"`
	Filter     FilterConfig `yaml:"filter"`
	Detrend    bool         `yaml:"detrend"`
	NoiseLevel float64      `yaml:"noise_level"`

	SimplifyPhase bool `yaml:"simplify_phase"`
	SingleTrace   bool `yaml:"single_trace"`
	IncludeEnd    bool `yaml:"include_end"`
	ExportInOut   bool `yaml:"export_inout"`
	PickWidth     int  `yaml:"pick_width"`
	DetectWidth   int  `yaml:"detect_width"`
	Spectra       bool `yaml:"spectra"`

	Formats         []export.Format `yaml:"formats"`
	MergedContainer bool            `yaml:"merged_container"`
	NoiseMirror     bool            `yaml:"noise_mirror"`
	// NoiseOffset is how many seconds before each sample its noise sibling is fetched.
	NoiseOffset float64         `yaml:"noise_offset"`
	Partition   PartitionConfig `yaml:"partition"`
	Tables      TablesConfig    `yaml:"tables"`

	// Output is the dataset directory. Empty means MyDataset<date> in the working directory.
	Output   string `yaml:"output"`
	Network  string `yaml:"network"`
	Location string `yaml:"location"`
	Channel  string `yaml:"channel"`
	// FetchPadding is added to the end of fixed length fetches, in seconds.
	FetchPadding float64 `yaml:"fetch_padding"`
	Seed         int64   `yaml:"seed"`
}

// Default returns the default run: 10 single trace, fixed length samples of 5000 points with
// randomly placed arrivals, labels and a CSV table.
func Default() *Config {
	params := window.DefaultParams()
	return &Config{
		Volume:        produce.Volume{N: 10},
		FixedLength:   params.FixedLength,
		SampleLength:  params.PointCount,
		RandomArrival: params.RandomArrival,
		PreOffset:     []float64{float64(params.PreOffset.Min), float64(params.PreOffset.Max)},
		PostOffset:    []float64{float64(params.PostOffset.Min), float64(params.PostOffset.Max)},
		StartArrival:  float64(params.StartArrival),
		EndArrival:    float64(params.EndArrival),
		MaxRedraws:    params.MaxRedraws,
		SingleTrace:   true,
		ExportInOut:   true,
		PickWidth:     signals.DefaultPickWidth,
		DetectWidth:   signals.DefaultDetectWidth,
		Formats:       []export.Format{export.TFRecord},
		NoiseOffset:   produce.DefaultNoiseOffset.Seconds(),
		Partition: PartitionConfig{
			Ratios: partition.DefaultRatios(),
		},
		Tables:       TablesConfig{CSV: true},
		Network:      "*",
		Location:     "*",
		Channel:      "BH?",
		FetchPadding: float64(produce.DefaultFetchPadding),
	}
}

// Parse parses YAML on top of the defaults and validates the result.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

func offsetRange(name string, r []float64) (window.Range, error) {
	if len(r) != 2 {
		return window.Range{}, fmt.Errorf("%v must be [min, max], got %v", name, r)
	}
	res := window.Range{Min: signals.Seconds(r[0]), Max: signals.Seconds(r[1])}
	if err := res.Validate(); err != nil {
		return window.Range{}, fmt.Errorf("%v: %w", name, err)
	}
	return res, nil
}

// Validate returns every problem with the config.
func (c *Config) Validate() error {
	errs := []error{}
	if !c.Volume.Max && c.Volume.N < 1 {
		errs = append(errs, fmt.Errorf("volume must be a positive integer or MAX"))
	}
	if _, err := offsetRange("pre_offset", c.PreOffset); err != nil {
		errs = append(errs, err)
	}
	if _, err := offsetRange("post_offset", c.PostOffset); err != nil {
		errs = append(errs, err)
	}
	if err := c.windowParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("sample_rate %v must be non negative", c.SampleRate))
	}
	if c.SampleRate > 0 {
		if err := c.filter().Validate(signals.Hz(c.SampleRate)); err != nil {
			errs = append(errs, fmt.Errorf("filter: %w", err))
		}
	}
	if c.NoiseLevel < 0 {
		errs = append(errs, fmt.Errorf("noise_level %v must be non negative", c.NoiseLevel))
	}
	if c.ExportInOut && (c.PickWidth < 1 || c.DetectWidth < 1) {
		errs = append(errs, fmt.Errorf("pick_width %v and detect_width %v must be positive", c.PickWidth, c.DetectWidth))
	}
	seen := map[export.Format]bool{}
	for _, format := range c.Formats {
		if seen[format] {
			errs = append(errs, fmt.Errorf("format %v listed twice", format))
		}
		seen[format] = true
	}
	if c.MergedContainer && !seen[export.TFRecord] {
		errs = append(errs, fmt.Errorf("merged_container needs the %v format", export.TFRecord))
	}
	if c.NoiseOffset <= 0 {
		errs = append(errs, fmt.Errorf("noise_offset %v must be positive", c.NoiseOffset))
	}
	if c.Partition.Enabled {
		if err := c.Partition.Ratios.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.FetchPadding < 0 {
		errs = append(errs, fmt.Errorf("fetch_padding %v must be non negative", c.FetchPadding))
	}
	return errors.Join(errs...)
}

func (c *Config) windowParams() window.Params {
	pre, _ := offsetRange("pre_offset", c.PreOffset)
	post, _ := offsetRange("post_offset", c.PostOffset)
	return window.Params{
		FixedLength:   c.FixedLength,
		PointCount:    c.SampleLength,
		RandomArrival: c.RandomArrival,
		PreOffset:     pre,
		PostOffset:    post,
		StartArrival:  signals.Seconds(c.StartArrival),
		EndArrival:    signals.Seconds(c.EndArrival),
		MaxRedraws:    c.MaxRedraws,
	}
}

func (c *Config) filter() filter.Butterworth {
	return filter.Butterworth{
		Type:    c.Filter.Type,
		FreqMin: signals.Hz(c.Filter.FreqMin),
		FreqMax: signals.Hz(c.Filter.FreqMax),
		Corners: c.Filter.Corners,
	}
}

// Processing returns the conditioning applied to fetched traces.
func (c *Config) Processing() waveform.Processing {
	return waveform.Processing{
		Resample:   signals.Hz(c.SampleRate),
		Filter:     c.filter(),
		NoiseLevel: c.NoiseLevel,
		Seed:       c.Seed,
	}
}

// Request returns the network, location and channel patterns of every fetch.
func (c *Config) Request() waveform.Request {
	return waveform.Request{
		Network:  c.Network,
		Location: c.Location,
		Channel:  c.Channel,
	}
}

// Dir returns the dataset directory.
func (c *Config) Dir(now time.Time) string {
	if c.Output != "" {
		return c.Output
	}
	return "MyDataset" + now.Format("2006-01-02")
}

// Mode returns the sample grouping.
func (c *Config) Mode() sample.Mode {
	if c.SingleTrace {
		return sample.SingleTrace
	}
	return sample.MultiComponent
}

// Labels returns the label options.
func (c *Config) Labels() sample.LabelOptions {
	return sample.LabelOptions{
		Enabled:     c.ExportInOut,
		PickWidth:   c.PickWidth,
		DetectWidth: c.DetectWidth,
	}
}
