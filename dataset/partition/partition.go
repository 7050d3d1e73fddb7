/* Package partition splits a produced dataset into training, test and validation subsets.
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
package partition

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Subset directory names.
const (
	Training   = "Training"
	Test       = "Test"
	Validation = "Validation"
)

// Ratios are the fractions of the dataset assigned to training and test. The rest is validation.
type Ratios struct {
	Train float64 `yaml:"train"`
	Test  float64 `yaml:"test"`
}

// DefaultRatios assigns 70% to training, 20% to test and 10% to validation.
func DefaultRatios() Ratios {
	return Ratios{Train: 0.7, Test: 0.2}
}

// Validate checks that both ratios are non negative and sum to at most 1.
func (r Ratios) Validate() error {
	if math.IsNaN(r.Train) || math.IsNaN(r.Test) || r.Train < 0 || r.Test < 0 || r.Train+r.Test > 1 {
		return fmt.Errorf("invalid partition ratios train=%v test=%v", r.Train, r.Test)
	}
	return nil
}

// Bounds returns the exclusive ends of the training and test ranges of n units.
func (r Ratios) Bounds(n int) (int, int) {
	return int(math.Floor(float64(n) * r.Train)), int(math.Floor(float64(n) * (r.Train + r.Test)))
}

// Subset returns the subset directory of unit idx out of n.
func (r Ratios) Subset(idx, n int) string {
	train, test := r.Bounds(n)
	switch {
	case idx < train:
		return Training
	case idx < test:
		return Test
	}
	return Validation
}

// Counts are the number of units moved into each subset.
type Counts struct {
	Training   int
	Test       int
	Validation int
}

func (c *Counts) add(subset string) {
	switch subset {
	case Training:
		c.Training++
	case Test:
		c.Test++
	case Validation:
		c.Validation++
	}
}

// Partitioner moves dataset files into subset directories.
type Partitioner struct {
	Ratios Ratios
	// Container is the base name of a merged container file that is moved to the parent directory
	// instead of being partitioned.
	Container string
	Logger    *zap.Logger
}

func (p *Partitioner) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// PartitionGroups partitions groups of files, typically the files of each sample in production order.
// Every file of a group goes into the same subset. Files that no longer exist are skipped, so
// partitioning twice is a no-op.
func (p *Partitioner) PartitionGroups(dir string, groups [][]string) (Counts, error) {
	counts := Counts{}
	if err := p.Ratios.Validate(); err != nil {
		return counts, err
	}
	if err := p.relocateContainer(dir); err != nil {
		return counts, err
	}
	for idx, group := range groups {
		subset := p.Ratios.Subset(idx, len(groups))
		moved := 0
		for _, path := range group {
			if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
				path = filepath.Join(dir, path)
			}
			ok, err := move(path, filepath.Join(dir, subset))
			if err != nil {
				return counts, err
			}
			if ok {
				moved++
			}
		}
		if moved > 0 {
			counts.add(subset)
		}
	}
	p.logger().Info("partitioned dataset", zap.String("dir", dir), zap.Int("training", counts.Training), zap.Int("test", counts.Test), zap.Int("validation", counts.Validation))
	return counts, nil
}

// PartitionListing partitions the regular files directly inside dir, in name order.
// Files already in subset directories are not listed, so partitioning twice is a no-op.
func (p *Partitioner) PartitionListing(dir string) (Counts, error) {
	counts := Counts{}
	if err := p.Ratios.Validate(); err != nil {
		return counts, err
	}
	if err := p.relocateContainer(dir); err != nil {
		return counts, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return counts, err
	}
	files := []string{}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	for idx, path := range files {
		subset := p.Ratios.Subset(idx, len(files))
		if _, err := move(path, filepath.Join(dir, subset)); err != nil {
			return counts, err
		}
		counts.add(subset)
	}
	p.logger().Info("partitioned dataset listing", zap.String("dir", dir), zap.Int("training", counts.Training), zap.Int("test", counts.Test), zap.Int("validation", counts.Validation))
	return counts, nil
}

func (p *Partitioner) relocateContainer(dir string) error {
	if p.Container == "" {
		return nil
	}
	ok, err := move(filepath.Join(dir, filepath.Base(p.Container)), filepath.Dir(filepath.Clean(dir)))
	if ok {
		p.logger().Debug("relocated merged container", zap.String("container", p.Container))
	}
	return err
}

// move moves path into dir, creating dir if needed. It returns false if path doesn't exist.
func move(path, dir string) (bool, error) {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		return false, err
	}
	return true, nil
}
