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
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0644))
}

// layout returns every file below dir, relative to dir.
func layout(t *testing.T, dir string) []string {
	t.Helper()
	res := []string{}
	require.NoError(t, filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			res = append(res, filepath.ToSlash(rel))
		}
		return nil
	}))
	sort.Strings(res)
	return res
}

func TestRatios(t *testing.T) {
	for _, tc := range []struct {
		ratios  Ratios
		n       int
		want    []int
		wantErr bool
	}{
		{ratios: Ratios{Train: 0.5, Test: 0.25}, n: 10, want: []int{5, 7}},
		{ratios: Ratios{Train: 0.7, Test: 0.2}, n: 3, want: []int{2, 2}},
		{ratios: Ratios{Train: 1, Test: 0}, n: 4, want: []int{4, 4}},
		{ratios: Ratios{Train: 0, Test: 0}, n: 4, want: []int{0, 0}},
		{ratios: Ratios{Train: 0.8, Test: 0.3}, wantErr: true},
		{ratios: Ratios{Train: -0.1, Test: 0.3}, wantErr: true},
	} {
		if err := tc.ratios.Validate(); (err != nil) != tc.wantErr {
			t.Errorf("%+v: got error %v, wanted error %v", tc.ratios, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			continue
		}
		train, test := tc.ratios.Bounds(tc.n)
		if diff := cmp.Diff(tc.want, []int{train, test}); diff != "" {
			t.Errorf("%+v.Bounds(%v): %v", tc.ratios, tc.n, diff)
		}
	}
}

func TestPartitionGroups(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "MyDataset")
	require.NoError(t, os.Mkdir(dir, 0755))
	groups := [][]string{}
	for i := 0; i < 5; i++ {
		group := []string{}
		for _, ext := range []string{".tfrecord", ".json"} {
			path := filepath.Join(dir, fmt.Sprintf("s%v%v", 4-i, ext))
			touch(t, path)
			group = append(group, path)
		}
		groups = append(groups, group)
	}
	touch(t, filepath.Join(dir, "MyDataset.tfrecord"))

	p := &Partitioner{Ratios: Ratios{Train: 0.5, Test: 0.25}, Container: "MyDataset.tfrecord"}
	counts, err := p.PartitionGroups(dir, groups)
	require.NoError(t, err)
	assert.Equal(t, Counts{Training: 2, Test: 1, Validation: 2}, counts)
	// Groups keep production order, not name order.
	want := []string{
		"Test/s2.json",
		"Test/s2.tfrecord",
		"Training/s3.json",
		"Training/s3.tfrecord",
		"Training/s4.json",
		"Training/s4.tfrecord",
		"Validation/s0.json",
		"Validation/s0.tfrecord",
		"Validation/s1.json",
		"Validation/s1.tfrecord",
	}
	if diff := cmp.Diff(want, layout(t, dir)); diff != "" {
		t.Error(diff)
	}
	assert.FileExists(t, filepath.Join(root, "MyDataset.tfrecord"))

	counts, err = p.PartitionGroups(dir, groups)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
	if diff := cmp.Diff(want, layout(t, dir)); diff != "" {
		t.Errorf("second partitioning changed the layout: %v", diff)
	}
}

func TestPartitionListing(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "data")
	require.NoError(t, os.Mkdir(dir, 0755))
	for _, name := range []string{"d.json", "a.json", "c.json", "b.json", "merged.tfrecord"} {
		touch(t, filepath.Join(dir, name))
	}
	p := &Partitioner{Ratios: Ratios{Train: 0.5, Test: 0.25}, Container: "merged.tfrecord"}
	counts, err := p.PartitionListing(dir)
	require.NoError(t, err)
	assert.Equal(t, Counts{Training: 2, Test: 1, Validation: 1}, counts)
	want := []string{"Test/c.json", "Training/a.json", "Training/b.json", "Validation/d.json"}
	if diff := cmp.Diff(want, layout(t, dir)); diff != "" {
		t.Error(diff)
	}
	assert.FileExists(t, filepath.Join(root, "merged.tfrecord"))

	counts, err = p.PartitionListing(dir)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
	if diff := cmp.Diff(want, layout(t, dir)); diff != "" {
		t.Error(diff)
	}
}

func TestPartitionInvalidRatios(t *testing.T) {
	p := &Partitioner{Ratios: Ratios{Train: 0.9, Test: 0.9}}
	_, err := p.PartitionListing(t.TempDir())
	assert.Error(t, err)
	_, err = p.PartitionGroups(t.TempDir(), nil)
	assert.Error(t, err)
}
