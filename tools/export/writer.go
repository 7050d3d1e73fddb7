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
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/workerpool"
	"github.com/ryszard/tfutils/go/tfrecord"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	proto1 "github.com/golang/protobuf/proto"
)

const (
	// BellSuffix is appended to the artifact name for the WAV pick label.
	BellSuffix = "out_bell"
	// RectSuffix is appended to the artifact name for the WAV detection label.
	RectSuffix = "out_rect"
)

// PartialError is returned when some formats of an artifact failed to write.
type PartialError struct {
	Name    string
	Failed  map[Format]error
	Written []string
}

func (p *PartialError) Error() string {
	formats := make([]string, 0, len(p.Failed))
	for format, err := range p.Failed {
		formats = append(formats, fmt.Sprintf("%v: %v", format, err))
	}
	sort.Strings(formats)
	return fmt.Sprintf("exporting %v failed for %v", p.Name, strings.Join(formats, ", "))
}

func (p *PartialError) Unwrap() []error {
	res := make([]error, 0, len(p.Failed))
	for _, err := range p.Failed {
		res = append(res, err)
	}
	return res
}

// Total returns whether no format of the artifact was written.
func (p *PartialError) Total() bool {
	return len(p.Written) == 0
}

// Writer writes artifacts in a set of formats to a directory.
type Writer struct {
	Dir     string
	Formats []Format
	// Merged, if set, has a copy of every TFRecord example staged. The caller commits
	// or rolls them back.
	Merged *Container
	Logger *zap.Logger
}

// Write writes the artifact in every configured format concurrently and returns the paths written.
// If some formats fail the returned error is a *PartialError.
func (w *Writer) Write(a *Artifact) ([]string, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return nil, err
	}
	lock := &sync.Mutex{}
	written := map[Format][]string{}
	pool := workerpool.New[Format](len(w.Formats))
	for _, format := range w.Formats {
		format := format
		pool.Go(format, func() error {
			paths, err := w.write(format, a)
			if err != nil {
				for _, path := range paths {
					os.Remove(path)
				}
				return err
			}
			lock.Lock()
			defer lock.Unlock()
			written[format] = paths
			return nil
		})
	}
	err := pool.Wait()
	res := []string{}
	for _, format := range w.Formats {
		res = append(res, written[format]...)
	}
	if err != nil {
		return res, &PartialError{Name: a.Name, Failed: pool.Failed(), Written: res}
	}
	if w.Logger != nil {
		w.Logger.Debug("exported sample", zap.String("name", a.Name), zap.Strings("paths", res))
	}
	return res, nil
}

func (w *Writer) write(format Format, a *Artifact) ([]string, error) {
	switch format {
	case TFRecord:
		return w.writeTFRecord(a)
	case JSON:
		return w.writeJSON(a)
	case WAV:
		return w.writeWAV(a)
	}
	return nil, fmt.Errorf("unknown format %v", format)
}

func encodeExample(a *Artifact) ([]byte, error) {
	ex, err := a.ToTFExample()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(proto1.MessageV2(ex))
}

func createFile(path string, f func(*bufio.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	buf := bufio.NewWriter(out)
	if err := f(buf); err != nil {
		out.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (w *Writer) writeTFRecord(a *Artifact) ([]string, error) {
	encoded, err := encodeExample(a)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(w.Dir, a.Name+".tfrecord")
	if err := createFile(path, func(out *bufio.Writer) error {
		return tfrecord.Write(out, encoded)
	}); err != nil {
		return []string{path}, err
	}
	if w.Merged != nil {
		if err := w.Merged.Stage(encoded); err != nil {
			return []string{path}, err
		}
	}
	return []string{path}, nil
}

func (w *Writer) writeJSON(a *Artifact) ([]string, error) {
	features, err := a.Features()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(w.Dir, a.Name+".json")
	if err := createFile(path, func(out *bufio.Writer) error {
		return json.NewEncoder(out).Encode(jsonSafe(features))
	}); err != nil {
		return []string{path}, err
	}
	return []string{path}, nil
}

func (w *Writer) writeWAV(a *Artifact) ([]string, error) {
	paths := []string{}
	writeOne := func(name string, data []float64) error {
		path := filepath.Join(w.Dir, name+".wav")
		paths = append(paths, path)
		return createFile(path, func(out *bufio.Writer) error {
			return signals.Float64Slice(data).WriteWAV(out, a.Rate)
		})
	}
	for _, ch := range a.Channels {
		name := a.Name
		if len(a.Channels) > 1 {
			name = fmt.Sprintf("%v.%v", a.Name, ch.Name)
		}
		if err := writeOne(name, ch.Data); err != nil {
			return paths, err
		}
	}
	if a.Labels != nil {
		if err := writeOne(a.Name+BellSuffix, a.Labels.Bell); err != nil {
			return paths, err
		}
		if err := writeOne(a.Name+RectSuffix, a.Labels.Rect); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

// Container is a single TFRecord file collecting the examples of a whole run.
// Examples are staged first and only written on Commit.
type Container struct {
	Path string

	lock   sync.Mutex
	file   *os.File
	out    *bufio.Writer
	count  int
	staged [][]byte
}

// NewContainer creates a container at path.
func NewContainer(path string) (*Container, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Container{
		Path: path,
		file: f,
		out:  bufio.NewWriter(f),
	}, nil
}

// Stage holds one encoded tf.Example until the next Commit or Rollback.
func (c *Container) Stage(encoded []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.file == nil {
		return fmt.Errorf("container %v is closed", c.Path)
	}
	c.staged = append(c.staged, encoded)
	return nil
}

// Commit appends the staged examples in staging order.
func (c *Container) Commit() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.file == nil {
		return fmt.Errorf("container %v is closed", c.Path)
	}
	staged := c.staged
	c.staged = nil
	for _, encoded := range staged {
		if err := tfrecord.Write(c.out, encoded); err != nil {
			return err
		}
		c.count++
	}
	return nil
}

// Rollback drops the staged examples.
func (c *Container) Rollback() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.staged = nil
}

// Staged returns the number of examples waiting for Commit.
func (c *Container) Staged() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.staged)
}

// Count returns the number of examples committed.
func (c *Container) Count() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.count
}

// Close flushes and closes the container. Staged examples are dropped.
func (c *Container) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.staged = nil
	if c.file == nil {
		return nil
	}
	err := c.out.Flush()
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	c.file = nil
	return err
}
