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
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/workerpool/leaktest"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	proto1 "github.com/golang/protobuf/proto"
	tf "github.com/ryszard/tfutils/proto/tensorflow/core/example"
)

type Inner struct {
	Station string
	When    time.Time
}

type testRecord struct {
	Inner
	Magnitude float64
	Count     int
	Noise     bool
	Channels  []string
	Where     *Inner
	Secret    string `export:"-"`
}

func testArtifact(channels ...string) *Artifact {
	a := &Artifact{
		Name:          "XX.STA.BHZ.20200102T030405",
		Rate:          100,
		Start:         time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		ArrivalSample: 2,
		Labels: &Labels{
			Bell: signals.BellLabel(5, 2, 2),
			Rect: signals.RectLabel(5, 2, 2),
		},
		Record: testRecord{
			Inner:     Inner{Station: "STA", When: time.Date(2020, 1, 2, 3, 4, 7, 0, time.UTC)},
			Magnitude: math.NaN(),
			Count:     3,
			Noise:     true,
			Channels:  channels,
			Secret:    "hidden",
		},
	}
	for idx, ch := range channels {
		a.Channels = append(a.Channels, Channel{Name: ch, Data: signals.Float64Slice{0, 1, float64(idx), -1, 0}})
	}
	return a
}

func TestParseFormat(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "tfrecord", want: TFRecord},
		{in: "JSON", want: JSON},
		{in: " wav ", want: WAV},
		{in: "mseed", wantErr: true},
	} {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): wanted error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseFormat(%q) = %v, %v, wanted %v", tc.in, got, err, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	a := testArtifact("BHZ")
	assert.NoError(t, a.Validate())
	a.Labels.Bell = a.Labels.Bell[1:]
	assert.Error(t, a.Validate())
	b := testArtifact("BHE", "BHZ")
	b.Channels[1].Data = b.Channels[1].Data[1:]
	assert.Error(t, b.Validate())
	assert.Error(t, (&Artifact{Name: "empty"}).Validate())
}

func TestFeatures(t *testing.T) {
	features, err := testArtifact("BHE", "BHZ").Features()
	require.NoError(t, err)
	for name, want := range map[string]interface{}{
		"name":             "XX.STA.BHZ.20200102T030405",
		"start":            "2020-01-02T03:04:05Z",
		"channels":         []string{"BHE", "BHZ"},
		"trace/BHZ":        []float64{0, 1, 1, -1, 0},
		"label/rect":       []float64{0, 1, 1, 0, 0},
		"record.Station":   "STA",
		"record.When":      "2020-01-02T03:04:07Z",
		"record.Count":     int64(3),
		"record.Noise":     int64(1),
		"record.Channels":  []string{"BHE", "BHZ"},
		"arrival_sample":   float64(2),
		"sampling_rate":    float64(100),
		"record.Magnitude": math.NaN(),
	} {
		if diff := cmp.Diff(want, features[name], cmp.Comparer(func(a, b float64) bool {
			return a == b || (math.IsNaN(a) && math.IsNaN(b))
		})); diff != "" {
			t.Errorf("feature %v: %v", name, diff)
		}
	}
	for _, absent := range []string{"record.Secret", "record.Where.Station"} {
		if _, found := features[absent]; found {
			t.Errorf("feature %v should be absent", absent)
		}
	}
}

func TestSpectralFeatures(t *testing.T) {
	data := make(signals.Float64Slice, 200)
	for idx := range data {
		data[idx] = math.Sin(2 * math.Pi * 5 * float64(idx) / 100)
	}
	a := &Artifact{Name: "XX.STA.BHZ", Rate: 100, Channels: []Channel{{Name: "BHZ", Data: data}}, ArrivalSample: math.NaN()}
	features, err := a.Features()
	require.NoError(t, err)
	assert.NotContains(t, features, "spectrum/BHZ")

	a.Spectra = true
	features, err = a.Features()
	require.NoError(t, err)
	assert.Len(t, features["spectrum/BHZ"], 100)
	assert.InDelta(t, 5.0, features["dominant_frequency/BHZ"], 1e-9)
}

func readTFRecord(t *testing.T, path string) []*tf.Example {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	res := []*tf.Example{}
	for len(b) > 0 {
		require.GreaterOrEqual(t, len(b), 12)
		length := int(binary.LittleEndian.Uint64(b))
		require.GreaterOrEqual(t, len(b), 16+length)
		ex := &tf.Example{}
		require.NoError(t, proto.Unmarshal(b[12:12+length], proto1.MessageV2(ex)))
		res = append(res, ex)
		b = b[16+length:]
	}
	return res
}

func TestWriteAllFormats(t *testing.T) {
	dir := t.TempDir()
	container, err := NewContainer(filepath.Join(dir, "merged.tfrecord"))
	require.NoError(t, err)
	w := &Writer{Dir: filepath.Join(dir, "out"), Formats: []Format{TFRecord, JSON, WAV}, Merged: container}
	a := testArtifact("BHE", "BHZ")
	paths, err := w.Write(a)
	require.NoError(t, err)
	assert.Equal(t, 1, container.Staged())
	assert.Equal(t, 0, container.Count())
	require.NoError(t, container.Commit())
	require.NoError(t, container.Close())

	base := filepath.Join(dir, "out", a.Name)
	want := []string{
		base + ".tfrecord",
		base + ".json",
		base + ".BHE.wav",
		base + ".BHZ.wav",
		base + "out_bell.wav",
		base + "out_rect.wav",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatal(diff)
	}
	for _, path := range paths {
		assert.FileExists(t, path)
	}

	examples := readTFRecord(t, base+".tfrecord")
	require.Len(t, examples, 1)
	bell := examples[0].Features.Feature["label/bell"].GetFloatList().Value
	assert.Equal(t, signals.BellLabel(5, 2, 2).ToFloat32(), bell)
	assert.Equal(t, []float32{0, 1, 1, -1, 0}, examples[0].Features.Feature["trace/BHZ"].GetFloatList().Value)
	assert.Equal(t, 1, container.Count())
	assert.Len(t, readTFRecord(t, container.Path), 1)

	b, err := os.ReadFile(base + ".json")
	require.NoError(t, err)
	doc := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "STA", doc["record.Station"])
	assert.Nil(t, doc["record.Magnitude"])
	assert.Contains(t, doc, "record.Magnitude")
	assert.Len(t, doc["trace/BHE"], 5)

	wavInfo, err := os.Stat(base + ".BHE.wav")
	require.NoError(t, err)
	assert.EqualValues(t, 44+2*5, wavInfo.Size())
}

func TestWriteSingleChannelWAV(t *testing.T) {
	dir := t.TempDir()
	a := testArtifact("BHZ")
	a.Labels = nil
	paths, err := (&Writer{Dir: dir, Formats: []Format{WAV}}).Write(a)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, a.Name+".wav")}, paths)
}

func TestPartialFailure(t *testing.T) {
	defer leaktest.Check(t)()
	dir := t.TempDir()
	a := testArtifact("BHE", "B/Z")
	paths, err := (&Writer{Dir: dir, Formats: []Format{TFRecord, WAV}}).Write(a)
	partial := &PartialError{}
	require.True(t, errors.As(err, &partial), "got %v", err)
	assert.False(t, partial.Total())
	assert.Contains(t, partial.Failed, WAV)
	assert.NotContains(t, partial.Failed, TFRecord)
	assert.Equal(t, []string{filepath.Join(dir, a.Name+".tfrecord")}, paths)
	// Files of the failed format are removed.
	_, statErr := os.Stat(filepath.Join(dir, a.Name+".BHE.wav"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = (&Writer{Dir: dir, Formats: []Format{WAV}}).Write(a)
	require.True(t, errors.As(err, &partial))
	assert.True(t, partial.Total())
}

func TestContainerStaging(t *testing.T) {
	c, err := NewContainer(filepath.Join(t.TempDir(), "c.tfrecord"))
	require.NoError(t, err)
	encoded := func(name string) []byte {
		ex, err := (&Artifact{Name: name, Rate: 1, Channels: []Channel{{Name: "BHZ", Data: signals.Float64Slice{1}}}}).ToTFExample()
		require.NoError(t, err)
		b, err := proto.Marshal(proto1.MessageV2(ex))
		require.NoError(t, err)
		return b
	}
	require.NoError(t, c.Stage(encoded("kept")))
	require.NoError(t, c.Commit())
	require.NoError(t, c.Stage(encoded("dropped")))
	require.NoError(t, c.Stage(encoded("dropped-too")))
	c.Rollback()
	assert.Equal(t, 0, c.Staged())
	require.NoError(t, c.Stage(encoded("late")))
	require.NoError(t, c.Commit())
	require.NoError(t, c.Stage(encoded("unfinished")))
	require.NoError(t, c.Close())
	assert.Equal(t, 2, c.Count())

	names := []string{}
	for _, ex := range readTFRecord(t, c.Path) {
		names = append(names, string(ex.Features.Feature["name"].GetBytesList().Value[0]))
	}
	assert.Equal(t, []string{"kept", "late"}, names)
}

func TestContainerClosed(t *testing.T) {
	c, err := NewContainer(filepath.Join(t.TempDir(), "c.tfrecord"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Error(t, c.Stage([]byte("x")))
	assert.Error(t, c.Commit())
	assert.NoError(t, c.Close())
}
