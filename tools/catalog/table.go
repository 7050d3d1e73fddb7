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
package catalog

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the value type of a column.
type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
)

// Column is one column of the sample table.
type Column struct {
	Name string
	Kind Kind
	// Value returns a string, int64, float64 or bool depending on Kind.
	Value func(r *EnrichedSampleRecord) interface{}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("15:04:05.000000")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

func str(f func(r *EnrichedSampleRecord) string) func(r *EnrichedSampleRecord) interface{} {
	return func(r *EnrichedSampleRecord) interface{} { return f(r) }
}

func num(f func(r *EnrichedSampleRecord) float64) func(r *EnrichedSampleRecord) interface{} {
	return func(r *EnrichedSampleRecord) interface{} { return f(r) }
}

func loc(f func(l *Location) float64) func(r *EnrichedSampleRecord) interface{} {
	return func(r *EnrichedSampleRecord) interface{} {
		if r.Location == nil {
			return math.NaN()
		}
		return f(r.Location)
	}
}

var (
	arrivalColumns = []Column{
		{"EVENTID", Int, func(r *EnrichedSampleRecord) interface{} { return r.EventID }},
		{"STA", String, str(func(r *EnrichedSampleRecord) string { return r.Station })},
		{"CHN", String, str(func(r *EnrichedSampleRecord) string { return r.Channel })},
		{"ISCPHASE", String, str(func(r *EnrichedSampleRecord) string { return r.Phase })},
		{"REPPHASE", String, str(func(r *EnrichedSampleRecord) string { return r.ReportedPhase })},
		{"ARRIVAL_DATE", String, str(func(r *EnrichedSampleRecord) string { return formatDate(r.Arrival) })},
		{"ARRIVAL_TIME", String, str(func(r *EnrichedSampleRecord) string { return formatClock(r.Arrival) })},
		{"ORIGIN_DATE", String, str(func(r *EnrichedSampleRecord) string { return formatDate(r.Origin) })},
		{"ORIGIN_TIME", String, str(func(r *EnrichedSampleRecord) string { return formatClock(r.Origin) })},
		{"EVENT_TYPE", String, str(func(r *EnrichedSampleRecord) string { return r.EventType })},
		{"EVENT_MAG", Float, num(func(r *EnrichedSampleRecord) float64 { return r.Magnitude })},
	}
	geometryColumns = []Column{
		{"ARRIVAL_LAT", Float, loc(func(l *Location) float64 { return l.ArrivalLat })},
		{"ARRIVAL_LON", Float, loc(func(l *Location) float64 { return l.ArrivalLon })},
		{"ARRIVAL_ELEV", Float, loc(func(l *Location) float64 { return l.ArrivalElev })},
		{"ARRIVAL_DIST", Float, loc(func(l *Location) float64 { return l.ArrivalDist })},
		{"ARRIVAL_BAZ", Float, loc(func(l *Location) float64 { return l.ArrivalBaz })},
		{"ORIGIN_LAT", Float, loc(func(l *Location) float64 { return l.OriginLat })},
		{"ORIGIN_LON", Float, loc(func(l *Location) float64 { return l.OriginLon })},
		{"ORIGINL_DEPTH", Float, loc(func(l *Location) float64 { return l.OriginDepth })},
	}
	sampleColumns = []Column{
		{"NETWORK", String, str(func(r *EnrichedSampleRecord) string { return r.Network })},
		{"CHANNELS", String, str(func(r *EnrichedSampleRecord) string { return strings.Join(r.Channels, " ") })},
		{"FILENAME", String, str(func(r *EnrichedSampleRecord) string { return r.Filename })},
		{"WINDOW_START", String, str(func(r *EnrichedSampleRecord) string { return formatTime(r.WindowStart) })},
		{"ARRIVAL_SAMPLE", Float, num(func(r *EnrichedSampleRecord) float64 { return r.ArrivalSample })},
		{"POINT_COUNT", Int, func(r *EnrichedSampleRecord) interface{} { return int64(r.PointCount) }},
		{"SAMPLING_RATE", Float, num(func(r *EnrichedSampleRecord) float64 { return float64(r.SamplingRate) })},
		{"SNR", Float, num(func(r *EnrichedSampleRecord) float64 { return float64(r.SNR) })},
		{"NOISE", Bool, func(r *EnrichedSampleRecord) interface{} { return r.Noise }},
	}
)

// Columns returns the table columns for records shaped like first. The geometry
// columns are included only when first carries a Location.
func Columns(first *EnrichedSampleRecord) []Column {
	res := append([]Column{}, arrivalColumns...)
	if first.Location != nil {
		res = append(res, geometryColumns...)
	}
	return append(res, sampleColumns...)
}

// FormatValue renders a column value as text. NaN renders as the empty string.
func FormatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// WriteCSV writes the records as CSV with columns taken from the first record.
// Nothing is written for an empty slice.
func WriteCSV(w io.Writer, records []EnrichedSampleRecord) error {
	if len(records) == 0 {
		return nil
	}
	columns := Columns(&records[0])
	writer := csv.NewWriter(w)
	header := make([]string, len(columns))
	for idx, col := range columns {
		header[idx] = col.Name
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for recIdx := range records {
		for idx, col := range columns {
			row[idx] = FormatValue(col.Value(&records[recIdx]))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
