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
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05.999999999"
)

var (
	requiredColumns = []string{"EVENTID", "STA", "ISCPHASE", "ARRIVAL_DATE", "ARRIVAL_TIME", "ORIGIN_DATE", "ORIGIN_TIME", "EVENT_TYPE", "EVENT_MAG"}
	locationColumns = []string{"ARRIVAL_LAT", "ARRIVAL_LON", "ARRIVAL_ELEV", "ARRIVAL_DIST", "ARRIVAL_BAZ", "ORIGIN_LAT", "ORIGIN_LON", "ORIGINL_DEPTH"}
)

// MissingColumnsError is returned when a catalog lacks required columns.
type MissingColumnsError struct {
	Columns []string
}

func (m *MissingColumnsError) Error() string {
	return fmt.Sprintf("catalog is missing required columns %v", m.Columns)
}

// ReadCSV reads an ISC station arrival listing. Column names are matched case
// insensitively, values are trimmed, and a blank EVENT_MAG becomes NaN.
// The location columns are optional but must be present together.
func ReadCSV(r io.Reader) ([]ArrivalRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MissingColumnsError{Columns: requiredColumns}
	}
	if err != nil {
		return nil, err
	}
	index := map[string]int{}
	for idx, name := range header {
		index[strings.ToUpper(strings.TrimSpace(name))] = idx
	}
	missing := []string{}
	for _, name := range requiredColumns {
		if _, found := index[name]; !found {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	hasLocation := true
	for _, name := range locationColumns {
		if _, found := index[name]; !found {
			hasLocation = false
		}
	}
	res := []ArrivalRecord{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		get := func(name string) string {
			idx, found := index[name]
			if !found || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		rec, err := parseRecord(get, hasLocation)
		if err != nil {
			return nil, fmt.Errorf("line %v: %w", line, err)
		}
		res = append(res, rec)
	}
	return res, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseTime(date, clock string) (time.Time, error) {
	return time.Parse(dateLayout+" "+timeLayout, date+" "+clock)
}

func parseRecord(get func(string) string, hasLocation bool) (ArrivalRecord, error) {
	rec := ArrivalRecord{
		Station:       get("STA"),
		Channel:       get("CHN"),
		Phase:         get("ISCPHASE"),
		ReportedPhase: get("REPPHASE"),
		EventType:     get("EVENT_TYPE"),
	}
	if rec.Station == "" {
		return rec, fmt.Errorf("empty STA")
	}
	var err error
	if rec.EventID, err = strconv.ParseInt(get("EVENTID"), 10, 64); err != nil {
		return rec, fmt.Errorf("EVENTID: %w", err)
	}
	if rec.Arrival, err = parseTime(get("ARRIVAL_DATE"), get("ARRIVAL_TIME")); err != nil {
		return rec, fmt.Errorf("arrival time: %w", err)
	}
	if rec.Origin, err = parseTime(get("ORIGIN_DATE"), get("ORIGIN_TIME")); err != nil {
		return rec, fmt.Errorf("origin time: %w", err)
	}
	if rec.Magnitude, err = parseFloat(get("EVENT_MAG")); err != nil {
		return rec, fmt.Errorf("EVENT_MAG: %w", err)
	}
	if !hasLocation {
		return rec, nil
	}
	loc := &Location{}
	for idx, dst := range []*float64{&loc.ArrivalLat, &loc.ArrivalLon, &loc.ArrivalElev, &loc.ArrivalDist, &loc.ArrivalBaz, &loc.OriginLat, &loc.OriginLon, &loc.OriginDepth} {
		if *dst, err = parseFloat(get(locationColumns[idx])); err != nil {
			return rec, fmt.Errorf("%v: %w", locationColumns[idx], err)
		}
	}
	rec.Location = loc
	return rec, nil
}
