/* Package fdsn fetches waveforms from FDSN web services.
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
package fdsn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/waveform"
	"go.uber.org/zap"
)

const (
	DefaultStationURL    = "https://service.iris.edu/fdsnws/station/1/query"
	DefaultTimeseriesURL = "https://service.iris.edu/irisws/timeseries/1/query"

	queryTimeLayout = "2006-01-02T15:04:05.000000"
)

// Client is a waveform.Source backed by an FDSN station service, used to expand
// channel patterns, and an IRIS timeseries service delivering GeoCSV sample lists.
type Client struct {
	StationURL    string
	TimeseriesURL string
	HTTP          *http.Client
	Logger        *zap.Logger
}

// New returns a Client for the IRIS web services.
func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		StationURL:    DefaultStationURL,
		TimeseriesURL: DefaultTimeseriesURL,
		HTTP:          &http.Client{Timeout: 2 * time.Minute},
		Logger:        logger,
	}
}

type channelID struct {
	network, station, location, channel string
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func (c *Client) get(ctx context.Context, base string, query url.Values) (io.ReadCloser, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+query.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, false, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, true, nil
	case http.StatusNoContent, http.StatusNotFound:
		resp.Body.Close()
		return nil, false, nil
	}
	resp.Body.Close()
	return nil, false, fmt.Errorf("GET %v: %v", httpReq.URL, resp.Status)
}

func (c *Client) channels(ctx context.Context, req waveform.Request) ([]channelID, bool, error) {
	body, ok, err := c.get(ctx, c.StationURL, url.Values{
		"net":       {orAny(req.Network)},
		"sta":       {orAny(req.Station)},
		"loc":       {orAny(req.Location)},
		"cha":       {orAny(req.Channel)},
		"starttime": {req.Start.UTC().Format(queryTimeLayout)},
		"endtime":   {req.End.UTC().Format(queryTimeLayout)},
		"level":     {"channel"},
		"format":    {"text"},
	})
	if err != nil || !ok {
		return nil, ok, err
	}
	defer body.Close()
	ids, err := parseChannels(body)
	return ids, len(ids) > 0, err
}

// parseChannels parses the pipe separated channel level text format.
func parseChannels(r io.Reader) ([]channelID, error) {
	seen := map[channelID]bool{}
	res := []channelID{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 4 {
			return nil, fmt.Errorf("malformed channel line %q", line)
		}
		id := channelID{
			network:  strings.TrimSpace(fields[0]),
			station:  strings.TrimSpace(fields[1]),
			location: strings.TrimSpace(fields[2]),
			channel:  strings.TrimSpace(fields[3]),
		}
		if !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	return res, scanner.Err()
}

// Fetch expands the request patterns into channels and fetches each of them.
// Channels without data are left out; a request without any data is Unavailable.
// Failed requests, such as timeouts or server errors, make the result Unavailable.
// Only cancellation of ctx is returned as an error.
func (c *Client) Fetch(ctx context.Context, req waveform.Request) (waveform.Result, error) {
	ids, ok, err := c.channels(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return waveform.Result{}, ctx.Err()
		}
		c.Logger.Warn("station query failed", zap.String("station", req.Station), zap.Error(err))
		return waveform.UnavailableResult("station query for %v failed: %v", req, err), nil
	}
	if !ok {
		return waveform.UnavailableResult("no channels for %v", req), nil
	}
	stream := waveform.Stream{}
	for _, id := range ids {
		tr, err := c.fetchChannel(ctx, id, req.Start, req.End)
		if err != nil {
			if ctx.Err() != nil {
				return waveform.Result{}, ctx.Err()
			}
			c.Logger.Debug("channel fetch failed", zap.String("channel", id.channel), zap.String("station", id.station), zap.Error(err))
			continue
		}
		if tr != nil {
			stream = append(stream, tr)
		}
	}
	if len(stream) == 0 {
		return waveform.UnavailableResult("no data for %v", req), nil
	}
	return waveform.FetchedResult(stream), nil
}

func (c *Client) fetchChannel(ctx context.Context, id channelID, start, end time.Time) (*waveform.Trace, error) {
	loc := id.location
	if loc == "" {
		loc = "--"
	}
	body, ok, err := c.get(ctx, c.TimeseriesURL, url.Values{
		"net":       {id.network},
		"sta":       {id.station},
		"loc":       {loc},
		"cha":       {id.channel},
		"starttime": {start.UTC().Format(queryTimeLayout)},
		"endtime":   {end.UTC().Format(queryTimeLayout)},
		"format":    {"geocsv.slist"},
	})
	if err != nil || !ok {
		return nil, err
	}
	defer body.Close()
	tr, err := ParseGeoCSV(body)
	if err != nil || tr == nil {
		return nil, err
	}
	tr.Network, tr.Station, tr.Location, tr.Channel = id.network, id.station, id.location, id.channel
	return tr, nil
}

// ParseGeoCSV parses a GeoCSV sample list. A response with gaps holds one segment per
// contiguous run of samples; the longest segment is returned. It returns nil if there are no samples.
func ParseGeoCSV(r io.Reader) (*waveform.Trace, error) {
	var best, current *waveform.Trace
	inHeader := false
	finish := func() {
		if current != nil && (best == nil || current.Len() > best.Len()) {
			best = current
		}
		current = nil
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			if !inHeader {
				finish()
				current = &waveform.Trace{}
				inHeader = true
			}
			key, value, found := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
			if !found {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "sample_rate_hz":
				rate, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("sample_rate_hz %q: %w", value, err)
				}
				current.Rate = signals.Hz(rate)
			case "start_time":
				start, err := time.Parse(time.RFC3339Nano, value)
				if err != nil {
					return nil, fmt.Errorf("start_time %q: %w", value, err)
				}
				current.Start = start
			case "sid":
				// SID is NET_STA_LOC_CHA.
				if parts := strings.Split(value, "_"); len(parts) == 4 {
					current.Network, current.Station, current.Location, current.Channel = parts[0], parts[1], parts[2], parts[3]
				}
			}
		default:
			if current == nil {
				return nil, fmt.Errorf("sample %q before header", line)
			}
			if inHeader {
				inHeader = false
				if _, err := strconv.ParseFloat(line, 64); err != nil {
					// Column name line.
					continue
				}
			}
			v, err := strconv.ParseFloat(line, 64)
			if err != nil {
				return nil, fmt.Errorf("sample %q: %w", line, err)
			}
			current.Data = append(current.Data, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	finish()
	if best == nil || best.Len() == 0 {
		return nil, nil
	}
	if best.Rate <= 0 {
		return nil, fmt.Errorf("segment without sample rate")
	}
	return best, nil
}
