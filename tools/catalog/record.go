/* Package catalog holds phase arrival records and the sample records derived from them.
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
package catalog

import (
	"math"
	"strings"
	"time"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
)

// NoisePhase is the phase of records describing pure noise windows.
const NoisePhase = "noise"

// SNRUnknown marks records without a meaningful signal to noise ratio.
var SNRUnknown = signals.DB(math.NaN())

// Location holds the optional geometry of an arrival.
type Location struct {
	ArrivalLat  float64
	ArrivalLon  float64
	ArrivalElev float64
	ArrivalDist float64
	ArrivalBaz  float64
	OriginLat   float64
	OriginLon   float64
	OriginDepth float64
}

// ArrivalRecord is one phase arrival at one station.
type ArrivalRecord struct {
	EventID int64
	Station string
	// Channel is the reported channel, if any.
	Channel string
	// Phase is the phase code, e.g. Pn or SKS.
	Phase string
	// ReportedPhase is the phase as reported by the station, if any.
	ReportedPhase string
	Arrival       time.Time
	Origin        time.Time
	EventType     string
	// Magnitude is NaN when unknown.
	Magnitude float64
	Location  *Location
}

// SimplifiedPhase collapses a phase code to S if it contains an S, and to P otherwise.
func SimplifiedPhase(phase string) string {
	if strings.Contains(phase, "S") {
		return "S"
	}
	return "P"
}

// EnrichedSampleRecord is an ArrivalRecord extended with the properties of one produced sample.
type EnrichedSampleRecord struct {
	ArrivalRecord
	Network string
	// Channels are the channels exported in the sample, in export order.
	Channels []string
	// Filename is the base name shared by every file of the sample.
	Filename    string
	WindowStart time.Time
	// ArrivalSample is the possibly fractional index of the arrival, NaN for noise samples.
	ArrivalSample float64
	PointCount    int
	SamplingRate  signals.Hz
	// SNR compares the power after the arrival with the power before it.
	SNR   signals.DB
	Noise bool
}

// Duration returns the length of the sample window.
func (e *EnrichedSampleRecord) Duration() time.Duration {
	if e.SamplingRate <= 0 {
		return 0
	}
	return signals.Seconds(float64(e.PointCount) / float64(e.SamplingRate)).Duration()
}
