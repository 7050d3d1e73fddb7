/* Package window plans the time window fetched around one arrival.
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
package window

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/waveform"
)

var (
	// ErrWindowUnavailable is returned when the source has no data for the provisional window.
	ErrWindowUnavailable = errors.New("window unavailable")
	// ErrInsufficientWindow is returned when no window of the requested point count can contain the arrival.
	ErrInsufficientWindow = errors.New("insufficient window")
)

// InsufficientWindowError describes a failure to place the arrival inside a fixed length window.
type InsufficientWindowError struct {
	Arrival    time.Time
	PointCount int
	Rate       signals.Hz
	Redraws    int
}

func (e *InsufficientWindowError) Error() string {
	return fmt.Sprintf("%v: %v points at %v Hz can't hold arrival %v after %v redraws", ErrInsufficientWindow, e.PointCount, float64(e.Rate), e.Arrival.UTC().Format(waveform.TimeLayout), e.Redraws)
}

func (e *InsufficientWindowError) Unwrap() error {
	return ErrInsufficientWindow
}

// Range is an inclusive range of whole seconds.
type Range struct {
	Min signals.Seconds
	Max signals.Seconds
}

// Validate checks that the range is non negative and ordered.
func (r Range) Validate() error {
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("invalid range [%v, %v]", float64(r.Min), float64(r.Max))
	}
	return nil
}

// Draw returns a uniformly distributed whole number of seconds within the range.
func (r Range) Draw(rnd *rand.Rand) signals.Seconds {
	lo := int64(math.Ceil(float64(r.Min)))
	hi := int64(math.Floor(float64(r.Max)))
	if hi <= lo {
		return signals.Seconds(lo)
	}
	return signals.Seconds(lo + rnd.Int63n(hi-lo+1))
}

// Params configure a Planner.
type Params struct {
	// FixedLength makes every plan span exactly PointCount samples at the delivered rate.
	FixedLength bool
	PointCount  int
	// RandomArrival draws the offsets around the arrival from PreOffset and PostOffset
	// instead of using StartArrival and EndArrival.
	RandomArrival bool
	PreOffset     Range
	PostOffset    Range
	StartArrival  signals.Seconds
	EndArrival    signals.Seconds
	// MaxRedraws bounds the number of start time redraws in fixed length random arrival mode.
	MaxRedraws int
}

// DefaultParams returns the parameters of a fixed length, random arrival dataset of 5000 point samples.
func DefaultParams() Params {
	return Params{
		FixedLength:   true,
		PointCount:    5000,
		RandomArrival: true,
		PreOffset:     Range{Min: 10, Max: 180},
		PostOffset:    Range{Min: 30, Max: 90},
		StartArrival:  30,
		EndArrival:    90,
		MaxRedraws:    1000,
	}
}

// Validate returns every problem with the parameters.
func (p Params) Validate() error {
	errs := []error{}
	if p.FixedLength && p.PointCount < 1 {
		errs = append(errs, fmt.Errorf("point count %v must be positive in fixed length mode", p.PointCount))
	}
	if err := p.PreOffset.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pre offset: %w", err))
	}
	if err := p.PostOffset.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("post offset: %w", err))
	}
	if p.StartArrival < 0 || p.EndArrival < 0 {
		errs = append(errs, fmt.Errorf("start arrival %v and end arrival %v must be non negative", float64(p.StartArrival), float64(p.EndArrival)))
	}
	if p.MaxRedraws < 0 {
		errs = append(errs, fmt.Errorf("max redraws %v must be non negative", p.MaxRedraws))
	}
	return errors.Join(errs...)
}

// Plan is a window to fetch.
type Plan struct {
	Start time.Time
	End   time.Time
	// Rate is the delivered sampling rate learned by probing. Zero in flexible length mode.
	Rate signals.Hz
	// Redraws is the number of times the start time was redrawn.
	Redraws int
}

// Duration returns the length of the window.
func (p Plan) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// ArrivalIndex returns the possibly fractional sample index of arrival within the window.
func (p Plan) ArrivalIndex(arrival time.Time) float64 {
	return float64(signals.SecondsOf(arrival.Sub(p.Start))) * float64(p.Rate)
}

// Request returns req restricted to the window.
func (p Plan) Request(req waveform.Request) waveform.Request {
	req.Start = p.Start
	req.End = p.End
	return req
}

// Planner plans windows around arrivals.
type Planner struct {
	Params
	// Prober reports the delivered rate of a window. Only used in fixed length mode.
	Prober waveform.Prober
	Rand   *rand.Rand
}

// Plan returns the window to fetch for an arrival. req identifies the station and
// channels, its times are ignored.
func (p *Planner) Plan(ctx context.Context, arrival time.Time, req waveform.Request) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}
	pre, post := p.StartArrival, p.EndArrival
	if p.RandomArrival {
		pre = p.PreOffset.Draw(p.Rand)
		post = p.PostOffset.Draw(p.Rand)
	}
	plan := Plan{
		Start: arrival.Add(-pre.Duration()),
		End:   arrival.Add(post.Duration()),
	}
	if !p.FixedLength {
		return plan, nil
	}

	rate, ok, err := p.Prober.Probe(ctx, plan.Request(req))
	if err != nil {
		return Plan{}, fmt.Errorf("probing %v: %w", plan.Request(req), err)
	}
	if !ok || rate <= 0 {
		return Plan{}, fmt.Errorf("%w: %v", ErrWindowUnavailable, plan.Request(req))
	}
	plan.Rate = rate
	span := signals.Seconds(float64(p.PointCount) / float64(rate))
	insufficient := func() bool {
		return plan.ArrivalIndex(arrival) >= float64(p.PointCount)
	}
	if insufficient() {
		if !p.RandomArrival {
			return Plan{}, &InsufficientWindowError{Arrival: arrival, PointCount: p.PointCount, Rate: rate}
		}
		backRange := Range{Min: 1, Max: signals.Seconds(math.Floor(float64(span)))}
		for insufficient() {
			if plan.Redraws >= p.MaxRedraws || backRange.Max < backRange.Min {
				return Plan{}, &InsufficientWindowError{Arrival: arrival, PointCount: p.PointCount, Rate: rate, Redraws: plan.Redraws}
			}
			plan.Start = arrival.Add(-backRange.Draw(p.Rand).Duration())
			plan.Redraws++
		}
	}
	plan.End = plan.Start.Add(span.Duration())
	return plan, nil
}
