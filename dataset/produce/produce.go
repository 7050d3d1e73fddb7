/* Package produce runs the production loop over an arrival catalog.
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
package produce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb"
	"github.com/google-research/quakelabeler/dataset/sample"
	"github.com/google-research/quakelabeler/dataset/window"
	"github.com/google-research/quakelabeler/tools/catalog"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/waveform"
	"go.uber.org/zap"
)

const (
	// DefaultFailureWarning is the number of consecutive rejected records above which a warning is logged.
	DefaultFailureWarning = 50
	// DefaultFetchPadding is added to the end of fixed length fetches.
	DefaultFetchPadding signals.Seconds = 10
)

// ErrFetchUnavailable is returned when the final fetch of a planned window yields no usable data.
var ErrFetchUnavailable = errors.New("fetch unavailable")

// Rejected returns whether err only rejects the current record, as opposed to stopping the run.
func Rejected(err error) bool {
	return errors.Is(err, window.ErrWindowUnavailable) ||
		errors.Is(err, window.ErrInsufficientWindow) ||
		errors.Is(err, ErrFetchUnavailable) ||
		errors.Is(err, sample.ErrArrivalOutsideWindow)
}

// Config configures an Orchestrator.
type Config struct {
	Volume Volume
	// Request holds the network, location and channel patterns of every fetch.
	Request waveform.Request
	Detrend bool
	// FetchPadding is added to the end of fixed length fetches before conforming them to the point count.
	FetchPadding signals.Seconds
	// FailureWarning is the consecutive failure count above which a warning is logged.
	FailureWarning int
	// Dir is the dataset directory, used for status logging.
	Dir string
	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
}

// Summary counts what happened during a run.
type Summary struct {
	Attempted int
	Accepted  int
	Rejected  int
	// Produced counts samples, which differs from Accepted in single trace mode.
	Produced     int
	ExportErrors int
	Warnings     int
	Redraws      int
}

// Staging holds back what the exporter wrote for the record in flight until
// the record is accepted. export.Container implements it.
type Staging interface {
	Commit() error
	Rollback()
}

// Orchestrator produces samples from arrival records until a volume is reached or the catalog is exhausted.
type Orchestrator struct {
	Config
	Planner   *window.Planner
	Source    waveform.Source
	Assembler *sample.Assembler
	// Merged, if set, is committed after every accepted record and rolled back otherwise.
	Merged Staging
	Logger *zap.Logger
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Run produces samples from records in order. On cancellation the samples accumulated
// so far are returned along with the context error.
func (o *Orchestrator) Run(ctx context.Context, records []catalog.ArrivalRecord) (*Accumulator, Summary, error) {
	acc := &Accumulator{}
	sum := Summary{}
	logger := o.logger()
	failureWarning := o.FailureWarning
	if failureWarning <= 0 {
		failureWarning = DefaultFailureWarning
	}

	total := len(records)
	if !o.Volume.Max && o.Volume.N < total {
		total = o.Volume.N
	}
	bar := pb.New(total).Prefix("Producing")
	if o.Progress == nil {
		bar.NotPrint = true
	} else {
		bar.Output = o.Progress
	}
	bar.Start()
	defer bar.Finish()

	logger.Info("producing samples", zap.String("dir", o.Dir), zap.Stringer("volume", o.Volume), zap.Int("records", len(records)))
	consecutiveFailures := 0
	for _, rec := range records {
		if o.Volume.Reached(sum.Produced) {
			break
		}
		if err := ctx.Err(); err != nil {
			return acc, sum, err
		}
		sum.Attempted++
		recLogger := logger.With(zap.String("station", rec.Station), zap.Int64("event_id", rec.EventID), zap.String("phase", rec.Phase))
		outs, plan, err := o.produce(ctx, rec, o.Volume.Remaining(sum.Produced), recLogger)
		sum.Redraws += plan.Redraws
		if ctxErr := ctx.Err(); ctxErr != nil {
			discard(o.Merged, outs)
			return acc, sum, ctxErr
		}
		if err != nil {
			discard(o.Merged, outs)
			if !Rejected(err) {
				return acc, sum, err
			}
			sum.Rejected++
			consecutiveFailures++
			recLogger.Debug("rejected record", zap.Error(err))
			if consecutiveFailures == failureWarning+1 {
				sum.Warnings++
				logger.Warn("many consecutive records rejected, check the waveform source and window parameters", zap.Int("consecutive_failures", consecutiveFailures))
			}
			continue
		}
		if err := commit(o.Merged); err != nil {
			discard(o.Merged, outs)
			return acc, sum, fmt.Errorf("committing merged examples of %v: %w", rec.Station, err)
		}
		consecutiveFailures = 0
		sum.Accepted++
		for _, out := range outs {
			if out.ExportErr != nil {
				sum.ExportErrors++
				recLogger.Warn("sample partially exported", zap.String("sample", out.Record.Filename), zap.Error(out.ExportErr))
			}
			acc.Add(out)
			sum.Produced++
			bar.Increment()
		}
	}
	return acc, sum, nil
}

func (o *Orchestrator) produce(ctx context.Context, rec catalog.ArrivalRecord, remaining int, logger *zap.Logger) ([]sample.Output, window.Plan, error) {
	req := o.Request
	req.Station = rec.Station
	plan, err := o.Planner.Plan(ctx, rec.Arrival, req)
	if err != nil {
		return nil, plan, err
	}
	fetch := plan.Request(req)
	if o.Planner.FixedLength {
		fetch.End = fetch.End.Add(o.FetchPadding.Duration())
	}
	res, err := o.Source.Fetch(ctx, fetch)
	if err != nil {
		return nil, plan, fmt.Errorf("fetching %v: %w", fetch, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, plan, err
	}
	if res.Status != waveform.Fetched {
		return nil, plan, fmt.Errorf("%w: %v", ErrFetchUnavailable, res.Reason)
	}
	stream := res.Stream
	if o.Planner.FixedLength {
		if stream = stream.Conform(o.Planner.PointCount); len(stream) == 0 {
			return nil, plan, fmt.Errorf("%w: no trace of %v holds %v points", ErrFetchUnavailable, fetch, o.Planner.PointCount)
		}
	}
	if o.Detrend {
		stream = stream.Copy()
		for _, tr := range stream {
			tr.Data.Detrend()
		}
	}
	if o.Assembler.Mode == sample.SingleTrace && remaining >= 0 && len(stream) > remaining {
		stream = stream[:remaining]
	}
	logger.Info("fetched", zap.String("dir", o.Dir), zap.Strings("stream", streamIDs(stream)))
	outs, err := o.Assembler.Assemble(stream, rec)
	return outs, plan, err
}

func streamIDs(s waveform.Stream) []string {
	res := make([]string, len(s))
	for idx, tr := range s {
		res[idx] = tr.ID()
	}
	return res
}

func commit(merged Staging) error {
	if merged == nil {
		return nil
	}
	return merged.Commit()
}

// discard removes the files of samples that will not be accumulated, and their staged examples.
func discard(merged Staging, outs []sample.Output) {
	if merged != nil {
		merged.Rollback()
	}
	for _, out := range outs {
		for _, path := range out.Paths {
			os.Remove(path)
		}
	}
}
