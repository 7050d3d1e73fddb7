/* The labeler command produces a labeled seismic dataset from an arrival catalog.
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
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google-research/quakelabeler/dataset/config"
	"github.com/google-research/quakelabeler/dataset/produce"
	"github.com/google-research/quakelabeler/tools/catalog"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"
	"github.com/google-research/quakelabeler/tools/waveform"
	"github.com/google-research/quakelabeler/tools/waveform/fdsn"
	"go.uber.org/zap"
)

var (
	configFile    = flag.String("config", "", "YAML run configuration. Defaults are used for everything it doesn't set.")
	catalogFile   = flag.String("catalog", "", "ISC arrivals CSV to produce samples from.")
	volume        = flag.String("volume", "", "Number of samples to produce, or MAX. Overrides the config.")
	output        = flag.String("output", "", "Dataset directory. Overrides the config.")
	source        = flag.String("source", "fdsn", "Waveform source, 'fdsn' or 'synthetic'.")
	stationURL    = flag.String("station_url", fdsn.DefaultStationURL, "FDSN station service used to expand channel patterns.")
	timeseriesURL = flag.String("timeseries_url", fdsn.DefaultTimeseriesURL, "Timeseries service delivering GeoCSV sample lists.")
	syntheticRate = flag.Float64("synthetic_rate", 40, "Native sample rate of the synthetic source.")
	printFilter   = flag.Bool("print_filter", false, "Print the frequency response of the configured filter and exit.")
	filterRate    = flag.Float64("filter_rate", 100, "Sample rate to print the filter response for, when the config doesn't resample.")
	verbose       = flag.Bool("verbose", false, "Log at debug level.")
	progress      = flag.Bool("progress", true, "Show a progress bar.")
)

func newLogger() (*zap.Logger, error) {
	if *verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *volume != "" {
		v, err := produce.ParseVolume(*volume)
		if err != nil {
			return nil, err
		}
		cfg.Volume = v
	}
	if *output != "" {
		cfg.Output = *output
	}
	return cfg, cfg.Validate()
}

func readCatalog(path string) ([]catalog.ArrivalRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return catalog.ReadCSV(f)
}

func newSource(records []catalog.ArrivalRecord, cfg *config.Config, logger *zap.Logger) (waveform.Source, error) {
	switch *source {
	case "fdsn":
		client := fdsn.New(logger)
		client.StationURL = *stationURL
		client.TimeseriesURL = *timeseriesURL
		return client, nil
	case "synthetic":
		src := &waveform.SyntheticSource{
			Network:     "SY",
			Rate:        signals.Hz(*syntheticRate),
			Arrivals:    map[string][]time.Time{},
			NoiseLevel:  -40,
			SignalLevel: -6,
			Seed:        cfg.Seed,
		}
		for _, rec := range records {
			src.Arrivals[rec.Station] = append(src.Arrivals[rec.Station], rec.Arrival)
		}
		return src, nil
	}
	return nil, fmt.Errorf("unknown source %q", *source)
}

func createTable(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeTables writes the sample table next to the dataset directory, named after it.
func writeTables(ctx context.Context, cfg *config.Config, dir string, records []catalog.EnrichedSampleRecord, logger *zap.Logger) error {
	if len(records) == 0 {
		logger.Warn("no samples, skipping tables")
		return nil
	}
	base := filepath.Join(filepath.Dir(filepath.Clean(dir)), filepath.Base(filepath.Clean(dir)))
	if cfg.Tables.CSV {
		if err := createTable(base+".csv", func(f *os.File) error { return catalog.WriteCSV(f, records) }); err != nil {
			return err
		}
	}
	if cfg.Tables.Parquet {
		if err := createTable(base+".parquet", func(f *os.File) error { return catalog.WriteParquet(f, records) }); err != nil {
			return err
		}
	}
	if cfg.Tables.SQLite {
		sink, err := catalog.OpenSQLite(base + ".sqlite")
		if err != nil {
			return err
		}
		defer sink.Close()
		runID, err := sink.WriteRun(ctx, filepath.Base(dir), records)
		if err != nil {
			return err
		}
		logger.Info("stored run", zap.String("run_id", runID))
	}
	return nil
}

func main() {
	flag.Parse()
	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if *printFilter {
		rate := signals.Hz(*filterRate)
		if cfg.SampleRate > 0 {
			rate = signals.Hz(cfg.SampleRate)
		}
		cfg.Processing().Filter.Print(20, 80, rate, os.Stdout)
		return
	}
	if *catalogFile == "" {
		flag.Usage()
		os.Exit(1)
	}
	records, err := readCatalog(*catalogFile)
	if err != nil {
		logger.Fatal("reading catalog", zap.String("catalog", *catalogFile), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := newSource(records, cfg, logger)
	if err != nil {
		logger.Fatal("creating source", zap.Error(err))
	}
	var progressOutput io.Writer
	if *progress {
		progressOutput = os.Stderr
	}
	pipeline, err := cfg.Build(src, logger, progressOutput, time.Now())
	if err != nil {
		logger.Fatal("building pipeline", zap.Error(err))
	}

	acc, sum, runErr := pipeline.Orchestrator.Run(ctx, records)
	interrupted := errors.Is(runErr, context.Canceled)
	switch {
	case interrupted:
		logger.Warn("interrupted, keeping the samples produced so far", zap.Int("samples", acc.Len()))
	case runErr != nil:
		logger.Error("production stopped, keeping the samples produced so far", zap.Int("samples", acc.Len()), zap.Error(runErr))
	}
	noise := 0
	if pipeline.Mirror != nil && runErr == nil && acc.Len() > 0 {
		if noise, err = pipeline.Mirror.Run(ctx, acc); err != nil {
			if errors.Is(err, context.Canceled) {
				interrupted = true
			} else {
				logger.Error("noise mirroring stopped", zap.Int("noise_samples", noise), zap.Error(err))
			}
			runErr = err
		}
	}
	if err := pipeline.Close(); err != nil {
		logger.Error("closing merged container", zap.Error(err))
	}
	// Tables are written without the signal context so that an interrupted run is still recorded.
	if err := writeTables(context.Background(), cfg, pipeline.Dir, acc.Records(), logger); err != nil {
		logger.Fatal("writing tables", zap.Error(err))
	}
	if pipeline.Partitioner != nil {
		if _, err := pipeline.Partitioner.PartitionGroups(pipeline.Dir, acc.Groups()); err != nil {
			logger.Fatal("partitioning", zap.String("dir", pipeline.Dir), zap.Error(err))
		}
	}

	fmt.Print(catalog.FormatHistogram(catalog.MagnitudeHistogram(acc.Records())))
	fmt.Printf("Produced %v samples and %v noise samples in %v from %v of %v records (%v rejected, %v partial exports).\n",
		sum.Produced, noise, pipeline.Dir, sum.Accepted, len(records), sum.Rejected, sum.ExportErrors)
	if runErr != nil && !interrupted {
		logger.Sync()
		os.Exit(1)
	}
}
