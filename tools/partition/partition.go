/* The partition command splits an existing dataset directory into Training, Test and Validation subsets.
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
	"flag"
	"fmt"
	"os"

	"github.com/google-research/quakelabeler/dataset/config"
	"github.com/google-research/quakelabeler/dataset/partition"
	"go.uber.org/zap"
)

var (
	dir       = flag.String("dir", "", "Dataset directory to partition.")
	train     = flag.Float64("train", partition.DefaultRatios().Train, "Fraction of the files moved to Training.")
	test      = flag.Float64("test", partition.DefaultRatios().Test, "Fraction of the files moved to Test. The rest goes to Validation.")
	container = flag.String("container", "", "Name of the merged container to move to the parent directory. Defaults to <dir>.tfrecord.")
)

func main() {
	flag.Parse()
	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	name := *container
	if name == "" {
		name = config.ContainerName(*dir)
	}
	p := &partition.Partitioner{
		Ratios:    partition.Ratios{Train: *train, Test: *test},
		Container: name,
		Logger:    logger,
	}
	counts, err := p.PartitionListing(*dir)
	if err != nil {
		logger.Fatal("partitioning", zap.String("dir", *dir), zap.Error(err))
	}
	fmt.Printf("%v: %v training, %v test and %v validation files.\n", *dir, counts.Training, counts.Test, counts.Validation)
}
