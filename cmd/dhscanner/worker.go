// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/dhscanner/internal/errors"
	"github.com/kraklabs/dhscanner/internal/ui"
	"github.com/kraklabs/dhscanner/pkg/pipeline"
)

// runWorker executes the 'worker' CLI command. With no positional
// argument it runs every stage in one process, which is the
// single-container deployment; with a stage name it runs just that
// stage, which is how the horizontally-scaled deployments shard work.
func runWorker(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	tick := fs.Duration("tick", time.Second, "Sleep between claim rounds")
	jobs := fs.Int("jobs", 8, "Max jobs processed in parallel per tick")
	units := fs.Int("units", 16, "Max files/callables processed in parallel per job")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dhscanner worker [stage] [options]

Description:
  Poll the coordinator for jobs waiting on a pipeline stage, process
  them against the downstream parser and analysis services, and advance
  them to the next stage. Workers are stateless; run as many replicas
  of a stage as the load needs.

Stages:
  native-parse      Source files -> language-native ASTs
  dhscanner-parse   Native ASTs -> dhscanner ASTs
  codegen           Dhscanner ASTs -> callables
  kbgen             Callables -> knowledge base facts
  queryengine       Knowledge base -> query verdicts
  results           Verdicts -> SARIF document

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  dhscanner worker                     Run all six stages
  dhscanner worker kbgen               Run only the kbgen stage
  dhscanner worker --tick 5s --jobs 4
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(configPath, globals)
	logger := newLogger(*debug)
	sink := newSink(cfg, logger)

	ui.Header("Starting dhscanner stage workers")

	store := newStore(cfg, sink, logger, globals)
	defer store.Close()
	coord := newCoordinator(cfg, logger, globals)
	defer coord.Close()

	stages := pipeline.AllStages(pipeline.Config{
		Store:     store,
		Sink:      sink,
		Logger:    logger,
		Endpoints: pipeline.DefaultEndpoints(),
		UnitLimit: *units,
	})
	if picked := fs.Arg(0); picked != "" && picked != "all" {
		stage := stageByName(stages, picked)
		if stage == nil {
			errors.FatalError(errors.NewInputError(
				"Unknown pipeline stage: "+picked,
				"The stage name did not match any pipeline stage",
				"Pick one of: native-parse, dhscanner-parse, codegen, kbgen, queryengine, results",
			), globals.JSON)
		}
		stages = []pipeline.Stage{stage}
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var group errgroup.Group
	for _, stage := range stages {
		worker := pipeline.NewWorker(stage, coord, sink, logger, pipeline.WorkerConfig{
			Tick:              *tick,
			MaxConcurrentJobs: *jobs,
		})
		ui.Success("Stage worker up: " + stage.Name())
		group.Go(func() error { return worker.Run(ctx) })
	}

	if err := group.Wait(); err != nil {
		errors.FatalError(errors.NewInternalError(
			"Stage worker failed",
			"A worker loop returned an error",
			"Check the logs above for the failing stage",
			err,
		), globals.JSON)
	}
	logger.Info("worker.stopped")
}

func stageByName(stages []pipeline.Stage, name string) pipeline.Stage {
	for _, stage := range stages {
		if stage.Name() == name {
			return stage
		}
	}
	return nil
}

// serveMetrics exposes the Prometheus registry for scraping. Workers
// have no other HTTP surface, so this is opt-in via --metrics-addr.
func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics.http.error", "err", err)
	}
}
