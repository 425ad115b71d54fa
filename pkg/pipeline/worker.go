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

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/language"
	"github.com/kraklabs/dhscanner/pkg/logsink"
)

// Stage is one step of the analysis pipeline. A stage reacts to exactly
// one trigger status and advances completed jobs to exactly one next
// status; the pairing is what enforces the per-job stage order.
//
// Process must swallow unit-level failures (bad files, flaky downstream
// services) and return an error only when the claim-scope work could
// not run at all, e.g. the artifact index is unreachable. A job whose
// Process errors keeps its trigger status and is re-claimed on a later
// tick, so Process must also be safe to re-run on a half-processed job.
type Stage interface {
	Name() string
	Trigger() coordinator.Status
	Next() coordinator.Status
	Process(ctx context.Context, jobID string) error
}

// AllStages returns one instance of every pipeline stage, in pipeline
// order.
func AllStages(config Config) []Stage {
	return []Stage{
		NewNativeParser(config),
		NewDhscannerParser(config),
		NewCodegen(config),
		NewKbgen(config),
		NewQueryengine(config),
		NewResults(config),
	}
}

// WorkerConfig tunes the claim loop.
type WorkerConfig struct {
	// Tick is the sleep between claim rounds. Default: 1s.
	Tick time.Duration

	// MaxConcurrentJobs bounds how many claimed jobs are processed in
	// parallel within one tick. Default: 8.
	MaxConcurrentJobs int
}

func (c *WorkerConfig) setDefaults() {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 8
	}
}

// Worker drives one Stage forever: claim the jobs waiting for the
// stage's trigger status, process them concurrently, advance the ones
// that completed, sleep, repeat.
type Worker struct {
	stage  Stage
	coord  coordinator.Coordinator
	sink   logsink.Sink
	logger *slog.Logger
	config WorkerConfig
}

// NewWorker wires a stage to the coordinator.
func NewWorker(stage Stage, coord coordinator.Coordinator, sink logsink.Sink, logger *slog.Logger, config WorkerConfig) *Worker {
	config.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = logsink.Nop{}
	}
	return &Worker{
		stage:  stage,
		coord:  coord,
		sink:   sink,
		logger: logger,
		config: config,
	}
}

// Run loops until ctx is canceled. Cancellation is consulted between
// ticks only: a tick that has already claimed jobs runs to completion,
// so an interrupted worker never leaves a job advanced-but-unprocessed.
// Jobs in flight during a hard kill simply keep their trigger status
// and are re-claimed after restart.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("pipeline.worker.start",
		"stage", w.stage.Name(),
		"trigger", string(w.stage.Trigger()),
		"tick", w.config.Tick.String(),
	)
	for {
		w.RunTick(context.WithoutCancel(ctx))
		select {
		case <-ctx.Done():
			w.logger.Info("pipeline.worker.stop", "stage", w.stage.Name())
			return nil
		case <-time.After(w.config.Tick):
		}
	}
}

// RunTick performs a single claim round. Exposed so tests and one-shot
// maintenance commands can drive a stage without the forever loop.
func (w *Worker) RunTick(ctx context.Context) {
	jobIDs, err := w.coord.ListWaiting(ctx, w.stage.Trigger())
	if err != nil {
		recordClaimError()
		w.logger.Warn("pipeline.claim.failed", "stage", w.stage.Name(), "err", err)
		w.sink.Warning(ctx, logsink.Message{
			Event:            logsink.EventCoordinatorNotResponding,
			OriginalFilename: "*",
			Language:         language.All,
			MoreDetails:      err.Error(),
		})
		return
	}
	if len(jobIDs) == 0 {
		return
	}

	recordClaim(w.stage.Name(), len(jobIDs))
	w.logger.Info("pipeline.claim", "stage", w.stage.Name(), "jobs", len(jobIDs))

	var mu sync.Mutex
	completed := make([]string, 0, len(jobIDs))

	var g errgroup.Group
	g.SetLimit(w.config.MaxConcurrentJobs)
	for _, jobID := range jobIDs {
		jobID := jobID
		g.Go(func() error {
			start := time.Now()
			err := w.stage.Process(ctx, jobID)
			observeProcess(w.stage.Name(), time.Since(start).Seconds())
			if err != nil {
				recordJobFailure(w.stage.Name())
				w.logger.Warn("pipeline.process.failed",
					"stage", w.stage.Name(),
					"job_id", jobID,
					"err", err,
				)
				return nil
			}
			mu.Lock()
			completed = append(completed, jobID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(completed) == 0 {
		return
	}
	if err := w.coord.MarkJobsFinished(ctx, completed, w.stage.Next()); err != nil {
		recordClaimError()
		w.logger.Warn("pipeline.advance.failed", "stage", w.stage.Name(), "err", err)
		w.sink.Warning(ctx, logsink.Message{
			Event:            logsink.EventCoordinatorNotResponding,
			OriginalFilename: "*",
			Language:         language.All,
			MoreDetails:      err.Error(),
		})
		return
	}
	recordAdvance(w.stage.Name(), len(completed))
	w.logger.Info("pipeline.advance",
		"stage", w.stage.Name(),
		"jobs", len(completed),
		"next", string(w.stage.Next()),
	)
}
