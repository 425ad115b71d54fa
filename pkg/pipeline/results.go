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
	"fmt"
	"time"

	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/language"
	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/sarif"
)

// Results renders the query engine verdict as the job's SARIF output.
type Results struct {
	config Config
}

// NewResults creates the final pipeline stage.
func NewResults(config Config) *Results {
	config.setDefaults()
	return &Results{config: config}
}

func (r *Results) Name() string { return "results" }

func (r *Results) Trigger() coordinator.Status {
	return coordinator.WaitingForResultsGeneration
}

func (r *Results) Next() coordinator.Status { return coordinator.Finished }

// Process turns the raw verdict into the downloadable document. A
// missing or findings-free verdict still produces an output: the debug
// payload that tells the client the query engine came up empty.
func (r *Results) Process(ctx context.Context, jobID string) error {
	start := time.Now()

	var payload []byte
	if text, ok := r.config.Store.LoadResults(ctx, jobID); ok {
		if finding, found := sarif.ParseVerdict(string(text)); found {
			doc := sarif.Report(finding, r.config.FindingMessage)
			if encoded, err := doc.Encode(); err == nil {
				payload = encoded
			} else {
				r.config.Logger.Warn("pipeline.results.encode.failed", "job_id", jobID, "err", err)
			}
		}
	}
	if payload == nil {
		payload = sarif.NoFindings()
	}

	if _, err := r.config.Store.SaveOutput(ctx, jobID, payload); err != nil {
		r.report(ctx, jobID, logsink.EventResultsGenerationFailed, start, 0)
		return fmt.Errorf("save output: %w", err)
	}
	r.config.Store.DeleteResults(ctx, jobID)

	r.report(ctx, jobID, logsink.EventResultsGenerationSucceeded, start, len(payload))
	return nil
}

func (r *Results) report(ctx context.Context, jobID string, event logsink.Event, start time.Time, size int) {
	r.config.Sink.Info(ctx, logsink.Message{
		FileUniqueID:          "results_" + jobID,
		JobID:                 jobID,
		Event:                 event,
		OriginalFilename:      "*",
		Language:              language.All,
		Duration:              time.Since(start).Seconds(),
		CorrespondingByteSize: size,
	})
}
