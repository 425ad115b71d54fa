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
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/language"
	"github.com/kraklabs/dhscanner/pkg/logsink"
)

// Queryengine assembles the job's knowledge base and submits it to the
// query engine in a single shot.
type Queryengine struct {
	config Config
}

// NewQueryengine creates the fifth pipeline stage.
func NewQueryengine(config Config) *Queryengine {
	config.setDefaults()
	return &Queryengine{config: config}
}

func (q *Queryengine) Name() string { return "queryengine" }

func (q *Queryengine) Trigger() coordinator.Status { return coordinator.WaitingForQueryengine }

func (q *Queryengine) Next() coordinator.Status {
	return coordinator.WaitingForResultsGeneration
}

// Process gathers every fact line of the job into one deduplicated,
// sorted, LF-joined knowledge base. The same blob is submitted as both
// the kb and the queries form field; the query engine extracts the
// query clauses itself.
func (q *Queryengine) Process(ctx context.Context, jobID string) error {
	start := time.Now()

	sets, err := q.config.Store.ListFacts(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list knowledge base facts: %w", err)
	}

	seen := make(map[string]struct{})
	var lines []string
	for _, f := range sets {
		if content, ok := q.config.Store.LoadFacts(ctx, f); ok {
			for _, line := range strings.Split(string(content), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if _, dup := seen[line]; dup {
					continue
				}
				seen[line] = struct{}{}
				lines = append(lines, line)
			}
		}
		q.config.Store.DeleteFacts(ctx, f)
	}
	sort.Strings(lines)
	kb := strings.Join(lines, "\n")

	body, status, err := postForm(ctx, q.config.HTTPClient, q.config.Endpoints.Queryengine, func(w *multipart.Writer) error {
		if err := w.WriteField("kb", kb); err != nil {
			return err
		}
		return w.WriteField("queries", kb)
	})
	if err != nil || status != http.StatusOK {
		q.report(ctx, jobID, logsink.EventQueryengineFailed, start, failureDetail(status, err))
		return nil
	}

	if _, err := q.config.Store.SaveResults(ctx, jobID, body); err != nil {
		q.config.Logger.Warn("pipeline.queryengine.save.failed", "job_id", jobID, "err", err)
		q.report(ctx, jobID, logsink.EventQueryengineFailed, start, "could not persist results")
		return nil
	}

	q.report(ctx, jobID, logsink.EventQueryengineSucceeded, start, "")
	return nil
}

func (q *Queryengine) report(ctx context.Context, jobID string, event logsink.Event, start time.Time, details string) {
	q.config.Sink.Info(ctx, logsink.Message{
		FileUniqueID:     "queries_" + jobID,
		JobID:            jobID,
		Event:            event,
		OriginalFilename: "*",
		Language:         language.All,
		Duration:         time.Since(start).Seconds(),
		MoreDetails:      details,
	})
}
