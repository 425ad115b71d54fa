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
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/storage"
)

// Kbgen compiles each callable into knowledge base facts.
type Kbgen struct {
	config Config
}

// NewKbgen creates the fourth pipeline stage.
func NewKbgen(config Config) *Kbgen {
	config.setDefaults()
	return &Kbgen{config: config}
}

func (k *Kbgen) Name() string { return "kbgen" }

func (k *Kbgen) Trigger() coordinator.Status { return coordinator.WaitingForKbgen }

func (k *Kbgen) Next() coordinator.Status { return coordinator.WaitingForQueryengine }

// Process fans out over every callable of every set, then consumes the
// sets once all their callables have been attempted.
func (k *Kbgen) Process(ctx context.Context, jobID string) error {
	sets, err := k.config.Store.ListCallables(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list callables: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(k.config.UnitLimit)
	for _, c := range sets {
		for i := 0; i < c.Count; i++ {
			c, i := c, i
			g.Go(func() error {
				k.kbgenSingleCallable(ctx, c, i)
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, c := range sets {
		k.config.Store.DeleteCallables(ctx, c)
	}
	return nil
}

func (k *Kbgen) kbgenSingleCallable(ctx context.Context, c storage.Callables, i int) {
	code, ok := k.config.Store.LoadCallable(ctx, c, i)
	if !ok {
		return
	}
	if facts, ok := k.generate(ctx, c, i, code); ok {
		if _, err := k.config.Store.SaveFacts(ctx, c, i, facts); err != nil {
			k.config.Logger.Warn("pipeline.kbgen.save.failed",
				"job_id", c.JobID, "callables", c.UniqueID, "index", i, "err", err)
		}
	}
}

func (k *Kbgen) generate(ctx context.Context, c storage.Callables, i int, callable []byte) ([]string, bool) {
	start := time.Now()

	body, status, err := postJSON(ctx, k.config.HTTPClient, k.config.Endpoints.Kbgen, callable)
	if err == nil && status == http.StatusOK {
		var out struct {
			Content []string `json:"content"`
		}
		if err := json.Unmarshal(body, &out); err == nil && out.Content != nil {
			k.config.Sink.Info(ctx, logsink.Message{
				FileUniqueID:     c.UniqueID,
				JobID:            c.JobID,
				Event:            logsink.EventKbgenSucceeded,
				OriginalFilename: c.OriginalFilename,
				Language:         c.Language,
				Duration:         time.Since(start).Seconds(),
				MoreDetails:      fmt.Sprintf("callable(%d)", i+1),
			})
			return out.Content, true
		}
	}

	k.config.Sink.Info(ctx, logsink.Message{
		FileUniqueID:     c.UniqueID,
		JobID:            c.JobID,
		Event:            logsink.EventKbgenFailed,
		OriginalFilename: c.OriginalFilename,
		Language:         c.Language,
		Duration:         time.Since(start).Seconds(),
		MoreDetails:      fmt.Sprintf("callable(%d), %s", i+1, failureDetail(status, err)),
	})
	return nil, false
}

// failureDetail summarizes a downstream call for the audit trail.
func failureDetail(status int, err error) string {
	statusPart := "none"
	if status != 0 {
		statusPart = strconv.Itoa(status)
	}
	errPart := "none"
	if err != nil {
		errPart = err.Error()
	}
	return fmt.Sprintf("response status: %s, exception(s): %s", statusPart, errPart)
}
