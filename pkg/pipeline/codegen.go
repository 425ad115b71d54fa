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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/storage"
)

// Codegen lowers each dhscanner AST into its callables.
type Codegen struct {
	config Config
}

// NewCodegen creates the third pipeline stage.
func NewCodegen(config Config) *Codegen {
	config.setDefaults()
	return &Codegen{config: config}
}

func (c *Codegen) Name() string { return "codegen" }

func (c *Codegen) Trigger() coordinator.Status { return coordinator.WaitingForCodegen }

func (c *Codegen) Next() coordinator.Status { return coordinator.WaitingForKbgen }

func (c *Codegen) Process(ctx context.Context, jobID string) error {
	asts, err := c.config.Store.ListDhscannerAsts(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list dhscanner asts: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(c.config.UnitLimit)
	for _, d := range asts {
		d := d
		g.Go(func() error {
			c.codegenSingleAst(ctx, d)
			return nil
		})
	}
	return g.Wait()
}

func (c *Codegen) codegenSingleAst(ctx context.Context, d storage.DhscannerAst) {
	if content, ok := c.config.Store.LoadDhscannerAst(ctx, d); ok {
		if callables, ok := c.generate(ctx, d, content); ok {
			if _, err := c.config.Store.SaveCallables(ctx, d, callables); err != nil {
				c.config.Logger.Warn("pipeline.codegen.save.failed",
					"job_id", d.JobID, "file", d.UniqueID, "err", err)
			}
		}
	}
	c.config.Store.DeleteDhscannerAst(ctx, d)
}

func (c *Codegen) generate(ctx context.Context, d storage.DhscannerAst, ast []byte) ([][]byte, bool) {
	start := time.Now()

	body, status, err := postJSON(ctx, c.config.HTTPClient, c.config.Endpoints.Codegen, ast)
	if err == nil && status == http.StatusOK {
		var out struct {
			ActualCallables []json.RawMessage `json:"actualCallables"`
		}
		if err := json.Unmarshal(body, &out); err == nil && out.ActualCallables != nil {
			callables := make([][]byte, len(out.ActualCallables))
			for i, raw := range out.ActualCallables {
				callables[i] = []byte(raw)
			}
			c.config.Sink.Info(ctx, logsink.Message{
				FileUniqueID:     d.UniqueID,
				JobID:            d.JobID,
				Event:            logsink.EventCodegenSucceeded,
				OriginalFilename: d.OriginalFilename,
				Language:         d.Language,
				Duration:         time.Since(start).Seconds(),
				MoreDetails:      fmt.Sprintf("callables(%d)", len(callables)),
			})
			return callables, true
		}
	}

	c.config.Sink.Info(ctx, logsink.Message{
		FileUniqueID:     d.UniqueID,
		JobID:            d.JobID,
		Event:            logsink.EventCodegenFailed,
		OriginalFilename: d.OriginalFilename,
		Language:         d.Language,
		Duration:         time.Since(start).Seconds(),
	})
	return nil, false
}
