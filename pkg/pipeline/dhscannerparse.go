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

// DhscannerParser normalizes language-native ASTs into the shared
// dhscanner AST.
type DhscannerParser struct {
	config Config
}

// NewDhscannerParser creates the second pipeline stage.
func NewDhscannerParser(config Config) *DhscannerParser {
	config.setDefaults()
	return &DhscannerParser{config: config}
}

func (p *DhscannerParser) Name() string { return "dhscanner-parse" }

func (p *DhscannerParser) Trigger() coordinator.Status {
	return coordinator.WaitingForDhscannerParsing
}

func (p *DhscannerParser) Next() coordinator.Status { return coordinator.WaitingForCodegen }

func (p *DhscannerParser) Process(ctx context.Context, jobID string) error {
	asts, err := p.config.Store.ListNativeAsts(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list native asts: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(p.config.UnitLimit)
	for _, a := range asts {
		a := a
		g.Go(func() error {
			p.normalizeSingleAst(ctx, a)
			return nil
		})
	}
	return g.Wait()
}

func (p *DhscannerParser) normalizeSingleAst(ctx context.Context, a storage.NativeAst) {
	if code, ok := p.config.Store.LoadNativeAst(ctx, a); ok {
		if content, ok := p.normalize(ctx, a, code); ok {
			if _, err := p.config.Store.SaveDhscannerAst(ctx, a, content); err != nil {
				p.config.Logger.Warn("pipeline.dhscanner_parse.save.failed",
					"job_id", a.JobID, "file", a.UniqueID, "err", err)
			}
		}
	}
	p.config.Store.DeleteNativeAst(ctx, a)
}

// normalize posts one native AST to the dhscanner AST builder. A reply
// carrying status FAILED is a domain failure: the parse error is logged
// with its location when one is embedded, no artifact is written, and
// the job moves on without this file. Transport faults and non-JSON
// replies are system failures.
func (p *DhscannerParser) normalize(ctx context.Context, a storage.NativeAst, code []byte) ([]byte, bool) {
	start := time.Now()
	url, ok := p.config.Endpoints.Normalizers[a.Language]
	if !ok {
		p.reportSystemFailure(ctx, a, start)
		return nil, false
	}

	payload, err := json.Marshal(map[string]string{
		"filename": a.OriginalFilename,
		"content":  string(code),
	})
	if err != nil {
		p.reportSystemFailure(ctx, a, start)
		return nil, false
	}

	body, status, err := postJSON(ctx, p.config.HTTPClient, url, payload)
	if err != nil || status != http.StatusOK || !json.Valid(body) {
		p.reportSystemFailure(ctx, a, start)
		return nil, false
	}

	parseFailed := false
	moreDetails := "nothing else to add"

	var verdict struct {
		Status   string          `json:"status"`
		Location json.RawMessage `json:"location"`
	}
	if err := json.Unmarshal(body, &verdict); err == nil && verdict.Status == "FAILED" {
		parseFailed = true
		moreDetails = "could not extract parse error location"
		if len(verdict.Location) > 0 {
			if loc, ok := parseSpan(verdict.Location); ok {
				moreDetails = loc.String()
			}
		}
	}

	event := logsink.EventDhscannerParsingSucceeded
	if parseFailed {
		event = logsink.EventDhscannerParsingFailed
	}
	p.config.Sink.Info(ctx, logsink.Message{
		FileUniqueID:          a.UniqueID,
		JobID:                 a.JobID,
		Event:                 event,
		OriginalFilename:      a.OriginalFilename,
		Language:              a.Language,
		Duration:              time.Since(start).Seconds(),
		MoreDetails:           moreDetails,
		CorrespondingByteSize: len(body),
	})
	if parseFailed {
		return nil, false
	}
	return body, true
}

func (p *DhscannerParser) reportSystemFailure(ctx context.Context, a storage.NativeAst, start time.Time) {
	p.config.Sink.Info(ctx, logsink.Message{
		FileUniqueID:     a.UniqueID,
		JobID:            a.JobID,
		Event:            logsink.EventDhscannerParsingSystemFailure,
		OriginalFilename: a.OriginalFilename,
		Language:         a.Language,
		Duration:         time.Since(start).Seconds(),
	})
}
