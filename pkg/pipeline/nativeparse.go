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
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/storage"
)

// NativeParser sends every uploaded source file to its per-language
// frontend and stores the language-native AST it gets back.
type NativeParser struct {
	config Config
}

// NewNativeParser creates the first pipeline stage.
func NewNativeParser(config Config) *NativeParser {
	config.setDefaults()
	return &NativeParser{config: config}
}

func (p *NativeParser) Name() string { return "native-parse" }

func (p *NativeParser) Trigger() coordinator.Status { return coordinator.WaitingForNativeParsing }

func (p *NativeParser) Next() coordinator.Status { return coordinator.WaitingForDhscannerParsing }

// Process parses every scan-worthy source file of the job. Files that
// are skipped by the filter are still consumed so transient storage
// drains either way.
func (p *NativeParser) Process(ctx context.Context, jobID string) error {
	files, err := p.config.Store.ListSourceFiles(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list source files: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(p.config.UnitLimit)
	for _, f := range files {
		if !scanWorthy(f.OriginalFilename) {
			p.config.Store.DeleteSourceFile(ctx, f)
			continue
		}
		f := f
		g.Go(func() error {
			p.parseSingleFile(ctx, f)
			return nil
		})
	}
	return g.Wait()
}

func (p *NativeParser) parseSingleFile(ctx context.Context, f storage.File) {
	code, ok := p.config.Store.LoadSourceFile(ctx, f)
	if !ok {
		return
	}
	if ast, ok := p.parse(ctx, f, code); ok {
		if _, err := p.config.Store.SaveNativeAst(ctx, f, ast); err != nil {
			p.config.Logger.Warn("pipeline.native_parse.save.failed",
				"job_id", f.JobID, "file", f.UniqueID, "err", err)
		}
	}
	// parsed or not, the source file is consumed
	p.config.Store.DeleteSourceFile(ctx, f)
}

func (p *NativeParser) parse(ctx context.Context, f storage.File, code []byte) ([]byte, bool) {
	start := time.Now()
	url, ok := p.config.Endpoints.AstBuilders[f.Language]
	if !ok {
		p.report(ctx, f, logsink.EventNativeParsingFailed, start, 0)
		return nil, false
	}

	body, status, err := postForm(ctx, p.config.HTTPClient, url, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("source", f.OriginalFilename)
		if err != nil {
			return err
		}
		if _, err := part.Write(code); err != nil {
			return err
		}
		if f.ModuleName != "" {
			return w.WriteField("modulename", f.ModuleName)
		}
		return nil
	})
	if err != nil || status != http.StatusOK {
		p.report(ctx, f, logsink.EventNativeParsingFailed, start, 0)
		return nil, false
	}
	if len(body) == 0 {
		p.report(ctx, f, logsink.EventNativeParsingEmptyAst, start, 0)
		return nil, false
	}

	p.report(ctx, f, logsink.EventNativeParsingSucceeded, start, len(body))
	return body, true
}

func (p *NativeParser) report(ctx context.Context, f storage.File, event logsink.Event, start time.Time, size int) {
	p.config.Sink.Info(ctx, logsink.Message{
		FileUniqueID:          f.UniqueID,
		JobID:                 f.JobID,
		Event:                 event,
		OriginalFilename:      f.OriginalFilename,
		Language:              f.Language,
		Duration:              time.Since(start).Seconds(),
		CorrespondingByteSize: size,
	})
}

// scanWorthy filters out files that would only add noise to the
// analysis. Exclusion reasons will eventually become per-language
// (node_modules for javascript, site-packages for python, vendor/bundle
// for ruby and so on).
func scanWorthy(originalFilename string) bool {
	if strings.Contains(originalFilename, "/test/") {
		return false
	}
	if strings.Contains(originalFilename, ".test.") {
		return false
	}
	return true
}
