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
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/storage"
)

// Config carries the collaborators shared by every stage worker.
type Config struct {
	Store     storage.Store
	Sink      logsink.Sink
	Logger    *slog.Logger
	Endpoints Endpoints

	// HTTPClient is used for all downstream service calls. Default: a
	// client with a 90 second timeout, enough headroom for the query
	// engine on large knowledge bases.
	HTTPClient *http.Client

	// UnitLimit bounds the per-file / per-callable fan-out inside one
	// job. Default: 16.
	UnitLimit int

	// FindingMessage is the SARIF result message attached by the
	// results stage. Default: "untrusted dataflow".
	FindingMessage string
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Sink == nil {
		c.Sink = logsink.Nop{}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	if c.UnitLimit <= 0 {
		c.UnitLimit = 16
	}
	if c.FindingMessage == "" {
		c.FindingMessage = "untrusted dataflow"
	}
}

// postJSON posts a JSON payload and returns the response body and
// status. A zero status means the request never completed.
func postJSON(ctx context.Context, client *http.Client, url string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return send(client, req)
}

// postForm posts a multipart form assembled by build.
func postForm(ctx context.Context, client *http.Client, url string, build func(w *multipart.Writer) error) ([]byte, int, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := build(w); err != nil {
		return nil, 0, err
	}
	if err := w.Close(); err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return send(client, req)
}

func send(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
