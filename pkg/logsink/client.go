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

// Package logsink delivers structured audit records to the central log
// service. Delivery is strictly best effort: a scan must never fail or
// stall because the log service is down, so every method swallows
// transport errors after a bounded retry and mirrors the record to the
// process logger for local debugging.
package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Sink accepts audit records at one of four severities. Implementations
// must be safe for concurrent use; callers never learn whether delivery
// succeeded.
type Sink interface {
	Debug(ctx context.Context, m Message)
	Info(ctx context.Context, m Message)
	Warning(ctx context.Context, m Message)
	Error(ctx context.Context, m Message)
}

const (
	maxAttempts    = 3
	firstRetryWait = 500 * time.Millisecond
)

// Client posts records to the log sink HTTP service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// retryWait is the delay before the second attempt; it doubles for
	// each attempt after that.
	retryWait time.Duration
}

// NewClient returns a Client posting to <baseURL>/log/<LEVEL>.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		retryWait: firstRetryWait,
	}
}

func (c *Client) Debug(ctx context.Context, m Message)   { c.send(ctx, LevelDebug, m) }
func (c *Client) Info(ctx context.Context, m Message)    { c.send(ctx, LevelInfo, m) }
func (c *Client) Warning(ctx context.Context, m Message) { c.send(ctx, LevelWarning, m) }
func (c *Client) Error(ctx context.Context, m Message)   { c.send(ctx, LevelError, m) }

func (c *Client) send(ctx context.Context, level Level, m Message) {
	c.logger.Debug("logsink.message",
		"level", string(level),
		"event", string(m.Event),
		"job_id", m.JobID,
		"file", m.OriginalFilename,
		"details", m.MoreDetails)

	body, err := json.Marshal(m)
	if err != nil {
		c.logger.Warn("logsink.marshal.failed", "error", err)
		return
	}

	url := fmt.Sprintf("%s/log/%s", c.baseURL, level)
	wait := c.retryWait
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
		}
		if lastErr = c.post(ctx, url, body); lastErr == nil {
			return
		}
	}
	c.logger.Warn("logsink.delivery.failed",
		"url", url,
		"attempts", maxAttempts,
		"error", lastErr)
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("log sink returned status %d", resp.StatusCode)
	}
	return nil
}
