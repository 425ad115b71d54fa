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

package logsink

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kraklabs/dhscanner/pkg/language"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientPostsToLevelPath(t *testing.T) {
	var gotPath string
	var gotBody Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, discardLogger())
	c.Info(context.Background(), Message{
		FileUniqueID:     "abc.js",
		JobID:            "deadbeef",
		Event:            EventNativeParsingSucceeded,
		OriginalFilename: "src/index.js",
		Language:         language.JS,
		Duration:         0.25,
	})

	if gotPath != "/log/INFO" {
		t.Errorf("path = %q, want /log/INFO", gotPath)
	}
	if gotBody.Event != EventNativeParsingSucceeded {
		t.Errorf("event = %q, want %q", gotBody.Event, EventNativeParsingSucceeded)
	}
	if gotBody.JobID != "deadbeef" {
		t.Errorf("job_id = %q, want deadbeef", gotBody.JobID)
	}
	if gotBody.Language != language.JS {
		t.Errorf("language = %q, want js", gotBody.Language)
	}
}

func TestClientRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, discardLogger())
	c.retryWait = time.Millisecond
	c.Warning(context.Background(), Message{Event: EventCodegenFailed})

	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClientGivesUpAfterBoundedAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, discardLogger())
	c.retryWait = time.Millisecond

	// Must return instead of erroring or blocking forever.
	c.Error(context.Background(), Message{Event: EventKbgenFailed})

	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClientStopsRetryingWhenContextCanceled(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(server.URL, discardLogger())
	c.retryWait = 10 * time.Second

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Info(ctx, Message{Event: EventUploadedFileSaved})
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after context cancellation")
	}
	if got := calls.Load(); got > 1 {
		t.Errorf("attempts after cancel = %d, want at most 1", got)
	}
}

func TestRecorderCapturesByEvent(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	r.Info(ctx, Message{Event: EventUploadedFileSaved, JobID: "a"})
	r.Warning(ctx, Message{Event: EventNativeParsingFailed, JobID: "a"})
	r.Info(ctx, Message{Event: EventUploadedFileSaved, JobID: "b"})

	saved := r.ByEvent(EventUploadedFileSaved)
	if len(saved) != 2 {
		t.Fatalf("ByEvent returned %d messages, want 2", len(saved))
	}
	if saved[0].JobID != "a" || saved[1].JobID != "b" {
		t.Errorf("ByEvent order = %q,%q, want a,b", saved[0].JobID, saved[1].JobID)
	}
	if all := r.All(); len(all) != 3 {
		t.Errorf("All returned %d entries, want 3", len(all))
	}
}

func TestParseLevel(t *testing.T) {
	if _, ok := ParseLevel("INFO"); !ok {
		t.Error("INFO must parse")
	}
	if _, ok := ParseLevel("info"); ok {
		t.Error("lowercase level must not parse")
	}
	if _, ok := ParseLevel("TRACE"); ok {
		t.Error("TRACE must not parse")
	}
}

func TestMessageValid(t *testing.T) {
	good := Message{Event: EventKbgenSucceeded, Language: language.PY}
	if !good.Valid() {
		t.Error("known event and language must validate")
	}
	badEvent := Message{Event: "SOMETHING_ELSE", Language: language.PY}
	if badEvent.Valid() {
		t.Error("unknown event must not validate")
	}
	badLang := Message{Event: EventKbgenSucceeded, Language: "klingon"}
	if badLang.Valid() {
		t.Error("unknown language must not validate")
	}
}
