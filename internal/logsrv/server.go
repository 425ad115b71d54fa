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

// Package logsrv implements the central log sink service.
//
// Pipeline components post structured audit records here (one HTTP call
// per record, severity encoded in the path) and the service lands them
// in Postgres. Producers treat the sink as best-effort, so this side is
// deliberately dumb: validate, insert, answer. Anything that fails
// validation is rejected rather than stored with junk enum values.
package logsrv

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kraklabs/dhscanner/pkg/logsink"
)

// recorder is the slice of Database the handlers need.
type recorder interface {
	Insert(ctx context.Context, level logsink.Level, m logsink.Message) error
}

// Server accepts audit records over HTTP.
type Server struct {
	db     recorder
	logger *slog.Logger
}

// New wires a log sink server. A nil logger falls back to slog.Default.
func New(db recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{db: db, logger: logger}
}

// Router builds the routing table. The level travels as a path segment
// so the client never has to encode it in the body.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/log/{level}", s.handleLog)
	return r
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	level, ok := logsink.ParseLevel(chi.URLParam(r, "level"))
	if !ok {
		writeDetail(w, http.StatusBadRequest, "unknown log level")
		return
	}

	var msg logsink.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed log record")
		return
	}
	if !msg.Valid() {
		writeDetail(w, http.StatusBadRequest, "invalid log record")
		return
	}

	if err := s.db.Insert(r.Context(), level, msg); err != nil {
		s.logger.Error("logsrv.insert.failed", "job_id", msg.JobID, "context", msg.Event, "err", err)
		writeDetail(w, http.StatusInternalServerError, "failed to store log record")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
