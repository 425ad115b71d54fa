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

// Package ingress implements the public scan API.
//
// Every approved client slug gets its own copy of the scan routes under
// /api/<slug>/, each group with its own per-IP rate limiters. Scanning
// is asynchronous: clients mint a job id, stream files to /upload, kick
// the pipeline with /analyze, poll /status until the job reports
// Finished, then collect the SARIF document from /results.
package ingress

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/dhscanner/internal/config"
	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/storage"
)

// Server handles the public scan API. It carries no per-request state;
// one instance serves every approved client slug.
type Server struct {
	cfg    *config.Config
	store  storage.Store
	coord  coordinator.Coordinator
	sink   logsink.Sink
	logger *slog.Logger
}

// New wires an API server. A nil sink falls back to the no-op sink and
// a nil logger to slog.Default.
func New(cfg *config.Config, store storage.Store, coord coordinator.Coordinator, sink logsink.Sink, logger *slog.Logger) *Server {
	if sink == nil {
		sink = logsink.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, store: store, coord: coord, sink: sink, logger: logger}
}

// Router builds the routing table. Health and metrics live outside the
// /api prefix and are neither authenticated nor rate limited.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, slug := range s.cfg.ApprovedURLs {
		s.mount(r, slug)
	}
	return r
}

// mount wires the scan routes for one approved client slug. Limiters
// are created per group, so clients never share a rate budget, and they
// run before auth: over-limit traffic is shed without paying for token
// comparison.
func (s *Server) mount(r chi.Router, slug string) {
	r.Route("/api/"+slug, func(r chi.Router) {
		r.Use(instrument)

		r.With(perMinute(100)).Get("/getjobid", s.handleGetJobID)
		r.With(perSecond(1000), s.requireBearer, s.requireOctetStream).Post("/upload", s.handleUpload)
		r.With(perMinute(100), s.requireBearer).Post("/analyze", s.handleAnalyze)
		r.With(perMinute(100), s.requireBearer).Post("/status", s.handleStatus)
		r.With(perMinute(100), s.requireBearer).Post("/results", s.handleResults)
	})
}

func perSecond(n int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(n, time.Second)
}

func perMinute(n int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(n, time.Minute)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
