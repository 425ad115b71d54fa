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

package ingress

import (
	"net/http"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngress holds Prometheus metrics for the scan API. Routes are
// labelled by their final path element (getjobid, upload, ...) so the
// cardinality stays bounded no matter how many client slugs exist.
type metricsIngress struct {
	once sync.Once

	requests   *prometheus.CounterVec
	rejections *prometheus.CounterVec

	requestDuration *prometheus.HistogramVec
}

var apiMetrics metricsIngress

func (m *metricsIngress) init() {
	m.once.Do(func() {
		m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dhscanner_ingress_requests_total", Help: "Peticiones HTTP por ruta y código"}, []string{"route", "code"})
		m.rejections = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dhscanner_ingress_rejections_total", Help: "Peticiones rechazadas por los middlewares"}, []string{"reason"})

		buckets := []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "dhscanner_ingress_request_seconds", Help: "Duración de las peticiones por ruta", Buckets: buckets}, []string{"route"})

		prometheus.MustRegister(m.requests, m.rejections, m.requestDuration)
	})
}

// statusWriter captures the response code for the request counter.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument counts and times every request under /api. It runs before
// the rate limiters, so shed traffic is still visible.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiMetrics.init()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		route := path.Base(r.URL.Path)
		apiMetrics.requests.WithLabelValues(route, strconv.Itoa(sw.code)).Inc()
		apiMetrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// recordRejection is called by the auth and content-type middlewares.
func recordRejection(reason string) {
	apiMetrics.init()
	apiMetrics.rejections.WithLabelValues(reason).Inc()
}
