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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsPipeline holds Prometheus metrics for the stage workers.
type metricsPipeline struct {
	once sync.Once

	jobsClaimed  *prometheus.CounterVec
	jobsAdvanced *prometheus.CounterVec
	jobsFailed   *prometheus.CounterVec
	claimErrors  prometheus.Counter

	processDuration *prometheus.HistogramVec
}

var pipeMetrics metricsPipeline

func (m *metricsPipeline) init() {
	m.once.Do(func() {
		m.jobsClaimed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dhscanner_pipeline_jobs_claimed_total", Help: "Trabajos reclamados por etapa"}, []string{"stage"})
		m.jobsAdvanced = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dhscanner_pipeline_jobs_advanced_total", Help: "Trabajos avanzados al siguiente estado"}, []string{"stage"})
		m.jobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dhscanner_pipeline_jobs_failed_total", Help: "Trabajos cuyo process falló a nivel de claim"}, []string{"stage"})
		m.claimErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "dhscanner_pipeline_claim_errors_total", Help: "Errores al consultar el coordinador"})

		buckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
		m.processDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "dhscanner_pipeline_process_seconds", Help: "Duración de process por trabajo", Buckets: buckets}, []string{"stage"})

		prometheus.MustRegister(
			m.jobsClaimed, m.jobsAdvanced, m.jobsFailed, m.claimErrors,
			m.processDuration,
		)
	})
}

// record helpers - used by the worker loop
func recordClaim(stage string, n int) {
	pipeMetrics.init()
	pipeMetrics.jobsClaimed.WithLabelValues(stage).Add(float64(n))
}

func recordAdvance(stage string, n int) {
	pipeMetrics.init()
	pipeMetrics.jobsAdvanced.WithLabelValues(stage).Add(float64(n))
}

func recordJobFailure(stage string) {
	pipeMetrics.init()
	pipeMetrics.jobsFailed.WithLabelValues(stage).Inc()
}

func recordClaimError() {
	pipeMetrics.init()
	pipeMetrics.claimErrors.Inc()
}

func observeProcess(stage string, seconds float64) {
	pipeMetrics.init()
	pipeMetrics.processDuration.WithLabelValues(stage).Observe(seconds)
}
