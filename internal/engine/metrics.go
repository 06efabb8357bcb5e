// Copyright 2024 The dmsflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/dmsflow/core/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineRunDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dmsflow_engine_run_duration_seconds",
		Help:    "Wall-clock duration of one ExecutionEngine run.",
		Buckets: metrics.LatencyBuckets,
	})
	engineRunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsflow_engine_runs_completed_total",
		Help: "Runs that reached the COMPLETED state.",
	}, metrics.MappingLabels)
	engineRunsStopped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsflow_engine_runs_stopped_total",
		Help: "Runs that ended via cooperative stop.",
	}, metrics.MappingLabels)
	engineRunErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsflow_engine_run_errors_total",
		Help: "Runs that ended in the FAILED state.",
	}, metrics.MappingLabels)
)

func prometheusTimer(h prometheus.Histogram) func() {
	timer := prometheus.NewTimer(h)
	return func() { timer.ObserveDuration() }
}
