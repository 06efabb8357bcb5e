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

package scheduler

import (
	"github.com/dmsflow/core/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulerSyncDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_sync_duration_seconds",
		Help:    "the length of time spent on one sync-loop tick",
		Buckets: metrics.LatencyBuckets,
	})
	schedulerPollDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_poll_duration_seconds",
		Help:    "the length of time spent on one poll-loop tick",
		Buckets: metrics.LatencyBuckets,
	})
	schedulerSyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_sync_errors_total",
		Help: "the number of sync-loop ticks that failed outright",
	})
	schedulerPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_poll_errors_total",
		Help: "the number of poll-loop ticks that failed outright",
	})
	schedulerEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_enqueued_total",
		Help: "the number of scheduled RUN requests enqueued",
	}, metrics.MappingLabels)
	schedulerDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_dispatched_total",
		Help: "the number of claimed requests dispatched to the executor",
	}, append(metrics.MappingLabels, "type"))
)

func prometheusTimer(h prometheus.Histogram) func() {
	timer := prometheus.NewTimer(h)
	return func() { timer.ObserveDuration() }
}
