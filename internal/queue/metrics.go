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

package queue

import (
	"github.com/dmsflow/core/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueEnqueueCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_enqueue_total",
		Help: "the number of requests enqueued",
	}, append(metrics.MappingLabels, "type"))

	queueClaimDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "queue_claim_duration_seconds",
		Help:    "the length of time spent claiming the next batch of requests",
		Buckets: metrics.LatencyBuckets,
	})
	queueClaimCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_claim_requests_total",
		Help: "the number of requests claimed from the queue",
	})
	queueClaimErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_claim_errors_total",
		Help: "the number of errors encountered while claiming requests",
	})

	queueCompleteCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_complete_total",
		Help: "the number of requests marked complete, by terminal status",
	}, []string{"status"})
)
