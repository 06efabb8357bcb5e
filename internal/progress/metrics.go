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

package progress

import (
	"github.com/dmsflow/core/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	progressRunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsflow_run_started_total",
		Help: "the number of runs started, by mapping",
	}, metrics.MappingLabels)

	progressRunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsflow_run_completed_total",
		Help: "the number of runs completed, by terminal status",
	}, []string{"status"})

	// progressHeartbeatSeconds is a gauge keyed by run log id rather than
	// mapping reference, since more than one run of the same mapping can
	// never be in flight at once (I2) but the id is needed to clean up
	// the series on Complete.
	progressHeartbeatSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dmsflow_run_last_heartbeat_seconds",
		Help: "unix time of the last heartbeat observed for an in-flight run",
	}, []string{"run_log_id"})

	progressReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsflow_run_reclaimed_total",
		Help: "the number of stuck IP run logs reclaimed by the janitor, by mapping",
	}, metrics.MappingLabels)
)
