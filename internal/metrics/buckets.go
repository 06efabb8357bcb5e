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

// Package metrics holds the prometheus bucket and label conventions
// shared by every component's metrics.go, so histograms across the
// queue, scheduler, engine, and progress packages stay comparable.
package metrics

// LatencyBuckets covers request-claim latency up through long-running
// chunk execution: sub-second scheduler polls at one end, multi-minute
// chunk transforms at the other.
var LatencyBuckets = []float64{
	.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// MappingLabels is the label set attached to every per-mapping counter
// or histogram: enough to slice dashboards by mapping without also
// keying on run id, which would blow up cardinality.
var MappingLabels = []string{"mapping_reference"}
