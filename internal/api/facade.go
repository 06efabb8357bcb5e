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

// Package api exposes the core's entire surface through one Go-native
// Facade, with no HTTP transport of its own -- a host process (CLI,
// internal RPC layer, test harness) embeds it directly, the same way
// the teacher's Conveyor type is the single object a caller embeds
// rather than standing up a server. Every method here is a thin,
// logging, error-wrapping pass-through to the package that actually
// owns the behavior; the Facade's only job is giving callers one
// dependency to hold instead of five.
package api

import (
	"context"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Facade is the single entry point a host process wires up: mapping
// authoring and compilation, manual run/stop submission, and read-back
// of request and run-log history.
type Facade struct {
	compiler types.Compiler
	queue    types.RequestQueue
	progress types.ProgressTracker
	logger   *log.Entry
}

// New builds a Facade over the three subsystems it fronts.
func New(compiler types.Compiler, queue types.RequestQueue, progress types.ProgressTracker, logger *log.Entry) *Facade {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Facade{compiler: compiler, queue: queue, progress: progress, logger: logger}
}

// UpsertSqlSnippet creates or historizes a named, reusable SQL fragment.
func (f *Facade) UpsertSqlSnippet(ctx context.Context, code, body string) (int64, error) {
	return f.compiler.UpsertSqlSnippet(ctx, code, body)
}

// UpsertMapping creates or historizes a Mapping header.
func (f *Facade) UpsertMapping(ctx context.Context, m types.Mapping) (int64, error) {
	return f.compiler.UpsertMapping(ctx, m)
}

// UpsertMappingDetail creates or historizes one column mapping within a
// Mapping.
func (f *Facade) UpsertMappingDetail(ctx context.Context, d types.MappingDetail) (int64, error) {
	return f.compiler.UpsertMappingDetail(ctx, d)
}

// ValidateMapping runs the compiler's static checks (see
// compiler.Compiler.ValidateMapping) against the current version of
// reference, without compiling it.
func (f *Facade) ValidateMapping(ctx context.Context, reference string) (bool, []*types.ValidationError, error) {
	return f.compiler.ValidateMapping(ctx, reference)
}

// Activate flips a Mapping's statusFlag to A, making it eligible for
// scheduling and Compile.
func (f *Facade) Activate(ctx context.Context, reference string) error {
	return f.compiler.Activate(ctx, reference)
}

// Deactivate flips a Mapping's statusFlag to N, pulling it out of the
// scheduler's active set.
func (f *Facade) Deactivate(ctx context.Context, reference string) error {
	return f.compiler.Deactivate(ctx, reference)
}

// DeleteMapping removes a Mapping that has never been compiled.
func (f *Facade) DeleteMapping(ctx context.Context, reference string) error {
	return f.compiler.DeleteMapping(ctx, reference)
}

// DeleteDetail removes one column mapping from a Mapping that has never
// been compiled.
func (f *Facade) DeleteDetail(ctx context.Context, reference, targetColumn string) error {
	return f.compiler.DeleteDetail(ctx, reference, targetColumn)
}

// Compile validates reference and, if it passes, persists a new current
// JobFlow built from it. The returned id is the new JobFlow's.
func (f *Facade) Compile(ctx context.Context, reference string) (int64, error) {
	id, err := f.compiler.Compile(ctx, reference)
	if err != nil {
		return 0, err
	}
	f.logger.WithFields(log.Fields{"mappingReference": reference, "jobFlowId": id}).Info("compiled job flow")
	return id, nil
}

// EnqueueRun submits a manual RUN request for a Mapping outside its
// Schedule, per spec §4.4's manual-trigger path.
func (f *Facade) EnqueueRun(ctx context.Context, mappingRef string, payload types.RequestPayload) (int64, error) {
	if mappingRef == "" {
		return 0, errors.New("api: mappingRef is required")
	}
	return f.queue.Enqueue(ctx, types.RequestRun, mappingRef, payload)
}

// EnqueueStop submits a cooperative STOP request; the running Execute
// call observes it at its next chunk boundary, per spec §4.6.3.
func (f *Facade) EnqueueStop(ctx context.Context, mappingRef string) (int64, error) {
	if mappingRef == "" {
		return 0, errors.New("api: mappingRef is required")
	}
	return f.queue.Enqueue(ctx, types.RequestStop, mappingRef, types.RequestPayload{})
}

// ListRequests returns queue history matching filter.
func (f *Facade) ListRequests(ctx context.Context, filter types.RequestFilter) ([]types.Request, error) {
	return f.queue.List(ctx, filter)
}

// GetRunLogs returns run-log history matching filter.
func (f *Facade) GetRunLogs(ctx context.Context, filter types.RunLogFilter) ([]types.RunLog, error) {
	return f.progress.GetRunLogs(ctx, filter)
}

// IsRunning reports whether mappingRef has a live, unstopped run in
// flight, per the running-run check the scheduler itself uses before
// enqueuing a new one.
func (f *Facade) IsRunning(ctx context.Context, mappingRef string) (bool, error) {
	logs, err := f.progress.GetRunLogs(ctx, types.RunLogFilter{MappingReference: mappingRef, Status: types.RunInProgress, Limit: 1})
	if err != nil {
		return false, errors.Wrap(err, "api: checking in-flight run")
	}
	return len(logs) > 0, nil
}
