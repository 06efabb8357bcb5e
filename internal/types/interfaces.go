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

package types

import (
	"context"
	"database/sql"
	"time"
)

// Row is satisfied by *sql.Row (and by any test fake that needs to
// stand in for one). Narrowing Querier to this instead of the concrete
// *sql.Row lets callers fake a Store without a real driver, the same
// way the teacher's StagingQuerier is satisfied by the already-interface
// pgx.Row/pgx.Rows types.
type Row interface {
	Scan(dest ...any) error
}

// Rows is satisfied by *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// IdProvider hands out monotonic integer ids for a named entity, safe
// under concurrency within one process group.
type IdProvider interface {
	NextID(ctx context.Context, entityName string) (int64, error)
	NextIDs(ctx context.Context, entityName string, n int) ([]int64, error)
}

// Querier is the read/write surface common to a Store and a Tx. It is
// deliberately narrow: callers never see driver-specific row types beyond
// what database/sql already exposes, so the same calling code runs
// against either dialect.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// Store is the MetadataStore adapter surface described in §4.2: it hides
// dialect differences (placeholder style, RETURNING semantics, current
// timestamp function, schema qualification) behind one fixed surface. The
// same adapter shape is reused for target databases.
type Store interface {
	Querier

	// InsertReturning executes an INSERT (or UPSERT) and returns the
	// named columns of the affected row, using whatever RETURNING
	// mechanism the dialect supports.
	InsertReturning(ctx context.Context, query string, args []any, returnCols []string) ([]any, error)

	// BeginTx starts a transaction scoped to the Store's dialect.
	BeginTx(ctx context.Context) (Tx, error)

	// ReadLargeText is idempotent: it reads the value if it is a
	// LOB-like driver type, otherwise coerces it to a string. Compilers
	// must route all large-text comparisons through this, never compare
	// raw column values for CLOB-backed columns.
	ReadLargeText(v any) (string, error)

	// SchemaPrefix composes the schema-qualification prefix for the
	// given namespace; empty string is a valid answer for single-schema
	// deployments.
	SchemaPrefix(kind SchemaKind) string

	// Dialect reports which of the two supported dialects this Store
	// talks.
	Dialect() DbType

	// NextFromSequence issues the next value of a backend sequence
	// object, used by the `sequence` IdProvider strategy.
	NextFromSequence(ctx context.Context, sequenceName string) (int64, error)
}

// Tx is a Store bound to one open transaction.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Compiler validates and persists a Mapping and its MappingDetails, and
// produces a current JobFlow from them.
type Compiler interface {
	UpsertSqlSnippet(ctx context.Context, code, body string) (int64, error)
	UpsertMapping(ctx context.Context, m Mapping) (int64, error)
	UpsertMappingDetail(ctx context.Context, d MappingDetail) (int64, error)

	ValidateSql(ctx context.Context, body string) (bool, error)
	ValidateLogic(ctx context.Context, body string, keyColumns, valueColumns []string) (bool, error)
	ValidateMapping(ctx context.Context, reference string) (bool, []*ValidationError, error)

	Activate(ctx context.Context, reference string) error
	Deactivate(ctx context.Context, reference string) error

	DeleteMapping(ctx context.Context, reference string) error
	DeleteDetail(ctx context.Context, reference, targetColumn string) error

	Compile(ctx context.Context, reference string) (int64, error)
}

// RequestQueue is the durable work queue that producers append to and
// the scheduler claims from.
type RequestQueue interface {
	Enqueue(ctx context.Context, reqType RequestType, mappingRef string, payload RequestPayload) (int64, error)
	ClaimNext(ctx context.Context, claimantID string, maxN int) ([]Request, error)
	Complete(ctx context.Context, requestID int64, status RequestStatus, message string) error
	List(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// RequestFilter narrows RequestQueue.List.
type RequestFilter struct {
	MappingReference string
	Status           RequestStatus
	Type             RequestType
	Limit            int
}

// RunLogFilter narrows ProgressTracker/run-log lookups.
type RunLogFilter struct {
	MappingReference string
	Status           RunStatus
	Limit            int
}

// ProgressTracker writes heartbeats and row counts to the run log and
// reads stop flags from the queue.
type ProgressTracker interface {
	StartRun(ctx context.Context, mappingRef, sessionID, ownerID string) (*RunLog, error)
	Heartbeat(ctx context.Context, runLogID int64, rowsRead, rowsWritten, rowsFailed int64) error
	AdvanceCheckpoint(ctx context.Context, runLogID int64, value string) error
	Complete(ctx context.Context, runLogID int64, status RunStatus, message string) error
	IsStopRequested(ctx context.Context, mappingRef string) (bool, error)
	GetRunLogs(ctx context.Context, filter RunLogFilter) ([]RunLog, error)
	ReclaimStuck(ctx context.Context, staleAfter time.Duration) ([]string, error)
}

// Clock abstracts the wall clock so that scheduling and lease logic can
// be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
