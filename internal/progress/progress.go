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

// Package progress implements types.ProgressTracker: the RunLog
// lifecycle (StartRun/Heartbeat/AdvanceCheckpoint/Complete) and the
// lease model described in spec §4.7 -- a RunLog row with status IP
// *is* the lease, owned by ownerID, claimed with a compare-and-set
// UPDATE rather than a separate lease table.
package progress

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// checkpointCASAttempts bounds the AdvanceCheckpoint retry loop. A real
// conflict storm this deep would mean far more concurrent chunk writers
// than any MaxWorkers setting this module documents, so exhausting it
// indicates a stuck row, not ordinary contention.
const checkpointCASAttempts = 5

// Tracker implements types.ProgressTracker over a metadata Store.
type Tracker struct {
	store  types.Store
	ids    types.IdProvider
	clock  types.Clock
	logger *log.Entry
}

var _ types.ProgressTracker = (*Tracker)(nil)

// Option configures a Tracker at construction time.
type Option func(*Tracker)

// WithClock overrides the default SystemClock, for deterministic tests.
func WithClock(c types.Clock) Option { return func(t *Tracker) { t.clock = c } }

// WithLogger overrides the default logger.
func WithLogger(l *log.Entry) Option { return func(t *Tracker) { t.logger = l } }

// New builds a Tracker.
func New(store types.Store, ids types.IdProvider, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		ids:    ids,
		clock:  types.SystemClock{},
		logger: log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartRun implements types.ProgressTracker: inserts a fresh RunLog row
// in status IP, owned by ownerID. The row is the lease.
func (t *Tracker) StartRun(ctx context.Context, mappingRef, sessionID, ownerID string) (*types.RunLog, error) {
	id, err := t.ids.NextID(ctx, "RunLog")
	if err != nil {
		return nil, errors.Wrap(err, "progress: allocating run log id")
	}
	now := t.clock.Now()
	_, err = t.store.Exec(ctx,
		`INSERT INTO RunLog (id, mappingReference, sessionId, status, startAt, rowsRead, rowsWritten, rowsFailed, ownerId)
		 VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?)`,
		id, mappingRef, sessionID, string(types.RunInProgress), now, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "progress: inserting run log")
	}
	progressRunsStarted.WithLabelValues(mappingRef).Inc()
	return &types.RunLog{
		ID:               id,
		MappingReference: mappingRef,
		SessionID:        sessionID,
		Status:           types.RunInProgress,
		StartAt:          now,
		OwnerID:          ownerID,
	}, nil
}

// Heartbeat implements types.ProgressTracker: updates row counts and
// touches the heartbeat gauge, verifying the caller still owns the
// lease. A caller whose lease was reassigned gets LeaseLostError and
// must stop writing immediately.
func (t *Tracker) Heartbeat(ctx context.Context, runLogID int64, rowsRead, rowsWritten, rowsFailed int64) error {
	res, err := t.store.Exec(ctx,
		`UPDATE RunLog SET rowsRead = ?, rowsWritten = ?, rowsFailed = ? WHERE id = ? AND status = ?`,
		rowsRead, rowsWritten, rowsFailed, runLogID, string(types.RunInProgress))
	if err != nil {
		return errors.Wrap(err, "progress: heartbeat update")
	}
	if err := t.requireLeaseHeld(ctx, res, runLogID); err != nil {
		return err
	}
	progressHeartbeatSeconds.WithLabelValues(runLogIDLabel(runLogID)).Set(float64(t.clock.Now().Unix()))
	return nil
}

// AdvanceCheckpoint implements types.ProgressTracker. Parallel chunks
// can finish out of order, so a blind UPDATE would let a goroutine
// holding a lower checkpoint snapshot overwrite one that had already
// advanced further; this is a compare-and-set loop against the row's
// own checkpointValue instead, following the same optimistic-retry
// shape idprovider's block-counter strategy uses against IdPool's
// version column. Each attempt reads the current value, merges in
// value via max(existing, value), and writes back only if the row
// still held what was just read.
func (t *Tracker) AdvanceCheckpoint(ctx context.Context, runLogID int64, value string) error {
	for attempt := 0; attempt < checkpointCASAttempts; attempt++ {
		row := t.store.QueryRow(ctx, `SELECT checkpointValue, status FROM RunLog WHERE id = ?`, runLogID)
		var current sql.NullString
		var status string
		if err := row.Scan(&current, &status); err != nil {
			if err == sql.ErrNoRows {
				return &types.LeaseLostError{}
			}
			return errors.Wrap(err, "progress: reading checkpoint")
		}
		if status != string(types.RunInProgress) {
			return t.leaseLostError(ctx, runLogID)
		}

		merged := monotonicCheckpoint(current.String, value)
		if current.Valid && merged == current.String {
			return nil
		}

		var res sql.Result
		var err error
		if current.Valid {
			res, err = t.store.Exec(ctx,
				`UPDATE RunLog SET checkpointValue = ? WHERE id = ? AND status = ? AND checkpointValue = ?`,
				merged, runLogID, string(types.RunInProgress), current.String)
		} else {
			res, err = t.store.Exec(ctx,
				`UPDATE RunLog SET checkpointValue = ? WHERE id = ? AND status = ? AND checkpointValue IS NULL`,
				merged, runLogID, string(types.RunInProgress))
		}
		if err != nil {
			return errors.Wrap(err, "progress: checkpoint update")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "progress: checking rows affected")
		}
		if n > 0 {
			return nil
		}
		// Lost the race to a concurrent AdvanceCheckpoint (or Complete);
		// retry against whatever the row holds now.
	}
	return errors.Errorf("progress: checkpoint CAS exceeded retry budget for run log %d", runLogID)
}

// monotonicCheckpoint merges a candidate checkpoint value into the
// existing one, mirroring the comparison internal/engine's
// nextCheckpointValue uses when a single chunk loop folds per-chunk
// highs together: checkpoint values are either row counts (PYTHON
// strategy) or a declared column's value (KEY strategy), both of which
// compare correctly as numbers when parseable, and lexically otherwise
// (ISO-8601 timestamps sort lexically the same as chronologically).
func monotonicCheckpoint(existing, candidate string) string {
	if existing == "" {
		return candidate
	}
	if candidate == "" {
		return existing
	}
	ef, eerr := strconv.ParseFloat(existing, 64)
	cf, cerr := strconv.ParseFloat(candidate, 64)
	if eerr == nil && cerr == nil {
		if cf > ef {
			return candidate
		}
		return existing
	}
	if candidate > existing {
		return candidate
	}
	return existing
}

// Complete implements types.ProgressTracker: marks the run terminal and
// releases the lease.
func (t *Tracker) Complete(ctx context.Context, runLogID int64, status types.RunStatus, message string) error {
	if status == types.RunInProgress {
		return errors.New("progress: Complete cannot set status back to IP")
	}
	_, err := t.store.Exec(ctx,
		`UPDATE RunLog SET status = ?, endAt = ?, message = ? WHERE id = ?`,
		string(status), t.clock.Now(), message, runLogID)
	if err != nil {
		return errors.Wrap(err, "progress: completing run log")
	}
	progressRunsCompleted.WithLabelValues(string(status)).Inc()
	progressHeartbeatSeconds.DeleteLabelValues(runLogIDLabel(runLogID))
	return nil
}

// IsStopRequested implements types.ProgressTracker: true if an
// unclaimed or claimed STOP Request exists for mappingRef, whenever it
// was requested relative to the current run's start.
func (t *Tracker) IsStopRequested(ctx context.Context, mappingRef string) (bool, error) {
	row := t.store.QueryRow(ctx,
		`SELECT COUNT(*) FROM Request WHERE mappingReference = ? AND type = ? AND status IN (?, ?)`,
		mappingRef, string(types.RequestStop), string(types.RequestNew), string(types.RequestClaimed))
	var n int64
	if err := row.Scan(&n); err != nil {
		return false, errors.Wrap(err, "progress: checking stop requests")
	}
	return n > 0, nil
}

// GetRunLogs implements types.ProgressTracker.
func (t *Tracker) GetRunLogs(ctx context.Context, filter types.RunLogFilter) ([]types.RunLog, error) {
	query := `SELECT id, mappingReference, sessionId, status, startAt, endAt, rowsRead, rowsWritten, rowsFailed,
			message, checkpointValue, ownerId
		 FROM RunLog WHERE 1=1`
	var args []any
	if filter.MappingReference != "" {
		query += ` AND mappingReference = ?`
		args = append(args, filter.MappingReference)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY startAt DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := t.store.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "progress: listing run logs")
	}
	defer rows.Close()

	var out []types.RunLog
	for rows.Next() {
		var r types.RunLog
		var status string
		var endAt sql.NullTime
		var message, checkpoint, owner sql.NullString
		if err := rows.Scan(&r.ID, &r.MappingReference, &r.SessionID, &status, &r.StartAt, &endAt,
			&r.RowsRead, &r.RowsWritten, &r.RowsFailed, &message, &checkpoint, &owner); err != nil {
			return nil, errors.Wrap(err, "progress: scanning run log")
		}
		r.Status = types.RunStatus(status)
		if endAt.Valid {
			tm := endAt.Time
			r.EndAt = &tm
		}
		r.Message = message.String
		r.CheckpointValue = checkpoint.String
		r.OwnerID = owner.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "progress: iterating run logs")
	}
	return out, nil
}

// ReclaimStuck reassigns RunLog(IP) rows whose last heartbeat is older
// than staleAfter to a fresh FL status, per spec §4.7's
// STOP_STUCK_AFTER_SEC janitor. Returns the mapping references reclaimed
// so the caller can log or alert on them.
func (t *Tracker) ReclaimStuck(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	cutoff := t.clock.Now().Add(-staleAfter)
	rows, err := t.store.Query(ctx,
		`SELECT id, mappingReference FROM RunLog WHERE status = ? AND startAt < ?`,
		string(types.RunInProgress), cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "progress: finding stuck runs")
	}
	var ids []int64
	var refs []string
	for rows.Next() {
		var id int64
		var ref string
		if err := rows.Scan(&id, &ref); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "progress: scanning stuck run")
		}
		ids = append(ids, id)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "progress: iterating stuck runs")
	}
	rows.Close()

	for i, id := range ids {
		if err := t.Complete(ctx, id, types.RunFailed, "reclaimed: heartbeat stale"); err != nil {
			return nil, errors.Wrapf(err, "progress: reclaiming run log %d", id)
		}
		progressReclaimed.WithLabelValues(refs[i]).Inc()
	}
	return refs, nil
}

// requireLeaseHeld fails with LeaseLostError, populated from the current
// row, when the update in res touched nothing -- meaning the IP row no
// longer matched (either reassigned to another owner or already
// terminal).
func (t *Tracker) requireLeaseHeld(ctx context.Context, res sql.Result, runLogID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "progress: checking rows affected")
	}
	if n > 0 {
		return nil
	}
	return t.leaseLostError(ctx, runLogID)
}

func (t *Tracker) leaseLostError(ctx context.Context, runLogID int64) error {
	leaseErr := &types.LeaseLostError{}
	row := t.store.QueryRow(ctx, `SELECT mappingReference, ownerId FROM RunLog WHERE id = ?`, runLogID)
	_ = row.Scan(&leaseErr.MappingReference, &leaseErr.OwnerID)
	return leaseErr
}

func runLogIDLabel(id int64) string {
	return strconv.FormatInt(id, 10)
}
