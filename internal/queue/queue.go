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

// Package queue implements the RequestQueue described in spec §4.4: a
// durable work list of RUN/STOP requests that the scheduler's poll loop
// claims from, using FOR UPDATE SKIP LOCKED so that more than one
// scheduler instance can share a queue without double-claiming a row.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Queue implements types.RequestQueue over a metadata Store.
type Queue struct {
	store  types.Store
	ids    types.IdProvider
	clock  types.Clock
	logger *log.Entry
}

var _ types.RequestQueue = (*Queue)(nil)

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithClock overrides the default SystemClock, for deterministic tests.
func WithClock(c types.Clock) Option { return func(q *Queue) { q.clock = c } }

// WithLogger overrides the default logger.
func WithLogger(l *log.Entry) Option { return func(q *Queue) { q.logger = l } }

// New builds a Queue over the given metadata Store and IdProvider.
func New(store types.Store, ids types.IdProvider, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		ids:    ids,
		clock:  types.SystemClock{},
		logger: log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue implements types.RequestQueue.
func (q *Queue) Enqueue(ctx context.Context, reqType types.RequestType, mappingRef string, payload types.RequestPayload) (int64, error) {
	id, err := q.ids.NextID(ctx, "Request")
	if err != nil {
		return 0, errors.Wrap(err, "queue: allocating request id")
	}

	var startDate, endDate sql.NullTime
	var truncate sql.NullBool
	if payload.History != nil {
		startDate = sql.NullTime{Time: payload.History.StartDate, Valid: true}
		endDate = sql.NullTime{Time: payload.History.EndDate, Valid: true}
		truncate = sql.NullBool{Bool: payload.History.Truncate, Valid: true}
	}

	now := q.clock.Now()
	_, err = q.store.Exec(ctx,
		`INSERT INTO Request (
			id, mappingReference, type, loadType, historyStartDate, historyEndDate, historyTruncate,
			status, requestedAt
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, mappingRef, string(reqType), string(payload.LoadType), startDate, endDate, truncate,
		string(types.RequestNew), now)
	if err != nil {
		return 0, errors.Wrap(err, "queue: inserting request")
	}
	queueEnqueueCount.WithLabelValues(mappingRef, string(reqType)).Inc()
	q.logger.WithFields(log.Fields{"requestId": id, "mapping": mappingRef, "type": reqType}).Debug("queue: enqueued request")
	return id, nil
}

// ClaimNext implements types.RequestQueue: atomically marks up to maxN
// NEW requests CLAIMED by claimantID and returns them, oldest first.
// FOR UPDATE SKIP LOCKED lets multiple scheduler instances share one
// queue without claiming the same row twice; both supported dialects
// (Oracle via godror, CockroachDB/PostgreSQL via pgx) implement it.
func (q *Queue) ClaimNext(ctx context.Context, claimantID string, maxN int) ([]types.Request, error) {
	if maxN <= 0 {
		return nil, nil
	}
	timer := prometheus.NewTimer(queueClaimDurations)
	defer timer.ObserveDuration()

	tx, err := q.store.BeginTx(ctx)
	if err != nil {
		queueClaimErrors.Inc()
		return nil, errors.Wrap(err, "queue: beginning claim transaction")
	}
	defer func() {
		if err != nil {
			queueClaimErrors.Inc()
			_ = tx.Rollback()
		}
	}()

	// STOP requests are serviced ahead of RUN requests in the same
	// claim batch (spec §4.4): the CASE WHEN term sorts type='STOP'
	// rows first without needing a second round trip.
	rows, err := tx.Query(ctx,
		fmt.Sprintf(`SELECT id FROM Request WHERE status = ?
			ORDER BY CASE WHEN type = ? THEN 0 ELSE 1 END, requestedAt
			LIMIT %d FOR UPDATE SKIP LOCKED`, maxN),
		string(types.RequestNew), string(types.RequestStop))
	if err != nil {
		return nil, errors.Wrap(err, "queue: selecting claimable requests")
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if scanErr := rows.Scan(&id); scanErr != nil {
			rows.Close()
			err = errors.Wrap(scanErr, "queue: scanning claimable request id")
			return nil, err
		}
		ids = append(ids, id)
	}
	if closeErr := rows.Err(); closeErr != nil {
		err = errors.Wrap(closeErr, "queue: iterating claimable requests")
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		err = tx.Commit()
		return nil, errors.Wrap(err, "queue: committing empty claim")
	}

	now := q.clock.Now()
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, string(types.RequestClaimed), claimantID, now)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	_, err = tx.Exec(ctx,
		fmt.Sprintf(`UPDATE Request SET status = ?, claimantId = ?, claimedAt = ? WHERE id IN (%s)`, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return nil, errors.Wrap(err, "queue: claiming requests")
	}

	claimed, err := q.loadByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "queue: committing claim")
	}
	queueClaimCount.Add(float64(len(claimed)))
	return claimed, nil
}

func (q *Queue) loadByIDs(ctx context.Context, querier types.Querier, ids []int64) ([]types.Request, error) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := querier.Query(ctx,
		fmt.Sprintf(`SELECT id, mappingReference, type, loadType, historyStartDate, historyEndDate, historyTruncate,
			status, requestedAt, claimedAt, completedAt, claimantId, message
		 FROM Request WHERE id IN (%s) ORDER BY requestedAt`, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return nil, errors.Wrap(err, "queue: loading claimed requests")
	}
	defer rows.Close()
	return scanRequests(rows)
}

// Complete implements types.RequestQueue.
func (q *Queue) Complete(ctx context.Context, requestID int64, status types.RequestStatus, message string) error {
	_, err := q.store.Exec(ctx,
		`UPDATE Request SET status = ?, completedAt = ?, message = ? WHERE id = ?`,
		string(status), q.clock.Now(), message, requestID)
	if err != nil {
		return errors.Wrap(err, "queue: completing request")
	}
	queueCompleteCount.WithLabelValues(string(status)).Inc()
	return nil
}

// List implements types.RequestQueue.
func (q *Queue) List(ctx context.Context, filter types.RequestFilter) ([]types.Request, error) {
	query := `SELECT id, mappingReference, type, loadType, historyStartDate, historyEndDate, historyTruncate,
			status, requestedAt, claimedAt, completedAt, claimantId, message
		 FROM Request WHERE 1=1`
	var args []any
	if filter.MappingReference != "" {
		query += ` AND mappingReference = ?`
		args = append(args, filter.MappingReference)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY requestedAt DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := q.store.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "queue: listing requests")
	}
	defer rows.Close()
	return scanRequests(rows)
}

func scanRequests(rows types.Rows) ([]types.Request, error) {
	var out []types.Request
	for rows.Next() {
		var r types.Request
		var reqType, loadType, status string
		var startDate, endDate sql.NullTime
		var truncate sql.NullBool
		var claimedAt, completedAt sql.NullTime
		var claimantID, message sql.NullString

		if err := rows.Scan(&r.ID, &r.MappingReference, &reqType, &loadType, &startDate, &endDate, &truncate,
			&status, &r.RequestedAt, &claimedAt, &completedAt, &claimantID, &message); err != nil {
			return nil, errors.Wrap(err, "queue: scanning request")
		}
		r.Type = types.RequestType(reqType)
		r.Status = types.RequestStatus(status)
		r.Payload.LoadType = types.LoadType(loadType)
		if startDate.Valid {
			r.Payload.History = &types.HistoryLoad{
				StartDate: startDate.Time,
				EndDate:   endDate.Time,
				Truncate:  truncate.Bool,
			}
		}
		if claimedAt.Valid {
			t := claimedAt.Time
			r.ClaimedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		r.ClaimantID = claimantID.String
		r.Message = message.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "queue: iterating requests")
	}
	return out, nil
}
