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

// Package engine implements the ExecutionEngine described in spec
// §4.6: it runs one compiled JobFlow to completion, chunking the
// source query, transforming each row, merging it into the target
// table under the declared SCD discipline, and advancing a checkpoint
// as chunks commit. It implements the scheduler.Executor interface so
// a Scheduler can dispatch claimed Requests straight into it.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmsflow/core/internal/engine/formula"
	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config holds the engine's tunables, normally populated from
// internal/config.CoreConfig.
type Config struct {
	MaxWorkers         int
	MinRowsForParallel int
	BlockProcessRows   int
	RetryMax           int
	RetryBase          time.Duration
	RetryCap           time.Duration
	RunTimeout         time.Duration
	ClaimantID         string
}

// Engine implements scheduler.Executor.
type Engine struct {
	store    types.Store
	progress types.ProgressTracker
	clock    types.Clock
	cfg      Config
	logger   *log.Entry
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the default SystemClock, for deterministic tests.
func WithClock(c types.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger overrides the default logger.
func WithLogger(l *log.Entry) Option { return func(e *Engine) { e.logger = l } }

// New builds an Engine over the given metadata/target Store.
func New(store types.Store, progress types.ProgressTracker, cfg Config, opts ...Option) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.BlockProcessRows <= 0 {
		cfg.BlockProcessRows = 1000
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 30 * time.Second
	}
	if cfg.ClaimantID == "" {
		cfg.ClaimantID = "engine"
	}
	e := &Engine{
		store:    store,
		progress: progress,
		clock:    types.SystemClock{},
		cfg:      cfg,
		logger:   log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one claimed Request to completion. It implements the
// Executor interface the scheduler package declares, without engine
// importing scheduler.
func (e *Engine) Execute(ctx context.Context, req types.Request) error {
	if req.Type == types.RequestStop {
		return e.handleStop(ctx, req.MappingReference)
	}

	timer := prometheusTimer(engineRunDurations)
	defer timer()

	if e.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RunTimeout)
		defer cancel()
	}

	sm := newRunStateMachine()
	if err := sm.transition(types.StatePlanning); err != nil {
		return err
	}

	plan, err := e.loadPlan(ctx, req.MappingReference)
	if err != nil {
		engineRunErrors.WithLabelValues(req.MappingReference).Inc()
		return err
	}

	sessionID := fmt.Sprintf("req-%d", req.ID)
	runLog, err := e.progress.StartRun(ctx, req.MappingReference, sessionID, e.cfg.ClaimantID)
	if err != nil {
		engineRunErrors.WithLabelValues(req.MappingReference).Inc()
		return errors.Wrap(err, "engine: starting run")
	}

	result, runErr := e.runOnce(ctx, sm, plan, req, runLog.ID)

	if runErr != nil {
		if runErr == types.ErrStopRequested {
			_ = sm.transition(types.StateStopped)
			_ = e.progress.Complete(ctx, runLog.ID, types.RunFailed, "stopped")
			engineRunsStopped.WithLabelValues(req.MappingReference).Inc()
			return nil
		}
		_ = sm.transition(types.StateFailed)
		_ = e.progress.Complete(ctx, runLog.ID, types.RunFailed, runErr.Error())
		engineRunErrors.WithLabelValues(req.MappingReference).Inc()
		return runErr
	}

	if err := sm.transition(types.StateCompleted); err != nil {
		return err
	}
	msg := ""
	if result.failed > 0 {
		msg = fmt.Sprintf("completed with %d row failures", result.failed)
	}
	if err := e.progress.Complete(ctx, runLog.ID, types.RunCompleted, msg); err != nil {
		return errors.Wrap(err, "engine: completing run")
	}
	engineRunsCompleted.WithLabelValues(req.MappingReference).Inc()
	return nil
}

// handleStop implements spec §4.5's STOP priority: a claimed STOP
// request marks any in-progress RunLog for the mapping failed/"stopped"
// directly, here in the claim path, rather than waiting on a live
// Execute(RUN) loop to notice via IsStopRequested. This is what makes a
// stalled run (one whose chunk loop is no longer polling, or never
// started) reclaimable within a single scheduler poll tick.
func (e *Engine) handleStop(ctx context.Context, mappingRef string) error {
	logs, err := e.progress.GetRunLogs(ctx, types.RunLogFilter{MappingReference: mappingRef, Status: types.RunInProgress})
	if err != nil {
		return errors.Wrap(err, "engine: listing in-progress runs for stop")
	}
	for _, rl := range logs {
		if err := e.progress.Complete(ctx, rl.ID, types.RunFailed, "stopped"); err != nil {
			return errors.Wrapf(err, "engine: marking run log %d stopped", rl.ID)
		}
		engineRunsStopped.WithLabelValues(mappingRef).Inc()
	}
	return nil
}

type runResult struct {
	read, written, failed int64
}

// runOnce implements spec §4.6.1-§4.6.4: chunk the source query,
// transform and merge each chunk, and advance the checkpoint as chunks
// commit. Chunks run sequentially unless the row-count estimate clears
// MinRowsForParallel.
func (e *Engine) runOnce(ctx context.Context, sm *runStateMachine, plan types.JobFlowPlan, req types.Request, runLogID int64) (runResult, error) {
	if err := sm.transition(types.StateRunning); err != nil {
		return runResult{}, err
	}

	pkCols := plan.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		return runResult{}, errors.Errorf("engine: mapping %q has no declared primary key", req.MappingReference)
	}

	if req.Payload.LoadType == types.LoadHistory && req.Payload.History != nil && req.Payload.History.Truncate {
		if err := e.truncateHistoryWindow(ctx, plan, *req.Payload.History); err != nil {
			return runResult{}, err
		}
	}

	checkpointStrategy := resolveCheckpoint(plan.Checkpoint)
	last, err := e.lastCheckpoint(ctx, req, plan.MappingReference)
	if err != nil {
		return runResult{}, err
	}

	baseWhere, baseArgs := "", []any(nil)
	if checkpointStrategy == types.CheckpointKey {
		baseWhere, baseArgs = checkpointWhere(plan.Checkpoint.ColumnName, last)
	}
	if req.Payload.LoadType == types.LoadHistory && req.Payload.History != nil {
		hw, ha := historyWhere(plan, *req.Payload.History)
		baseWhere, baseArgs = andWhere(baseWhere, baseArgs, hw, ha)
	}

	estimate, estimateOK := estimateRowCount(ctx, e.store, plan.SourceFrom, baseWhere, baseArgs)
	chunks, parallel := planChunks(ctx, e.store, plan, plan.SourceFrom, baseWhere, baseArgs, estimate, estimateOK, e.cfg.BlockProcessRows, e.cfg.MaxWorkers, e.cfg.MinRowsForParallel)

	var skipRows int64
	if checkpointStrategy == types.CheckpointPython && last != "" {
		if n, perr := strconv.ParseInt(last, 10, 64); perr == nil && n > 0 {
			skipRows = n
		}
	}
	chunks = applyRowSkip(chunks, skipRows)

	merger := newSCDMerger(e.store, plan, e.cfg.ClaimantID, e.clock)
	retry := NewRetryHandler(e.cfg.RetryMax, e.cfg.RetryBase, e.cfg.RetryCap)

	var (
		mu             sync.Mutex
		result         runResult
		checkpointHigh = last
	)

	runChunk := func(ctx context.Context, ch chunk) error {
		if stop, serr := e.progress.IsStopRequested(ctx, req.MappingReference); serr == nil && stop {
			return types.ErrStopRequested
		}
		read, written, failed, high, err := e.processChunk(ctx, retry, merger, plan, pkCols, baseWhere, baseArgs, ch)
		if err != nil {
			return err
		}

		mu.Lock()
		result.read += read
		result.written += written
		result.failed += failed
		checkpointHigh = nextCheckpointValue(checkpointHigh, high)
		snapshot := result
		cp := checkpointHigh
		if checkpointStrategy == types.CheckpointPython {
			// No checkpoint column to carry a high-water value, so the
			// published checkpoint is the cumulative row count instead:
			// rows already skipped on entry plus rows read so far this
			// run, which the next resume feeds back into skipRows above.
			cp = strconv.FormatInt(skipRows+snapshot.read, 10)
		}
		mu.Unlock()

		if err := e.progress.Heartbeat(ctx, runLogID, snapshot.read, snapshot.written, snapshot.failed); err != nil {
			return err
		}
		if checkpointStrategy != types.CheckpointNone && cp != "" {
			if err := e.progress.AdvanceCheckpoint(ctx, runLogID, cp); err != nil {
				return err
			}
		}
		return nil
	}

	if !parallel || len(chunks) <= 1 {
		for _, ch := range chunks {
			if err := runChunk(ctx, ch); err != nil {
				return result, err
			}
		}
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxWorkers)
	for _, ch := range chunks {
		ch := ch
		g.Go(func() error { return runChunk(gctx, ch) })
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// processChunk fetches one chunk's source rows, transforms them, and
// merges the batch into the target table, all under the RetryHandler
// so a transient failure retries the whole chunk from scratch (the
// chunk's predicate makes that safe to repeat).
func (e *Engine) processChunk(ctx context.Context, retry *RetryHandler, merger *scdMerger, plan types.JobFlowPlan, pkCols []types.JobFlowPlanColumn, baseWhere string, baseArgs []any, ch chunk) (read, written, failed int64, checkpointHigh string, err error) {
	err = retry.Do(ctx, func(ctx context.Context) error {
		read, written, failed, checkpointHigh = 0, 0, 0, ""

		query, args := buildSourceQuery(plan, baseWhere, baseArgs, ch)
		rows, qerr := e.store.Query(ctx, query, args...)
		if qerr != nil {
			return errors.Wrap(qerr, "engine: querying source chunk")
		}
		defer rows.Close()

		cols := make([]string, len(plan.Columns))
		for i, c := range plan.Columns {
			cols[i] = c.TargetColumn
		}

		var batch []transformedRow
		for rows.Next() {
			raw := make([]any, len(cols))
			dest := make([]any, len(cols))
			for i := range dest {
				dest[i] = &raw[i]
			}
			if serr := rows.Scan(dest...); serr != nil {
				return errors.Wrap(serr, "engine: scanning source row")
			}
			read++

			srcRow := make(formula.Row, len(cols))
			for i, name := range cols {
				srcRow[name] = raw[i]
			}
			tr, terr := transformRow(plan.Columns, srcRow)
			if terr != nil {
				failed++
				e.logger.WithError(terr).Warn("engine: dropping row that failed transform")
				continue
			}
			batch = append(batch, tr)
			if plan.Checkpoint.ColumnName != "" {
				if v, ok := tr.values[plan.Checkpoint.ColumnName]; ok {
					checkpointHigh = nextCheckpointValue(checkpointHigh, fmt.Sprintf("%v", v))
				}
			}
		}
		if rerr := rows.Err(); rerr != nil {
			return errors.Wrap(rerr, "engine: iterating source chunk")
		}

		ins, upd, _, mfailed, merr := merger.mergeChunk(ctx, batch, pkCols)
		if merr != nil {
			return errors.Wrap(merr, "engine: merging chunk")
		}
		written = ins + upd
		failed += mfailed
		return nil
	})
	return read, written, failed, checkpointHigh, err
}

// buildSourceQuery assembles the per-chunk SELECT: each column's
// mapLogic (or, absent one, the target column name itself) is the
// source expression, aliased to the target column so the scan below
// can read straight into a formula.Row keyed by target names.
func buildSourceQuery(plan types.JobFlowPlan, baseWhere string, baseArgs []any, ch chunk) (string, []any) {
	selectList := make([]string, len(plan.Columns))
	for i, c := range plan.Columns {
		expr := c.MapLogic
		if expr == "" {
			expr = c.TargetColumn
		}
		selectList[i] = fmt.Sprintf("%s AS %s", expr, c.TargetColumn)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectList, ", "), plan.SourceFrom)

	where, args := baseWhere, append([]any(nil), baseArgs...)
	if ch.where != "" {
		where, args = andWhere(where, args, ch.where, ch.args)
	}
	if where != "" {
		query += " WHERE " + where
	}
	if ch.kind == chunkKindOffset {
		query += " ORDER BY " + pkOrderBy(plan)
		switch {
		case ch.limit > 0:
			query += fmt.Sprintf(" LIMIT %d OFFSET %d", ch.limit, ch.offset)
		case ch.offset > 0:
			// A PYTHON-strategy resume skip on an otherwise single,
			// unbounded sequential chunk: no row cap, just discard the
			// first ch.offset rows.
			query += fmt.Sprintf(" OFFSET %d", ch.offset)
		}
	}
	return query, args
}

func pkOrderBy(plan types.JobFlowPlan) string {
	var names []string
	for _, c := range plan.PrimaryKeyColumns() {
		names = append(names, c.TargetColumn)
	}
	if len(names) == 0 {
		return "1"
	}
	return strings.Join(names, ", ")
}

func andWhere(where string, args []any, extraWhere string, extraArgs []any) (string, []any) {
	if extraWhere == "" {
		return where, args
	}
	if where == "" {
		return extraWhere, extraArgs
	}
	return where + " AND " + extraWhere, append(args, extraArgs...)
}

// historyWhere bounds a history-load run to its declared date range.
// It filters on the checkpoint column by convention: this engine has
// no separate "effective date" field on a Mapping, so the declared
// checkpoint column doubles as the history window's date column.
func historyWhere(plan types.JobFlowPlan, h types.HistoryLoad) (string, []any) {
	col := plan.Checkpoint.ColumnName
	if col == "" {
		return "", nil
	}
	return fmt.Sprintf("%s >= ? AND %s <= ?", col, col), []any{h.StartDate, h.EndDate}
}

// lastCheckpoint resumes from the prior completed run's checkpoint
// value, except for a history load, which always starts fresh: its
// date-range predicate is the bound, not the incremental checkpoint
// (resolved Open Question, see DESIGN.md).
func (e *Engine) lastCheckpoint(ctx context.Context, req types.Request, mappingRef string) (string, error) {
	if req.Payload.LoadType == types.LoadHistory {
		return "", nil
	}
	logs, err := e.progress.GetRunLogs(ctx, types.RunLogFilter{MappingReference: mappingRef, Status: types.RunCompleted, Limit: 1})
	if err != nil {
		return "", errors.Wrap(err, "engine: loading last checkpoint")
	}
	if len(logs) == 0 {
		return "", nil
	}
	return logs[0].CheckpointValue, nil
}

func (e *Engine) truncateHistoryWindow(ctx context.Context, plan types.JobFlowPlan, h types.HistoryLoad) error {
	col := plan.Checkpoint.ColumnName
	if col == "" {
		return nil
	}
	target := e.store.SchemaPrefix(types.SchemaData) + plan.TargetTable
	_, err := e.store.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s >= ? AND %s <= ?", target, col, col),
		h.StartDate, h.EndDate)
	return errors.Wrap(err, "engine: truncating history window")
}

// loadPlan reads the current JobFlow row for a mapping and decodes its
// compiled plan.
func (e *Engine) loadPlan(ctx context.Context, mappingRef string) (types.JobFlowPlan, error) {
	row := e.store.QueryRow(ctx,
		`SELECT dwLogic FROM JobFlow WHERE mappingReference = ? AND currentFlag = 'Y'`, mappingRef)
	var raw any
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return types.JobFlowPlan{}, errors.Errorf("engine: no compiled JobFlow for mapping %q", mappingRef)
		}
		return types.JobFlowPlan{}, errors.Wrap(err, "engine: loading job flow")
	}
	dwLogic, err := e.store.ReadLargeText(raw)
	if err != nil {
		return types.JobFlowPlan{}, errors.Wrap(err, "engine: reading job flow plan text")
	}
	var plan types.JobFlowPlan
	if err := json.Unmarshal([]byte(dwLogic), &plan); err != nil {
		return types.JobFlowPlan{}, errors.Wrap(err, "engine: decoding job flow plan")
	}
	return plan, nil
}
