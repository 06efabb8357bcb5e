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

// Package scheduler implements the two cooperative loops described in
// spec §4.5: sync (compute next-run times, enqueue RUN requests) and
// poll (claim requests, dispatch to the ExecutionEngine). Both loops
// are driven by robfig/cron schedules, and the poll loop's dispatch
// pool is a bounded errgroup.Group.
package scheduler

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
	cron "github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Executor runs one claimed Request to completion (or until it fails or
// is stopped). Implemented by internal/engine.Engine; declared here,
// not there, so scheduler does not import engine's transform/formula
// internals.
type Executor interface {
	Execute(ctx context.Context, req types.Request) error
}

// Config holds the scheduler's tunables, normally populated from
// internal/config.CoreConfig.
type Config struct {
	SyncPeriod     time.Duration
	PollPeriod     time.Duration
	MaxWorkers     int
	ClaimBatch     int
	ClaimantID     string
	Location       *time.Location
	StopStuckAfter time.Duration
}

// Scheduler implements spec §4.5's sync/poll process.
type Scheduler struct {
	store    types.Store
	queue    types.RequestQueue
	progress types.ProgressTracker
	executor Executor
	clock    types.Clock
	cfg      Config
	logger   *log.Entry

	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// New builds a Scheduler. Config zero-values are replaced with the
// spec's stated defaults (60s sync / 15s poll / UTC).
func New(store types.Store, queue types.RequestQueue, progress types.ProgressTracker, executor Executor, cfg Config, opts ...Option) *Scheduler {
	if cfg.SyncPeriod <= 0 {
		cfg.SyncPeriod = 60 * time.Second
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 15 * time.Second
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.ClaimBatch <= 0 {
		cfg.ClaimBatch = cfg.MaxWorkers
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ClaimantID == "" {
		cfg.ClaimantID = "scheduler"
	}
	if cfg.StopStuckAfter <= 0 {
		cfg.StopStuckAfter = 15 * time.Minute
	}

	s := &Scheduler{
		store:    store,
		queue:    queue,
		progress: progress,
		executor: executor,
		clock:    types.SystemClock{},
		cfg:      cfg,
		logger:   log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithClock overrides the default SystemClock, for deterministic tests.
func WithClock(c types.Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLogger overrides the default logger.
func WithLogger(l *log.Entry) Option { return func(s *Scheduler) { s.logger = l } }

// Run starts both loops on robfig/cron schedules and blocks until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler: already running")
	}
	s.running = true
	s.mu.Unlock()

	c := cron.New(cron.WithLocation(s.cfg.Location))
	_, err := c.AddFunc(everySpec(s.cfg.SyncPeriod), func() {
		if err := s.syncOnce(ctx); err != nil {
			s.logger.WithError(err).Error("scheduler: sync loop iteration failed")
			schedulerSyncErrors.Inc()
		}
	})
	if err != nil {
		return errors.Wrap(err, "scheduler: registering sync schedule")
	}
	_, err = c.AddFunc(everySpec(s.cfg.PollPeriod), func() {
		if err := s.pollOnce(ctx); err != nil {
			s.logger.WithError(err).Error("scheduler: poll loop iteration failed")
			schedulerPollErrors.Inc()
		}
	})
	if err != nil {
		return errors.Wrap(err, "scheduler: registering poll schedule")
	}

	s.cron = c
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return ctx.Err()
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}

// scheduleRow is the flattened sync-loop projection joining Schedule to
// its owning JobFlow's mappingReference.
type scheduleRow struct {
	schedule   types.Schedule
	mappingRef string
}

// syncOnce implements one sync-loop tick: spec §4.5's sync loop, plus
// the STOP_STUCK_AFTER_SEC janitor (spec §4.7) that reclaims any
// RunLog whose heartbeat has gone stale -- a run whose executor died
// or hung without ever observing a STOP.
func (s *Scheduler) syncOnce(ctx context.Context) error {
	timer := prometheusTimer(schedulerSyncDurations)
	defer timer()

	if reclaimed, err := s.progress.ReclaimStuck(ctx, s.cfg.StopStuckAfter); err != nil {
		s.logger.WithError(err).Error("scheduler: reclaiming stuck runs failed")
	} else if len(reclaimed) > 0 {
		s.logger.WithField("mappings", reclaimed).Warn("scheduler: reclaimed stuck runs")
	}

	rows, err := s.store.Query(ctx, `
		SELECT s.id, s.jobFlowId, s.frequencyCode, s.frqdd, s.hour, s.minute,
			s.startDate, s.endDate, s.statusFlag, s.lastRunAt, s.nextRunAt, jf.mappingReference
		FROM Schedule s
		JOIN JobFlow jf ON jf.id = s.jobFlowId AND jf.currentFlag = 'Y'
		JOIN Mapping m ON m.reference = jf.mappingReference AND m.currentFlag = 'Y'
		WHERE s.statusFlag = ? AND m.statusFlag = ?`,
		string(types.StatusActive), string(types.StatusActive))
	if err != nil {
		return errors.Wrap(err, "scheduler: listing active schedules")
	}
	defer rows.Close()

	var schedules []scheduleRow
	for rows.Next() {
		var sc types.Schedule
		var freq, statusFlag string
		var startDate time.Time
		var endDate, lastRunAt, nextRunAt sql.NullTime
		var mappingRef string
		if err := rows.Scan(&sc.ID, &sc.JobFlowID, &freq, &sc.Frqdd, &sc.Hour, &sc.Minute,
			&startDate, &endDate, &statusFlag, &lastRunAt, &nextRunAt, &mappingRef); err != nil {
			return errors.Wrap(err, "scheduler: scanning schedule")
		}
		sc.Frequency = types.FrequencyCode(freq)
		sc.StatusFlag = types.StatusFlag(statusFlag)
		sc.StartDate = startDate
		if endDate.Valid {
			t := endDate.Time
			sc.EndDate = &t
		}
		if lastRunAt.Valid {
			t := lastRunAt.Time
			sc.LastRunAt = &t
		}
		if nextRunAt.Valid {
			t := nextRunAt.Time
			sc.NextRunAt = &t
		}
		schedules = append(schedules, scheduleRow{schedule: sc, mappingRef: mappingRef})
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "scheduler: iterating schedules")
	}

	now := s.clock.Now()
	for _, row := range schedules {
		if err := s.syncOne(ctx, row, now); err != nil {
			s.logger.WithError(err).WithField("scheduleId", row.schedule.ID).Error("scheduler: sync failed for schedule")
		}
	}
	return nil
}

func (s *Scheduler) syncOne(ctx context.Context, row scheduleRow, now time.Time) error {
	sc := row.schedule
	if sc.Frequency == types.FreqNone {
		return nil
	}
	if sc.EndDate != nil && now.After(*sc.EndDate) {
		return nil
	}

	next := sc.NextRunAt
	if next == nil {
		computed, err := nextRunAt(sc, now, s.cfg.Location)
		if err != nil {
			return err
		}
		next = &computed
	}

	if next.After(now) {
		if sc.NextRunAt == nil {
			return s.persistNextRunAt(ctx, sc.ID, *next)
		}
		return nil
	}

	inFlight, err := s.hasInFlightRun(ctx, row.mappingRef)
	if err != nil {
		return err
	}
	if inFlight {
		return nil
	}

	if _, err := s.queue.Enqueue(ctx, types.RequestRun, row.mappingRef, types.RequestPayload{LoadType: types.LoadRegular}); err != nil {
		return errors.Wrap(err, "scheduler: enqueueing scheduled run")
	}
	schedulerEnqueued.WithLabelValues(row.mappingRef).Inc()

	recomputed, err := nextRunAt(sc, now, s.cfg.Location)
	if err != nil {
		return err
	}
	if _, err := s.store.Exec(ctx,
		`UPDATE Schedule SET lastRunAt = ?, nextRunAt = ? WHERE id = ?`,
		now, recomputed, sc.ID); err != nil {
		return errors.Wrap(err, "scheduler: updating schedule after enqueue")
	}
	return nil
}

func (s *Scheduler) persistNextRunAt(ctx context.Context, scheduleID int64, next time.Time) error {
	_, err := s.store.Exec(ctx, `UPDATE Schedule SET nextRunAt = ? WHERE id = ?`, next, scheduleID)
	return errors.Wrap(err, "scheduler: persisting computed nextRunAt")
}

func (s *Scheduler) hasInFlightRun(ctx context.Context, mappingRef string) (bool, error) {
	logs, err := s.progress.GetRunLogs(ctx, types.RunLogFilter{MappingReference: mappingRef, Status: types.RunInProgress, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(logs) > 0, nil
}

// pollOnce implements one poll-loop tick: claim up to ClaimBatch
// requests and dispatch each to the executor through a bounded pool.
func (s *Scheduler) pollOnce(ctx context.Context) error {
	timer := prometheusTimer(schedulerPollDurations)
	defer timer()

	claimed, err := s.queue.ClaimNext(ctx, s.cfg.ClaimantID, s.cfg.ClaimBatch)
	if err != nil {
		return errors.Wrap(err, "scheduler: claiming requests")
	}
	if len(claimed) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)
	for _, req := range claimed {
		req := req
		g.Go(func() error {
			schedulerDispatched.WithLabelValues(req.MappingReference, string(req.Type)).Inc()
			execErr := s.executor.Execute(gctx, req)
			status := types.RequestDone
			msg := ""
			if execErr != nil {
				status = types.RequestFailed
				msg = execErr.Error()
				s.logger.WithError(execErr).WithField("mapping", req.MappingReference).Error("scheduler: request execution failed")
			}
			if err := s.queue.Complete(ctx, req.ID, status, msg); err != nil {
				s.logger.WithError(err).WithField("requestId", req.ID).Error("scheduler: failed to mark request complete")
			}
			return nil
		})
	}
	return g.Wait()
}
