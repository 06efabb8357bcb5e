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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmsflow/core/internal/testutil"
	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

// fakeQueue is a minimal types.RequestQueue stand-in that lets tests
// script ClaimNext's return value and inspect every Complete/Enqueue
// call without needing FakeStore's SELECT ... JOIN support (queue_test.go
// already covers the real queue.Queue against FakeStore; this package
// only needs to drive the scheduler's own dispatch/sync decisions).
type fakeQueue struct {
	mu        sync.Mutex
	claimed   []types.Request
	completed []completion
	enqueued  []enqueued
}

type completion struct {
	requestID int64
	status    types.RequestStatus
	message   string
}

type enqueued struct {
	reqType    types.RequestType
	mappingRef string
	payload    types.RequestPayload
}

func (q *fakeQueue) Enqueue(ctx context.Context, reqType types.RequestType, mappingRef string, payload types.RequestPayload) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, enqueued{reqType: reqType, mappingRef: mappingRef, payload: payload})
	return int64(len(q.enqueued)), nil
}

func (q *fakeQueue) ClaimNext(ctx context.Context, claimantID string, maxN int) ([]types.Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	claimed := q.claimed
	q.claimed = nil
	return claimed, nil
}

func (q *fakeQueue) Complete(ctx context.Context, requestID int64, status types.RequestStatus, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, completion{requestID: requestID, status: status, message: message})
	return nil
}

func (q *fakeQueue) List(ctx context.Context, filter types.RequestFilter) ([]types.Request, error) {
	return nil, nil
}

// fakeExecutor scripts per-mapping-reference errors and can block inside
// Execute (gated by a channel) to let concurrency tests observe the
// in-flight count before releasing it.
type fakeExecutor struct {
	mu       sync.Mutex
	errFor   map[string]error
	executed []string

	release chan struct{} // if non-nil, Execute blocks until this is closed
}

func (e *fakeExecutor) Execute(ctx context.Context, req types.Request) error {
	e.mu.Lock()
	e.executed = append(e.executed, req.MappingReference)
	err := e.errFor[req.MappingReference]
	e.mu.Unlock()

	if e.release != nil {
		<-e.release
	}
	return err
}

func newTestScheduler(queue types.RequestQueue, progress types.ProgressTracker, executor Executor, cfg Config) *Scheduler {
	store := testutil.NewFakeStore(types.DbTypeD2)
	return New(store, queue, progress, executor, cfg)
}

func TestPollOnceReturnsNilWhenNothingClaimed(t *testing.T) {
	q := &fakeQueue{}
	exec := &fakeExecutor{errFor: map[string]error{}}
	s := newTestScheduler(q, nil, exec, Config{MaxWorkers: 2})

	err := s.pollOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, exec.executed)
	require.Empty(t, q.completed)
}

func TestPollOnceMarksDoneOnSuccess(t *testing.T) {
	q := &fakeQueue{claimed: []types.Request{
		{ID: 1, MappingReference: "m1", Type: types.RequestRun},
		{ID: 2, MappingReference: "m2", Type: types.RequestRun},
	}}
	exec := &fakeExecutor{errFor: map[string]error{}}
	s := newTestScheduler(q, nil, exec, Config{MaxWorkers: 4})

	err := s.pollOnce(context.Background())
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"m1", "m2"}, exec.executed)
	require.Len(t, q.completed, 2)
	for _, c := range q.completed {
		require.Equal(t, types.RequestDone, c.status)
		require.Empty(t, c.message)
	}
}

func TestPollOnceMarksFailedOnExecutorError(t *testing.T) {
	boom := errors.New("source connection refused")
	q := &fakeQueue{claimed: []types.Request{
		{ID: 1, MappingReference: "ok", Type: types.RequestRun},
		{ID: 2, MappingReference: "bad", Type: types.RequestRun},
	}}
	exec := &fakeExecutor{errFor: map[string]error{"bad": boom}}
	s := newTestScheduler(q, nil, exec, Config{MaxWorkers: 4})

	err := s.pollOnce(context.Background())
	require.NoError(t, err) // pollOnce itself never fails on a per-request error

	var okStatus, badStatus completion
	for _, c := range q.completed {
		switch c.requestID {
		case 1:
			okStatus = c
		case 2:
			badStatus = c
		}
	}
	require.Equal(t, types.RequestDone, okStatus.status)
	require.Equal(t, types.RequestFailed, badStatus.status)
	require.Equal(t, boom.Error(), badStatus.message)
}

func TestPollOnceRespectsMaxWorkersConcurrencyLimit(t *testing.T) {
	const claimCount = 6
	const maxWorkers = 2

	claimed := make([]types.Request, claimCount)
	for i := range claimed {
		claimed[i] = types.Request{ID: int64(i + 1), MappingReference: "m", Type: types.RequestRun}
	}
	q := &fakeQueue{claimed: claimed}

	release := make(chan struct{})
	exec := &fakeExecutor{
		errFor:  map[string]error{},
		release: release,
	}
	tracking := &trackingExecutor{inner: exec}
	s := newTestScheduler(q, nil, tracking, Config{MaxWorkers: maxWorkers})

	done := make(chan error, 1)
	go func() { done <- s.pollOnce(context.Background()) }()

	// Give the worker pool time to saturate at MaxWorkers before release.
	time.Sleep(50 * time.Millisecond)
	close(release)

	err := <-done
	require.NoError(t, err)
	require.LessOrEqual(t, tracking.maxConcurrent(), maxWorkers)
	require.Equal(t, claimCount, len(q.completed))
}

// trackingExecutor records the high-water mark of concurrent Execute
// calls so the test above can assert the errgroup.SetLimit(MaxWorkers)
// bound in pollOnce is actually honored, not just configured.
type trackingExecutor struct {
	inner Executor

	mu           sync.Mutex
	current      int
	maxSeenValue int
}

func (t *trackingExecutor) Execute(ctx context.Context, req types.Request) error {
	t.mu.Lock()
	t.current++
	if t.current > t.maxSeenValue {
		t.maxSeenValue = t.current
	}
	t.mu.Unlock()

	err := t.inner.Execute(ctx, req)

	t.mu.Lock()
	t.current--
	t.mu.Unlock()
	return err
}

func (t *trackingExecutor) maxConcurrent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxSeenValue
}

// fakeProgress is a minimal types.ProgressTracker stand-in for
// hasInFlightRun's GetRunLogs dependency.
type fakeProgress struct {
	inFlight        map[string]bool
	reclaimCalls    int
	reclaimStale    []time.Duration
	reclaimMappings []string
}

func (p *fakeProgress) StartRun(ctx context.Context, mappingRef, sessionID, ownerID string) (*types.RunLog, error) {
	return nil, nil
}
func (p *fakeProgress) Heartbeat(ctx context.Context, runLogID int64, rowsRead, rowsWritten, rowsFailed int64) error {
	return nil
}
func (p *fakeProgress) AdvanceCheckpoint(ctx context.Context, runLogID int64, value string) error {
	return nil
}
func (p *fakeProgress) Complete(ctx context.Context, runLogID int64, status types.RunStatus, message string) error {
	return nil
}
func (p *fakeProgress) IsStopRequested(ctx context.Context, mappingRef string) (bool, error) {
	return false, nil
}
func (p *fakeProgress) GetRunLogs(ctx context.Context, filter types.RunLogFilter) ([]types.RunLog, error) {
	if p.inFlight[filter.MappingReference] {
		return []types.RunLog{{MappingReference: filter.MappingReference, Status: types.RunInProgress}}, nil
	}
	return nil, nil
}
func (p *fakeProgress) ReclaimStuck(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	p.reclaimCalls++
	p.reclaimStale = append(p.reclaimStale, staleAfter)
	return p.reclaimMappings, nil
}

func dailySchedule(id int64, jobFlowID int64, hour, minute int, start time.Time) types.Schedule {
	return types.Schedule{
		ID:        id,
		JobFlowID: jobFlowID,
		Frequency: types.FreqDaily,
		Hour:      hour,
		Minute:    minute,
		StartDate: start,
	}
}

func TestSyncOneSkipsFrequencyNone(t *testing.T) {
	q := &fakeQueue{}
	s := newTestScheduler(q, &fakeProgress{}, nil, Config{Location: time.UTC})

	sc := dailySchedule(1, 1, 9, 0, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sc.Frequency = types.FreqNone
	row := scheduleRow{schedule: sc, mappingRef: "m1"}

	err := s.syncOne(context.Background(), row, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, q.enqueued)
}

func TestSyncOneSkipsPastEndDate(t *testing.T) {
	q := &fakeQueue{}
	s := newTestScheduler(q, &fakeProgress{}, nil, Config{Location: time.UTC})

	end := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	sc := dailySchedule(1, 1, 9, 0, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sc.EndDate = &end
	row := scheduleRow{schedule: sc, mappingRef: "m1"}

	err := s.syncOne(context.Background(), row, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, q.enqueued)
}

// TestSyncOnceRunsReclaimStuckJanitor covers the STOP_STUCK_AFTER_SEC
// janitor wiring: syncOnce must invoke ReclaimStuck with the configured
// staleness threshold on every tick, independent of whatever the rest of
// the tick (the Schedule/JobFlow join query) goes on to do.
func TestSyncOnceRunsReclaimStuckJanitor(t *testing.T) {
	q := &fakeQueue{}
	store := testutil.NewFakeStore(types.DbTypeD2)
	progress := &fakeProgress{reclaimMappings: []string{"m1"}}
	s := New(store, q, progress, nil, Config{Location: time.UTC, StopStuckAfter: 20 * time.Minute})

	_ = s.syncOnce(context.Background())

	require.Equal(t, 1, progress.reclaimCalls)
	require.Equal(t, []time.Duration{20 * time.Minute}, progress.reclaimStale)
}

func TestSyncOnePersistsComputedNextRunWithoutEnqueueingWhenNotYetDue(t *testing.T) {
	q := &fakeQueue{}
	store := testutil.NewFakeStore(types.DbTypeD2)
	s := New(store, q, &fakeProgress{}, nil, Config{Location: time.UTC})
	_, err := store.Exec(context.Background(),
		`INSERT INTO Schedule (id, jobFlowId, statusFlag) VALUES (?, ?, ?)`, int64(1), int64(1), "A")
	require.NoError(t, err)

	sc := dailySchedule(1, 1, 9, 0, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	row := scheduleRow{schedule: sc, mappingRef: "m1"}
	now := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC) // before today's 09:00 fire time

	err = s.syncOne(context.Background(), row, now)
	require.NoError(t, err)
	require.Empty(t, q.enqueued)

	rows := store.Rows("Schedule")
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0]["nextRunAt"])
}

func TestSyncOneEnqueuesWhenDue(t *testing.T) {
	q := &fakeQueue{}
	store := testutil.NewFakeStore(types.DbTypeD2)
	s := New(store, q, &fakeProgress{}, nil, Config{Location: time.UTC})
	_, err := store.Exec(context.Background(),
		`INSERT INTO Schedule (id, jobFlowId, statusFlag) VALUES (?, ?, ?)`, int64(1), int64(1), "A")
	require.NoError(t, err)

	sc := dailySchedule(1, 1, 9, 0, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	due := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	sc.NextRunAt = &due
	row := scheduleRow{schedule: sc, mappingRef: "m1"}
	now := time.Date(2026, 1, 31, 9, 5, 0, 0, time.UTC)

	err = s.syncOne(context.Background(), row, now)
	require.NoError(t, err)

	require.Len(t, q.enqueued, 1)
	require.Equal(t, types.RequestRun, q.enqueued[0].reqType)
	require.Equal(t, "m1", q.enqueued[0].mappingRef)
	require.Equal(t, types.LoadRegular, q.enqueued[0].payload.LoadType)

	rows := store.Rows("Schedule")
	require.NotNil(t, rows[0]["lastRunAt"])
	require.NotNil(t, rows[0]["nextRunAt"])
}

func TestSyncOneSkipsWhenRunAlreadyInFlight(t *testing.T) {
	q := &fakeQueue{}
	store := testutil.NewFakeStore(types.DbTypeD2)
	progress := &fakeProgress{inFlight: map[string]bool{"m1": true}}
	s := New(store, q, progress, nil, Config{Location: time.UTC})

	sc := dailySchedule(1, 1, 9, 0, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	due := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	sc.NextRunAt = &due
	row := scheduleRow{schedule: sc, mappingRef: "m1"}
	now := time.Date(2026, 1, 31, 9, 5, 0, 0, time.UTC)

	err := s.syncOne(context.Background(), row, now)
	require.NoError(t, err)
	require.Empty(t, q.enqueued)
}
