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

package queue_test

import (
	"context"
	"testing"

	"github.com/dmsflow/core/internal/queue"
	"github.com/dmsflow/core/internal/testutil"
	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAndList(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	q := queue.New(store, testutil.NewFakeIDs())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, types.RequestRun, "mapping_a", types.RequestPayload{LoadType: types.LoadRegular})
	require.NoError(t, err)
	require.NotZero(t, id)

	reqs, err := q.List(ctx, types.RequestFilter{MappingReference: "mapping_a"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, types.RequestRun, reqs[0].Type)
	require.Equal(t, types.RequestNew, reqs[0].Status)
}

func TestClaimNextMarksClaimed(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	q := queue.New(store, testutil.NewFakeIDs())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, types.RequestRun, "mapping_a", types.RequestPayload{LoadType: types.LoadRegular})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, types.RequestRun, "mapping_b", types.RequestPayload{LoadType: types.LoadRegular})
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx, "scheduler-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for _, r := range claimed {
		require.Equal(t, types.RequestClaimed, r.Status)
		require.Equal(t, "scheduler-1", r.ClaimantID)
	}

	// A second claim with nothing left NEW returns no rows.
	claimed, err = q.ClaimNext(ctx, "scheduler-2", 10)
	require.NoError(t, err)
	require.Empty(t, claimed)
}

// TestClaimNextPrioritizesStopOverOlderRun covers spec §4.4's "STOP
// requests are serviced with higher priority": a STOP enqueued after an
// older RUN must still be claimed first when the claim batch can't take
// everything at once.
func TestClaimNextPrioritizesStopOverOlderRun(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	q := queue.New(store, testutil.NewFakeIDs())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, types.RequestRun, "mapping_a", types.RequestPayload{LoadType: types.LoadRegular})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, types.RequestRun, "mapping_b", types.RequestPayload{LoadType: types.LoadRegular})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, types.RequestStop, "mapping_a", types.RequestPayload{})
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx, "scheduler-1", 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	var gotStop bool
	for _, r := range claimed {
		if r.Type == types.RequestStop {
			gotStop = true
		}
	}
	require.True(t, gotStop, "STOP request must be claimed ahead of an older RUN request")
}

func TestCompleteUpdatesStatus(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	q := queue.New(store, testutil.NewFakeIDs())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, types.RequestStop, "mapping_a", types.RequestPayload{})
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, id, types.RequestDone, "stopped cleanly"))

	reqs, err := q.List(ctx, types.RequestFilter{MappingReference: "mapping_a"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, types.RequestDone, reqs[0].Status)
	require.Equal(t, "stopped cleanly", reqs[0].Message)
}

func TestEnqueueHistoryLoadPayload(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	q := queue.New(store, testutil.NewFakeIDs())
	ctx := context.Background()

	payload := types.RequestPayload{
		LoadType: types.LoadHistory,
		History: &types.HistoryLoad{
			Truncate: true,
		},
	}
	_, err := q.Enqueue(ctx, types.RequestRun, "mapping_a", payload)
	require.NoError(t, err)

	reqs, err := q.List(ctx, types.RequestFilter{MappingReference: "mapping_a"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Payload.History)
	require.True(t, reqs[0].Payload.History.Truncate)
}
