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

package engine

import (
	"context"
	"testing"

	"github.com/dmsflow/core/internal/testutil"
	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

func TestPlanChunksSequentialBelowThreshold(t *testing.T) {
	chunks, parallel := planChunks(context.Background(), nil, types.JobFlowPlan{}, "src", "", nil, 50, true, 1000, 4, 1000)
	require.False(t, parallel)
	require.Len(t, chunks, 1)
	require.Equal(t, chunkKindOffset, chunks[0].kind)
	require.Zero(t, chunks[0].limit)
}

func TestPlanChunksSequentialWhenEstimateUnknown(t *testing.T) {
	chunks, parallel := planChunks(context.Background(), nil, types.JobFlowPlan{}, "src", "", nil, 0, false, 1000, 4, 1000)
	require.False(t, parallel)
	require.Len(t, chunks, 1)
}

func TestPlanChunksOffsetFallbackWhenNoKeyCheckpoint(t *testing.T) {
	plan := types.JobFlowPlan{Checkpoint: types.CheckpointSpec{Strategy: types.CheckpointNone}}
	chunks, parallel := planChunks(context.Background(), nil, plan, "src", "", nil, 10000, true, 1000, 4, 1000)
	require.True(t, parallel)
	require.True(t, len(chunks) > 1)
	for _, c := range chunks {
		require.Equal(t, chunkKindOffset, c.kind)
		require.Positive(t, c.limit)
	}
}

func TestPlanChunksPrefersKeyRangeWhenAvailable(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	for i := 1; i <= 100; i++ {
		store.Seed("src", map[string]any{"id": int64(i)})
	}
	plan := types.JobFlowPlan{Checkpoint: types.CheckpointSpec{Strategy: types.CheckpointKey, ColumnName: "id"}}
	chunks, parallel := planChunks(context.Background(), store, plan, "src", "", nil, 10000, true, 1000, 4, 1000)
	require.True(t, parallel)
	for _, c := range chunks {
		require.Equal(t, chunkKindKeyRange, c.kind)
	}
}

func TestKeyRangeChunksCoversWholeSpanExactlyOnce(t *testing.T) {
	chunks := keyRangeChunks("id", 1, 100, 4)
	require.Len(t, chunks, 4)
	require.Equal(t, []any{int64(1), int64(26)}, chunks[0].args)
	last := chunks[len(chunks)-1]
	require.Equal(t, int64(101), last.args[1])
}

func TestEstimateRowCountAgainstFakeStore(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	store.Seed("src", map[string]any{"id": int64(1)})
	store.Seed("src", map[string]any{"id": int64(2)})
	n, ok := estimateRowCount(context.Background(), store, "src", "", nil)
	require.True(t, ok)
	require.Equal(t, int64(2), n)
}

func TestKeyRangeAgainstFakeStore(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	store.Seed("src", map[string]any{"id": int64(5)})
	store.Seed("src", map[string]any{"id": int64(9)})
	lo, hi, ok := keyRange(context.Background(), store, "src", "", nil, "id")
	require.True(t, ok)
	require.Equal(t, int64(5), lo)
	require.Equal(t, int64(9), hi)
}
