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
	"testing"

	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

func TestResolveCheckpointAuto(t *testing.T) {
	require.Equal(t, types.CheckpointKey, resolveCheckpoint(types.CheckpointSpec{Strategy: types.CheckpointAuto, ColumnName: "updatedAt"}))
	require.Equal(t, types.CheckpointPython, resolveCheckpoint(types.CheckpointSpec{Strategy: types.CheckpointAuto}))
}

func TestResolveCheckpointExplicit(t *testing.T) {
	require.Equal(t, types.CheckpointNone, resolveCheckpoint(types.CheckpointSpec{Strategy: types.CheckpointNone, ColumnName: "updatedAt"}))
}

func TestCheckpointWhereEmptyOnFullReload(t *testing.T) {
	where, args := checkpointWhere("updatedAt", "")
	require.Empty(t, where)
	require.Nil(t, args)
}

func TestCheckpointWhereBuildsResumePredicate(t *testing.T) {
	where, args := checkpointWhere("updatedAt", "100")
	require.Equal(t, "updatedAt > ?", where)
	require.Equal(t, []any{"100"}, args)
}

func TestNextCheckpointValueNumeric(t *testing.T) {
	require.Equal(t, "120", nextCheckpointValue("100", "120"))
	require.Equal(t, "120", nextCheckpointValue("120", "100"))
}

func TestNextCheckpointValueSeedsFromEmpty(t *testing.T) {
	require.Equal(t, "120", nextCheckpointValue("", "120"))
	require.Equal(t, "120", nextCheckpointValue("120", ""))
}

func TestNextCheckpointValueLexicalFallback(t *testing.T) {
	require.Equal(t, "2024-02-01", nextCheckpointValue("2024-01-01", "2024-02-01"))
}

func TestApplyRowSkipShiftsOffsetChunks(t *testing.T) {
	chunks := []chunk{
		{kind: chunkKindOffset, offset: 0, limit: 100},
		{kind: chunkKindOffset, offset: 100, limit: 100},
	}
	out := applyRowSkip(chunks, 50)
	require.Equal(t, 50, out[0].offset)
	require.Equal(t, 150, out[1].offset)
}

func TestApplyRowSkipIgnoresKeyRangeChunks(t *testing.T) {
	chunks := []chunk{{kind: chunkKindKeyRange, where: "id >= ? AND id < ?", args: []any{int64(0), int64(10)}}}
	out := applyRowSkip(chunks, 50)
	require.Equal(t, chunks, out)
}

func TestApplyRowSkipNoopWhenZero(t *testing.T) {
	chunks := []chunk{{kind: chunkKindOffset, offset: 5, limit: 10}}
	out := applyRowSkip(chunks, 0)
	require.Equal(t, 5, out[0].offset)
}
