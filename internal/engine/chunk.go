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
	"database/sql"
	"fmt"

	"github.com/dmsflow/core/internal/types"
)

// chunkKind identifies which chunking strategy produced a chunk:
// OFFSET/LIMIT (also used for the single sequential chunk) or key-range.
type chunkKind int

const (
	chunkKindOffset chunkKind = iota
	chunkKindKeyRange
)

// chunk is one unit of work: a predicate (and, for the OFFSET fallback,
// an offset/limit) that, appended to the plan's source query, yields a
// disjoint slice of source rows.
type chunk struct {
	kind   chunkKind
	where  string
	args   []any
	offset int
	limit  int
}

// estimateRowCount runs a COUNT(*) wrapper around the source query.
// It never returns an error: a failed estimate just falls back to
// sequential mode, per spec §4.6.1.
func estimateRowCount(ctx context.Context, store types.Store, fromClause, where string, args []any) (n int64, ok bool) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", fromClause)
	if where != "" {
		query += " WHERE " + where
	}
	row := store.QueryRow(ctx, query, args...)
	if err := row.Scan(&n); err != nil {
		return 0, false
	}
	return n, true
}

// keyRange reports the min/max of an integer checkpoint column over
// the source query, for splitting KEY-range chunks. ok is false when
// the column isn't integer-valued (or the query fails), in which case
// the caller falls back to OFFSET/LIMIT.
func keyRange(ctx context.Context, store types.Store, fromClause, where string, args []any, column string) (lo, hi int64, ok bool) {
	query := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", column, column, fromClause)
	if where != "" {
		query += " WHERE " + where
	}
	row := store.QueryRow(ctx, query, args...)
	var loN, hiN sql.NullInt64
	if err := row.Scan(&loN, &hiN); err != nil || !loN.Valid || !hiN.Valid {
		return 0, 0, false
	}
	return loN.Int64, hiN.Int64, true
}

func keyRangeChunks(column string, lo, hi int64, workers int) []chunk {
	if workers < 1 {
		workers = 1
	}
	span := hi - lo + 1
	step := span / int64(workers)
	if step < 1 {
		step = 1
	}
	var chunks []chunk
	for i := 0; i < workers; i++ {
		chunkLo := lo + int64(i)*step
		if chunkLo > hi {
			break
		}
		chunkHi := chunkLo + step
		if i == workers-1 || chunkHi > hi {
			chunkHi = hi + 1
		}
		chunks = append(chunks, chunk{
			kind:  chunkKindKeyRange,
			where: fmt.Sprintf("%s >= ? AND %s < ?", column, column),
			args:  []any{chunkLo, chunkHi},
		})
	}
	return chunks
}

// planChunks builds the chunk list per spec §4.6.1. Parallel mode is
// only selected once the row-count estimate clears minRowsForParallel;
// otherwise the whole source query runs as a single sequential chunk.
// When parallel, KEY-range chunking over the declared checkpoint
// column is preferred; the OFFSET/LIMIT fallback always orders by the
// declared primary key so repeated reads are deterministic.
func planChunks(ctx context.Context, store types.Store, plan types.JobFlowPlan, fromClause, baseWhere string, baseArgs []any, estimate int64, estimateOK bool, blockRows, maxWorkers, minRowsForParallel int) (chunks []chunk, parallel bool) {
	if blockRows <= 0 {
		blockRows = 1000
	}
	parallel = estimateOK && estimate >= int64(minRowsForParallel) && maxWorkers > 1

	if !parallel {
		return []chunk{{kind: chunkKindOffset}}, false
	}

	workers := maxWorkers
	if byBlock := int(estimate/int64(blockRows)) + 1; workers > byBlock {
		workers = byBlock
	}
	if workers < 1 {
		workers = 1
	}

	if resolveCheckpoint(plan.Checkpoint) == types.CheckpointKey && plan.Checkpoint.ColumnName != "" {
		if lo, hi, ok := keyRange(ctx, store, fromClause, baseWhere, baseArgs, plan.Checkpoint.ColumnName); ok {
			return keyRangeChunks(plan.Checkpoint.ColumnName, lo, hi, workers), true
		}
	}

	perChunk := int(estimate)/workers + 1
	for i := 0; i < workers; i++ {
		chunks = append(chunks, chunk{kind: chunkKindOffset, offset: i * perChunk, limit: perChunk})
	}
	return chunks, true
}
