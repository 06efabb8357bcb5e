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
	"strconv"

	"github.com/dmsflow/core/internal/types"
)

// resolveCheckpoint implements spec §4.6.4's AUTO rule: KEY when a
// checkpoint column is declared (it is documented as required to be
// monotonic and non-null), else PYTHON.
func resolveCheckpoint(spec types.CheckpointSpec) types.CheckpointStrategy {
	if spec.Strategy == types.CheckpointAuto {
		if spec.ColumnName != "" {
			return types.CheckpointKey
		}
		return types.CheckpointPython
	}
	return spec.Strategy
}

// checkpointWhere builds the resume predicate for the KEY strategy.
// last is the empty string on a full reload.
func checkpointWhere(column, last string) (where string, args []any) {
	if column == "" || last == "" {
		return "", nil
	}
	return column + " > ?", []any{last}
}

// applyRowSkip implements the PYTHON checkpoint strategy's resume
// cursor (spec §4.6.4): with no checkpoint column to filter on, a
// resumed run instead discards the first skip source rows, in primary
// key order, before processing any of them. Each OFFSET-kind chunk
// already carves out a disjoint row range by offset; shifting every
// chunk's offset forward by skip has the database discard exactly
// those rows on our behalf instead of scanning and dropping them one
// at a time. A no-op when skip is zero (a full reload).
func applyRowSkip(chunks []chunk, skip int64) []chunk {
	if skip <= 0 {
		return chunks
	}
	for i := range chunks {
		if chunks[i].kind == chunkKindOffset {
			chunks[i].offset += int(skip)
		}
	}
	return chunks
}

// nextCheckpointValue computes max(existing, chunkHigh), keeping
// checkpoints monotonic across chunks that may complete out of order
// (spec §5: "each chunk's checkpoint write publishes
// max(existing, chunkHigh)"). Values compare numerically when both
// parse as numbers, falling back to lexical comparison otherwise (e.g.
// ISO-8601 timestamps, which sort lexically the same as chronologically).
func nextCheckpointValue(existing, chunkHigh string) string {
	if existing == "" {
		return chunkHigh
	}
	if chunkHigh == "" {
		return existing
	}
	ef, eerr := strconv.ParseFloat(existing, 64)
	cf, cerr := strconv.ParseFloat(chunkHigh, 64)
	if eerr == nil && cerr == nil {
		if cf > ef {
			return chunkHigh
		}
		return existing
	}
	if chunkHigh > existing {
		return chunkHigh
	}
	return existing
}
