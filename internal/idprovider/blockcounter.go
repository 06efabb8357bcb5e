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

package idprovider

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// block is the cached, not-yet-exhausted range of ids this process owns
// for one entity.
type block struct {
	next int64
	high int64 // exclusive upper bound
}

func (b *block) take(n int) ([]int64, bool) {
	if b.next+int64(n) > b.high {
		return nil, false
	}
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = b.next
		b.next++
	}
	return ids, true
}

// BlockCounterStrategy reserves a block of ids at a time from an
// IdPoolRow using optimistic concurrency (compare-and-set on Version),
// then hands ids out of the cached block without further round trips.
// On process restart the unused tail of a block is discarded:
// monotonicity is preserved, strict contiguity is not.
type BlockCounterStrategy struct {
	store     types.Store
	blockSize int64

	mu     sync.Mutex
	blocks map[string]*block
}

var _ Strategy = (*BlockCounterStrategy)(nil)

// NewBlockCounterStrategy builds a BlockCounterStrategy with the given
// default block size (ID_BLOCK_SIZE).
func NewBlockCounterStrategy(store types.Store, blockSize int) *BlockCounterStrategy {
	if blockSize < 1 {
		blockSize = 1
	}
	return &BlockCounterStrategy{
		store:     store,
		blockSize: int64(blockSize),
		blocks:    make(map[string]*block),
	}
}

func (s *BlockCounterStrategy) reserve(ctx context.Context, entityName string, n int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0, n)
	remaining := n
	for remaining > 0 {
		b, ok := s.blocks[entityName]
		if !ok {
			var err error
			b, err = s.allocateBlock(ctx, entityName)
			if err != nil {
				return nil, err
			}
			s.blocks[entityName] = b
		}

		take := remaining
		if int64(take) > b.high-b.next {
			take = int(b.high - b.next)
		}
		if take == 0 {
			// The cached block is exhausted; drop it and allocate a
			// fresh one on the next loop iteration.
			delete(s.blocks, entityName)
			continue
		}
		ids, ok := b.take(take)
		if !ok {
			delete(s.blocks, entityName)
			continue
		}
		out = append(out, ids...)
		remaining -= len(ids)
	}
	return out, nil
}

// allocateBlock performs the compare-and-set reservation:
//
//	UPDATE IdPool SET currentValue = ?, version = version + 1
//	WHERE entityName = ? AND version = ?
//
// with currentValue set to the value just read plus the row's blockSize,
// retrying on version conflicts from a concurrent process in the same
// deployment.
func (s *BlockCounterStrategy) allocateBlock(ctx context.Context, entityName string) (*block, error) {
	const maxAttempts = 25
	for attempt := 0; attempt < maxAttempts; attempt++ {
		row := s.store.QueryRow(ctx,
			`SELECT currentValue, blockSize, version FROM IdPool WHERE entityName = ?`, entityName)
		var current, size, version int64
		switch err := row.Scan(&current, &size, &version); err {
		case nil:
			// existing counter row
		case sql.ErrNoRows:
			if err := s.insertInitialRow(ctx, entityName); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, errors.Wrapf(err, "idprovider: reading IdPool row for %q", entityName)
		}

		newValue := current + size
		res, err := s.store.Exec(ctx,
			`UPDATE IdPool SET currentValue = ?, version = version + 1 WHERE entityName = ? AND version = ?`,
			newValue, entityName, version)
		if err != nil {
			return nil, errors.Wrapf(err, "idprovider: allocating block for %q", entityName)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "idprovider: checking rows affected")
		}
		if affected == 0 {
			// Lost the compare-and-set race; retry against the new row.
			continue
		}
		return &block{next: current, high: newValue}, nil
	}
	return nil, errors.Errorf("idprovider: could not allocate a block for %q after %d attempts", entityName, maxAttempts)
}

func (s *BlockCounterStrategy) insertInitialRow(ctx context.Context, entityName string) error {
	_, err := s.store.Exec(ctx,
		`INSERT INTO IdPool (entityName, currentValue, blockSize, version) VALUES (?, 0, ?, 0)`,
		entityName, s.blockSize)
	if err != nil && !isDuplicateKey(err) {
		return errors.Wrapf(err, "idprovider: seeding IdPool row for %q", entityName)
	}
	return nil
}

// isDuplicateKey reports whether err represents a unique-constraint
// violation, i.e. another process already seeded the IdPool row
// concurrently. Matched heuristically since the two dialects surface
// this differently (ORA-00001 vs. SQLSTATE 23505).
func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ORA-00001") || strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
