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
	"fmt"

	"github.com/dmsflow/core/internal/types"
)

// SequenceStrategy delegates every reservation to the backend's atomic
// sequence object, one NEXTVAL per id. Trivially safe under concurrency
// because the database serializes it; the block-counter strategy exists
// only to avoid a round trip per id on backends without one.
type SequenceStrategy struct {
	store       types.Store
	sequenceFor func(entityName string) string
}

var _ Strategy = (*SequenceStrategy)(nil)

// NewSequenceStrategy builds a SequenceStrategy. sequenceFor maps an
// entity name (e.g. "Mapping") to its backing sequence object name
// (e.g. "MAPPING_SEQ"); the default is entityName + "_SEQ".
func NewSequenceStrategy(store types.Store, sequenceFor func(string) string) *SequenceStrategy {
	if sequenceFor == nil {
		sequenceFor = func(entityName string) string { return fmt.Sprintf("%s_SEQ", entityName) }
	}
	return &SequenceStrategy{store: store, sequenceFor: sequenceFor}
}

func (s *SequenceStrategy) reserve(ctx context.Context, entityName string, n int) ([]int64, error) {
	ids := make([]int64, n)
	seq := s.sequenceFor(entityName)
	for i := 0; i < n; i++ {
		id, err := s.store.NextFromSequence(ctx, seq)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
