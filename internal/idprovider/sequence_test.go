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
	"testing"

	"github.com/dmsflow/core/internal/testutil"
	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

func TestSequenceStrategyReservesOneNextvalPerID(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	strategy := NewSequenceStrategy(store, nil)

	ids, err := strategy.reserve(context.Background(), "Mapping", 3)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ids)
}

func TestSequenceStrategyDefaultNameIsEntitySeq(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	strategy := NewSequenceStrategy(store, nil)

	_, err := strategy.reserve(context.Background(), "Mapping", 1)
	require.NoError(t, err)

	// The default sequenceFor names the backing sequence "<entity>_SEQ";
	// a second entity gets its own independent counter.
	ids, err := strategy.reserve(context.Background(), "Request", 2)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, ids)
}

func TestSequenceStrategyUsesProvidedNamer(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	var seenEntity string
	strategy := NewSequenceStrategy(store, func(entity string) string {
		seenEntity = entity
		return "CUSTOM_SEQ"
	})

	_, err := strategy.reserve(context.Background(), "Mapping", 1)
	require.NoError(t, err)
	require.Equal(t, "Mapping", seenEntity)
}

func TestProviderNextIDsRejectsNonPositiveCount(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	p := New(NewSequenceStrategy(store, nil), nil)

	_, err := p.NextIDs(context.Background(), "Mapping", 0)
	require.Error(t, err)
}

func TestProviderNextIDDelegatesToStrategy(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	p := New(NewSequenceStrategy(store, nil), nil)

	first, err := p.NextID(context.Background(), "Mapping")
	require.NoError(t, err)
	second, err := p.NextID(context.Background(), "Mapping")
	require.NoError(t, err)
	require.Equal(t, first+1, second)
}
