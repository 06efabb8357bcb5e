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

package testutil

import (
	"context"
	"sync"

	"github.com/dmsflow/core/internal/types"
)

// FakeIDs is a types.IdProvider that counts up per entity name
// independently, in-process, for tests that don't need to exercise the
// real sequence/block-counter strategies.
type FakeIDs struct {
	mu      sync.Mutex
	counter map[string]int64
}

var _ types.IdProvider = (*FakeIDs)(nil)

// NewFakeIDs builds an empty FakeIDs.
func NewFakeIDs() *FakeIDs {
	return &FakeIDs{counter: map[string]int64{}}
}

func (f *FakeIDs) NextID(_ context.Context, entityName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter[entityName]++
	return f.counter[entityName], nil
}

func (f *FakeIDs) NextIDs(ctx context.Context, entityName string, n int) ([]int64, error) {
	out := make([]int64, n)
	for i := range out {
		id, err := f.NextID(ctx, entityName)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
