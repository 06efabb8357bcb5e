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
	"sync"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// runStateMachine enforces the legal transitions of spec §4.6.7:
// INIT -> PLANNING -> RUNNING -> {COMPLETED | FAILED | STOPPED}.
type runStateMachine struct {
	mu    sync.Mutex
	state types.RunState
}

var transitions = map[types.RunState]map[types.RunState]bool{
	types.StateInit:     {types.StatePlanning: true},
	types.StatePlanning: {types.StateRunning: true, types.StateFailed: true},
	types.StateRunning: {
		types.StateCompleted: true,
		types.StateFailed:    true,
		types.StateStopped:   true,
	},
}

func newRunStateMachine() *runStateMachine {
	return &runStateMachine{state: types.StateInit}
}

func (m *runStateMachine) transition(to types.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed, ok := transitions[m.state]
	if !ok || !allowed[to] {
		return errors.Errorf("engine: illegal run state transition %s -> %s", m.state, to)
	}
	m.state = to
	return nil
}

func (m *runStateMachine) current() types.RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
