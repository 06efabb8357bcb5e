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

package scheduler

import (
	"testing"
	"time"

	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

// TestNextRunAtWeeklyScenario covers spec scenario S6: a weekly MON
// 09:30 schedule, evaluated at a Wednesday 10:00 tick, must land on the
// following Monday, not the Wednesday of the tick.
func TestNextRunAtWeeklyScenario(t *testing.T) {
	loc := time.UTC
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc) // a Monday
	sched := types.Schedule{
		Frequency: types.FreqWeekly,
		Frqdd:     "MON",
		Hour:      9,
		Minute:    30,
		StartDate: start,
	}

	from := time.Date(2024, 1, 3, 10, 0, 0, 0, loc) // Wednesday 10:00
	got, err := nextRunAt(sched, from, loc)
	require.NoError(t, err)

	want := time.Date(2024, 1, 8, 9, 30, 0, 0, loc) // following Monday
	require.True(t, got.Equal(want), "got %v want %v", got, want)
	require.True(t, got.After(from))
}

func TestNextRunAtDaily(t *testing.T) {
	loc := time.UTC
	sched := types.Schedule{
		Frequency: types.FreqDaily,
		Hour:      2,
		Minute:    0,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
	}
	from := time.Date(2024, 3, 5, 3, 0, 0, 0, loc)
	got, err := nextRunAt(sched, from, loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 6, 2, 0, 0, 0, loc), got)
}

func TestNextRunAtMonthlyClampsShortMonth(t *testing.T) {
	loc := time.UTC
	sched := types.Schedule{
		Frequency: types.FreqMonthly,
		Frqdd:     "31",
		Hour:      0,
		Minute:    0,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
	}
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, loc)
	got, err := nextRunAt(sched, from, loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, loc), got) // 2024 is a leap year
}

func TestNextRunAtFortnightlyAnchoredOnStartDate(t *testing.T) {
	loc := time.UTC
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc) // Monday
	sched := types.Schedule{
		Frequency: types.FreqFortnightly,
		Frqdd:     "MON",
		Hour:      8,
		Minute:    0,
		StartDate: start,
	}
	// One week after the anchor week: should skip to the week after that.
	from := time.Date(2024, 1, 8, 9, 0, 0, 0, loc)
	got, err := nextRunAt(sched, from, loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 15, 8, 0, 0, 0, loc), got)
}

func TestNextRunAtInterval(t *testing.T) {
	loc := time.UTC
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	sched := types.Schedule{
		Frequency: types.FreqInterval,
		Minute:    15,
		StartDate: start,
	}
	from := start.Add(20 * time.Minute)
	got, err := nextRunAt(sched, from, loc)
	require.NoError(t, err)
	require.Equal(t, start.Add(30*time.Minute), got)
}

func TestNextRunAtRespectsInvariantI5Floor(t *testing.T) {
	loc := time.UTC
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	lastRun := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)
	sched := types.Schedule{
		Frequency: types.FreqDaily,
		Hour:      1,
		Minute:    0,
		StartDate: start,
		LastRunAt: &lastRun,
	}
	// Evaluating "from" earlier than lastRunAt must still clamp nextRunAt
	// to be no earlier than lastRunAt (I5).
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, loc)
	got, err := nextRunAt(sched, from, loc)
	require.NoError(t, err)
	require.False(t, got.Before(lastRun))
}

func TestNextRunAtNoneIsAnError(t *testing.T) {
	sched := types.Schedule{Frequency: types.FreqNone}
	_, err := nextRunAt(sched, time.Now().Add(-time.Hour), time.UTC)
	require.Error(t, err)
}
