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
	"time"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// weekdays maps the three-letter FRQDD token used by weekly schedules
// onto time.Weekday.
var weekdays = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// nextRunAt computes the next fire time for s, evaluated at "from" in
// loc. FRQMI ("minute") is minute-of-hour for every frequency code except
// ID, where intervalNext reads it as an interval length in minutes; it is
// never a month field.
func nextRunAt(s types.Schedule, from time.Time, loc *time.Location) (time.Time, error) {
	from = from.In(loc)
	var next time.Time

	switch s.Frequency {
	case types.FreqNone:
		return time.Time{}, errors.New("scheduler: frequencyCode NA has no next run")
	case types.FreqInterval:
		next = intervalNext(s, from, loc)
	case types.FreqDaily:
		next = atTimeOnOrAfter(from, loc, s.Hour, s.Minute, 0)
	case types.FreqWeekly:
		wd, ok := weekdays[s.Frqdd]
		if !ok {
			return time.Time{}, errors.Errorf("scheduler: invalid weekly FRQDD %q", s.Frqdd)
		}
		next = nextWeekday(from, loc, wd, s.Hour, s.Minute)
	case types.FreqFortnightly:
		wd, ok := weekdays[s.Frqdd]
		if !ok {
			return time.Time{}, errors.Errorf("scheduler: invalid fortnightly FRQDD %q", s.Frqdd)
		}
		next = nextFortnightly(s, from, loc, wd)
	case types.FreqMonthly:
		next = nextMonthly(s, from, loc, 1)
	case types.FreqHalfYearly:
		next = nextMonthly(s, from, loc, 6)
	case types.FreqYearly:
		next = nextMonthly(s, from, loc, 12)
	default:
		return time.Time{}, errors.Errorf("scheduler: unknown frequencyCode %q", s.Frequency)
	}

	// I5: nextRunAt >= max(lastRunAt, startDate).
	floor := s.StartDate
	if s.LastRunAt != nil && s.LastRunAt.After(floor) {
		floor = *s.LastRunAt
	}
	if next.Before(floor) {
		next = atTimeOnOrAfter(floor, loc, s.Hour, s.Minute, 0)
	}
	return next, nil
}

func atTimeOnOrAfter(from time.Time, loc *time.Location, hour, minute, extraDays int) time.Time {
	candidate := time.Date(from.Year(), from.Month(), from.Day()+extraDays, hour, minute, 0, 0, loc)
	if candidate.Before(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func nextWeekday(from time.Time, loc *time.Location, wd time.Weekday, hour, minute int) time.Time {
	candidate := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, loc)
	for candidate.Weekday() != wd || candidate.Before(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// nextFortnightly anchors the every-other-week cadence on s.StartDate so
// that repeated calls agree on which of the two candidate weeks is "the"
// fortnight, rather than drifting off of "from".
func nextFortnightly(s types.Schedule, from time.Time, loc *time.Location, wd time.Weekday) time.Time {
	anchor := nextWeekday(s.StartDate, loc, wd, s.Hour, s.Minute)
	candidate := anchor
	for candidate.Before(from) {
		candidate = candidate.AddDate(0, 0, 14)
	}
	return candidate
}

// nextMonthly drives MN (every 1 month), HY (every 6), and YR (every 12)
// off the same day-of-month clamping rule: FRQDD in 1..31, clamped to
// the last day of a shorter month.
func nextMonthly(s types.Schedule, from time.Time, loc *time.Location, stepMonths int) time.Time {
	day := 1
	if s.Frqdd != "" {
		for _, r := range s.Frqdd {
			if r < '0' || r > '9' {
				day = 1
				break
			}
		}
		if d, ok := parseDay(s.Frqdd); ok {
			day = d
		}
	}

	candidate := clampedDate(from.Year(), from.Month(), day, s.Hour, s.Minute, loc)
	for candidate.Before(from) {
		candidate = stepForward(candidate, stepMonths, day, loc)
	}
	return candidate
}

func parseDay(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n < 1 || n > 31 {
		return 0, false
	}
	return n, true
}

func clampedDate(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	lastDay := firstOfNext.AddDate(0, 0, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func stepForward(from time.Time, stepMonths, day int, loc *time.Location) time.Time {
	next := from.AddDate(0, stepMonths, 0)
	return clampedDate(next.Year(), next.Month(), day, from.Hour(), from.Minute(), loc)
}

// intervalNext implements the ID (interval) frequency: FRQMI ("minute")
// is read as a fixed interval length in minutes, measured from
// startDate.
func intervalNext(s types.Schedule, from time.Time, loc *time.Location) time.Time {
	intervalMin := s.Minute
	if intervalMin <= 0 {
		intervalMin = 1
	}
	step := time.Duration(intervalMin) * time.Minute
	anchor := s.StartDate.In(loc)
	if from.Before(anchor) {
		return anchor
	}
	elapsed := from.Sub(anchor)
	periods := elapsed / step
	next := anchor.Add((periods + 1) * step)
	return next
}
