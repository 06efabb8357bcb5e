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

// Package config binds the core's configuration surface (spec §6) to
// spf13/pflag, following the Bind/Preflight shape the teacher's
// internal/source/server.Config uses.
package config

import (
	"time"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// CoreConfig is the core's complete runtime configuration.
type CoreConfig struct {
	DbType         string
	DSN            string
	MetadataSchema string
	DataSchema     string

	IdGenerationMode string
	IdBlockSize      int

	SchedulerSyncPeriodSec int
	SchedulerPollPeriodSec int

	MaxWorkers         int
	MinRowsForParallel int
	ChunkSize          int
	BlockProcessRows   int

	RetryMax     int
	RetryBaseMs  int
	RetryCapMs   int

	RunTimeoutSec      int
	StopStuckAfterSec  int

	TZ string
}

// Bind registers every configuration key as a pflag flag, with the
// defaults spec §6 names.
func (c *CoreConfig) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.DbType, "dbType", string(types.DbTypeD2), "metadata/target dialect: D1 (oracle-flavored) or D2 (crdb/postgres-flavored)")
	flags.StringVar(&c.DSN, "dsn", "", "data source name for the dbType driver (godror EZCONNECT string for D1, pgx URL for D2)")
	flags.StringVar(&c.MetadataSchema, "metadataSchema", "", "optional schema prefix for metadata objects")
	flags.StringVar(&c.DataSchema, "dataSchema", "", "optional schema prefix for target data objects")

	flags.StringVar(&c.IdGenerationMode, "idGenerationMode", "block-counter", "id allocation strategy: sequence or block-counter")
	flags.IntVar(&c.IdBlockSize, "idBlockSize", 50, "ids reserved per round trip under the block-counter strategy")

	flags.IntVar(&c.SchedulerSyncPeriodSec, "schedulerSyncPeriodSec", 60, "sync-loop tick period")
	flags.IntVar(&c.SchedulerPollPeriodSec, "schedulerPollPeriodSec", 15, "poll-loop tick period")

	flags.IntVar(&c.MaxWorkers, "maxWorkers", 4, "bound on concurrently executing runs")
	flags.IntVar(&c.MinRowsForParallel, "minRowsForParallel", 10_000, "row-count floor below which a run executes as a single chunk")
	flags.IntVar(&c.ChunkSize, "chunkSize", 50_000, "validated but not read by the engine; chunk sizes come from blockProcessRows and maxWorkers")
	flags.IntVar(&c.BlockProcessRows, "blockProcessRows", 1_000, "estimated rows per parallel chunk, used with maxWorkers to decide how many chunks a run is split into")

	flags.IntVar(&c.RetryMax, "retryMax", 3, "maximum retry attempts for a transient db error")
	flags.IntVar(&c.RetryBaseMs, "retryBaseMs", 500, "base backoff interval in milliseconds")
	flags.IntVar(&c.RetryCapMs, "retryCapMs", 30_000, "backoff interval ceiling in milliseconds")

	flags.IntVar(&c.RunTimeoutSec, "runTimeoutSec", 3600, "hard wall-clock ceiling for one run")
	flags.IntVar(&c.StopStuckAfterSec, "stopStuckAfterSec", 900, "heartbeat staleness after which a run is reclaimed as failed")

	flags.StringVar(&c.TZ, "tz", "UTC", "time zone schedules' hour/minute fields are evaluated in")
}

// Preflight validates the bound configuration, following the teacher's
// convention of one Preflight error per violated invariant.
func (c *CoreConfig) Preflight() error {
	switch types.DbType(c.DbType) {
	case types.DbTypeD1, types.DbTypeD2:
	default:
		return errors.Errorf("dbType must be D1 or D2, got %q", c.DbType)
	}
	if c.DSN == "" {
		return errors.New("dsn is required")
	}

	switch c.IdGenerationMode {
	case "sequence", "block-counter":
	default:
		return errors.Errorf("idGenerationMode must be sequence or block-counter, got %q", c.IdGenerationMode)
	}
	if c.IdBlockSize < 1 {
		return errors.New("idBlockSize must be >= 1")
	}

	if c.SchedulerSyncPeriodSec <= 0 {
		return errors.New("schedulerSyncPeriodSec must be positive")
	}
	if c.SchedulerPollPeriodSec <= 0 {
		return errors.New("schedulerPollPeriodSec must be positive")
	}

	if c.MaxWorkers <= 0 {
		return errors.New("maxWorkers must be positive")
	}
	if c.MinRowsForParallel < 0 {
		return errors.New("minRowsForParallel must be >= 0")
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunkSize must be positive")
	}
	if c.BlockProcessRows <= 0 {
		return errors.New("blockProcessRows must be positive")
	}

	if c.RetryMax < 0 {
		return errors.New("retryMax must be >= 0")
	}
	if c.RetryBaseMs <= 0 {
		return errors.New("retryBaseMs must be positive")
	}
	if c.RetryCapMs < c.RetryBaseMs {
		return errors.New("retryCapMs must be >= retryBaseMs")
	}

	if c.RunTimeoutSec <= 0 {
		return errors.New("runTimeoutSec must be positive")
	}
	if c.StopStuckAfterSec <= 0 {
		return errors.New("stopStuckAfterSec must be positive")
	}

	if _, err := c.Location(); err != nil {
		return errors.Wrapf(err, "tz %q is not a valid IANA time zone", c.TZ)
	}
	return nil
}

// Location resolves TZ into a *time.Location.
func (c *CoreConfig) Location() (*time.Location, error) {
	if c.TZ == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.TZ)
}

// SyncPeriod returns SchedulerSyncPeriodSec as a time.Duration.
func (c *CoreConfig) SyncPeriod() time.Duration {
	return time.Duration(c.SchedulerSyncPeriodSec) * time.Second
}

// PollPeriod returns SchedulerPollPeriodSec as a time.Duration.
func (c *CoreConfig) PollPeriod() time.Duration {
	return time.Duration(c.SchedulerPollPeriodSec) * time.Second
}

// RunTimeout returns RunTimeoutSec as a time.Duration.
func (c *CoreConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSec) * time.Second
}

// StopStuckAfter returns StopStuckAfterSec as a time.Duration.
func (c *CoreConfig) StopStuckAfter() time.Duration {
	return time.Duration(c.StopStuckAfterSec) * time.Second
}

// RetryBase returns RetryBaseMs as a time.Duration.
func (c *CoreConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

// RetryCap returns RetryCapMs as a time.Duration.
func (c *CoreConfig) RetryCap() time.Duration {
	return time.Duration(c.RetryCapMs) * time.Millisecond
}
