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

package main

import (
	"context"
	"time"

	"github.com/dmsflow/core/internal/api"
	"github.com/dmsflow/core/internal/compiler"
	"github.com/dmsflow/core/internal/config"
	"github.com/dmsflow/core/internal/dbpool"
	"github.com/dmsflow/core/internal/engine"
	"github.com/dmsflow/core/internal/idprovider"
	"github.com/dmsflow/core/internal/metastore"
	"github.com/dmsflow/core/internal/progress"
	"github.com/dmsflow/core/internal/queue"
	"github.com/dmsflow/core/internal/scheduler"
	"github.com/dmsflow/core/internal/types"
	log "github.com/sirupsen/logrus"
)

// App is every long-lived object the main loop needs, assembled once at
// startup by InitializeApp (wire-generated in wire_gen.go).
type App struct {
	Facade    *api.Facade
	Scheduler *scheduler.Scheduler
	Logger    *log.Entry
}

func provideLogger() *log.Entry {
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	return log.NewEntry(logger)
}

func provideLocation(cfg *config.CoreConfig) (*time.Location, error) {
	return cfg.Location()
}

// providePool opens the single connection pool this process uses for
// both metadata and target-data objects; SchemaPrefix is what keeps the
// two namespaces apart when they live in one physical database.
func providePool(ctx context.Context, cfg *config.CoreConfig) (*dbpool.Pool, func(), error) {
	opts := []dbpool.Option{dbpool.WithMaxOpenConns(cfg.MaxWorkers + 2)}
	switch types.DbType(cfg.DbType) {
	case types.DbTypeD1:
		return dbpool.OpenD1(ctx, "dmsflow", cfg.DSN, opts...)
	default:
		return dbpool.OpenD2(ctx, "dmsflow", cfg.DSN, opts...)
	}
}

func provideMetadataStore(pool *dbpool.Pool, cfg *config.CoreConfig) types.Store {
	return metastore.New(pool, map[types.SchemaKind]string{
		types.SchemaMetadata: cfg.MetadataSchema,
		types.SchemaData:     cfg.DataSchema,
	})
}

func provideIdProvider(store types.Store, cfg *config.CoreConfig, logger *log.Entry) types.IdProvider {
	var strategy idprovider.Strategy
	switch cfg.IdGenerationMode {
	case "sequence":
		strategy = idprovider.NewSequenceStrategy(store, nil)
	default:
		strategy = idprovider.NewBlockCounterStrategy(store, cfg.IdBlockSize)
	}
	return idprovider.New(strategy, logger)
}

func provideCompiler(store types.Store, ids types.IdProvider, logger *log.Entry) types.Compiler {
	return compiler.New(store, ids, compiler.WithLogger(logger))
}

func provideProgressTracker(store types.Store, ids types.IdProvider, logger *log.Entry) types.ProgressTracker {
	return progress.New(store, ids, progress.WithLogger(logger))
}

func provideQueue(store types.Store, ids types.IdProvider, logger *log.Entry) types.RequestQueue {
	return queue.New(store, ids, queue.WithLogger(logger))
}

func provideEngine(store types.Store, tracker types.ProgressTracker, cfg *config.CoreConfig, logger *log.Entry) *engine.Engine {
	return engine.New(store, tracker, engine.Config{
		MaxWorkers:         cfg.MaxWorkers,
		MinRowsForParallel: cfg.MinRowsForParallel,
		BlockProcessRows:   cfg.BlockProcessRows,
		RetryMax:           cfg.RetryMax,
		RetryBase:          cfg.RetryBase(),
		RetryCap:           cfg.RetryCap(),
		RunTimeout:         cfg.RunTimeout(),
		ClaimantID:         claimantID(),
	}, engine.WithLogger(logger))
}

func provideSchedulerConfig(cfg *config.CoreConfig, loc *time.Location) scheduler.Config {
	return scheduler.Config{
		SyncPeriod:     cfg.SyncPeriod(),
		PollPeriod:     cfg.PollPeriod(),
		MaxWorkers:     cfg.MaxWorkers,
		ClaimBatch:     cfg.MaxWorkers,
		ClaimantID:     claimantID(),
		Location:       loc,
		StopStuckAfter: cfg.StopStuckAfter(),
	}
}

func provideScheduler(
	store types.Store,
	q types.RequestQueue,
	tracker types.ProgressTracker,
	eng *engine.Engine,
	cfg scheduler.Config,
	logger *log.Entry,
) *scheduler.Scheduler {
	return scheduler.New(store, q, tracker, eng, cfg, scheduler.WithLogger(logger))
}

func provideFacade(comp types.Compiler, q types.RequestQueue, tracker types.ProgressTracker, logger *log.Entry) *api.Facade {
	return api.New(comp, q, tracker, logger)
}
