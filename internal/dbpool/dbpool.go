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

// Package dbpool creates standardized database connection pools for the
// two dialects the engine supports. It is adapted from the teacher's
// internal/util/stdpool package, which opens a *sql.DB per upstream
// product behind a small Option-configured constructor.
package dbpool

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmsflow/core/internal/types"
	_ "github.com/godror/godror"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

// Pool wraps a *sql.DB with the dialect metadata the rest of the engine
// needs to pick placeholder styles and RETURNING strategies.
type Pool struct {
	*sql.DB
	Dialect types.DbType
	Name    string // for logging/metrics labels
}

// Option configures a Pool at open time.
type Option func(*sql.DB)

// WithMaxOpenConns bounds the pool size; callers size it
// maxWorkers+2 per §5.
func WithMaxOpenConns(n int) Option {
	return func(db *sql.DB) { db.SetMaxOpenConns(n) }
}

// WithConnMaxLifetime bounds how long a pooled connection is reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(db *sql.DB) { db.SetConnMaxLifetime(d) }
}

// OpenD1 opens a pool against an Oracle-flavored (D1) database using the
// godror driver.
func OpenD1(ctx context.Context, name, dsn string, opts ...Option) (*Pool, func(), error) {
	db, err := sql.Open("godror", dsn)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening D1 pool %q", name)
	}
	return finishOpen(ctx, db, name, types.DbTypeD1, opts)
}

// OpenD2 opens a pool against a CockroachDB/PostgreSQL-flavored (D2)
// database, riding database/sql through pgx's stdlib adapter (driver
// name "pgx") so the rest of the engine can treat both dialects as plain
// *sql.DB.
func OpenD2(ctx context.Context, name, dsn string, opts ...Option) (*Pool, func(), error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening D2 pool %q", name)
	}
	return finishOpen(ctx, db, name, types.DbTypeD2, opts)
}

func finishOpen(
	ctx context.Context, db *sql.DB, name string, dialect types.DbType, opts []Option,
) (*Pool, func(), error) {
	for _, opt := range opts {
		opt(db)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrapf(err, "pinging pool %q", name)
	}
	p := &Pool{DB: db, Dialect: dialect, Name: name}
	cleanup := func() { _ = db.Close() }
	return p, cleanup, nil
}
