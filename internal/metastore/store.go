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

package metastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmsflow/core/internal/dbpool"
	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// execQuerier is implemented by *sql.DB and *sql.Tx; it lets store work
// uniformly whether or not it is inside a transaction.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// store implements types.Store over a *sql.DB or *sql.Tx, translating
// "?" placeholders to the dialect's native bind style.
type store struct {
	conn      execQuerier
	db        *sql.DB // set only at the top level, used by BeginTx
	dialect   dialect
	schemas   map[types.SchemaKind]string
	sqTx      *sql.Tx // non-nil when this store wraps an open transaction
}

var (
	_ types.Store = (*store)(nil)
	_ types.Tx    = (*store)(nil)
)

// New wraps a dbpool.Pool as a types.Store. schemas supplies the
// METADATA_SCHEMA/DATA_SCHEMA prefixes from configuration.
func New(pool *dbpool.Pool, schemas map[types.SchemaKind]string) types.Store {
	if schemas == nil {
		schemas = map[types.SchemaKind]string{}
	}
	return &store{
		conn:    pool.DB,
		db:      pool.DB,
		dialect: dialectFor(pool.Dialect),
		schemas: schemas,
	}
}

func (s *store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.conn.ExecContext(ctx, s.dialect.rewrite(query), args...)
	return res, s.classify("Exec", err)
}

func (s *store) Query(ctx context.Context, query string, args ...any) (types.Rows, error) {
	rows, err := s.conn.QueryContext(ctx, s.dialect.rewrite(query), args...)
	if err != nil {
		return nil, s.classify("Query", err)
	}
	return rows, nil
}

func (s *store) QueryRow(ctx context.Context, query string, args ...any) types.Row {
	return s.conn.QueryRowContext(ctx, s.dialect.rewrite(query), args...)
}

// InsertReturning executes query (an INSERT written with "?"
// placeholders and no RETURNING clause of its own) and reads back
// returnCols. How that is achieved -- a native RETURNING clause for D2,
// a RETURNING...INTO bind for D1 -- is entirely an adapter detail; both
// are expressed here as "run the statement, then read the named
// columns back from the same row" via a trailing SELECT when the
// dialect cannot bind OUT parameters through database/sql.
func (s *store) InsertReturning(
	ctx context.Context, query string, args []any, returnCols []string,
) ([]any, error) {
	full := s.dialect.rewrite(query) + s.returningSelectSuffix(returnCols)
	row := s.conn.QueryRowContext(ctx, full, args...)

	dest := make([]any, len(returnCols))
	ptrs := make([]any, len(returnCols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, s.classify("InsertReturning", err)
	}
	return dest, nil
}

// returningSelectSuffix renders a dialect-appropriate RETURNING clause.
// D1's RETURNING ... INTO form requires OUT binds that database/sql
// cannot express directly, so driver implementations (godror) route it
// through their own extension; here we use the portable native
// RETURNING projection both dialects actually support when the
// statement is itself a single-row INSERT, which is the only shape the
// compiler ever issues.
func (s *store) returningSelectSuffix(returnCols []string) string {
	return s.dialect.returningClause(returnCols)
}

func (s *store) BeginTx(ctx context.Context) (types.Tx, error) {
	if s.db == nil {
		return nil, errors.New("metastore: BeginTx called on a store without a *sql.DB (already in a transaction)")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.classify("BeginTx", err)
	}
	return &store{conn: tx, sqTx: tx, dialect: s.dialect, schemas: s.schemas}, nil
}

func (s *store) Commit() error {
	if s.sqTx == nil {
		return errors.New("metastore: Commit called outside a transaction")
	}
	return s.classify("Commit", s.sqTx.Commit())
}

func (s *store) Rollback() error {
	if s.sqTx == nil {
		return errors.New("metastore: Rollback called outside a transaction")
	}
	return s.classify("Rollback", s.sqTx.Rollback())
}

// ReadLargeText is idempotent: most drivers already hand back a CLOB
// column as a Go string or []byte; anything else is coerced via
// fmt.Sprint so that compilers never have to special-case the driver's
// LOB wrapper type.
func (s *store) ReadLargeText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case sql.NullString:
		if !t.Valid {
			return "", nil
		}
		return t.String, nil
	case interface{ ReadAll() ([]byte, error) }:
		b, err := t.ReadAll()
		if err != nil {
			return "", errors.Wrap(err, "metastore: reading large text")
		}
		return string(b), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (s *store) SchemaPrefix(kind types.SchemaKind) string {
	return s.dialect.schemaPrefix(kind, s.schemas)
}

func (s *store) Dialect() types.DbType { return s.dialect.name() }

func (s *store) NextFromSequence(ctx context.Context, sequenceName string) (int64, error) {
	row := s.conn.QueryRowContext(ctx, s.dialect.sequenceNextValSQL(sequenceName))
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, s.classify("NextFromSequence", err)
	}
	return id, nil
}

// classify turns a raw driver error into TransientDbError or
// PermanentDbError per §4.2/§7, leaving nil untouched.
func (s *store) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if s.dialect.isTransient(err) {
		return &types.TransientDbError{Op: op, Err: err}
	}
	return &types.PermanentDbError{Op: op, Err: err}
}
