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

// Package testutil provides an in-memory stand-in for types.Store, used
// by package tests across the module so they can run without a live
// Oracle or CockroachDB/PostgreSQL connection. It understands only the
// small, fixed vocabulary of SQL shapes this module's own packages
// generate (a handful of INSERT/UPDATE/SELECT/DELETE templates with "?"
// placeholders) -- it is not a general SQL engine.
package testutil

import (
	"context"
	"database/sql"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// FakeStore is a types.Store backed by in-process maps. Safe for
// concurrent use.
type FakeStore struct {
	mu        sync.Mutex
	tables    map[string][]map[string]any
	sequences map[string]int64
	dialect   types.DbType
}

var (
	_ types.Store = (*FakeStore)(nil)
	_ types.Tx    = (*FakeStore)(nil)
)

// NewFakeStore builds an empty FakeStore. dialect only affects what
// Dialect() reports back to callers that branch on it.
func NewFakeStore(dialect types.DbType) *FakeStore {
	return &FakeStore{
		tables:    map[string][]map[string]any{},
		sequences: map[string]int64{},
		dialect:   dialect,
	}
}

// Seed inserts rows directly into a table, bypassing Exec, for test
// setup.
func (f *FakeStore) Seed(table string, row map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], cloneRow(row))
}

// Rows returns a snapshot of every row currently in table, for
// assertions.
func (f *FakeStore) Rows(table string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.tables[table]))
	for i, r := range f.tables[table] {
		out[i] = cloneRow(r)
	}
	return out
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

var (
	reInsert = regexp.MustCompile(`(?is)^\s*INSERT INTO\s+(\w+)\s*\(([^)]*)\)\s*VALUES\s*\(([^)]*)\)`)
	reUpdate = regexp.MustCompile(`(?is)^\s*UPDATE\s+(\w+)\s+SET\s+(.*?)(?:\s+WHERE\s+(.*))?$`)
	reSelect = regexp.MustCompile(`(?is)^\s*SELECT\s+(.*?)\s+FROM\s+(\w+)(?:\s+WHERE\s+(.*?))?(?:\s+ORDER BY\s+([\w, ]+?)(\s+DESC)?)?(?:\s+LIMIT\s+(\d+))?(?:\s+OFFSET\s+(\d+))?(?:\s+FOR UPDATE SKIP LOCKED)?\s*$`)
	reDelete = regexp.MustCompile(`(?is)^\s*DELETE FROM\s+(\w+)(?:\s+WHERE\s+(.*))?$`)
	reMinMax = regexp.MustCompile(`(?is)^\s*SELECT\s+MIN\((\w+)\)\s*,\s*MAX\((\w+)\)\s+FROM\s+(\w+)(?:\s+WHERE\s+(.*))?$`)
	// reClaimOrder matches queue.ClaimNext's "STOP-first" claim query.
	// Its ORDER BY is a CASE expression reSelect's plain-column grammar
	// doesn't parse, so it gets its own special case, the same way
	// reMinMax carves out an aggregate shape reSelect doesn't cover.
	reClaimOrder = regexp.MustCompile(`(?is)^\s*SELECT\s+id\s+FROM\s+(\w+)\s+WHERE\s+(.*?)\s+ORDER BY\s+CASE WHEN (\w+) = \?\s+THEN 0 ELSE 1 END,\s*(\w+)\s+LIMIT\s+(\d+)\s+FOR UPDATE SKIP LOCKED\s*$`)
)

// argCursor resolves a "?" token to the next positional arg, or a
// literal token (quoted string, NULL, number) to itself, tracking how
// many positional args have been consumed so callers can slice the
// remainder off for a trailing WHERE clause.
type argCursor struct {
	args []any
	pos  int
}

func (c *argCursor) token(tok string) (any, error) {
	tok = strings.TrimSpace(tok)
	if tok == "?" {
		if c.pos >= len(c.args) {
			return nil, errors.Errorf("testutil: not enough args for query")
		}
		v := derefArg(c.args[c.pos])
		c.pos++
		return v, nil
	}
	if strings.EqualFold(tok, "NULL") {
		return nil, nil
	}
	return unquote(tok), nil
}

// derefArg mirrors database/sql's own argument conversion for the typed
// nullable pointers this module's packages pass for optional columns
// (*int64, *string, ...): a nil pointer becomes a true nil interface, a
// non-nil pointer is dereferenced to its pointee value. Without this, a
// *int64 argument would be stored as the pointer itself rather than the
// int64 it points to, breaking later scans into sql.NullInt64.
func derefArg(v any) any {
	switch p := v.(type) {
	case *int64:
		if p == nil {
			return nil
		}
		return *p
	case *int:
		if p == nil {
			return nil
		}
		return *p
	case *string:
		if p == nil {
			return nil
		}
		return *p
	case *bool:
		if p == nil {
			return nil
		}
		return *p
	case *time.Time:
		if p == nil {
			return nil
		}
		return *p
	default:
		return v
	}
}

func (c *argCursor) remaining() []any { return c.args[c.pos:] }

func (f *FakeStore) Exec(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	query = strings.TrimSpace(query)

	if m := reInsert.FindStringSubmatch(query); m != nil {
		table, cols, valueToks := m[1], splitCSV(m[2]), splitCSV(m[3])
		cur := &argCursor{args: args}
		row := map[string]any{}
		for i, c := range cols {
			if i >= len(valueToks) {
				break
			}
			v, err := cur.token(valueToks[i])
			if err != nil {
				return nil, err
			}
			row[c] = v
		}
		f.tables[table] = append(f.tables[table], row)
		return driverResult{rowsAffected: 1}, nil
	}

	if m := reUpdate.FindStringSubmatch(query); m != nil {
		table, setClause, whereClause := m[1], m[2], m[3]
		assigns := splitCSV(setClause)
		cur := &argCursor{args: args}
		type assignment struct {
			col   string
			incr  *incrExpr
			value any
		}
		sets := make([]assignment, 0, len(assigns))
		for _, a := range assigns {
			parts := strings.SplitN(a, "=", 2)
			col := strings.TrimSpace(parts[0])
			rhs := strings.TrimSpace(parts[1])
			if ix := parseIncrExpr(rhs); ix != nil {
				sets = append(sets, assignment{col: col, incr: ix})
				continue
			}
			v, err := cur.token(rhs)
			if err != nil {
				return nil, err
			}
			sets = append(sets, assignment{col: col, value: v})
		}
		matcher, err := buildMatcher(whereClause, cur.remaining())
		if err != nil {
			return nil, err
		}
		n := 0
		for _, row := range f.tables[table] {
			if matcher(row) {
				for _, a := range sets {
					if a.incr != nil {
						row[a.col] = a.incr.apply(row[a.incr.col])
					} else {
						row[a.col] = a.value
					}
				}
				n++
			}
		}
		return driverResult{rowsAffected: int64(n)}, nil
	}

	if m := reDelete.FindStringSubmatch(query); m != nil {
		table, whereClause := m[1], m[2]
		matcher, err := buildMatcher(whereClause, args)
		if err != nil {
			return nil, err
		}
		var kept []map[string]any
		n := 0
		for _, row := range f.tables[table] {
			if matcher(row) {
				n++
				continue
			}
			kept = append(kept, row)
		}
		f.tables[table] = kept
		return driverResult{rowsAffected: int64(n)}, nil
	}

	return nil, errors.Errorf("testutil: FakeStore.Exec cannot parse query: %s", query)
}

func (f *FakeStore) Query(ctx context.Context, query string, args ...any) (types.Rows, error) {
	rows, err := f.selectRows(query, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows}, nil
}

func (f *FakeStore) QueryRow(ctx context.Context, query string, args ...any) types.Row {
	rows, err := f.selectRows(query, args)
	if err != nil {
		return fakeRow{err: err}
	}
	if len(rows.values) == 0 {
		return fakeRow{err: sql.ErrNoRows}
	}
	return fakeRow{cols: rows.cols, vals: rows.values[0]}
}

type selected struct {
	cols   []string
	values [][]any
}

func (f *FakeStore) selectRows(query string, args []any) (*selected, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	query = strings.TrimSpace(query)

	if strings.Contains(strings.ToUpper(query), "COUNT(*)") {
		m := regexp.MustCompile(`(?is)FROM\s+(\w+)(?:\s+WHERE\s+(.*))?$`).FindStringSubmatch(query)
		if m == nil {
			return nil, errors.Errorf("testutil: cannot parse COUNT query: %s", query)
		}
		matcher, err := buildMatcher(m[2], args)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, row := range f.tables[m[1]] {
			if matcher(row) {
				n++
			}
		}
		return &selected{cols: []string{"count"}, values: [][]any{{n}}}, nil
	}

	// keyRange's MIN(col)/MAX(col) pair is the one aggregate shape this
	// module's own queries generate, so it gets its own special case
	// rather than teaching reSelect to evaluate arbitrary aggregates.
	if m := reMinMax.FindStringSubmatch(query); m != nil {
		col, table, whereClause := m[1], m[3], m[4]
		matcher, err := buildMatcher(whereClause, args)
		if err != nil {
			return nil, err
		}
		var lo, hi any
		for _, row := range f.tables[table] {
			if !matcher(row) {
				continue
			}
			v := row[col]
			if lo == nil || lessAny(v, lo) {
				lo = v
			}
			if hi == nil || lessAny(hi, v) {
				hi = v
			}
		}
		return &selected{cols: []string{"min", "max"}, values: [][]any{{lo, hi}}}, nil
	}

	// ClaimNext's STOP-first claim query: its ORDER BY's trailing "?" (the
	// priority value) is bound after the WHERE clause's own placeholders,
	// so it's the last element of args.
	if m := reClaimOrder.FindStringSubmatch(query); m != nil {
		table, whereClause, caseCol, orderCol, limitStr := m[1], m[2], m[3], m[4], m[5]
		whereArgs, priorityArg := args, any(nil)
		if len(args) > 0 {
			whereArgs = args[:len(args)-1]
			priorityArg = derefArg(args[len(args)-1])
		}
		matcher, err := buildMatcher(whereClause, whereArgs)
		if err != nil {
			return nil, err
		}
		var rows []map[string]any
		for _, row := range f.tables[table] {
			if matcher(row) {
				rows = append(rows, row)
			}
		}
		// Stable-sort by requestedAt first, then by STOP-priority, so
		// the priority pass only reorders across, never within, the
		// requestedAt ordering -- the same least-significant-first
		// trick reSelect's own multi-column ORDER BY uses.
		sort.SliceStable(rows, func(a, b int) bool { return lessAny(rows[a][orderCol], rows[b][orderCol]) })
		sort.SliceStable(rows, func(a, b int) bool {
			pa, pb := 1, 1
			if rows[a][caseCol] == priorityArg {
				pa = 0
			}
			if rows[b][caseCol] == priorityArg {
				pb = 0
			}
			return pa < pb
		})
		if n, _ := strconv.Atoi(limitStr); n > 0 && n < len(rows) {
			rows = rows[:n]
		}
		values := make([][]any, len(rows))
		for i, row := range rows {
			values[i] = []any{row["id"]}
		}
		return &selected{cols: []string{"id"}, values: values}, nil
	}

	m := reSelect.FindStringSubmatch(query)
	if m == nil {
		return nil, errors.Errorf("testutil: FakeStore cannot parse SELECT: %s", query)
	}
	colList, table, whereClause, orderBy, desc, limitStr, offsetStr := m[1], m[2], m[3], m[4], m[5], m[6], m[7]
	cols := splitCSV(colList)
	for i, c := range cols {
		cols[i] = sourceColumn(c)
	}

	matcher, err := buildMatcher(whereClause, args)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for _, row := range f.tables[table] {
		if matcher(row) {
			rows = append(rows, row)
		}
	}
	if orderBy != "" {
		// Stable-sort once per key, least significant first, so the
		// final pass (the first declared ORDER BY column) dominates --
		// the standard trick for emulating multi-column ORDER BY with
		// repeated single-key stable sorts.
		orderCols := splitCSV(orderBy)
		for i := len(orderCols) - 1; i >= 0; i-- {
			col := strings.TrimSpace(orderCols[i])
			sort.SliceStable(rows, func(a, b int) bool {
				less := lessAny(rows[a][col], rows[b][col])
				if desc != "" {
					return !less
				}
				return less
			})
		}
	}
	if offsetStr != "" {
		n, _ := strconv.Atoi(offsetStr)
		if n >= len(rows) {
			rows = nil
		} else {
			rows = rows[n:]
		}
	}
	if limitStr != "" {
		n, _ := strconv.Atoi(limitStr)
		if n < len(rows) {
			rows = rows[:n]
		}
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(cols))
		for j, c := range cols {
			if c == "*" {
				continue
			}
			vals[j] = row[c]
		}
		values[i] = vals
	}
	return &selected{cols: cols, values: values}, nil
}

func lessAny(a, b any) bool {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		return av < bv
	case int:
		bv, _ := b.(int)
		return av < bv
	case string:
		bv, _ := b.(string)
		return av < bv
	default:
		return false
	}
}

func (f *FakeStore) InsertReturning(ctx context.Context, query string, args []any, returnCols []string) ([]any, error) {
	m := reInsert.FindStringSubmatch(strings.TrimSpace(query))
	if m == nil {
		return nil, errors.Errorf("testutil: InsertReturning cannot parse query: %s", query)
	}
	table := m[1]
	if _, err := f.Exec(ctx, query, args...); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.tables[table][len(f.tables[table])-1]
	out := make([]any, len(returnCols))
	for i, c := range returnCols {
		out[i] = row[c]
	}
	return out, nil
}

func (f *FakeStore) BeginTx(ctx context.Context) (types.Tx, error) { return f, nil }
func (f *FakeStore) Commit() error                                 { return nil }
func (f *FakeStore) Rollback() error                                { return nil }

func (f *FakeStore) ReadLargeText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", errors.Errorf("testutil: unsupported large text value %T", v)
	}
}

func (f *FakeStore) SchemaPrefix(types.SchemaKind) string { return "" }
func (f *FakeStore) Dialect() types.DbType                { return f.dialect }

func (f *FakeStore) NextFromSequence(ctx context.Context, sequenceName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequences[sequenceName]++
	return f.sequences[sequenceName], nil
}

// fakeRows/fakeRow implement types.Rows/types.Row by scanning from
// pre-materialized [][]any, mirroring how *sql.Rows/*sql.Row behave.
type fakeRows struct {
	rows *selected
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(dest, r.rows.values[r.pos-1])
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

type fakeRow struct {
	cols []string
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(dest, r.vals)
}

func scanInto(dest []any, src []any) error {
	if len(dest) != len(src) {
		return errors.Errorf("testutil: scan column count mismatch: dest=%d src=%d", len(dest), len(src))
	}
	for i, d := range dest {
		if err := assign(d, src[i]); err != nil {
			return err
		}
	}
	return nil
}

// assign copies src into the pointer dest, coping with the handful of
// sql.Null* wrapper types this module's packages scan into.
func assign(dest, src any) error {
	switch d := dest.(type) {
	case *int64:
		*d, _ = toInt64(src)
	case *int:
		n, _ := toInt64(src)
		*d = int(n)
	case *string:
		if src != nil {
			*d, _ = src.(string)
		}
	case *bool:
		if src != nil {
			*d, _ = src.(bool)
		}
	case *any:
		*d = src
	case *time.Time:
		if t, ok := src.(time.Time); ok {
			*d = t
		}
	case *sql.NullString:
		switch s := src.(type) {
		case string:
			*d = sql.NullString{String: s, Valid: true}
		case sql.NullString:
			*d = s
		default:
			*d = sql.NullString{}
		}
	case *sql.NullBool:
		switch b := src.(type) {
		case bool:
			*d = sql.NullBool{Bool: b, Valid: true}
		case sql.NullBool:
			*d = b
		default:
			*d = sql.NullBool{}
		}
	case *sql.NullInt64:
		switch n := src.(type) {
		case sql.NullInt64:
			*d = n
		default:
			if v, ok := toInt64(src); ok {
				*d = sql.NullInt64{Int64: v, Valid: true}
			} else {
				*d = sql.NullInt64{}
			}
		}
	case *sql.NullTime:
		switch t := src.(type) {
		case time.Time:
			*d = sql.NullTime{Time: t, Valid: true}
		case sql.NullTime:
			*d = t
		default:
			*d = sql.NullTime{}
		}
	case interface{ Scan(any) error }:
		return d.Scan(src)
	default:
		return errors.Errorf("testutil: unsupported scan destination %T", dest)
	}
	return nil
}

// incrExpr is the one non-literal SET right-hand side this module's own
// code generates: a compare-and-set counter bump (`version = version + 1`).
// Anything fancier than "col +/- literal" stays out of scope for the fixed
// vocabulary this fake understands.
type incrExpr struct {
	col   string
	sign  int64
	delta int64
}

func (ix incrExpr) apply(cur any) int64 {
	n, _ := toInt64(cur)
	return n + ix.sign*ix.delta
}

var reIncrExpr = regexp.MustCompile(`^(\w+)\s*([+-])\s*(\d+)$`)

func parseIncrExpr(rhs string) *incrExpr {
	m := reIncrExpr.FindStringSubmatch(rhs)
	if m == nil {
		return nil
	}
	delta, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return nil
	}
	sign := int64(1)
	if m[2] == "-" {
		sign = -1
	}
	return &incrExpr{col: m[1], sign: sign, delta: delta}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func lastSegment(col string) string {
	col = strings.TrimSpace(col)
	if dot := strings.LastIndex(col, "."); dot >= 0 {
		col = col[dot+1:]
	}
	return col
}

// reAsAlias strips a trailing "AS alias" from a SELECT list entry, the
// way the engine package's per-column source queries always alias
// their map-logic expression to the target column name. Only a bare
// column reference on the left (optionally table-qualified) resolves
// to a row key; a computed expression (e.g. "price * qty AS total")
// isn't evaluated here, the same scope limit reSelect already has for
// WHERE clauses.
var reAsAlias = regexp.MustCompile(`(?i)^(.*?)\s+AS\s+\S+$`)

func sourceColumn(tok string) string {
	tok = strings.TrimSpace(tok)
	if m := reAsAlias.FindStringSubmatch(tok); m != nil {
		tok = strings.TrimSpace(m[1])
	}
	return lastSegment(tok)
}

// buildMatcher parses a WHERE clause made of "col = ?", "col = 'LIT'",
// "col IN (?,?,...)", and "1=1" fragments joined by AND. "?" tokens
// consume args left to right; quoted or bare literals compare directly
// against the literal text, matching how this module's own queries mix
// bound columns with fixed currentFlag='Y'-style predicates.
func buildMatcher(whereClause string, args []any) (func(map[string]any) bool, error) {
	whereClause = strings.TrimSpace(whereClause)
	if whereClause == "" {
		return func(map[string]any) bool { return true }, nil
	}
	clauses := splitAnd(whereClause)
	cursor := 0

	type resolved struct {
		col     string
		vals    []any
		isNull  bool
		notNull bool
	}
	var resolvedConds []resolved
	nextArg := func() (any, error) {
		if cursor >= len(args) {
			return nil, errors.Errorf("testutil: WHERE clause expects more args than provided")
		}
		v := args[cursor]
		cursor++
		return v, nil
	}
	literalOrArg := func(token string) (any, error) {
		token = strings.TrimSpace(token)
		if token == "?" {
			return nextArg()
		}
		return unquote(token), nil
	}

	for _, c := range clauses {
		c = strings.TrimSpace(c)
		if c == "1=1" || c == "" {
			continue
		}
		upper := strings.ToUpper(c)
		if strings.HasSuffix(upper, " IS NOT NULL") {
			col := strings.TrimSpace(c[:len(c)-len(" IS NOT NULL")])
			resolvedConds = append(resolvedConds, resolved{col: col, notNull: true})
			continue
		}
		if strings.HasSuffix(upper, " IS NULL") {
			col := strings.TrimSpace(c[:len(c)-len(" IS NULL")])
			resolvedConds = append(resolvedConds, resolved{col: col, isNull: true})
			continue
		}
		if idx := strings.Index(strings.ToUpper(c), " IN ("); idx >= 0 {
			col := strings.TrimSpace(c[:idx])
			inner := c[idx+len(" IN (") : strings.LastIndex(c, ")")]
			var vals []any
			for _, tok := range splitCSV(inner) {
				v, err := literalOrArg(tok)
				if err != nil {
					return nil, err
				}
				vals = append(vals, v)
			}
			resolvedConds = append(resolvedConds, resolved{col: col, vals: vals})
			continue
		}
		parts := strings.SplitN(c, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("testutil: cannot parse WHERE fragment: %s", c)
		}
		v, err := literalOrArg(parts[1])
		if err != nil {
			return nil, err
		}
		resolvedConds = append(resolvedConds, resolved{col: strings.TrimSpace(parts[0]), vals: []any{v}})
	}

	return func(row map[string]any) bool {
		for _, rc := range resolvedConds {
			actual := row[rc.col]
			if rc.isNull {
				if actual != nil {
					return false
				}
				continue
			}
			if rc.notNull {
				if actual == nil {
					return false
				}
				continue
			}
			match := false
			for _, v := range rc.vals {
				if equalValue(actual, v) {
					match = true
					break
				}
			}
			if !match {
				return false
			}
		}
		return true
	}, nil
}

// unquote strips a single-quoted SQL string literal, or returns token
// unchanged for bare literals like numbers or NULL.
func unquote(token string) string {
	if len(token) >= 2 && token[0] == '\'' && token[len(token)-1] == '\'' {
		return token[1 : len(token)-1]
	}
	return token
}

func splitAnd(s string) []string {
	re := regexp.MustCompile(`(?i)\s+AND\s+`)
	return re.Split(s, -1)
}

func equalValue(a, b any) bool {
	an, aok := toInt64(a)
	bn, bok := toInt64(b)
	if aok && bok {
		return an == bn
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}

type driverResult struct {
	rowsAffected int64
}

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }
