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

// Package metastore is the MetadataStore adapter described in spec §4.2:
// a thin, dialect-aware layer over the metadata RDBMS that hides
// placeholder style, RETURNING semantics, and current-timestamp function
// differences behind one fixed Querier/Store surface. The same adapter
// is reused for target data databases.
package metastore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmsflow/core/internal/types"
)

// dialect captures the handful of things that differ between D1 and D2.
// Callers never see this type directly; it is consulted internally by
// Store to translate a caller-supplied query template (using "?"
// placeholders) into the dialect's native form.
type dialect interface {
	name() types.DbType
	// rewrite converts a query written with "?" placeholders into the
	// dialect's native placeholder style, returning the rewritten query.
	rewrite(query string) string
	nowFunc() string
	// returningClause appends whatever is needed to read back returnCols
	// after an INSERT, or "" if the dialect requires a follow-up SELECT.
	returningClause(returnCols []string) string
	schemaPrefix(kind types.SchemaKind, configured map[types.SchemaKind]string) string
	sequenceNextValSQL(sequenceName string) string
	isTransient(err error) bool
}

// d1Dialect models an Oracle-flavored backend: named binds (:p1, :p2,
// ...), SYSDATE, and RETURNING ... INTO semantics.
type d1Dialect struct{}

func (d1Dialect) name() types.DbType { return types.DbTypeD1 }

func (d1Dialect) rewrite(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(":p")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d1Dialect) nowFunc() string { return "SYSDATE" }

func (d1Dialect) returningClause(returnCols []string) string {
	if len(returnCols) == 0 {
		return ""
	}
	into := make([]string, len(returnCols))
	for i, c := range returnCols {
		into[i] = ":out_" + c
	}
	return fmt.Sprintf(" RETURNING %s INTO %s", strings.Join(returnCols, ", "), strings.Join(into, ", "))
}

func (d1Dialect) schemaPrefix(kind types.SchemaKind, configured map[types.SchemaKind]string) string {
	return configured[kind]
}

func (d1Dialect) sequenceNextValSQL(sequenceName string) string {
	return fmt.Sprintf("SELECT %s.NEXTVAL FROM dual", sequenceName)
}

func (d1Dialect) isTransient(err error) bool {
	msg := err.Error()
	for _, code := range []string{"ORA-03113", "ORA-03135", "ORA-12170", "ORA-12541", "ORA-00060"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// d2Dialect models a CockroachDB/PostgreSQL-flavored backend: positional
// binds ($1, $2, ...), CURRENT_TIMESTAMP, and native RETURNING.
type d2Dialect struct{}

func (d2Dialect) name() types.DbType { return types.DbTypeD2 }

func (d2Dialect) rewrite(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d2Dialect) nowFunc() string { return "CURRENT_TIMESTAMP" }

func (d2Dialect) returningClause(returnCols []string) string {
	if len(returnCols) == 0 {
		return ""
	}
	return " RETURNING " + strings.Join(returnCols, ", ")
}

func (d2Dialect) schemaPrefix(kind types.SchemaKind, configured map[types.SchemaKind]string) string {
	return configured[kind]
}

func (d2Dialect) sequenceNextValSQL(sequenceName string) string {
	return fmt.Sprintf("SELECT nextval('%s')", sequenceName)
}

func (d2Dialect) isTransient(err error) bool {
	msg := err.Error()
	for _, code := range []string{"08000", "08003", "08006", "40001", "40P01", "connection reset", "broken pipe", "deadline exceeded"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

func dialectFor(dbType types.DbType) dialect {
	switch dbType {
	case types.DbTypeD1:
		return d1Dialect{}
	case types.DbTypeD2:
		return d2Dialect{}
	default:
		panic("metastore: unknown dialect " + string(dbType))
	}
}

// NowFunc returns the dialect's current-timestamp SQL function name, for
// callers composing their own query fragments (e.g. audit-column
// defaults).
func NowFunc(dbType types.DbType) string {
	return dialectFor(dbType).nowFunc()
}
