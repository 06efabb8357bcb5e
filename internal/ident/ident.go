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

// Package ident validates and composes the schema, table, and column
// names that flow through a Mapping. It is adapted from the teacher's
// internal/util/ident package, narrowed to the naming rules §4.3 of the
// specification requires rather than full SQL-identifier quoting.
package ident

import (
	"fmt"
	"strings"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// Validate checks a bare name (schema, table, or column) against the
// naming rule: non-empty, only [A-Za-z0-9_], first character is not a
// digit, no whitespace.
func Validate(kind, name string) error {
	if name == "" {
		return errors.Errorf("%s cannot be empty", kind)
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			continue
		case r >= '0' && r <= '9':
			if i == 0 {
				return errors.Errorf("%s %q: first character may not be a digit", kind, name)
			}
			continue
		case r == ' ' || r == '\t' || r == '\n':
			return errors.Errorf("%s %q: Space(s) not allowed", kind, name)
		default:
			return errors.Errorf("%s %q: illegal character %q", kind, name, r)
		}
	}
	return nil
}

// Table is a schema-qualified table name.
type Table struct {
	Schema string
	Name   string
}

// String renders "schema.name", or just "name" when schema is empty.
func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

// Qualify composes a schema-prefixed object name the way the
// MetadataStore adapter does: schemaPrefix(kind) + objectName. An empty
// prefix is valid for single-schema deployments.
func Qualify(prefix, objectName string) string {
	if prefix == "" {
		return objectName
	}
	return strings.TrimSuffix(prefix, ".") + "." + objectName
}

// NewTable validates both parts and returns a Table.
func NewTable(schema, name string) (Table, error) {
	if schema != "" {
		if err := Validate("schema", schema); err != nil {
			return Table{}, err
		}
	}
	if err := Validate("table", name); err != nil {
		return Table{}, err
	}
	return Table{Schema: schema, Name: name}, nil
}

// ValidateMappingNames checks the naming rule against every
// schema/table/column name a Mapping and its details declare. It is the
// single place the compiler calls into for the "Space(s) not allowed"
// class of ValidationError (spec scenario S2).
func ValidateMappingNames(m types.Mapping, details []types.MappingDetail) error {
	if err := Validate("targetSchema", m.TargetSchema); err != nil {
		return err
	}
	if err := Validate("targetTableName", m.TargetTableName); err != nil {
		return err
	}
	for _, d := range details {
		if err := Validate("targetColumn", d.TargetColumn); err != nil {
			return err
		}
	}
	return nil
}
