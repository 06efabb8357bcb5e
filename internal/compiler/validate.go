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

package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmsflow/core/internal/ident"
	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// validateNaming applies the naming rule (non-empty, [A-Za-z0-9_], no
// leading digit, no whitespace) to every schema/table name a Mapping
// declares, translating ident errors into ValidationErrors with the
// fully-qualified message form spec §4.3 requires.
func validateNaming(m types.Mapping) error {
	if err := ident.Validate("targetSchema", m.TargetSchema); err != nil {
		return toValidationError("validateNaming", err)
	}
	if err := ident.Validate("targetTableName", m.TargetTableName); err != nil {
		return toValidationError("validateNaming", err)
	}
	return nil
}

func validateDetailNaming(d types.MappingDetail) error {
	if err := ident.Validate("targetColumn", d.TargetColumn); err != nil {
		return toValidationError("validateDetailNaming", err)
	}
	return nil
}

// toValidationError classifies a raw ident error into the right
// ValidationError code based on its message, since ident.Validate
// returns plain errors rather than typed ones (ident has no dependency
// on the compiler's error codes).
func toValidationError(procedure string, err error) *types.ValidationError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Space(s) not allowed"):
		return types.NewValidationError(codeNameHasSpace, procedure, msg)
	case strings.Contains(msg, "first character may not be a digit"):
		return types.NewValidationError(codeNameLeadingDigit, procedure, msg)
	case strings.Contains(msg, "cannot be empty"):
		return types.NewValidationError(codeNameEmpty, procedure, msg)
	default:
		return types.NewValidationError(codeNameIllegalChar, procedure, msg)
	}
}

// ValidateSql implements types.Compiler: confirms body is shaped as a
// read-only query (it starts with SELECT or WITH and contains no DML or
// DDL keyword). The body is not prepared or executed against any
// database, so syntax errors and unknown tables or columns are not
// detected here.
func (c *Compiler) ValidateSql(ctx context.Context, body string) (bool, error) {
	trimmed := strings.TrimSpace(strings.ToUpper(body))
	if trimmed == "" {
		return false, nil
	}
	if !strings.HasPrefix(trimmed, "SELECT") && !strings.HasPrefix(trimmed, "WITH") {
		return false, nil
	}
	for _, forbidden := range []string{"INSERT ", "UPDATE ", "DELETE ", "DROP ", "ALTER ", "TRUNCATE ", "MERGE "} {
		if strings.Contains(trimmed, forbidden) {
			return false, nil
		}
	}
	// Validation here is declarative, not semantic (spec §1): this
	// Compiler is built only against the metadata Store and holds no
	// connection to the target database. The structural checks above
	// (SELECT/WITH shape, no DML keywords) are the whole validation.
	return true, nil
}

// ValidateLogic implements types.Compiler: confirms the referenced
// key/value columns are selected by the query's projection. Column
// resolution is structural (comma-split projection list), matching the
// declarative, non-semantic validation §1 calls for.
func (c *Compiler) ValidateLogic(ctx context.Context, body string, keyColumns, valueColumns []string) (bool, error) {
	projected, err := projectedColumns(body)
	if err != nil {
		return false, nil
	}
	for _, col := range append(append([]string{}, keyColumns...), valueColumns...) {
		if !containsFold(projected, col) {
			return false, nil
		}
	}
	return true, nil
}

// projectedColumns extracts the column aliases/names from a single
// top-level SELECT list. It does not attempt to resolve `SELECT *` or
// subqueries; both are reported as unresolvable so callers fail closed.
func projectedColumns(body string) ([]string, error) {
	upper := strings.ToUpper(body)
	selectIdx := strings.Index(upper, "SELECT")
	fromIdx := strings.Index(upper, " FROM ")
	if selectIdx < 0 || fromIdx < 0 || fromIdx <= selectIdx {
		return nil, errors.New("compiler: could not locate SELECT ... FROM in body")
	}
	list := body[selectIdx+len("SELECT") : fromIdx]
	if strings.TrimSpace(list) == "*" {
		return nil, errors.New("compiler: SELECT * cannot be resolved structurally")
	}

	var cols []string
	for _, part := range splitTopLevelCommas(list) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// Take the alias after AS, or the last dotted segment.
		if idx := strings.LastIndex(strings.ToUpper(part), " AS "); idx >= 0 {
			cols = append(cols, strings.TrimSpace(part[idx+4:]))
			continue
		}
		fields := strings.Fields(part)
		last := fields[len(fields)-1]
		if dot := strings.LastIndex(last, "."); dot >= 0 {
			last = last[dot+1:]
		}
		cols = append(cols, last)
	}
	return cols, nil
}

// splitTopLevelCommas splits on commas that are not nested inside
// parentheses, so that `COALESCE(a, b) AS c, d` splits into two items.
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

// ValidateMapping implements types.Compiler: runs checks (i)-(v) from
// §4.3 (per-detail logic, primary keys, duplicate target columns,
// duplicate value columns within a combinationCode, target data types)
// and persists every failure to ErrorRecord. combinationCode/
// executionSequence consistency is not checked.
func (c *Compiler) ValidateMapping(ctx context.Context, reference string) (bool, []*types.ValidationError, error) {
	m, err := c.loadMapping(ctx, reference)
	if err != nil {
		return false, nil, err
	}
	details, err := c.loadDetails(ctx, reference)
	if err != nil {
		return false, nil, err
	}

	var errs []*types.ValidationError

	if err := validateNaming(*m); err != nil {
		if ve, ok := err.(*types.ValidationError); ok {
			errs = append(errs, ve)
		}
	}

	// (ii) at least one PK, dense PK sequence
	pkSeqs := make([]int, 0, len(details))
	for _, d := range details {
		if d.PrimaryKeyFlag {
			pkSeqs = append(pkSeqs, d.PrimaryKeySequence)
		}
	}
	if len(pkSeqs) == 0 {
		errs = append(errs, types.NewValidationError(codeNoPrimaryKey, "ValidateMapping",
			fmt.Sprintf("mapping %q has no primary key column", reference)))
	} else if !isDenseSequence(pkSeqs) {
		errs = append(errs, types.NewValidationError(codePrimaryKeySequence, "ValidateMapping",
			fmt.Sprintf("mapping %q primary key sequence is not dense/unique", reference)))
	}

	// (iii) no duplicate target columns
	seenCols := map[string]bool{}
	for _, d := range details {
		if seenCols[d.TargetColumn] {
			errs = append(errs, types.NewValidationError(codeDuplicateTargetColumn, "ValidateMapping",
				fmt.Sprintf("duplicate target column %q in mapping %q", d.TargetColumn, reference)))
		}
		seenCols[d.TargetColumn] = true
	}

	// (iv) no duplicate value columns within a combinationCode
	seenVal := map[string]map[string]bool{}
	for _, d := range details {
		for _, vc := range d.ValueColumns {
			byCombo, ok := seenVal[d.CombinationCode]
			if !ok {
				byCombo = map[string]bool{}
				seenVal[d.CombinationCode] = byCombo
			}
			if byCombo[vc] {
				errs = append(errs, types.NewValidationError(codeDuplicateValueColumn, "ValidateMapping",
					fmt.Sprintf("duplicate value column %q within combination %q in mapping %q", vc, d.CombinationCode, reference)))
			}
			byCombo[vc] = true
		}
	}

	// (v) all target data types exist for the target dbType
	dbType := dbTypeForSchema(m.TargetSchema)
	for _, d := range details {
		if !knownDataType(dbType, d.TargetDataType) {
			errs = append(errs, types.NewValidationError(codeUnknownDataType, "ValidateMapping",
				fmt.Sprintf("unknown data type %q for column %q", d.TargetDataType, d.TargetColumn)))
		}
	}

	// (i) per-detail logic validation. A detail declaring a dependency via
	// the "dependsOn:<reference>" convention (jobflow.go resolveDependency)
	// carries no SELECT projection of its own and is skipped here.
	for _, d := range details {
		if strings.HasPrefix(d.MapLogic, "dependsOn:") {
			continue
		}
		body, err := c.resolveMapLogic(ctx, d.MapLogic)
		if err != nil {
			errs = append(errs, types.NewValidationError(codeLogicColumnNotProjected, "ValidateMapping",
				fmt.Sprintf("could not resolve map logic for column %q: %v", d.TargetColumn, err)))
			continue
		}
		ok, err := c.ValidateLogic(ctx, body, d.KeyColumns, d.ValueColumns)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			errs = append(errs, types.NewValidationError(codeLogicColumnNotProjected, "ValidateMapping",
				fmt.Sprintf("key/value columns not projected by map logic for column %q", d.TargetColumn)))
		}
	}

	if err := c.persistErrors(ctx, reference, errs); err != nil {
		return false, nil, err
	}
	return len(errs) == 0, errs, nil
}

// resolveMapLogic resolves a "snippet:<code>" reference to its current
// body, or returns mapLogic unchanged when it is inline SQL.
func (c *Compiler) resolveMapLogic(ctx context.Context, mapLogic string) (string, error) {
	const prefix = "snippet:"
	if !strings.HasPrefix(mapLogic, prefix) {
		return mapLogic, nil
	}
	code := strings.TrimPrefix(mapLogic, prefix)
	_, body, found, err := c.currentSnippet(ctx, code)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.Errorf("no current SqlSnippet for code %q", code)
	}
	return body, nil
}

func (c *Compiler) persistErrors(ctx context.Context, reference string, errs []*types.ValidationError) error {
	for _, ve := range errs {
		id, err := c.ids.NextID(ctx, "ErrorRecord")
		if err != nil {
			return errors.Wrap(err, "compiler: allocating ErrorRecord id")
		}
		if _, err := c.store.Exec(ctx,
			`INSERT INTO ErrorRecord (id, mappingReference, code, params, message, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, reference, ve.Code, strings.Join(ve.Params, ","), ve.Message, c.clock.Now()); err != nil {
			return errors.Wrap(err, "compiler: persisting ErrorRecord")
		}
	}
	return nil
}

func isDenseSequence(seqs []int) bool {
	seen := map[int]bool{}
	max := 0
	for _, s := range seqs {
		if s < 1 || seen[s] {
			return false
		}
		seen[s] = true
		if s > max {
			max = s
		}
	}
	return max == len(seqs)
}

// dbTypeForSchema is a placeholder mapping from a target schema name to
// a dialect; real deployments configure this per targetConnectionId. It
// defaults to D2 (CockroachDB/PostgreSQL-flavored) when no convention
// matches, since that is the engine's primary supported target family.
func dbTypeForSchema(schema string) types.DbType {
	if strings.HasPrefix(strings.ToUpper(schema), "ORA_") {
		return types.DbTypeD1
	}
	return types.DbTypeD2
}
