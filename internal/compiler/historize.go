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
	"database/sql"
	"strings"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// normalizeSQL trims whitespace and a single trailing semicolon so that
// cosmetic differences ("SELECT 1;" vs "SELECT 1 ") never trigger a
// historization flip. Comparisons always run over the read-back string,
// never the raw LOB value.
func normalizeSQL(body string) string {
	return strings.TrimSuffix(strings.TrimSpace(body), ";")
}

// UpsertSqlSnippet implements types.Compiler. See spec scenario S1.
func (c *Compiler) UpsertSqlSnippet(ctx context.Context, code, body string) (int64, error) {
	if code == "" {
		return 0, types.NewValidationError(codeSqlCodeNull, "UpsertSqlSnippet", "SQL Code cannot be null")
	}

	existingID, existingBody, found, err := c.currentSnippet(ctx, code)
	if err != nil {
		return 0, err
	}

	normalizedNew := normalizeSQL(body)
	if found && normalizeSQL(existingBody) == normalizedNew {
		return existingID, nil
	}

	id, err := c.ids.NextID(ctx, "SqlSnippet")
	if err != nil {
		return 0, errors.Wrap(err, "compiler: allocating SqlSnippet id")
	}

	if found {
		if _, err := c.store.Exec(ctx,
			`UPDATE SqlSnippet SET currentFlag = 'N' WHERE code = ? AND currentFlag = 'Y'`, code); err != nil {
			return 0, errors.Wrap(err, "compiler: historizing prior SqlSnippet")
		}
	}

	now := c.clock.Now()
	if _, err := c.store.Exec(ctx,
		`INSERT INTO SqlSnippet (id, code, body, currentFlag, createdBy, createdAt, updatedBy, updatedAt)
		 VALUES (?, ?, ?, 'Y', ?, ?, ?, ?)`,
		id, code, body, c.actor, now, c.actor, now); err != nil {
		return 0, errors.Wrap(err, "compiler: inserting SqlSnippet")
	}
	return id, nil
}

func (c *Compiler) currentSnippet(ctx context.Context, code string) (id int64, body string, found bool, err error) {
	row := c.store.QueryRow(ctx,
		`SELECT id, body FROM SqlSnippet WHERE code = ? AND currentFlag = 'Y'`, code)
	var bodyRaw any
	switch scanErr := row.Scan(&id, &bodyRaw); scanErr {
	case nil:
		body, err = c.store.ReadLargeText(bodyRaw)
		return id, body, true, err
	case sql.ErrNoRows:
		return 0, "", false, nil
	default:
		return 0, "", false, errors.Wrap(scanErr, "compiler: reading current SqlSnippet")
	}
}

// UpsertMapping implements types.Compiler. Historizes the Mapping row on
// any field change; returns the existing id unchanged when nothing
// differs. The Mapping's MappingDetail rows are not touched, and the
// flip of the prior row and the insert of the new one are separate
// statements, not one transaction.
func (c *Compiler) UpsertMapping(ctx context.Context, m types.Mapping) (int64, error) {
	if m.Reference == "" {
		return 0, types.NewValidationError(codeMappingReferenceEmpty, "UpsertMapping", "Mapping reference cannot be null")
	}
	if err := validateNaming(m); err != nil {
		return 0, err
	}

	existing, found, err := c.currentMapping(ctx, m.Reference)
	if err != nil {
		return 0, err
	}
	if found && mappingEqual(*existing, m) {
		return existing.ID, nil
	}

	id, err := c.ids.NextID(ctx, "Mapping")
	if err != nil {
		return 0, errors.Wrap(err, "compiler: allocating Mapping id")
	}

	if found {
		if _, err := c.store.Exec(ctx,
			`UPDATE Mapping SET currentFlag = 'N' WHERE reference = ? AND currentFlag = 'Y'`, m.Reference); err != nil {
			return 0, errors.Wrap(err, "compiler: historizing prior Mapping")
		}
	}

	now := c.clock.Now()
	_, err = c.store.Exec(ctx,
		`INSERT INTO Mapping (
			id, reference, description, targetSchema, targetTableType, targetTableName,
			frequencyCode, sourceSystem, statusFlag, blockProcessRows, targetConnectionId,
			checkpointStrategy, checkpointColumn, checkpointEnabled,
			currentFlag, createdBy, createdAt, updatedBy, updatedAt
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'N', ?, ?, ?, ?, ?, 'Y', ?, ?, ?, ?)`,
		id, m.Reference, m.Description, m.TargetSchema, string(m.TargetTableType), m.TargetTableName,
		string(m.FrequencyCode), m.SourceSystem, m.BlockProcessRows, m.TargetConnectionID,
		string(m.Checkpoint.Strategy), m.Checkpoint.ColumnName, m.Checkpoint.Enabled,
		c.actor, now, c.actor, now)
	if err != nil {
		return 0, errors.Wrap(err, "compiler: inserting Mapping")
	}
	return id, nil
}

func (c *Compiler) currentMapping(ctx context.Context, reference string) (*types.Mapping, bool, error) {
	row := c.store.QueryRow(ctx,
		`SELECT id, description, targetSchema, targetTableType, targetTableName,
			frequencyCode, sourceSystem, statusFlag, blockProcessRows, targetConnectionId,
			checkpointStrategy, checkpointColumn, checkpointEnabled
		 FROM Mapping WHERE reference = ? AND currentFlag = 'Y'`, reference)

	var m types.Mapping
	m.Reference = reference
	var tableType, freq, status, strategy string
	switch err := row.Scan(&m.ID, &m.Description, &m.TargetSchema, &tableType, &m.TargetTableName,
		&freq, &m.SourceSystem, &status, &m.BlockProcessRows, &m.TargetConnectionID,
		&strategy, &m.Checkpoint.ColumnName, &m.Checkpoint.Enabled); err {
	case nil:
		m.TargetTableType = types.TargetTableType(tableType)
		m.FrequencyCode = types.FrequencyCode(freq)
		m.StatusFlag = types.StatusFlag(status)
		m.Checkpoint.Strategy = types.CheckpointStrategy(strategy)
		m.CurrentFlag = types.CurrentYes
		return &m, true, nil
	case sql.ErrNoRows:
		return nil, false, nil
	default:
		return nil, false, errors.Wrap(err, "compiler: reading current Mapping")
	}
}

// mappingEqual compares the fields relevant to historization. StatusFlag
// and audit columns are excluded: activation/deactivation is a separate
// operation (Activate/Deactivate), not a content change.
func mappingEqual(a, b types.Mapping) bool {
	return a.Description == b.Description &&
		a.TargetSchema == b.TargetSchema &&
		a.TargetTableType == b.TargetTableType &&
		a.TargetTableName == b.TargetTableName &&
		a.FrequencyCode == b.FrequencyCode &&
		a.SourceSystem == b.SourceSystem &&
		a.BlockProcessRows == b.BlockProcessRows &&
		ptrEqualInt64(a.TargetConnectionID, b.TargetConnectionID) &&
		a.Checkpoint == b.Checkpoint
}

func ptrEqualInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// UpsertMappingDetail implements types.Compiler.
func (c *Compiler) UpsertMappingDetail(ctx context.Context, d types.MappingDetail) (int64, error) {
	if err := validateDetailNaming(d); err != nil {
		return 0, err
	}

	existing, found, err := c.currentDetail(ctx, d.MappingReference, d.TargetColumn)
	if err != nil {
		return 0, err
	}
	if found && detailEqual(*existing, d) {
		return existing.ID, nil
	}

	id, err := c.ids.NextID(ctx, "MappingDetail")
	if err != nil {
		return 0, errors.Wrap(err, "compiler: allocating MappingDetail id")
	}

	if found {
		if _, err := c.store.Exec(ctx,
			`UPDATE MappingDetail SET currentFlag = 'N'
			 WHERE mappingReference = ? AND targetColumn = ? AND currentFlag = 'Y'`,
			d.MappingReference, d.TargetColumn); err != nil {
			return 0, errors.Wrap(err, "compiler: historizing prior MappingDetail")
		}
	}

	now := c.clock.Now()
	_, err = c.store.Exec(ctx,
		`INSERT INTO MappingDetail (
			id, mappingReference, targetColumn, targetDataType, primaryKeyFlag, primaryKeySequence,
			description, mapLogic, keyColumns, valueColumns, combinationCode, executionSequence,
			scdType, defaultValue, isRequired, derivationFlag, derivationFormula,
			currentFlag, createdBy, createdAt, updatedBy, updatedAt
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'Y', ?, ?, ?, ?)`,
		id, d.MappingReference, d.TargetColumn, d.TargetDataType, d.PrimaryKeyFlag, d.PrimaryKeySequence,
		d.Description, d.MapLogic, strings.Join(d.KeyColumns, ","), strings.Join(d.ValueColumns, ","),
		d.CombinationCode, d.ExecutionSequence, int(d.ScdType), d.DefaultValue, d.IsRequired,
		d.DerivationFlag, d.DerivationFormula, c.actor, now, c.actor, now)
	if err != nil {
		return 0, errors.Wrap(err, "compiler: inserting MappingDetail")
	}
	return id, nil
}

func (c *Compiler) currentDetail(ctx context.Context, mappingRef, targetColumn string) (*types.MappingDetail, bool, error) {
	row := c.store.QueryRow(ctx,
		`SELECT id, targetDataType, primaryKeyFlag, primaryKeySequence, description, mapLogic,
			keyColumns, valueColumns, combinationCode, executionSequence, scdType,
			defaultValue, isRequired, derivationFlag, derivationFormula
		 FROM MappingDetail WHERE mappingReference = ? AND targetColumn = ? AND currentFlag = 'Y'`,
		mappingRef, targetColumn)

	var d types.MappingDetail
	d.MappingReference = mappingRef
	d.TargetColumn = targetColumn
	var keyCols, valCols string
	var scd int
	switch err := row.Scan(&d.ID, &d.TargetDataType, &d.PrimaryKeyFlag, &d.PrimaryKeySequence,
		&d.Description, &d.MapLogic, &keyCols, &valCols, &d.CombinationCode, &d.ExecutionSequence,
		&scd, &d.DefaultValue, &d.IsRequired, &d.DerivationFlag, &d.DerivationFormula); err {
	case nil:
		d.KeyColumns = splitNonEmpty(keyCols)
		d.ValueColumns = splitNonEmpty(valCols)
		d.ScdType = types.ScdType(scd)
		d.CurrentFlag = types.CurrentYes
		return &d, true, nil
	case sql.ErrNoRows:
		return nil, false, nil
	default:
		return nil, false, errors.Wrap(err, "compiler: reading current MappingDetail")
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func detailEqual(a, b types.MappingDetail) bool {
	return a.TargetDataType == b.TargetDataType &&
		a.PrimaryKeyFlag == b.PrimaryKeyFlag &&
		a.PrimaryKeySequence == b.PrimaryKeySequence &&
		a.Description == b.Description &&
		a.MapLogic == b.MapLogic &&
		stringsEqual(a.KeyColumns, b.KeyColumns) &&
		stringsEqual(a.ValueColumns, b.ValueColumns) &&
		a.CombinationCode == b.CombinationCode &&
		a.ExecutionSequence == b.ExecutionSequence &&
		a.ScdType == b.ScdType &&
		a.DefaultValue == b.DefaultValue &&
		a.IsRequired == b.IsRequired &&
		a.DerivationFlag == b.DerivationFlag &&
		a.DerivationFormula == b.DerivationFormula
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
