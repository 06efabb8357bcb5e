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

// Package compiler implements the MappingCompiler described in spec
// §4.3: it validates and persists a Mapping and its MappingDetails, and
// produces a current JobFlow from them.
package compiler

import (
	"context"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Compiler implements types.Compiler.
type Compiler struct {
	store  types.Store
	ids    types.IdProvider
	clock  types.Clock
	actor  string // audit "by" column value for operations this process performs
	logger *log.Entry
}

var _ types.Compiler = (*Compiler)(nil)

// Option configures a Compiler at construction time.
type Option func(*Compiler)

// WithClock overrides the default SystemClock, for deterministic tests.
func WithClock(c types.Clock) Option { return func(co *Compiler) { co.clock = c } }

// WithActor sets the audit "by" column value; defaults to "dmsflow".
func WithActor(actor string) Option { return func(co *Compiler) { co.actor = actor } }

// WithLogger overrides the default logger.
func WithLogger(l *log.Entry) Option { return func(co *Compiler) { co.logger = l } }

// New builds a Compiler over the given metadata Store and IdProvider.
func New(store types.Store, ids types.IdProvider, opts ...Option) *Compiler {
	c := &Compiler{
		store:  store,
		ids:    ids,
		clock:  types.SystemClock{},
		actor:  "dmsflow",
		logger: log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate implements types.Compiler: validates and flips statusFlag to
// A. statusFlag=A is only reachable through a successful validation.
func (c *Compiler) Activate(ctx context.Context, reference string) error {
	ok, errs, err := c.ValidateMapping(ctx, reference)
	if err != nil {
		return err
	}
	if !ok {
		if len(errs) > 0 {
			return errs[0]
		}
		return errors.Errorf("compiler: mapping %q failed validation", reference)
	}
	_, err = c.store.Exec(ctx,
		`UPDATE Mapping SET statusFlag = 'A' WHERE reference = ? AND currentFlag = 'Y'`, reference)
	return errors.Wrap(err, "compiler: activating mapping")
}

// Deactivate implements types.Compiler.
func (c *Compiler) Deactivate(ctx context.Context, reference string) error {
	_, err := c.store.Exec(ctx,
		`UPDATE Mapping SET statusFlag = 'N' WHERE reference = ? AND currentFlag = 'Y'`, reference)
	return errors.Wrap(err, "compiler: deactivating mapping")
}

// DeleteMapping implements types.Compiler: refuses if a Job references
// the mapping.
func (c *Compiler) DeleteMapping(ctx context.Context, reference string) error {
	inUse, err := c.mappingHasJobFlow(ctx, reference)
	if err != nil {
		return err
	}
	if inUse {
		return errors.Errorf("compiler: mapping %q cannot be deleted: a JobFlow references it", reference)
	}
	_, err = c.store.Exec(ctx, `DELETE FROM Mapping WHERE reference = ?`, reference)
	return errors.Wrap(err, "compiler: deleting mapping")
}

func (c *Compiler) mappingHasJobFlow(ctx context.Context, reference string) (bool, error) {
	row := c.store.QueryRow(ctx,
		`SELECT COUNT(*) FROM JobFlow WHERE mappingReference = ?`, reference)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, errors.Wrap(err, "compiler: checking JobFlow references")
	}
	return n > 0, nil
}

// DeleteDetail implements types.Compiler: refuses if a JobDetail (i.e.
// the compiled JobFlow) still references this mapping/column pairing by
// way of a current JobFlow existing for the mapping.
func (c *Compiler) DeleteDetail(ctx context.Context, reference, targetColumn string) error {
	inUse, err := c.mappingHasJobFlow(ctx, reference)
	if err != nil {
		return err
	}
	if inUse {
		return errors.Errorf("compiler: detail %q.%q cannot be deleted: a JobFlow references the mapping", reference, targetColumn)
	}
	_, err = c.store.Exec(ctx,
		`DELETE FROM MappingDetail WHERE mappingReference = ? AND targetColumn = ?`, reference, targetColumn)
	return errors.Wrap(err, "compiler: deleting mapping detail")
}

// loadMapping is a small helper shared by validate.go and jobflow.go.
func (c *Compiler) loadMapping(ctx context.Context, reference string) (*types.Mapping, error) {
	m, found, err := c.currentMapping(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Errorf("compiler: no current mapping for reference %q", reference)
	}
	return m, nil
}

// loadDetails returns every current MappingDetail for a mapping,
// ordered by executionSequence.
func (c *Compiler) loadDetails(ctx context.Context, reference string) ([]types.MappingDetail, error) {
	rows, err := c.store.Query(ctx,
		`SELECT id, targetColumn, targetDataType, primaryKeyFlag, primaryKeySequence, description,
			mapLogic, keyColumns, valueColumns, combinationCode, executionSequence, scdType,
			defaultValue, isRequired, derivationFlag, derivationFormula
		 FROM MappingDetail
		 WHERE mappingReference = ? AND currentFlag = 'Y'
		 ORDER BY executionSequence`, reference)
	if err != nil {
		return nil, errors.Wrap(err, "compiler: listing mapping details")
	}
	defer rows.Close()

	var details []types.MappingDetail
	for rows.Next() {
		var d types.MappingDetail
		var keyCols, valCols string
		var scd int
		if err := rows.Scan(&d.ID, &d.TargetColumn, &d.TargetDataType, &d.PrimaryKeyFlag, &d.PrimaryKeySequence,
			&d.Description, &d.MapLogic, &keyCols, &valCols, &d.CombinationCode, &d.ExecutionSequence,
			&scd, &d.DefaultValue, &d.IsRequired, &d.DerivationFlag, &d.DerivationFormula); err != nil {
			return nil, errors.Wrap(err, "compiler: scanning mapping detail")
		}
		d.MappingReference = reference
		d.KeyColumns = splitNonEmpty(keyCols)
		d.ValueColumns = splitNonEmpty(valCols)
		d.ScdType = types.ScdType(scd)
		d.CurrentFlag = types.CurrentYes
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "compiler: iterating mapping details")
	}
	return details, nil
}
