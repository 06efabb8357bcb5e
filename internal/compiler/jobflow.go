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
	"encoding/json"

	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// Compile implements types.Compiler: it validates the mapping, then
// produces (or regenerates) the current JobFlow row for it. Exactly one
// row per mapping has currentFlag=Y afterward.
func (c *Compiler) Compile(ctx context.Context, reference string) (int64, error) {
	ok, errs, err := c.ValidateMapping(ctx, reference)
	if err != nil {
		return 0, err
	}
	if !ok {
		if len(errs) > 0 {
			return 0, errs[0]
		}
		return 0, errors.Errorf("compiler: mapping %q failed validation", reference)
	}

	m, err := c.loadMapping(ctx, reference)
	if err != nil {
		return 0, err
	}
	details, err := c.loadDetails(ctx, reference)
	if err != nil {
		return 0, err
	}

	plan := types.JobFlowPlan{
		MappingReference: reference,
		TargetSchema:     m.TargetSchema,
		TargetTable:      m.TargetTableName,
		SourceFrom:       m.SourceSystem,
		Checkpoint:       m.Checkpoint,
	}
	for _, d := range details {
		plan.Columns = append(plan.Columns, types.JobFlowPlanColumn{
			TargetColumn:      d.TargetColumn,
			TargetDataType:    d.TargetDataType,
			PrimaryKeyFlag:    d.PrimaryKeyFlag,
			MapLogic:          d.MapLogic,
			ScdType:           d.ScdType,
			DefaultValue:      d.DefaultValue,
			IsRequired:        d.IsRequired,
			DerivationFormula: d.DerivationFormula,
		})
	}

	dwLogic, err := json.Marshal(plan)
	if err != nil {
		return 0, errors.Wrap(err, "compiler: serializing job flow plan")
	}

	dependency, err := c.resolveDependency(ctx, reference)
	if err != nil {
		return 0, err
	}
	if dependency != nil {
		if err := c.checkAcyclic(ctx, reference, *dependency); err != nil {
			return 0, err
		}
	}

	existingID, existingLogic, found, err := c.currentJobFlow(ctx, reference)
	if err != nil {
		return 0, err
	}
	if found && string(dwLogic) == existingLogic {
		// L1: compile(upsertMapping(m)) is idempotent if m is unchanged.
		return existingID, nil
	}

	id, err := c.ids.NextID(ctx, "JobFlow")
	if err != nil {
		return 0, errors.Wrap(err, "compiler: allocating JobFlow id")
	}

	if found {
		if _, err := c.store.Exec(ctx,
			`UPDATE JobFlow SET currentFlag = 'N' WHERE mappingReference = ? AND currentFlag = 'Y'`, reference); err != nil {
			return 0, errors.Wrap(err, "compiler: historizing prior JobFlow")
		}
	}

	now := c.clock.Now()
	_, err = c.store.Exec(ctx,
		`INSERT INTO JobFlow (
			id, mappingReference, dwLogic, blockProcessRows, targetConnectionId, dependency,
			currentFlag, createdBy, createdAt, updatedBy, updatedAt
		) VALUES (?, ?, ?, ?, ?, ?, 'Y', ?, ?, ?, ?)`,
		id, reference, string(dwLogic), m.BlockProcessRows, m.TargetConnectionID, dependency,
		c.actor, now, c.actor, now)
	if err != nil {
		return 0, errors.Wrap(err, "compiler: inserting JobFlow")
	}
	return id, nil
}

func (c *Compiler) currentJobFlow(ctx context.Context, reference string) (id int64, dwLogic string, found bool, err error) {
	row := c.store.QueryRow(ctx,
		`SELECT id, dwLogic FROM JobFlow WHERE mappingReference = ? AND currentFlag = 'Y'`, reference)
	var raw any
	switch scanErr := row.Scan(&id, &raw); scanErr {
	case nil:
		dwLogic, err = c.store.ReadLargeText(raw)
		return id, dwLogic, true, err
	case sql.ErrNoRows:
		return 0, "", false, nil
	default:
		return 0, "", false, errors.Wrap(scanErr, "compiler: reading current JobFlow")
	}
}

// resolveDependency looks up a declared dependency for this mapping. In
// the absence of a dedicated "depends on" field on Mapping, dependency
// wiring is driven by a convention: a MappingDetail whose mapLogic is
// exactly "dependsOn:<reference>" declares the parent JobFlow. Returns
// nil when no dependency is declared.
func (c *Compiler) resolveDependency(ctx context.Context, reference string) (*int64, error) {
	const prefix = "dependsOn:"
	details, err := c.loadDetails(ctx, reference)
	if err != nil {
		return nil, err
	}
	for _, d := range details {
		if len(d.MapLogic) > len(prefix) && d.MapLogic[:len(prefix)] == prefix {
			parentRef := d.MapLogic[len(prefix):]
			parentID, _, found, err := c.currentJobFlow(ctx, parentRef)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, errors.Errorf("compiler: dependency %q for mapping %q has no compiled JobFlow", parentRef, reference)
			}
			return &parentID, nil
		}
	}
	return nil, nil
}

// checkAcyclic validates that adding an edge reference -> dependency
// does not close a cycle in the JobFlow dependency DAG, via topological
// sort over the existing dependency chain. Dependencies are single-
// parent in this spec (§9), so the "graph" is really a forest of chains;
// the walk below still guards against a chain looping back on itself.
func (c *Compiler) checkAcyclic(ctx context.Context, reference string, dependencyJobFlowID int64) error {
	visited := map[int64]bool{}
	currentID := dependencyJobFlowID
	for {
		if visited[currentID] {
			return types.NewValidationError(codeDependencyCycle, "checkAcyclic",
				"job flow dependency graph contains a cycle")
		}
		visited[currentID] = true

		row := c.store.QueryRow(ctx,
			`SELECT mappingReference, dependency FROM JobFlow WHERE id = ?`, currentID)
		var mappingRef string
		var nextDep sql.NullInt64
		if err := row.Scan(&mappingRef, &nextDep); err != nil {
			return errors.Wrap(err, "compiler: walking job flow dependency chain")
		}
		if mappingRef == reference {
			return types.NewValidationError(codeDependencyCycle, "checkAcyclic",
				"job flow dependency graph contains a cycle")
		}
		if !nextDep.Valid {
			return nil
		}
		currentID = nextDep.Int64
	}
}
