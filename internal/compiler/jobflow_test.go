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
	"testing"

	"github.com/dmsflow/core/internal/testutil"
	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

// compilableMapping returns a Mapping that passes ValidateMapping's full
// battery: a dense single-column primary key, no duplicate target/value
// columns, and data types registered for the D2 dialect ("analytics"
// does not match the ORA_ prefix, so dbTypeForSchema resolves to D2).
func compilableMapping(ref string) types.Mapping {
	m := sampleMapping(ref)
	m.TargetSchema = "analytics"
	return m
}

func compilablePKDetail(ref string) types.MappingDetail {
	return types.MappingDetail{
		MappingReference:   ref,
		TargetColumn:       "id",
		TargetDataType:     "INT8",
		PrimaryKeyFlag:     true,
		PrimaryKeySequence: 1,
		MapLogic:           "SELECT id, name FROM source_customer",
		KeyColumns:         []string{"id"},
		ScdType:            types.Scd1,
	}
}

func compilableValueDetail(ref string) types.MappingDetail {
	return types.MappingDetail{
		MappingReference: ref,
		TargetColumn:     "name",
		TargetDataType:   "TEXT",
		MapLogic:         "SELECT id, name FROM source_customer",
		KeyColumns:       []string{"id"},
		ValueColumns:     []string{"name"},
		ScdType:          types.Scd1,
	}
}

func setUpCompilableMapping(t *testing.T, ctx context.Context, c *Compiler, ref string) {
	t.Helper()
	_, err := c.UpsertMapping(ctx, compilableMapping(ref))
	require.NoError(t, err)
	_, err = c.UpsertMappingDetail(ctx, compilablePKDetail(ref))
	require.NoError(t, err)
	_, err = c.UpsertMappingDetail(ctx, compilableValueDetail(ref))
	require.NoError(t, err)
}

func TestCompileProducesJobFlowWithSerializedPlan(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()
	setUpCompilableMapping(t, ctx, c, "m1")

	id, err := c.Compile(ctx, "m1")
	require.NoError(t, err)
	require.NotZero(t, id)

	rows := store.Rows("JobFlow")
	require.Len(t, rows, 1)
	require.Equal(t, "Y", rows[0]["currentFlag"])
	require.Equal(t, "m1", rows[0]["mappingReference"])

	dwLogic, err := store.ReadLargeText(rows[0]["dwLogic"])
	require.NoError(t, err)
	require.Contains(t, dwLogic, "dimCustomer")
}

func TestCompileIsIdempotentWhenPlanUnchanged(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()
	setUpCompilableMapping(t, ctx, c, "m1")

	id1, err := c.Compile(ctx, "m1")
	require.NoError(t, err)

	id2, err := c.Compile(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Len(t, store.Rows("JobFlow"), 1)
}

func TestCompileHistorizesOnPlanChange(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()
	setUpCompilableMapping(t, ctx, c, "m1")

	id1, err := c.Compile(ctx, "m1")
	require.NoError(t, err)

	vd := compilableValueDetail("m1")
	vd.ScdType = types.Scd2
	_, err = c.UpsertMappingDetail(ctx, vd)
	require.NoError(t, err)

	id2, err := c.Compile(ctx, "m1")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	rows := store.Rows("JobFlow")
	require.Len(t, rows, 2)
	var liveCount int
	for _, r := range rows {
		if r["currentFlag"] == "Y" {
			liveCount++
		}
	}
	require.Equal(t, 1, liveCount)
}

func TestCompileResolvesDependsOnConvention(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()

	setUpCompilableMapping(t, ctx, c, "parent")
	parentJobFlowID, err := c.Compile(ctx, "parent")
	require.NoError(t, err)

	setUpCompilableMapping(t, ctx, c, "child")
	dep := compilableValueDetail("child")
	dep.TargetColumn = "parentRef"
	dep.MapLogic = "dependsOn:parent"
	dep.KeyColumns = nil
	dep.ValueColumns = nil
	_, err = c.UpsertMappingDetail(ctx, dep)
	require.NoError(t, err)

	childID, err := c.Compile(ctx, "child")
	require.NoError(t, err)
	require.NotZero(t, childID)

	rows := store.Rows("JobFlow")
	var childRow map[string]any
	for _, r := range rows {
		if r["mappingReference"] == "child" && r["currentFlag"] == "Y" {
			childRow = r
		}
	}
	require.NotNil(t, childRow)
	require.EqualValues(t, parentJobFlowID, childRow["dependency"])
}

func TestCompileRejectsDependencyCycle(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()

	// a depends on nothing yet; compile it first so it has a JobFlow row
	// to be revisited once the cycle closes.
	setUpCompilableMapping(t, ctx, c, "a")
	_, err := c.Compile(ctx, "a")
	require.NoError(t, err)

	setUpCompilableMapping(t, ctx, c, "b")
	bDep := compilableValueDetail("b")
	bDep.TargetColumn = "aRef"
	bDep.MapLogic = "dependsOn:a"
	bDep.KeyColumns = nil
	bDep.ValueColumns = nil
	_, err = c.UpsertMappingDetail(ctx, bDep)
	require.NoError(t, err)
	_, err = c.Compile(ctx, "b")
	require.NoError(t, err)

	// Now repoint a's dependency at b, closing the cycle a -> b -> a.
	aDep := compilablePKDetail("a")
	aDep.TargetColumn = "bRef"
	aDep.MapLogic = "dependsOn:b"
	aDep.PrimaryKeyFlag = false
	aDep.PrimaryKeySequence = 0
	aDep.KeyColumns = nil
	_, err = c.UpsertMappingDetail(ctx, aDep)
	require.NoError(t, err)

	_, err = c.Compile(ctx, "a")
	require.Error(t, err)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, codeDependencyCycle, ve.Code)
}
