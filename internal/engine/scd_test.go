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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/dmsflow/core/internal/testutil"
	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func scd1Plan() types.JobFlowPlan {
	return types.JobFlowPlan{
		TargetTable: "dimCustomer",
		Columns: []types.JobFlowPlanColumn{
			{TargetColumn: "id", TargetDataType: "NUMBER", PrimaryKeyFlag: true},
			{TargetColumn: "name", TargetDataType: "VARCHAR2", ScdType: types.Scd1},
		},
	}
}

func mustTransform(t *testing.T, cols []types.JobFlowPlanColumn, values map[string]any) transformedRow {
	t.Helper()
	hashCols := append([]types.JobFlowPlanColumn(nil), cols...)
	return transformedRow{values: values, hash: rowHash(hashCols, values)}
}

func TestSCDMergeInsertsNewRow(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	plan := scd1Plan()
	merger := newSCDMerger(store, plan, "tester", fixedClock{time.Now()})

	row := mustTransform(t, plan.Columns, map[string]any{"id": int64(1), "name": "Ada"})
	ins, upd, skip, failed, err := merger.mergeChunk(context.Background(), []transformedRow{row}, plan.PrimaryKeyColumns())
	require.NoError(t, err)
	require.EqualValues(t, 1, ins)
	require.Zero(t, upd)
	require.Zero(t, skip)
	require.Zero(t, failed)

	rows := store.Rows("dimCustomer")
	require.Len(t, rows, 1)
	require.Equal(t, "Ada", rows[0]["name"])
}

func TestSCDMergeSkipsUnchangedRow(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	plan := scd1Plan()
	merger := newSCDMerger(store, plan, "tester", fixedClock{time.Now()})
	ctx := context.Background()

	row := mustTransform(t, plan.Columns, map[string]any{"id": int64(1), "name": "Ada"})
	_, _, _, _, err := merger.mergeChunk(ctx, []transformedRow{row}, plan.PrimaryKeyColumns())
	require.NoError(t, err)

	ins, upd, skip, failed, err := merger.mergeChunk(ctx, []transformedRow{row}, plan.PrimaryKeyColumns())
	require.NoError(t, err)
	require.Zero(t, ins)
	require.Zero(t, upd)
	require.EqualValues(t, 1, skip)
	require.Zero(t, failed)
	require.Len(t, store.Rows("dimCustomer"), 1)
}

func TestSCDMergeScd1UpdatesInPlace(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	plan := scd1Plan()
	merger := newSCDMerger(store, plan, "tester", fixedClock{time.Now()})
	ctx := context.Background()

	first := mustTransform(t, plan.Columns, map[string]any{"id": int64(1), "name": "Ada"})
	_, _, _, _, err := merger.mergeChunk(ctx, []transformedRow{first}, plan.PrimaryKeyColumns())
	require.NoError(t, err)

	changed := mustTransform(t, plan.Columns, map[string]any{"id": int64(1), "name": "Ada Lovelace"})
	ins, upd, skip, failed, err := merger.mergeChunk(ctx, []transformedRow{changed}, plan.PrimaryKeyColumns())
	require.NoError(t, err)
	require.Zero(t, ins)
	require.EqualValues(t, 1, upd)
	require.Zero(t, skip)
	require.Zero(t, failed)

	rows := store.Rows("dimCustomer")
	require.Len(t, rows, 1)
	require.Equal(t, "Ada Lovelace", rows[0]["name"])
}

func scd2Plan() types.JobFlowPlan {
	return types.JobFlowPlan{
		TargetTable: "dimCustomer",
		Columns: []types.JobFlowPlanColumn{
			{TargetColumn: "id", TargetDataType: "NUMBER", PrimaryKeyFlag: true},
			{TargetColumn: "city", TargetDataType: "VARCHAR2", ScdType: types.Scd2},
		},
	}
}

func TestSCDMergeScd2ExpiresAndInsertsNewVersion(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	plan := scd2Plan()
	merger := newSCDMerger(store, plan, "tester", fixedClock{time.Now()})
	ctx := context.Background()

	v1 := mustTransform(t, plan.Columns, map[string]any{"id": int64(1), "city": "Austin"})
	_, _, _, _, err := merger.mergeChunk(ctx, []transformedRow{v1}, plan.PrimaryKeyColumns())
	require.NoError(t, err)

	v2 := mustTransform(t, plan.Columns, map[string]any{"id": int64(1), "city": "Denver"})
	ins, upd, _, failed, err := merger.mergeChunk(ctx, []transformedRow{v2}, plan.PrimaryKeyColumns())
	require.NoError(t, err)
	require.EqualValues(t, 1, ins)
	require.EqualValues(t, 1, upd)
	require.Zero(t, failed)

	rows := store.Rows("dimCustomer")
	require.Len(t, rows, 2)

	var current, expired map[string]any
	for _, r := range rows {
		if r["currentFlag"] == "Y" {
			current = r
		} else {
			expired = r
		}
	}
	require.NotNil(t, current)
	require.NotNil(t, expired)
	require.Equal(t, "Denver", current["city"])
	require.Equal(t, "Austin", expired["city"])
	require.Equal(t, "N", expired["currentFlag"])
}

func scd3Plan() types.JobFlowPlan {
	return types.JobFlowPlan{
		TargetTable: "dimCustomer",
		Columns: []types.JobFlowPlanColumn{
			{TargetColumn: "id", TargetDataType: "NUMBER", PrimaryKeyFlag: true},
			{TargetColumn: "tier", TargetDataType: "VARCHAR2", ScdType: types.Scd3},
			{TargetColumn: "prevTier", TargetDataType: "VARCHAR2"},
		},
	}
}

func TestSCDMergeScd3CopiesPreviousValue(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	plan := scd3Plan()
	merger := newSCDMerger(store, plan, "tester", fixedClock{time.Now()})
	ctx := context.Background()

	v1 := mustTransform(t, plan.Columns, map[string]any{"id": int64(1), "tier": "silver", "prevTier": nil})
	_, _, _, _, err := merger.mergeChunk(ctx, []transformedRow{v1}, plan.PrimaryKeyColumns())
	require.NoError(t, err)

	v2 := mustTransform(t, plan.Columns, map[string]any{"id": int64(1), "tier": "gold", "prevTier": nil})
	_, upd, _, failed, err := merger.mergeChunk(ctx, []transformedRow{v2}, plan.PrimaryKeyColumns())
	require.NoError(t, err)
	require.EqualValues(t, 1, upd)
	require.Zero(t, failed)

	rows := store.Rows("dimCustomer")
	require.Len(t, rows, 1)
	require.Equal(t, "gold", rows[0]["tier"])
	require.Equal(t, "silver", rows[0]["prevTier"])
}
