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
	"time"

	"github.com/dmsflow/core/internal/testutil"
	"github.com/dmsflow/core/internal/types"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestCompiler(store types.Store) *Compiler {
	return New(store, testutil.NewFakeIDs(), WithClock(fixedClock{time.Now()}), WithActor("tester"))
}

func sampleMapping(ref string) types.Mapping {
	return types.Mapping{
		Reference:       ref,
		Description:     "customer dimension",
		TargetSchema:    "analytics",
		TargetTableType: types.TableDIM,
		TargetTableName: "dimCustomer",
		FrequencyCode:   types.FreqDaily,
		SourceSystem:    "crm",
		Checkpoint:      types.CheckpointSpec{Strategy: types.CheckpointNone},
	}
}

func TestUpsertSqlSnippetRejectsEmptyCode(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)

	_, err := c.UpsertSqlSnippet(context.Background(), "", "SELECT 1")
	require.Error(t, err)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, codeSqlCodeNull, ve.Code)
}

func TestUpsertSqlSnippetReturnsSameIDWhenUnchanged(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()

	id1, err := c.UpsertSqlSnippet(ctx, "ACTIVE_CUST", "SELECT 1")
	require.NoError(t, err)

	id2, err := c.UpsertSqlSnippet(ctx, "ACTIVE_CUST", "SELECT 1;")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Len(t, store.Rows("SqlSnippet"), 1)
}

func TestUpsertSqlSnippetHistorizesOnChange(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()

	id1, err := c.UpsertSqlSnippet(ctx, "ACTIVE_CUST", "SELECT 1")
	require.NoError(t, err)

	id2, err := c.UpsertSqlSnippet(ctx, "ACTIVE_CUST", "SELECT 2")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	rows := store.Rows("SqlSnippet")
	require.Len(t, rows, 2)
	var liveCount int
	for _, r := range rows {
		if r["currentFlag"] == "Y" {
			liveCount++
			require.Equal(t, "SELECT 2", r["body"])
		}
	}
	require.Equal(t, 1, liveCount)
}

func TestUpsertMappingRejectsEmptyReference(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)

	m := sampleMapping("")
	_, err := c.UpsertMapping(context.Background(), m)
	require.Error(t, err)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, codeMappingReferenceEmpty, ve.Code)
}

func TestUpsertMappingRejectsIllegalTableName(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)

	m := sampleMapping("m1")
	m.TargetTableName = "1bad name"
	_, err := c.UpsertMapping(context.Background(), m)
	require.Error(t, err)
}

func TestUpsertMappingIsIdempotentWhenUnchanged(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()
	m := sampleMapping("m1")

	id1, err := c.UpsertMapping(ctx, m)
	require.NoError(t, err)
	id2, err := c.UpsertMapping(ctx, m)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Len(t, store.Rows("Mapping"), 1)
}

func TestUpsertMappingHistorizesOnFieldChange(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()
	m := sampleMapping("m1")

	id1, err := c.UpsertMapping(ctx, m)
	require.NoError(t, err)

	m.Description = "updated description"
	id2, err := c.UpsertMapping(ctx, m)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	rows := store.Rows("Mapping")
	require.Len(t, rows, 2)
	var live map[string]any
	for _, r := range rows {
		if r["currentFlag"] == "Y" {
			live = r
		}
	}
	require.NotNil(t, live)
	require.Equal(t, "updated description", live["description"])
}

func sampleDetail(ref, col string) types.MappingDetail {
	return types.MappingDetail{
		MappingReference: ref,
		TargetColumn:     col,
		TargetDataType:   "VARCHAR2",
		PrimaryKeyFlag:   false,
		ScdType:          types.Scd1,
	}
}

func TestUpsertMappingDetailHistorizesOnChange(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)
	ctx := context.Background()
	d := sampleDetail("m1", "name")

	id1, err := c.UpsertMappingDetail(ctx, d)
	require.NoError(t, err)

	d.ScdType = types.Scd2
	id2, err := c.UpsertMappingDetail(ctx, d)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
	require.Len(t, store.Rows("MappingDetail"), 2)
}

func TestUpsertMappingDetailRejectsIllegalColumnName(t *testing.T) {
	store := testutil.NewFakeStore(types.DbTypeD2)
	c := newTestCompiler(store)

	d := sampleDetail("m1", "bad column")
	_, err := c.UpsertMappingDetail(context.Background(), d)
	require.Error(t, err)
}
