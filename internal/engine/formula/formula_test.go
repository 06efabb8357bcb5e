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

package formula_test

import (
	"testing"

	"github.com/dmsflow/core/internal/engine/formula"
	"github.com/stretchr/testify/require"
)

func TestEvalArithmetic(t *testing.T) {
	row := formula.Row{"qty": 3.0, "price": 2.5}
	v, err := formula.Eval("qty * price", row)
	require.NoError(t, err)
	require.Equal(t, 7.5, v)
}

func TestEvalRound(t *testing.T) {
	v, err := formula.Eval("ROUND(3.14159, 2)", nil)
	require.NoError(t, err)
	require.Equal(t, 3.14, v)
}

func TestEvalAbs(t *testing.T) {
	v, err := formula.Eval("ABS(-5)", nil)
	require.NoError(t, err)
	require.Equal(t, 5.0, v)
}

func TestEvalCoalesce(t *testing.T) {
	row := formula.Row{"middleName": nil}
	v, err := formula.Eval("COALESCE(middleName, 'N/A')", row)
	require.NoError(t, err)
	require.Equal(t, "N/A", v)
}

func TestEvalConcatAndCase(t *testing.T) {
	row := formula.Row{"first": "ada", "last": "lovelace"}
	v, err := formula.Eval("CONCAT(UPPER(first), ' ', LOWER(last))", row)
	require.NoError(t, err)
	require.Equal(t, "ADA lovelace", v)
}

func TestEvalLen(t *testing.T) {
	v, err := formula.Eval("LEN('hello')", nil)
	require.NoError(t, err)
	require.Equal(t, 5.0, v)
}

func TestEvalSplit(t *testing.T) {
	row := formula.Row{"fullName": "Smith,John"}
	v, err := formula.Eval("SPLIT(fullName, ',', 1)", row)
	require.NoError(t, err)
	require.Equal(t, "John", v)
}

func TestEvalAmpersandConcat(t *testing.T) {
	row := formula.Row{"a": "foo", "b": "bar"}
	v, err := formula.Eval("a & '-' & b", row)
	require.NoError(t, err)
	require.Equal(t, "foo-bar", v)
}

func TestEvalUnknownColumn(t *testing.T) {
	_, err := formula.Eval("missingCol", formula.Row{})
	require.Error(t, err)
}

func TestEvalDivisionByZero(t *testing.T) {
	_, err := formula.Eval("1 / 0", nil)
	require.Error(t, err)
}
