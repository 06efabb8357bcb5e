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

import "github.com/dmsflow/core/internal/types"

// dataTypeRegistry lists the known target data types per dbType, grounded
// on the teacher's types.Product enum (ProductOracle, ProductPostgreSQL,
// ProductCockroachDB already distinguish the same two families we call
// D1 and D2).
var dataTypeRegistry = map[types.DbType]map[string]bool{
	types.DbTypeD1: {
		"VARCHAR2": true,
		"NUMBER":   true,
		"DATE":     true,
		"TIMESTAMP": true,
		"CLOB":     true,
		"CHAR":     true,
	},
	types.DbTypeD2: {
		"TEXT":        true,
		"VARCHAR":     true,
		"NUMERIC":     true,
		"INT8":        true,
		"INT4":        true,
		"BOOL":        true,
		"TIMESTAMPTZ": true,
		"TIMESTAMP":   true,
		"JSONB":       true,
	},
}

// knownDataType reports whether dataType is registered for dbType.
func knownDataType(dbType types.DbType, dataType string) bool {
	reg, ok := dataTypeRegistry[dbType]
	if !ok {
		return false
	}
	return reg[dataType]
}
