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

package types

// JobFlowPlan is the serialized form of a JobFlow's dwLogic: everything
// the execution engine needs to run a mapping without re-reading
// MappingDetail rows. The compiler produces it; the engine consumes it.
type JobFlowPlan struct {
	MappingReference string              `json:"mappingReference"`
	TargetSchema     string              `json:"targetSchema"`
	TargetTable      string              `json:"targetTable"`
	SourceFrom       string              `json:"sourceFrom"` // a table/view name or "(subquery) alias"
	Checkpoint       CheckpointSpec      `json:"checkpoint"`
	Columns          []JobFlowPlanColumn `json:"columns"`
}

// JobFlowPlanColumn is one target column's compiled rule.
type JobFlowPlanColumn struct {
	TargetColumn      string  `json:"targetColumn"`
	TargetDataType    string  `json:"targetDataType"`
	PrimaryKeyFlag    bool    `json:"primaryKeyFlag"`
	MapLogic          string  `json:"mapLogic"`
	ScdType           ScdType `json:"scdType"`
	DefaultValue      string  `json:"defaultValue"`
	IsRequired        bool    `json:"isRequired"`
	DerivationFormula string  `json:"derivationFormula,omitempty"`
}

// PrimaryKeyColumns returns the plan's columns flagged as primary key,
// in declaration order.
func (p JobFlowPlan) PrimaryKeyColumns() []JobFlowPlanColumn {
	var out []JobFlowPlanColumn
	for _, c := range p.Columns {
		if c.PrimaryKeyFlag {
			out = append(out, c)
		}
	}
	return out
}
