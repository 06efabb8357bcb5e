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

// Validation error codes. Numbering follows the source system's
// convention of small, stable integers; 134 ("SQL Code cannot be null")
// is pinned by spec scenario S2's sibling examples.
const (
	codeSqlCodeNull          = 134
	codeNameEmpty             = 140
	codeNameIllegalChar       = 141
	codeNameLeadingDigit      = 142
	codeNameHasSpace          = 143
	codeUnknownDataType       = 150
	codeNoPrimaryKey          = 160
	codePrimaryKeySequence    = 161
	codeDuplicateTargetColumn = 170
	codeDuplicateValueColumn  = 171
	codeCombinationSequence   = 172
	codeLogicColumnNotProjected = 180
	codeMappingReferenceEmpty  = 190
	codeDependencyCycle        = 200
)
