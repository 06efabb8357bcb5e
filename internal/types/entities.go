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

import "time"

// Audit holds the four audit columns every historized or target row
// carries.
type Audit struct {
	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// SqlSnippet is a named, reusable piece of source SQL.
type SqlSnippet struct {
	ID          int64
	Code        string // unique
	Body        string // large text
	CurrentFlag CurrentFlag
	Audit
}

// LogicVerified records whether a piece of SQL logic has been confirmed
// to validate, and when.
type LogicVerified struct {
	Verified bool
	At       time.Time
}

// CheckpointSpec is the checkpoint configuration carried by a Mapping.
type CheckpointSpec struct {
	Strategy   CheckpointStrategy
	ColumnName string // required when Strategy is KEY; advisory for AUTO
	Enabled    bool
}

// Mapping is the declarative source -> target contract.
type Mapping struct {
	ID                int64
	Reference         string // unique, non-empty
	Description       string
	TargetSchema      string
	TargetTableType   TargetTableType
	TargetTableName   string
	FrequencyCode     FrequencyCode
	SourceSystem      string
	LogicVerified     LogicVerified
	StatusFlag        StatusFlag
	BlockProcessRows  int
	TargetConnectionID *int64
	Checkpoint        CheckpointSpec
	CurrentFlag       CurrentFlag
	Audit
}

// MappingDetail is one target column rule belonging to a Mapping.
type MappingDetail struct {
	ID                 int64
	MappingReference    string
	TargetColumn        string
	TargetDataType      string
	PrimaryKeyFlag      bool
	PrimaryKeySequence  int // dense, unique among PKs; 0 when not a PK
	Description         string
	MapLogic             string // raw SQL, or "snippet:<code>" reference
	KeyColumns           []string
	ValueColumns         []string
	CombinationCode      string
	ExecutionSequence    int
	ScdType              ScdType
	LogicVerified        LogicVerified
	DefaultValue         string
	IsRequired           bool
	DerivationFlag       bool
	DerivationFormula    string
	CurrentFlag          CurrentFlag
	Audit
}

// JobFlow is the compiled, executable plan produced for one Mapping.
type JobFlow struct {
	ID                 int64
	MappingReference   string
	DwLogic            string // serialized execution plan
	BlockProcessRows   int
	TargetConnectionID *int64
	Dependency         *int64 // parent JobFlow id, forms a DAG
	CurrentFlag        CurrentFlag
	Audit
}

// Schedule is the time specification for automatic runs of a JobFlow.
type Schedule struct {
	ID         int64
	JobFlowID  int64
	Frequency  FrequencyCode
	Frqdd      string // day-of-week (WK) or day-of-month (MN)
	Hour       int    // 0-23
	Minute     int    // 0-59
	StartDate  time.Time
	EndDate    *time.Time
	StatusFlag StatusFlag
	LastRunAt  *time.Time
	NextRunAt  *time.Time
}

// HistoryLoad describes a bounded backfill window for a history-load
// Request.
type HistoryLoad struct {
	StartDate time.Time
	EndDate   time.Time
	Truncate  bool
}

// RequestPayload is the body of a Request.
type RequestPayload struct {
	LoadType LoadType
	History  *HistoryLoad // set only when LoadType == LoadHistory
}

// Request is a work item for the scheduler: RUN or STOP.
type Request struct {
	ID              int64
	MappingReference string
	Type            RequestType
	Payload         RequestPayload
	Status          RequestStatus
	RequestedAt     time.Time
	ClaimedAt       *time.Time
	CompletedAt     *time.Time
	ClaimantID      string
	Message         string
}

// RunLog is one row per execution attempt.
type RunLog struct {
	ID                int64
	MappingReference  string
	SessionID         string
	Status            RunStatus
	StartAt           time.Time
	EndAt             *time.Time
	RowsRead          int64
	RowsWritten       int64
	RowsFailed        int64
	Message           string
	CheckpointValue   string // param1; interpretation depends on CheckpointSpec
	OwnerID           string // claimant holding the IP lease
}

// IdPoolRow is one counter row for the block-counter IdProvider strategy.
type IdPoolRow struct {
	EntityName   string // unique
	CurrentValue int64
	BlockSize    int64
	Version      int64
}

// ErrorRecord is a structured validation error persisted for operator
// visibility.
type ErrorRecord struct {
	ID               int64
	MappingReference string
	Code             int
	Params           []string
	Message          string
	Timestamp        time.Time
}
