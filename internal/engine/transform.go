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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmsflow/core/internal/engine/formula"
	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// transformedRow is one source row after column mapping, derivation,
// coercion, and default-fill, plus its change-detection hash.
type transformedRow struct {
	values map[string]any
	hash   string
}

// transformRow implements spec §4.6.2 steps (ii)-(v): the source
// query's SELECT list already applies step (i)'s column mapping by
// aliasing each source expression to its target column name, so src is
// keyed by target column.
func transformRow(cols []types.JobFlowPlanColumn, src formula.Row) (transformedRow, error) {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		v := src[c.TargetColumn]
		if c.DerivationFormula != "" {
			derived, err := formula.Eval(c.DerivationFormula, src)
			if err != nil {
				return transformedRow{}, errors.Wrapf(err, "engine: evaluating derivation for %q", c.TargetColumn)
			}
			v = derived
		}
		coerced, err := coerce(v, c.TargetDataType)
		if err != nil {
			return transformedRow{}, errors.Wrapf(err, "engine: coercing %q to %s", c.TargetColumn, c.TargetDataType)
		}
		if coerced == nil && c.IsRequired {
			if c.DefaultValue == "" {
				return transformedRow{}, errors.Errorf("engine: %q is required but null with no default", c.TargetColumn)
			}
			coerced, err = coerce(c.DefaultValue, c.TargetDataType)
			if err != nil {
				return transformedRow{}, errors.Wrapf(err, "engine: coercing default for %q", c.TargetColumn)
			}
		}
		out[c.TargetColumn] = coerced
	}
	return transformedRow{values: out, hash: rowHash(cols, out)}, nil
}

// rowHash digests every non-audit target column's value, in declared
// order, so an unchanged source row always produces the same hash
// regardless of map iteration order.
func rowHash(cols []types.JobFlowPlanColumn, values map[string]any) string {
	h := sha256.New()
	for _, c := range cols {
		fmt.Fprintf(h, "%v\x1f", values[c.TargetColumn])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// coerce converts v to the declared target data type. It is a best-
// effort safety net: the compiler's data-type registry is what catches
// an unsupported target type at Mapping validation time, not this.
func coerce(v any, dataType string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch strings.ToUpper(dataType) {
	case "NUMBER", "NUMERIC", "INT8", "INT4", "INTEGER":
		return toFloat64(v)
	case "VARCHAR2", "VARCHAR", "TEXT", "CHAR":
		return toString(v), nil
	case "BOOL", "BOOLEAN":
		return toBool(v)
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ":
		return toTime(v)
	default:
		return v, nil
	}
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errors.Wrapf(err, "not numeric: %q", t)
		}
		return f, nil
	default:
		return 0, errors.Errorf("cannot coerce %T to numeric", v)
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, errors.Wrapf(err, "not boolean: %q", t)
		}
		return b, nil
	default:
		return false, errors.Errorf("cannot coerce %T to boolean", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, errors.Errorf("not a recognized timestamp: %q", t)
	default:
		return time.Time{}, errors.Errorf("cannot coerce %T to timestamp", v)
	}
}
