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
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dmsflow/core/internal/types"
	"github.com/pkg/errors"
)

// RetryHandler wraps one chunk's work with exponential backoff and
// jitter, per spec §4.6.5: transient errors are retried up to maxTries,
// permanent errors fail the chunk immediately.
type RetryHandler struct {
	maxTries uint
	base     time.Duration
	cap      time.Duration
}

// NewRetryHandler builds a RetryHandler from the spec §6 retry knobs.
func NewRetryHandler(maxTries int, base, cap time.Duration) *RetryHandler {
	if maxTries < 0 {
		maxTries = 0
	}
	return &RetryHandler{maxTries: uint(maxTries) + 1, base: base, cap: cap}
}

// Do runs op, retrying transient failures with exponential backoff.
// Permanent errors (classified by classify) and ErrStopRequested/
// LeaseLostError stop retrying immediately.
func (r *RetryHandler) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.base
	bo.MaxInterval = r.cap

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := op(ctx); err != nil {
			if isPermanent(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(r.maxTries))
	return err
}

// isPermanent reports whether err must not be retried: a
// PermanentDbError, a StopRequested, a LeaseLostError, or a
// ValidationError.
func isPermanent(err error) bool {
	cause := errors.Cause(err)
	switch cause.(type) {
	case *types.PermanentDbError, *types.LeaseLostError, *types.ValidationError:
		return true
	}
	if cause == types.ErrStopRequested {
		return true
	}
	return false
}
