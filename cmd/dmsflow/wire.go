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

//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/dmsflow/core/internal/api"
	"github.com/dmsflow/core/internal/config"
	"github.com/dmsflow/core/internal/scheduler"
	"github.com/google/wire"
)

// InitializeApp builds the fully wired App for the given configuration.
// This function's body is never compiled; `wire` reads it to generate
// wire_gen.go. It is kept here, unbuilt, as the dependency graph's
// source of truth.
func InitializeApp(ctx context.Context, cfg *config.CoreConfig) (*App, func(), error) {
	wire.Build(
		provideLogger,
		provideLocation,
		providePool,
		provideMetadataStore,
		provideIdProvider,
		provideCompiler,
		provideProgressTracker,
		provideQueue,
		provideEngine,
		provideSchedulerConfig,
		provideScheduler,
		provideFacade,
		wire.Struct(new(App), "*"),
	)
	var _ = scheduler.Config{}
	var _ = api.Facade{}
	return nil, nil, nil
}
