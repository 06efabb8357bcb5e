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

// Command dmsflow runs the scheduler's sync/poll loops against one
// configured database until it receives SIGINT/SIGTERM, at which point
// it stops the cron loops and exits without waiting for in-flight runs,
// whose context is cancelled by the same signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmsflow/core/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func claimantID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func main() {
	var cfg config.CoreConfig
	cfg.Bind(pflag.CommandLine)
	pflag.Parse()

	if err := cfg.Preflight(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := InitializeApp(ctx, &cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize")
	}
	defer cleanup()

	app.Logger.WithFields(log.Fields{
		"dbType":     cfg.DbType,
		"claimantID": claimantID(),
	}).Info("dmsflow starting")

	if err := app.Scheduler.Run(ctx); err != nil {
		app.Logger.WithError(err).Fatal("scheduler exited with error")
	}
	app.Logger.Info("dmsflow stopped")
}
