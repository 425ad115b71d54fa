// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/kraklabs/dhscanner/internal/config"
	"github.com/kraklabs/dhscanner/internal/errors"
	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/storage"
)

// newLogger builds the process logger. Debug mode is per subcommand
// because workers are chatty and the server is not.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// newSink builds the audit record client. An empty URL means records
// only reach the local logger, which is how tests and dev setups run.
func newSink(cfg *config.Config, logger *slog.Logger) logsink.Sink {
	if cfg.LoggerURL == "" {
		return logsink.Nop{}
	}
	return logsink.NewClient(cfg.LoggerURL, logger)
}

// newStore opens the artifact store or dies with a user-facing error.
func newStore(cfg *config.Config, sink logsink.Sink, logger *slog.Logger, globals GlobalFlags) storage.Store {
	store, err := storage.NewLocal(storage.LocalConfig{
		Root:      cfg.ArtifactsDir,
		IndexPath: cfg.IndexDB,
	}, sink, logger)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open the artifact store",
			"Creating the artifacts directory or its SQLite index failed",
			"Check DHSCANNER_ARTIFACTS_DIR exists and is writable",
			err,
		), globals.JSON)
	}
	return store
}

// newCoordinator connects to Redis and verifies it answers before any
// worker starts polling it.
func newCoordinator(cfg *config.Config, logger *slog.Logger, globals GlobalFlags) *coordinator.Redis {
	coord := coordinator.NewRedis(coordinator.RedisConfig{Addr: cfg.RedisAddr}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coord.Ping(ctx); err != nil {
		errors.FatalError(errors.NewNetworkError(
			"Cannot reach the job status coordinator",
			"Redis did not answer a ping at "+cfg.RedisAddr,
			"Check REDIS_ADDR and that the redis container is up",
			err,
		), globals.JSON)
	}
	return coord
}

// loadConfig reads the yaml file (if given) and the environment, and
// dies with a user-facing error when either is malformed.
func loadConfig(configPath string, globals GlobalFlags) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	return cfg
}
