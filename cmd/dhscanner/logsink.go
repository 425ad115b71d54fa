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
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/dhscanner/internal/errors"
	"github.com/kraklabs/dhscanner/internal/logsrv"
	"github.com/kraklabs/dhscanner/internal/ui"
)

// runLogsink executes the 'logsink' CLI command, serving the central
// audit record store the pipeline components post to.
func runLogsink(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("logsink", flag.ExitOnError)
	listen := fs.String("listen", "", "Override the HTTP bind address")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dhscanner logsink [options]

Description:
  Serve the central log sink. Pipeline components post structured audit
  records here (POST /log/{level}) and the service stores them in
  Postgres. Migrations are applied automatically on startup.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  dhscanner logsink
  dhscanner logsink --listen :8001
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(configPath, globals)
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	logger := newLogger(*debug)

	ui.Header("Starting dhscanner log sink")

	db, err := logsrv.Open(context.Background(), cfg.Postgres.DSN())
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open the log database",
			"Connecting to Postgres or applying migrations failed",
			"Check the POSTGRES_* environment variables and that the database is up",
			err,
		), globals.JSON)
	}
	defer db.Close()
	ui.Success("Log database ready at " + cfg.Postgres.Host)

	api := logsrv.New(db, logger)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	ui.Success("Log sink listening on " + cfg.ListenAddr)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		errors.FatalError(errors.NewNetworkError(
			"Log sink server failed",
			"ListenAndServe returned unexpectedly",
			"Check that "+cfg.ListenAddr+" is free and bindable",
			err,
		), globals.JSON)
	}
	logger.Info("logsink.stopped")
}
