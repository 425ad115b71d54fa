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
	"github.com/kraklabs/dhscanner/internal/ingress"
	"github.com/kraklabs/dhscanner/internal/ui"
)

// runServer executes the 'server' CLI command, serving the public scan
// API until interrupted.
func runServer(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	listen := fs.String("listen", "", "Override the HTTP bind address")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dhscanner server [options]

Description:
  Serve the public scan API. Clients mint a job id, upload source files,
  kick off analysis, poll status, and collect SARIF results. The server
  needs the Redis coordinator and the artifact store; the stage workers
  do the actual scanning.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  dhscanner server
  dhscanner server --listen :9000 --debug
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(configPath, globals)
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if err := cfg.RequireBearerToken(); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	logger := newLogger(*debug)
	sink := newSink(cfg, logger)

	ui.Header("Starting dhscanner scan API")

	store := newStore(cfg, sink, logger, globals)
	defer store.Close()
	ui.Success("Artifact store ready at " + cfg.ArtifactsDir)

	coord := newCoordinator(cfg, logger, globals)
	defer coord.Close()
	ui.Success("Coordinator answering at " + cfg.RedisAddr)

	api := ingress.New(cfg, store, coord, sink, logger)
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

	ui.Success("Scan API listening on " + cfg.ListenAddr)
	for _, slug := range cfg.ApprovedURLs {
		ui.Info("Serving client slug /api/" + slug)
	}

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		errors.FatalError(errors.NewNetworkError(
			"Scan API server failed",
			"ListenAndServe returned unexpectedly",
			"Check that "+cfg.ListenAddr+" is free and bindable",
			err,
		), globals.JSON)
	}
	logger.Info("server.stopped")
}
