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

// Package main implements the dhscanner CLI, the single binary behind
// every service of the scanning cluster.
//
// Usage:
//
//	dhscanner server              Run the public scan API
//	dhscanner worker [stage]      Run stage workers (default: all stages)
//	dhscanner logsink             Run the central log sink service
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/dhscanner/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool // Output errors in JSON format
	NoColor bool // Disable color output
	Quiet   bool // Suppress non-essential output
}

// main parses global flags and dispatches to the subcommand handlers.
//
// Global flags:
//   - --version: Display version information and exit
//   - --config: Path to a yaml config file (environment still wins)
//   - --json: Emit fatal errors as JSON
//   - --no-color: Disable color output
//
// Commands:
//   - server: Run the public scan API
//   - worker: Run stage workers
//   - logsink: Run the central log sink service
func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to a yaml config file (env vars override it)")
		jsonOutput  = flag.Bool("json", false, "Output fatal errors in JSON format")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)

	// Stop parsing at the first non-flag argument (the command name) so
	// subcommand flags like "worker --tick 5s" reach their own FlagSet.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `dhscanner - multi-language static analysis pipeline

dhscanner scans container images and repositories for injection- and
dataflow-class vulnerabilities. Clients upload source files, the
pipeline parses them into a common AST dialect, compiles a logic
knowledge base, and runs security queries over it. Findings come back
as a SARIF 2.1.0 document.

Usage:
  dhscanner <command> [options]

Commands:
  server        Run the public scan API (upload/analyze/status/results)
  worker        Run stage workers (native-parse, dhscanner-parse,
                codegen, kbgen, queryengine, results)
  logsink       Run the central log sink service

Global Options:
  --json            Output fatal errors in JSON format
  --no-color        Disable color output (respects NO_COLOR env var)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to a yaml config file
  -V, --version     Show version and exit

Examples:
  dhscanner server                        Serve the scan API on :8000
  dhscanner worker                        Run all six stage workers
  dhscanner worker native-parse           Run a single stage
  dhscanner logsink                       Serve the log sink on :8000

Environment Variables:
  DHSCANNER_LISTEN_ADDR      HTTP bind address (default :8000)
  DHSCANNER_ARTIFACTS_DIR    Artifact store root directory
  DHSCANNER_INDEX_DB         SQLite metadata index path
  REDIS_ADDR                 Job status coordinator (default redis:6379)
  DHSCANNER_LOGGER_URL       Log sink base URL
  APPROVED_BEARER_TOKEN_0    Bearer token accepted by the scan API
  NUM_APPROVED_URLS          Number of APPROVED_URL_<i> client slugs
  POSTGRES_HOST/DB/USER/PASSWORD  Log sink database

For detailed command help: dhscanner <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("dhscanner version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Quiet:   *quiet,
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "server":
		runServer(cmdArgs, *configPath, globals)
	case "worker":
		runWorker(cmdArgs, *configPath, globals)
	case "logsink":
		runLogsink(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
