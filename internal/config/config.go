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

// Package config loads the shared configuration of every dhscanner
// process (ingress server, stage workers, log sink server).
//
// Resolution order: built-in defaults, then an optional yaml file
// (--config), then environment variables. Environment always wins, so
// a compose file can override a checked-in yaml without editing it.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/dhscanner/internal/errors"
)

// Defaults mirror the docker-compose service names and volume mounts
// baked into the container images.
const (
	DefaultListenAddr   = ":8000"
	DefaultArtifactsDir = "/app/transient_storage/dhscanner_jobs"
	DefaultRedisAddr    = "redis:6379"
	DefaultLoggerURL    = "http://logger:8000"
	DefaultApprovedURL  = "scan"

	DefaultPostgresHost     = "logger"
	DefaultPostgresDatabase = "logs"
	DefaultPostgresUser     = "user"
	DefaultPostgresPassword = "password"
)

// Config is the process configuration shared by all subcommands. Each
// subcommand reads the subset it needs; unset fields keep defaults.
type Config struct {
	// ListenAddr is the HTTP bind address of the ingress server and
	// the log sink server.
	ListenAddr string `yaml:"listen_addr"`

	// ArtifactsDir is the root of the transient artifact store, one
	// subdirectory per job.
	ArtifactsDir string `yaml:"artifacts_dir"`

	// IndexDB is the SQLite metadata index file. Empty means the
	// store's default (<artifacts dir>/index.db).
	IndexDB string `yaml:"index_db,omitempty"`

	// RedisAddr is the job status coordinator address.
	RedisAddr string `yaml:"redis_addr"`

	// LoggerURL is the base URL of the central log sink
	// (records are posted to <LoggerURL>/log/<LEVEL>).
	LoggerURL string `yaml:"logger_url"`

	// BearerToken authorizes clients of the ingress API. Required by
	// the server subcommand; workers never read it.
	BearerToken string `yaml:"bearer_token,omitempty"`

	// ApprovedURLs lists the per-client URL slugs. Each slug gets its
	// own rate-limited route group under /api/<slug>/.
	ApprovedURLs []string `yaml:"approved_urls"`

	// Postgres is the log sink server's database.
	Postgres Postgres `yaml:"postgres"`
}

// Postgres holds the connection settings of the central log database.
type Postgres struct {
	Host     string `yaml:"host"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// DSN renders the settings as a pgx connection string. The log
// database lives on the compose-internal network, so TLS is off.
func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Database)
}

// Default returns the built-in configuration, before any yaml or
// environment overrides.
func Default() *Config {
	return &Config{
		ListenAddr:   DefaultListenAddr,
		ArtifactsDir: DefaultArtifactsDir,
		RedisAddr:    DefaultRedisAddr,
		LoggerURL:    DefaultLoggerURL,
		ApprovedURLs: []string{DefaultApprovedURL},
		Postgres: Postgres{
			Host:     DefaultPostgresHost,
			Database: DefaultPostgresDatabase,
			User:     DefaultPostgresUser,
			Password: DefaultPostgresPassword,
		},
	}
}

// Load resolves the effective configuration. path may be empty, in
// which case only defaults and environment variables apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --config flag
		if err != nil {
			return nil, errors.NewConfigError(
				"Cannot read configuration file",
				fmt.Sprintf("Failed to read %s", path),
				"Check the --config path and file permissions",
				err,
			)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfigError(
				"Invalid configuration format",
				fmt.Sprintf("YAML parsing failed for %s", path),
				"Fix the yaml syntax errors or remove the file to fall back to environment variables",
				err,
			)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// slugPattern keeps approved URL slugs routable: they are spliced into
// the /api/<slug>/ path verbatim.
var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func (c *Config) validate() error {
	if len(c.ApprovedURLs) == 0 {
		return errors.NewConfigError(
			"No approved URLs configured",
			"The ingress API needs at least one per-client URL slug",
			"Set NUM_APPROVED_URLS and APPROVED_URL_0, or list approved_urls in the config file",
			nil,
		)
	}
	for _, slug := range c.ApprovedURLs {
		if !slugPattern.MatchString(slug) {
			return errors.NewConfigError(
				"Invalid approved URL slug",
				fmt.Sprintf("Slug %q contains characters that cannot appear in a URL path segment", slug),
				"Use only letters, digits, hyphens and underscores",
				nil,
			)
		}
	}
	return nil
}

// applyEnvOverrides lays the environment on top of whatever the yaml
// file provided. Variables are only consulted when set, so yaml values
// survive unless the deployment explicitly overrides them.
func (c *Config) applyEnvOverrides() error {
	c.ListenAddr = getEnv("DHSCANNER_LISTEN_ADDR", c.ListenAddr)
	c.ArtifactsDir = getEnv("DHSCANNER_ARTIFACTS_DIR", c.ArtifactsDir)
	c.IndexDB = getEnv("DHSCANNER_INDEX_DB", c.IndexDB)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.LoggerURL = getEnv("DHSCANNER_LOGGER_URL", c.LoggerURL)
	c.BearerToken = getEnv("APPROVED_BEARER_TOKEN_0", c.BearerToken)

	c.Postgres.Host = getEnv("POSTGRES_HOST", c.Postgres.Host)
	c.Postgres.Database = getEnv("POSTGRES_DB", c.Postgres.Database)
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)

	// One slug per client. NUM_APPROVED_URLS=N reads APPROVED_URL_0
	// through APPROVED_URL_{N-1}; unset entries fall back to the
	// default slug, matching the single-tenant compose setup.
	if os.Getenv("NUM_APPROVED_URLS") != "" || os.Getenv("APPROVED_URL_0") != "" {
		count := 1
		if raw := os.Getenv("NUM_APPROVED_URLS"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				return errors.NewConfigError(
					"Invalid NUM_APPROVED_URLS",
					fmt.Sprintf("Expected a positive integer, got %q", raw),
					"Set NUM_APPROVED_URLS to the number of APPROVED_URL_<i> variables",
					err,
				)
			}
			count = parsed
		}
		urls := make([]string, 0, count)
		for i := 0; i < count; i++ {
			urls = append(urls, getEnv(fmt.Sprintf("APPROVED_URL_%d", i), DefaultApprovedURL))
		}
		c.ApprovedURLs = urls
	}
	return nil
}

// RequireBearerToken enforces the ingress server's startup contract:
// without a token every client would be rejected, so refuse to start.
func (c *Config) RequireBearerToken() error {
	if c.BearerToken == "" {
		return errors.NewConfigError(
			"No bearer token configured",
			"APPROVED_BEARER_TOKEN_0 is unset and the config file has no bearer_token",
			"Export APPROVED_BEARER_TOKEN_0 before starting the server",
			nil,
		)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a fallback value
// if not set.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
