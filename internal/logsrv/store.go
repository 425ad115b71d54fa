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

package logsrv

import (
	"context"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/kraklabs/dhscanner/pkg/logsink"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Database persists audit records in Postgres. Every pipeline component
// ships its records here through the logsink client; this side only
// ever inserts.
type Database struct {
	db *sqlx.DB
}

// Open connects to Postgres and applies pending migrations. The dsn
// comes from config.Postgres.DSN().
func Open(ctx context.Context, dsn string) (*Database, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open log database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping log database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply log migrations: %w", err)
	}
	return &Database{db: db}, nil
}

// NewDatabase wraps an already-open connection. Tests inject a sqlmock
// handle here.
func NewDatabase(db *sqlx.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Close() error {
	return d.db.Close()
}

// logRow is the insert shape. The wire message maps onto it one to one;
// level is the severity path segment the record arrived on.
type logRow struct {
	Level                 string  `db:"level"`
	FileUniqueID          string  `db:"file_unique_id"`
	JobID                 string  `db:"job_id"`
	Context               string  `db:"context"`
	OriginalFilename      string  `db:"original_filename"`
	Language              string  `db:"language"`
	Duration              float64 `db:"duration"`
	MoreDetails           string  `db:"more_details"`
	CorrespondingByteSize int     `db:"corresponding_byte_size"`
}

const insertLog = `
INSERT INTO logs (level, file_unique_id, job_id, context, original_filename,
                  language, duration, more_details, corresponding_byte_size)
VALUES (:level, :file_unique_id, :job_id, :context, :original_filename,
        :language, :duration, :more_details, :corresponding_byte_size)`

// Insert stores one validated record.
func (d *Database) Insert(ctx context.Context, level logsink.Level, m logsink.Message) error {
	row := logRow{
		Level:                 string(level),
		FileUniqueID:          m.FileUniqueID,
		JobID:                 m.JobID,
		Context:               string(m.Event),
		OriginalFilename:      m.OriginalFilename,
		Language:              string(m.Language),
		Duration:              m.Duration,
		MoreDetails:           m.MoreDetails,
		CorrespondingByteSize: m.CorrespondingByteSize,
	}
	if _, err := d.db.NamedExecContext(ctx, insertLog, row); err != nil {
		return fmt.Errorf("insert log record: %w", err)
	}
	return nil
}
