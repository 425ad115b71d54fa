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

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// indexSchema is applied on every open; all statements are idempotent.
// The schema is private to this package: workers only ever go through
// the Store interface.
const indexSchema = `
CREATE TABLE IF NOT EXISTS files (
	unique_id         TEXT PRIMARY KEY,
	job_id            TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	language          TEXT NOT NULL,
	module_name       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_files_job ON files (job_id);

CREATE TABLE IF NOT EXISTS native_asts (
	unique_id         TEXT PRIMARY KEY,
	job_id            TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	language          TEXT NOT NULL,
	module_name       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_native_asts_job ON native_asts (job_id);

CREATE TABLE IF NOT EXISTS dhscanner_asts (
	unique_id         TEXT PRIMARY KEY,
	job_id            TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	language          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dhscanner_asts_job ON dhscanner_asts (job_id);

CREATE TABLE IF NOT EXISTS callables (
	unique_id         TEXT PRIMARY KEY,
	job_id            TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	language          TEXT NOT NULL,
	num_callables     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_callables_job ON callables (job_id);

CREATE TABLE IF NOT EXISTS knowledge_base_facts (
	unique_id         TEXT PRIMARY KEY,
	callables_id      TEXT NOT NULL,
	idx               INTEGER NOT NULL,
	job_id            TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	language          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knowledge_base_facts_job ON knowledge_base_facts (job_id);

CREATE TABLE IF NOT EXISTS results (
	unique_id TEXT PRIMARY KEY,
	job_id    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_job ON results (job_id);

CREATE TABLE IF NOT EXISTS outputs (
	unique_id TEXT PRIMARY KEY,
	job_id    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outputs_job ON outputs (job_id);
`

// index is the SQLite-backed metadata index of the local store.
type index struct {
	db *sqlx.DB
}

func openIndex(path string) (*index, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure metadata schema: %w", err)
	}
	return &index{db: db}, nil
}

func (x *index) close() error {
	return x.db.Close()
}

func (x *index) upsertFile(ctx context.Context, f File) error {
	_, err := x.db.NamedExecContext(ctx, `
		INSERT INTO files (unique_id, job_id, original_filename, language, module_name)
		VALUES (:unique_id, :job_id, :original_filename, :language, :module_name)
		ON CONFLICT(unique_id) DO UPDATE SET
			job_id = excluded.job_id,
			original_filename = excluded.original_filename,
			language = excluded.language,
			module_name = excluded.module_name`, f)
	if err != nil {
		return fmt.Errorf("index source file: %w", err)
	}
	return nil
}

func (x *index) filesByJob(ctx context.Context, jobID string) ([]File, error) {
	var out []File
	err := x.db.SelectContext(ctx, &out, `
		SELECT unique_id, job_id, original_filename, language, module_name
		FROM files WHERE job_id = ? ORDER BY unique_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list source files of job %s: %w", jobID, err)
	}
	return out, nil
}

func (x *index) upsertNativeAst(ctx context.Context, a NativeAst) error {
	_, err := x.db.NamedExecContext(ctx, `
		INSERT INTO native_asts (unique_id, job_id, original_filename, language, module_name)
		VALUES (:unique_id, :job_id, :original_filename, :language, :module_name)
		ON CONFLICT(unique_id) DO UPDATE SET
			job_id = excluded.job_id,
			original_filename = excluded.original_filename,
			language = excluded.language,
			module_name = excluded.module_name`, a)
	if err != nil {
		return fmt.Errorf("index native ast: %w", err)
	}
	return nil
}

func (x *index) nativeAstsByJob(ctx context.Context, jobID string) ([]NativeAst, error) {
	var out []NativeAst
	err := x.db.SelectContext(ctx, &out, `
		SELECT unique_id, job_id, original_filename, language, module_name
		FROM native_asts WHERE job_id = ? ORDER BY unique_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list native asts of job %s: %w", jobID, err)
	}
	return out, nil
}

func (x *index) upsertDhscannerAst(ctx context.Context, d DhscannerAst) error {
	_, err := x.db.NamedExecContext(ctx, `
		INSERT INTO dhscanner_asts (unique_id, job_id, original_filename, language)
		VALUES (:unique_id, :job_id, :original_filename, :language)
		ON CONFLICT(unique_id) DO UPDATE SET
			job_id = excluded.job_id,
			original_filename = excluded.original_filename,
			language = excluded.language`, d)
	if err != nil {
		return fmt.Errorf("index dhscanner ast: %w", err)
	}
	return nil
}

func (x *index) dhscannerAstsByJob(ctx context.Context, jobID string) ([]DhscannerAst, error) {
	var out []DhscannerAst
	err := x.db.SelectContext(ctx, &out, `
		SELECT unique_id, job_id, original_filename, language
		FROM dhscanner_asts WHERE job_id = ? ORDER BY unique_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list dhscanner asts of job %s: %w", jobID, err)
	}
	return out, nil
}

func (x *index) upsertCallables(ctx context.Context, c Callables) error {
	_, err := x.db.NamedExecContext(ctx, `
		INSERT INTO callables (unique_id, job_id, original_filename, language, num_callables)
		VALUES (:unique_id, :job_id, :original_filename, :language, :num_callables)
		ON CONFLICT(unique_id) DO UPDATE SET
			job_id = excluded.job_id,
			original_filename = excluded.original_filename,
			language = excluded.language,
			num_callables = excluded.num_callables`, c)
	if err != nil {
		return fmt.Errorf("index callables: %w", err)
	}
	return nil
}

func (x *index) callablesByJob(ctx context.Context, jobID string) ([]Callables, error) {
	var out []Callables
	err := x.db.SelectContext(ctx, &out, `
		SELECT unique_id, job_id, original_filename, language, num_callables
		FROM callables WHERE job_id = ? ORDER BY unique_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list callables of job %s: %w", jobID, err)
	}
	return out, nil
}

func (x *index) upsertFacts(ctx context.Context, f Facts) error {
	_, err := x.db.NamedExecContext(ctx, `
		INSERT INTO knowledge_base_facts (unique_id, callables_id, idx, job_id, original_filename, language)
		VALUES (:unique_id, :callables_id, :idx, :job_id, :original_filename, :language)
		ON CONFLICT(unique_id) DO UPDATE SET
			callables_id = excluded.callables_id,
			idx = excluded.idx,
			job_id = excluded.job_id,
			original_filename = excluded.original_filename,
			language = excluded.language`, f)
	if err != nil {
		return fmt.Errorf("index knowledge base facts: %w", err)
	}
	return nil
}

func (x *index) factsByJob(ctx context.Context, jobID string) ([]Facts, error) {
	var out []Facts
	err := x.db.SelectContext(ctx, &out, `
		SELECT unique_id, callables_id, idx, job_id, original_filename, language
		FROM knowledge_base_facts WHERE job_id = ? ORDER BY unique_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge base facts of job %s: %w", jobID, err)
	}
	return out, nil
}

func (x *index) upsertResults(ctx context.Context, r Results) error {
	_, err := x.db.NamedExecContext(ctx, `
		INSERT INTO results (unique_id, job_id)
		VALUES (:unique_id, :job_id)
		ON CONFLICT(unique_id) DO UPDATE SET job_id = excluded.job_id`, r)
	if err != nil {
		return fmt.Errorf("index results: %w", err)
	}
	return nil
}

func (x *index) resultsByJob(ctx context.Context, jobID string) (Results, bool, error) {
	var r Results
	err := x.db.GetContext(ctx, &r, `
		SELECT unique_id, job_id FROM results WHERE job_id = ? LIMIT 1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return Results{}, false, nil
	}
	if err != nil {
		return Results{}, false, fmt.Errorf("query results of job %s: %w", jobID, err)
	}
	return r, true, nil
}

func (x *index) upsertOutput(ctx context.Context, o Output) error {
	_, err := x.db.NamedExecContext(ctx, `
		INSERT INTO outputs (unique_id, job_id)
		VALUES (:unique_id, :job_id)
		ON CONFLICT(unique_id) DO UPDATE SET job_id = excluded.job_id`, o)
	if err != nil {
		return fmt.Errorf("index output: %w", err)
	}
	return nil
}

func (x *index) outputByJob(ctx context.Context, jobID string) (Output, bool, error) {
	var o Output
	err := x.db.GetContext(ctx, &o, `
		SELECT unique_id, job_id FROM outputs WHERE job_id = ? LIMIT 1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return Output{}, false, nil
	}
	if err != nil {
		return Output{}, false, fmt.Errorf("query output of job %s: %w", jobID, err)
	}
	return o, true, nil
}

// deleteRow removes one metadata row. The table name is always one of
// the package's own constants, never caller input.
func (x *index) deleteRow(ctx context.Context, table, uniqueID string) error {
	_, err := x.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE unique_id = ?`, table), uniqueID)
	if err != nil {
		return fmt.Errorf("drop %s row: %w", table, err)
	}
	return nil
}
