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
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/dhscanner/pkg/language"
	"github.com/kraklabs/dhscanner/pkg/logsink"
)

// DefaultRoot mirrors the volume mount baked into the container images.
const DefaultRoot = "/app/transient_storage/dhscanner_jobs"

// LocalConfig configures the filesystem-backed store.
type LocalConfig struct {
	// Root is the directory holding one subdirectory per job.
	// Defaults to DefaultRoot.
	Root string

	// IndexPath is the SQLite metadata index file.
	// Defaults to <Root>/index.db.
	IndexPath string
}

// Local implements Store on a local filesystem plus a SQLite metadata
// index. Every artifact read and delete is reported to the audit sink;
// transient I/O failures degrade to "absent" so a replayed stage tick
// behaves like a completed one.
type Local struct {
	root   string
	index  *index
	sink   logsink.Sink
	logger *slog.Logger
}

// NewLocal opens (or creates) the artifact directory and its metadata
// index.
func NewLocal(cfg LocalConfig, sink logsink.Sink, logger *slog.Logger) (*Local, error) {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = cfg.Root + "/index.db"
	}
	idx, err := openIndex(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	return &Local{
		root:   cfg.Root,
		index:  idx,
		sink:   sink,
		logger: logger,
	}, nil
}

// Close releases the metadata index.
func (l *Local) Close() error {
	return l.index.close()
}

func (l *Local) SaveSourceFile(ctx context.Context, jobID, originalFilename string, lang language.Language, moduleName string, content io.Reader) (File, int64, error) {
	dir := jobDir(l.root, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return File{}, 0, fmt.Errorf("create job dir: %w", err)
	}

	id := sourceFilePath(l.root, jobID, uuid.NewString(), lang)
	out, err := os.Create(id)
	if err != nil {
		return File{}, 0, fmt.Errorf("create source file: %w", err)
	}
	written, err := io.Copy(out, content)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(id)
		return File{}, 0, fmt.Errorf("write source file: %w", err)
	}

	meta := File{
		UniqueID:         id,
		JobID:            jobID,
		OriginalFilename: originalFilename,
		Language:         lang,
		ModuleName:       moduleName,
	}
	if err := l.index.upsertFile(ctx, meta); err != nil {
		_ = os.Remove(id)
		return File{}, 0, err
	}
	return meta, written, nil
}

func (l *Local) ListSourceFiles(ctx context.Context, jobID string) ([]File, error) {
	return l.index.filesByJob(ctx, jobID)
}

func (l *Local) LoadSourceFile(ctx context.Context, f File) ([]byte, bool) {
	return l.read(ctx, record(f.UniqueID, f.JobID, f.OriginalFilename, f.Language),
		logsink.EventReadSourceFileSucceeded, logsink.EventReadSourceFileFailed, "")
}

func (l *Local) DeleteSourceFile(ctx context.Context, f File) {
	l.remove(ctx, record(f.UniqueID, f.JobID, f.OriginalFilename, f.Language),
		logsink.EventDeleteSourceFileSucceeded, logsink.EventDeleteSourceFileFailed, "")
	l.dropRow(ctx, "files", f.UniqueID)
}

func (l *Local) SaveNativeAst(ctx context.Context, f File, content []byte) (NativeAst, error) {
	meta := NativeAst{
		UniqueID:         nativeAstID(f),
		JobID:            f.JobID,
		OriginalFilename: f.OriginalFilename,
		Language:         f.Language,
		ModuleName:       f.ModuleName,
	}
	if err := os.WriteFile(meta.UniqueID, content, 0644); err != nil {
		return NativeAst{}, fmt.Errorf("write native ast: %w", err)
	}
	if err := l.index.upsertNativeAst(ctx, meta); err != nil {
		return NativeAst{}, err
	}
	return meta, nil
}

func (l *Local) ListNativeAsts(ctx context.Context, jobID string) ([]NativeAst, error) {
	return l.index.nativeAstsByJob(ctx, jobID)
}

func (l *Local) LoadNativeAst(ctx context.Context, a NativeAst) ([]byte, bool) {
	return l.read(ctx, record(a.UniqueID, a.JobID, a.OriginalFilename, a.Language),
		logsink.EventReadNativeAstFileSucceeded, logsink.EventReadNativeAstFileFailed, "")
}

func (l *Local) DeleteNativeAst(ctx context.Context, a NativeAst) {
	l.remove(ctx, record(a.UniqueID, a.JobID, a.OriginalFilename, a.Language),
		logsink.EventDeleteNativeAstFileSucceeded, logsink.EventDeleteNativeAstFileFailed, "")
	l.dropRow(ctx, "native_asts", a.UniqueID)
}

func (l *Local) SaveDhscannerAst(ctx context.Context, a NativeAst, content []byte) (DhscannerAst, error) {
	meta := DhscannerAst{
		UniqueID:         dhscannerAstID(a),
		JobID:            a.JobID,
		OriginalFilename: a.OriginalFilename,
		Language:         a.Language,
	}
	if err := os.WriteFile(meta.UniqueID, content, 0644); err != nil {
		return DhscannerAst{}, fmt.Errorf("write dhscanner ast: %w", err)
	}
	if err := l.index.upsertDhscannerAst(ctx, meta); err != nil {
		return DhscannerAst{}, err
	}
	return meta, nil
}

func (l *Local) ListDhscannerAsts(ctx context.Context, jobID string) ([]DhscannerAst, error) {
	return l.index.dhscannerAstsByJob(ctx, jobID)
}

func (l *Local) LoadDhscannerAst(ctx context.Context, d DhscannerAst) ([]byte, bool) {
	return l.read(ctx, record(d.UniqueID, d.JobID, d.OriginalFilename, d.Language),
		logsink.EventReadDhscannerAstFileSucceeded, logsink.EventReadDhscannerAstFileFailed, "")
}

func (l *Local) DeleteDhscannerAst(ctx context.Context, d DhscannerAst) {
	l.remove(ctx, record(d.UniqueID, d.JobID, d.OriginalFilename, d.Language),
		logsink.EventDeleteDhscannerAstFileSucceeded, logsink.EventDeleteDhscannerAstFileFailed, "")
	l.dropRow(ctx, "dhscanner_asts", d.UniqueID)
}

func (l *Local) SaveCallables(ctx context.Context, d DhscannerAst, callables [][]byte) (Callables, error) {
	meta := Callables{
		UniqueID:         callablesID(d),
		JobID:            d.JobID,
		OriginalFilename: d.OriginalFilename,
		Language:         d.Language,
		Count:            len(callables),
	}
	for i, content := range callables {
		if err := os.WriteFile(callablePath(meta, i), content, 0644); err != nil {
			return Callables{}, fmt.Errorf("write callable %d: %w", i, err)
		}
	}
	if err := l.index.upsertCallables(ctx, meta); err != nil {
		return Callables{}, err
	}
	return meta, nil
}

func (l *Local) ListCallables(ctx context.Context, jobID string) ([]Callables, error) {
	return l.index.callablesByJob(ctx, jobID)
}

func (l *Local) LoadCallable(ctx context.Context, c Callables, i int) ([]byte, bool) {
	return l.read(ctx, record(callablePath(c, i), c.JobID, c.OriginalFilename, c.Language),
		logsink.EventReadCallablesFilesSucceeded, logsink.EventReadCallablesFilesFailed,
		fmt.Sprintf("callable(%d)", i))
}

func (l *Local) DeleteCallables(ctx context.Context, c Callables) {
	for i := 0; i < c.Count; i++ {
		l.remove(ctx, record(callablePath(c, i), c.JobID, c.OriginalFilename, c.Language),
			logsink.EventDeleteCallablesFilesSucceeded, logsink.EventDeleteCallablesFilesFailed,
			fmt.Sprintf("callable(%d)", i))
	}
	l.dropRow(ctx, "callables", c.UniqueID)
}

func (l *Local) SaveFacts(ctx context.Context, c Callables, i int, facts []string) (Facts, error) {
	meta := Facts{
		UniqueID:         factsID(c, i),
		CallablesID:      c.UniqueID,
		Index:            i,
		JobID:            c.JobID,
		OriginalFilename: c.OriginalFilename,
		Language:         c.Language,
	}
	if err := os.WriteFile(meta.UniqueID, []byte(strings.Join(facts, "\n")), 0644); err != nil {
		return Facts{}, fmt.Errorf("write facts for callable %d: %w", i, err)
	}
	if err := l.index.upsertFacts(ctx, meta); err != nil {
		return Facts{}, err
	}
	return meta, nil
}

func (l *Local) ListFacts(ctx context.Context, jobID string) ([]Facts, error) {
	return l.index.factsByJob(ctx, jobID)
}

func (l *Local) LoadFacts(ctx context.Context, f Facts) ([]byte, bool) {
	return l.read(ctx, record(f.UniqueID, f.JobID, f.OriginalFilename, f.Language),
		logsink.EventReadKbgenFactsFilesSucceeded, logsink.EventReadKbgenFactsFilesFailed,
		fmt.Sprintf("callable(%d)", f.Index))
}

func (l *Local) DeleteFacts(ctx context.Context, f Facts) {
	l.remove(ctx, record(f.UniqueID, f.JobID, f.OriginalFilename, f.Language),
		logsink.EventDeleteKbgenFactsFilesSucceeded, logsink.EventDeleteKbgenFactsFilesFailed,
		fmt.Sprintf("callable(%d)", f.Index))
	l.dropRow(ctx, "knowledge_base_facts", f.UniqueID)
}

func (l *Local) SaveResults(ctx context.Context, jobID string, content []byte) (Results, error) {
	meta := Results{UniqueID: resultsID(l.root, jobID), JobID: jobID}
	if err := os.WriteFile(meta.UniqueID, content, 0644); err != nil {
		return Results{}, fmt.Errorf("write results: %w", err)
	}
	if err := l.index.upsertResults(ctx, meta); err != nil {
		return Results{}, err
	}
	return meta, nil
}

func (l *Local) LoadResults(ctx context.Context, jobID string) ([]byte, bool) {
	r, ok, err := l.index.resultsByJob(ctx, jobID)
	if err != nil {
		l.logger.Warn("storage.results.lookup.failed", "job_id", jobID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return l.read(ctx, record(r.UniqueID, jobID, jobLevelFilename, language.All),
		logsink.EventReadResultsSucceeded, logsink.EventReadResultsFailed, "")
}

func (l *Local) DeleteResults(ctx context.Context, jobID string) {
	id := resultsID(l.root, jobID)
	l.remove(ctx, record(id, jobID, jobLevelFilename, language.All),
		logsink.EventDeleteResultsSucceeded, logsink.EventDeleteResultsFailed, "")
	l.dropRow(ctx, "results", id)
}

func (l *Local) SaveOutput(ctx context.Context, jobID string, content []byte) (Output, error) {
	meta := Output{UniqueID: outputID(l.root, jobID), JobID: jobID}
	if err := os.WriteFile(meta.UniqueID, content, 0644); err != nil {
		return Output{}, fmt.Errorf("write output: %w", err)
	}
	if err := l.index.upsertOutput(ctx, meta); err != nil {
		return Output{}, err
	}
	return meta, nil
}

func (l *Local) LoadOutput(ctx context.Context, jobID string) ([]byte, bool) {
	o, ok, err := l.index.outputByJob(ctx, jobID)
	if err != nil {
		l.logger.Warn("storage.output.lookup.failed", "job_id", jobID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return l.read(ctx, record(o.UniqueID, jobID, jobLevelFilename, language.All),
		logsink.EventReadOutputSucceeded, logsink.EventReadOutputFailed, "")
}

func (l *Local) DeleteOutput(ctx context.Context, jobID string) {
	id := outputID(l.root, jobID)
	l.remove(ctx, record(id, jobID, jobLevelFilename, language.All),
		logsink.EventDeleteOutputSucceeded, logsink.EventDeleteOutputFailed, "")
	l.dropRow(ctx, "outputs", id)
}

// jobLevelFilename is the original_filename reported for artifacts that
// belong to the job as a whole rather than to one uploaded file.
const jobLevelFilename = "*"

// artifactRecord carries the audit fields shared by every artifact kind.
type artifactRecord struct {
	fileID   string
	jobID    string
	filename string
	lang     language.Language
}

func record(fileID, jobID, filename string, lang language.Language) artifactRecord {
	return artifactRecord{fileID: fileID, jobID: jobID, filename: filename, lang: lang}
}

// read loads one artifact file. Any failure, including a plain missing
// file, is reported as absent after an audit warning; the pipeline
// treats both identically.
func (l *Local) read(ctx context.Context, rec artifactRecord, okEvent, failEvent logsink.Event, details string) ([]byte, bool) {
	start := time.Now()
	data, err := os.ReadFile(rec.fileID)
	if err != nil {
		l.logger.Warn("storage.read.failed", "file", rec.fileID, "error", err)
		l.sink.Warning(ctx, logsink.Message{
			FileUniqueID:     rec.fileID,
			JobID:            rec.jobID,
			Event:            failEvent,
			OriginalFilename: rec.filename,
			Language:         rec.lang,
			Duration:         time.Since(start).Seconds(),
			MoreDetails:      details,
		})
		return nil, false
	}
	l.sink.Info(ctx, logsink.Message{
		FileUniqueID:          rec.fileID,
		JobID:                 rec.jobID,
		Event:                 okEvent,
		OriginalFilename:      rec.filename,
		Language:              rec.lang,
		Duration:              time.Since(start).Seconds(),
		MoreDetails:           details,
		CorrespondingByteSize: len(data),
	})
	return data, true
}

// remove unlinks one artifact file, swallowing failures after an audit
// warning. Deleting an already-deleted artifact is a normal occurrence
// when a stage tick is replayed.
func (l *Local) remove(ctx context.Context, rec artifactRecord, okEvent, failEvent logsink.Event, details string) {
	start := time.Now()
	if err := os.Remove(rec.fileID); err != nil {
		l.logger.Warn("storage.delete.failed", "file", rec.fileID, "error", err)
		l.sink.Warning(ctx, logsink.Message{
			FileUniqueID:     rec.fileID,
			JobID:            rec.jobID,
			Event:            failEvent,
			OriginalFilename: rec.filename,
			Language:         rec.lang,
			Duration:         time.Since(start).Seconds(),
			MoreDetails:      details,
		})
		return
	}
	l.sink.Info(ctx, logsink.Message{
		FileUniqueID:     rec.fileID,
		JobID:            rec.jobID,
		Event:            okEvent,
		OriginalFilename: rec.filename,
		Language:         rec.lang,
		Duration:         time.Since(start).Seconds(),
		MoreDetails:      details,
	})
}

// dropRow removes a metadata row regardless of whether the artifact
// file itself could be unlinked, so replays never see ghost rows.
func (l *Local) dropRow(ctx context.Context, table, uniqueID string) {
	if err := l.index.deleteRow(ctx, table, uniqueID); err != nil {
		l.logger.Error("storage.index.delete.failed", "table", table, "unique_id", uniqueID, "error", err)
	}
}
