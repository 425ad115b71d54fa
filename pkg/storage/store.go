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
	"io"

	"github.com/kraklabs/dhscanner/pkg/language"
)

// Store is the transient artifact store shared by the ingress API and
// the stage workers. It keeps artifact bytes plus a queryable metadata
// index, and it enforces the lifecycle contract the pipeline relies on:
//
//   - Save is an upsert. Derived artifact names are deterministic per
//     source id, so replaying a stage overwrites instead of duplicating.
//   - Load of an absent artifact reports ok=false, never an error. I/O
//     faults (permissions, torn volumes) degrade to absent after a
//     warning, because a worker must treat a half-processed job exactly
//     like an already-processed one.
//   - Delete is idempotent and infallible from the caller's view;
//     failures are logged and swallowed.
//
// List operations query the metadata index and do return errors: a
// broken index is an infrastructure fault the worker should surface,
// not silently treat as an empty job.
type Store interface {
	// SaveSourceFile stores an uploaded file under a fresh unique id
	// inside the job's directory. moduleName is the optional Go module
	// resolver hint supplied at upload time. It returns the metadata
	// and the number of content bytes written.
	SaveSourceFile(ctx context.Context, jobID, originalFilename string, lang language.Language, moduleName string, content io.Reader) (File, int64, error)
	ListSourceFiles(ctx context.Context, jobID string) ([]File, error)
	LoadSourceFile(ctx context.Context, f File) ([]byte, bool)
	DeleteSourceFile(ctx context.Context, f File)

	SaveNativeAst(ctx context.Context, f File, content []byte) (NativeAst, error)
	ListNativeAsts(ctx context.Context, jobID string) ([]NativeAst, error)
	LoadNativeAst(ctx context.Context, a NativeAst) ([]byte, bool)
	DeleteNativeAst(ctx context.Context, a NativeAst)

	SaveDhscannerAst(ctx context.Context, a NativeAst, content []byte) (DhscannerAst, error)
	ListDhscannerAsts(ctx context.Context, jobID string) ([]DhscannerAst, error)
	LoadDhscannerAst(ctx context.Context, d DhscannerAst) ([]byte, bool)
	DeleteDhscannerAst(ctx context.Context, d DhscannerAst)

	// SaveCallables stores one file per extracted callable plus a single
	// metadata row recording how many there are.
	SaveCallables(ctx context.Context, d DhscannerAst, callables [][]byte) (Callables, error)
	ListCallables(ctx context.Context, jobID string) ([]Callables, error)
	LoadCallable(ctx context.Context, c Callables, i int) ([]byte, bool)
	DeleteCallables(ctx context.Context, c Callables)

	// SaveFacts stores the knowledge-base facts derived from callable i
	// of the set, one line per fact.
	SaveFacts(ctx context.Context, c Callables, i int, facts []string) (Facts, error)
	ListFacts(ctx context.Context, jobID string) ([]Facts, error)
	LoadFacts(ctx context.Context, f Facts) ([]byte, bool)
	DeleteFacts(ctx context.Context, f Facts)

	SaveResults(ctx context.Context, jobID string, content []byte) (Results, error)
	LoadResults(ctx context.Context, jobID string) ([]byte, bool)
	DeleteResults(ctx context.Context, jobID string)

	SaveOutput(ctx context.Context, jobID string, content []byte) (Output, error)
	LoadOutput(ctx context.Context, jobID string) ([]byte, bool)
	DeleteOutput(ctx context.Context, jobID string)

	// Close releases the metadata index.
	Close() error
}
