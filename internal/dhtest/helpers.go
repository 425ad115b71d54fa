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

// Package dhtest holds test helpers shared across the pipeline, ingress
// and log sink test suites.
package dhtest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kraklabs/dhscanner/pkg/language"
	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/storage"
)

// Logger returns a logger that discards everything. Tests assert on
// behavior and on recorded sink messages, never on log text.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore creates an on-disk artifact store rooted in a per-test
// temporary directory. The store is closed when the test finishes.
//
// Example:
//
//	func TestMyStage(t *testing.T) {
//	    store := dhtest.NewStore(t)
//
//	    f := dhtest.SeedSourceFile(t, store, "job1", "lib/a.py", "print(1)")
//
//	    // Run your tests...
//	}
func NewStore(t *testing.T) storage.Store {
	t.Helper()

	store, err := storage.NewLocal(storage.LocalConfig{
		Root: t.TempDir(),
	}, logsink.Nop{}, Logger())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedSourceFile stores one uploaded file the way the ingress upload
// handler would, inferring the language from the filename. This is a
// convenience helper for seeding pipeline inputs.
func SeedSourceFile(t *testing.T, store storage.Store, jobID, filename, content string) storage.File {
	t.Helper()

	lang := language.FromFilename(filename)
	if lang == language.Unknown {
		t.Fatalf("seed file %q has no recognized language suffix", filename)
	}
	f, _, err := store.SaveSourceFile(context.Background(), jobID, filename, lang, "", strings.NewReader(content))
	if err != nil {
		t.Fatalf("failed to seed source file %q: %v", filename, err)
	}
	return f
}
