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

package language

import "testing"

func TestFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Language
	}{
		{"javascript", "src/index.js", JS},
		{"typescript", "app/main.ts", TS},
		{"tsx", "components/App.tsx", TSX},
		{"php", "public/index.php", PHP},
		{"blade template wins over php", "resources/views/home.blade.php", BladePHP},
		{"python", "manage.py", PY},
		{"ruby", "config/routes.rb", RB},
		{"csharp", "Controllers/HomeController.cs", CS},
		{"go", "cmd/server/main.go", Go},
		{"uppercase extension", "LEGACY.PHP", PHP},
		{"no extension", "Makefile", Unknown},
		{"unrelated extension", "notes.txt", Unknown},
		{"dotfile", ".gitignore", Unknown},
		{"empty", "", Unknown},
		{"suffix without dot separator never matches", "weirdjs", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromFilename(tt.filename); got != tt.want {
				t.Errorf("FromFilename(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	all := []Language{JS, TS, TSX, PHP, PY, RB, CS, Go, BladePHP, All, Unknown}
	for _, lang := range all {
		got, ok := Parse(lang.String())
		if !ok {
			t.Fatalf("Parse(%q) not recognized", lang)
		}
		if got != lang {
			t.Errorf("Parse(%q) = %q, want %q", lang.String(), got, lang)
		}
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	for _, raw := range []string{"", "javascript", "Js", "GO ", "blade", "all"} {
		if _, ok := Parse(raw); ok {
			t.Errorf("Parse(%q) accepted, want rejection", raw)
		}
	}
}

func TestScannable(t *testing.T) {
	if All.Scannable() {
		t.Error("All must not be scannable")
	}
	if Unknown.Scannable() {
		t.Error("Unknown must not be scannable")
	}
	if !BladePHP.Scannable() {
		t.Error("BladePHP must be scannable")
	}
}
