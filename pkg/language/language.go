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

// Package language defines the set of source languages the scanner
// understands and the filename-based inference used when files are
// uploaded. The string values are part of the wire protocol: they appear
// in artifact filenames, in log records, and in requests to the parser
// services, so they must never change.
package language

import "strings"

// Language identifies a supported source language.
type Language string

const (
	JS       Language = "js"
	TS       Language = "ts"
	TSX      Language = "tsx"
	PHP      Language = "php"
	PY       Language = "py"
	RB       Language = "rb"
	CS       Language = "cs"
	Go       Language = "go"
	BladePHP Language = "blade.php"

	// All marks artifacts that aggregate every language of a job,
	// such as the assembled knowledge base sent to the query engine.
	All Language = "ALL"

	// Unknown is returned for filenames with no recognized suffix.
	// Files inferred as Unknown are accepted but never stored.
	Unknown Language = "UNKNOWN"
)

// suffixes maps filename endings to languages, ordered longest first so
// that a composite suffix wins over its tail (x.blade.php is BladePHP,
// not PHP).
var suffixes = []struct {
	ext  string
	lang Language
}{
	{".blade.php", BladePHP},
	{".tsx", TSX},
	{".php", PHP},
	{".ts", TS},
	{".js", JS},
	{".py", PY},
	{".rb", RB},
	{".cs", CS},
	{".go", Go},
}

// FromFilename infers the language of an uploaded file from its name.
// Matching is case-insensitive and considers the full filename suffix,
// not just the last extension segment.
func FromFilename(name string) Language {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return s.lang
		}
	}
	return Unknown
}

// Parse converts a wire value back into a Language. It reports false
// for values outside the known set.
func Parse(raw string) (Language, bool) {
	switch l := Language(raw); l {
	case JS, TS, TSX, PHP, PY, RB, CS, Go, BladePHP, All, Unknown:
		return l, true
	}
	return Unknown, false
}

// String returns the wire value.
func (l Language) String() string { return string(l) }

// Scannable reports whether files of this language are sent through the
// analysis pipeline. All and Unknown are bookkeeping values, not source
// languages.
func (l Language) Scannable() bool {
	switch l {
	case JS, TS, TSX, PHP, PY, RB, CS, Go, BladePHP:
		return true
	}
	return false
}
