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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kraklabs/dhscanner/pkg/language"
)

// Artifact unique ids are full storage paths, derived from the source
// file id by suffix rewriting. The derivation chain keeps every
// artifact of a source file adjacent and makes replayed stages land on
// identical names:
//
//	<root>/<job>/<uuid>.<lang>                source file
//	<root>/<job>/<uuid>.<lang>.native.ast     native AST
//	<root>/<job>/<uuid>.<lang>.dhscanner.ast  normalized AST
//	<root>/<job>/<uuid>.<lang>.callable.<i>   extracted callables
//	<root>/<job>/<uuid>.<lang>.facts.callable.<i>
//	<root>/<job>.results.json                 query engine verdict
//	<root>/<job>.sarif.json                   rendered SARIF
const (
	nativeAstSuffix    = ".native.ast"
	dhscannerAstSuffix = ".dhscanner.ast"
	resultsSuffix      = ".results.json"
	outputSuffix       = ".sarif.json"
)

// File identifies one uploaded source file.
type File struct {
	UniqueID         string            `db:"unique_id"`
	JobID            string            `db:"job_id"`
	OriginalFilename string            `db:"original_filename"`
	Language         language.Language `db:"language"`

	// ModuleName carries the optional go.mod resolver hint supplied at
	// upload. Empty for every other language.
	ModuleName string `db:"module_name"`
}

// NativeAst identifies the language-native AST of one source file.
type NativeAst struct {
	UniqueID         string            `db:"unique_id"`
	JobID            string            `db:"job_id"`
	OriginalFilename string            `db:"original_filename"`
	Language         language.Language `db:"language"`
	ModuleName       string            `db:"module_name"`
}

// DhscannerAst identifies the normalized, language-agnostic AST of one
// source file.
type DhscannerAst struct {
	UniqueID         string            `db:"unique_id"`
	JobID            string            `db:"job_id"`
	OriginalFilename string            `db:"original_filename"`
	Language         language.Language `db:"language"`
}

// Callables identifies the set of callables extracted from one
// normalized AST. Individual callables are addressed as (set, index).
type Callables struct {
	UniqueID         string            `db:"unique_id"`
	JobID            string            `db:"job_id"`
	OriginalFilename string            `db:"original_filename"`
	Language         language.Language `db:"language"`
	Count            int               `db:"num_callables"`
}

// Facts identifies the knowledge-base facts generated from one callable.
type Facts struct {
	UniqueID         string            `db:"unique_id"`
	CallablesID      string            `db:"callables_id"`
	Index            int               `db:"idx"`
	JobID            string            `db:"job_id"`
	OriginalFilename string            `db:"original_filename"`
	Language         language.Language `db:"language"`
}

// Results identifies the raw query engine verdict of a job.
type Results struct {
	UniqueID string `db:"unique_id"`
	JobID    string `db:"job_id"`
}

// Output identifies the rendered SARIF document of a job.
type Output struct {
	UniqueID string `db:"unique_id"`
	JobID    string `db:"job_id"`
}

func jobDir(root, jobID string) string {
	return filepath.Join(root, jobID)
}

func sourceFilePath(root, jobID, stem string, lang language.Language) string {
	return filepath.Join(jobDir(root, jobID), stem+"."+lang.String())
}

func nativeAstID(f File) string {
	return f.UniqueID + nativeAstSuffix
}

func dhscannerAstID(a NativeAst) string {
	return strings.TrimSuffix(a.UniqueID, nativeAstSuffix) + dhscannerAstSuffix
}

// callablesID strips the AST suffix: the set id is the bare source id,
// and member files append ".callable.<i>" to it.
func callablesID(d DhscannerAst) string {
	return strings.TrimSuffix(d.UniqueID, dhscannerAstSuffix)
}

func callablePath(c Callables, i int) string {
	return fmt.Sprintf("%s.callable.%d", c.UniqueID, i)
}

func factsID(c Callables, i int) string {
	return fmt.Sprintf("%s.facts.callable.%d", c.UniqueID, i)
}

func resultsID(root, jobID string) string {
	return filepath.Join(root, jobID) + resultsSuffix
}

func outputID(root, jobID string) string {
	return filepath.Join(root, jobID) + outputSuffix
}
