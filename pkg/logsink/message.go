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

package logsink

import "github.com/kraklabs/dhscanner/pkg/language"

// Level selects the endpoint path on the log sink service. The values
// appear verbatim in the request URL (POST <base>/log/<level>).
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// ParseLevel converts a URL path segment into a Level.
func ParseLevel(raw string) (Level, bool) {
	switch l := Level(raw); l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return l, true
	}
	return "", false
}

// Event is the closed set of lifecycle moments a pipeline component may
// report. The uppercase wire values are stored as-is in the central log
// database, so dashboards and alerts key on them.
type Event string

const (
	EventUploadedFileSaved                  Event = "UPLOADED_FILE_SAVED"
	EventUploadedFileSkippedUnknownLanguage Event = "UPLOADED_FILE_SKIPPED_UNKNOWN_LANGUAGE"

	EventCoordinatorNotResponding Event = "COORDINATOR_NOT_RESPONDING"

	EventReadSourceFileSucceeded   Event = "READ_SOURCE_FILE_SUCCEEDED"
	EventReadSourceFileFailed      Event = "READ_SOURCE_FILE_FAILED"
	EventDeleteSourceFileSucceeded Event = "DELETE_SOURCE_FILE_SUCCEEDED"
	EventDeleteSourceFileFailed    Event = "DELETE_SOURCE_FILE_FAILED"

	EventReadNativeAstFileSucceeded   Event = "READ_NATIVE_AST_FILE_SUCCEEDED"
	EventReadNativeAstFileFailed      Event = "READ_NATIVE_AST_FILE_FAILED"
	EventDeleteNativeAstFileSucceeded Event = "DELETE_NATIVE_AST_FILE_SUCCEEDED"
	EventDeleteNativeAstFileFailed    Event = "DELETE_NATIVE_AST_FILE_FAILED"

	EventReadDhscannerAstFileSucceeded   Event = "READ_DHSCANNER_AST_FILE_SUCCEEDED"
	EventReadDhscannerAstFileFailed      Event = "READ_DHSCANNER_AST_FILE_FAILED"
	EventDeleteDhscannerAstFileSucceeded Event = "DELETE_DHSCANNER_AST_FILE_SUCCEEDED"
	EventDeleteDhscannerAstFileFailed    Event = "DELETE_DHSCANNER_AST_FILE_FAILED"

	EventReadCallablesFilesSucceeded   Event = "READ_CALLABLES_FILES_SUCCEEDED"
	EventReadCallablesFilesFailed      Event = "READ_CALLABLES_FILES_FAILED"
	EventDeleteCallablesFilesSucceeded Event = "DELETE_CALLABLES_FILES_SUCCEEDED"
	EventDeleteCallablesFilesFailed    Event = "DELETE_CALLABLES_FILES_FAILED"

	EventReadKbgenFactsFilesSucceeded   Event = "READ_KBGEN_FACTS_FILES_SUCCEEDED"
	EventReadKbgenFactsFilesFailed      Event = "READ_KBGEN_FACTS_FILES_FAILED"
	EventDeleteKbgenFactsFilesSucceeded Event = "DELETE_KBGEN_FACTS_FILES_SUCCEEDED"
	EventDeleteKbgenFactsFilesFailed    Event = "DELETE_KBGEN_FACTS_FILES_FAILED"

	EventReadResultsSucceeded   Event = "READ_RESULTS_SUCCEEDED"
	EventReadResultsFailed      Event = "READ_RESULTS_FAILED"
	EventDeleteResultsSucceeded Event = "DELETE_RESULTS_SUCCEEDED"
	EventDeleteResultsFailed    Event = "DELETE_RESULTS_FAILED"

	EventReadOutputSucceeded   Event = "READ_OUTPUT_SUCCEEDED"
	EventReadOutputFailed      Event = "READ_OUTPUT_FAILED"
	EventDeleteOutputSucceeded Event = "DELETE_OUTPUT_SUCCEEDED"
	EventDeleteOutputFailed    Event = "DELETE_OUTPUT_FAILED"

	EventNativeParsingSucceeded Event = "NATIVE_PARSING_SUCCEEDED"
	EventNativeParsingFailed    Event = "NATIVE_PARSING_FAILED"
	EventNativeParsingEmptyAst  Event = "NATIVE_PARSING_EMPTY_AST"

	EventDhscannerParsingSucceeded     Event = "DHSCANNER_PARSING_SUCCEEDED"
	EventDhscannerParsingFailed        Event = "DHSCANNER_PARSING_FAILED"
	EventDhscannerParsingSystemFailure Event = "DHSCANNER_PARSING_SYSTEM_FAILURE"

	EventCodegenSucceeded Event = "CODEGEN_SUCCEEDED"
	EventCodegenFailed    Event = "CODEGEN_FAILED"

	EventKbgenSucceeded Event = "KBGEN_SUCCEEDED"
	EventKbgenFailed    Event = "KBGEN_FAILED"

	EventQueryengineSucceeded Event = "QUERYENGINE_SUCCEEDED"
	EventQueryengineFailed    Event = "QUERYENGINE_FAILED"

	EventResultsGenerationSucceeded Event = "RESULTS_GENERATION_SUCCEEDED"
	EventResultsGenerationFailed    Event = "RESULTS_GENERATION_FAILED"
)

// events indexes the closed set for wire-side validation.
var events = map[Event]struct{}{
	EventUploadedFileSaved:                  {},
	EventUploadedFileSkippedUnknownLanguage: {},
	EventCoordinatorNotResponding:           {},
	EventReadSourceFileSucceeded:            {},
	EventReadSourceFileFailed:               {},
	EventDeleteSourceFileSucceeded:          {},
	EventDeleteSourceFileFailed:             {},
	EventReadNativeAstFileSucceeded:         {},
	EventReadNativeAstFileFailed:            {},
	EventDeleteNativeAstFileSucceeded:       {},
	EventDeleteNativeAstFileFailed:          {},
	EventReadDhscannerAstFileSucceeded:      {},
	EventReadDhscannerAstFileFailed:         {},
	EventDeleteDhscannerAstFileSucceeded:    {},
	EventDeleteDhscannerAstFileFailed:       {},
	EventReadCallablesFilesSucceeded:        {},
	EventReadCallablesFilesFailed:           {},
	EventDeleteCallablesFilesSucceeded:      {},
	EventDeleteCallablesFilesFailed:         {},
	EventReadKbgenFactsFilesSucceeded:       {},
	EventReadKbgenFactsFilesFailed:          {},
	EventDeleteKbgenFactsFilesSucceeded:     {},
	EventDeleteKbgenFactsFilesFailed:        {},
	EventReadResultsSucceeded:               {},
	EventReadResultsFailed:                  {},
	EventDeleteResultsSucceeded:             {},
	EventDeleteResultsFailed:                {},
	EventReadOutputSucceeded:                {},
	EventReadOutputFailed:                   {},
	EventDeleteOutputSucceeded:              {},
	EventDeleteOutputFailed:                 {},
	EventNativeParsingSucceeded:             {},
	EventNativeParsingFailed:                {},
	EventNativeParsingEmptyAst:              {},
	EventDhscannerParsingSucceeded:          {},
	EventDhscannerParsingFailed:             {},
	EventDhscannerParsingSystemFailure:      {},
	EventCodegenSucceeded:                   {},
	EventCodegenFailed:                      {},
	EventKbgenSucceeded:                     {},
	EventKbgenFailed:                        {},
	EventQueryengineSucceeded:               {},
	EventQueryengineFailed:                  {},
	EventResultsGenerationSucceeded:         {},
	EventResultsGenerationFailed:            {},
}

// ParseEvent validates a wire value against the closed set.
func ParseEvent(raw string) (Event, bool) {
	e := Event(raw)
	_, ok := events[e]
	return e, ok
}

// Message is one structured audit record. Field names follow the wire
// format the log sink service accepts; every producer in the pipeline
// fills the subset that makes sense for the event at hand and leaves
// the rest zero.
type Message struct {
	FileUniqueID          string            `json:"file_unique_id"`
	JobID                 string            `json:"job_id"`
	Event                 Event             `json:"context"`
	OriginalFilename      string            `json:"original_filename"`
	Language              language.Language `json:"language"`
	Duration              float64           `json:"duration"`
	MoreDetails           string            `json:"more_details"`
	CorrespondingByteSize int               `json:"corresponding_byte_size"`
}

// Valid reports whether a decoded wire message carries a known event
// and language. The sink service rejects invalid records instead of
// storing junk enum values.
func (m Message) Valid() bool {
	if _, ok := ParseEvent(string(m.Event)); !ok {
		return false
	}
	if _, ok := language.Parse(string(m.Language)); !ok {
		return false
	}
	return true
}
