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

// Package sarif renders query engine verdicts as SARIF v2.1.0
// documents. Only the subset of the standard that the scanner emits is
// modeled; field order in the structs is deliberate because consumers
// diff the serialized output byte for byte.
package sarif

import "encoding/json"

const (
	version    = "2.1.0"
	driverName = "dhscanner"

	// RuleID tags every emitted result; the scanner reports exactly one
	// class of finding, a source-to-sink dataflow.
	RuleID = "dataflow"
)

// Document is the top-level SARIF object.
type Document struct {
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run holds the tool identity and its results.
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

type Tool struct {
	Driver Driver `json:"driver"`
}

type Driver struct {
	Name string `json:"name"`
}

// Result is one reported dataflow.
type Result struct {
	RuleID    string     `json:"ruleId"`
	Message   Message    `json:"message"`
	Locations []Location `json:"locations"`
	CodeFlows []CodeFlow `json:"codeFlows"`
}

type Message struct {
	Text string `json:"text"`
}

type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region is a source span. StartLine precedes EndLine in the emitted
// JSON even though columns interleave in the wire notation the query
// engine uses.
type Region struct {
	StartLine   int `json:"startLine"`
	EndLine     int `json:"endLine"`
	StartColumn int `json:"startColumn"`
	EndColumn   int `json:"endColumn"`
}

type CodeFlow struct {
	ThreadFlows []ThreadFlow `json:"threadFlows"`
}

type ThreadFlow struct {
	Locations []ThreadFlowLocation `json:"locations"`
}

type ThreadFlowLocation struct {
	Location Location `json:"location"`
}

// Report builds the document for one finding: a single result whose
// thread flow enumerates every step of the dataflow in order and whose
// top-level location points at the final step, the sink.
func Report(f Finding, description string) Document {
	steps := make([]ThreadFlowLocation, len(f.Path))
	for i, step := range f.Path {
		steps[i] = ThreadFlowLocation{
			Location: Location{
				PhysicalLocation: PhysicalLocation{
					ArtifactLocation: ArtifactLocation{URI: step.URI},
					Region:           step.Region,
				},
			},
		}
	}
	sink := steps[len(steps)-1].Location

	return Document{
		Version: version,
		Runs: []Run{{
			Tool: Tool{Driver: Driver{Name: driverName}},
			Results: []Result{{
				RuleID:    RuleID,
				Message:   Message{Text: description},
				Locations: []Location{sink},
				CodeFlows: []CodeFlow{{
					ThreadFlows: []ThreadFlow{{Locations: steps}},
				}},
			}},
		}},
	}
}

// Encode serializes the document for storage.
func (d Document) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// NoFindings is the verbatim payload served when the query engine
// reported nothing actionable.
func NoFindings() []byte {
	return []byte(`{"debug":"query engine failed"}`)
}
