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

package sarif

import "testing"

func TestReportShape(t *testing.T) {
	f := Finding{
		Query: 1,
		Path: []Step{
			{URI: "src/a.js", Region: Region{StartLine: 1, EndLine: 1, StartColumn: 2, EndColumn: 9}},
			{URI: "src/b.js", Region: Region{StartLine: 4, EndLine: 4, StartColumn: 1, EndColumn: 7}},
		},
	}
	doc := Report(f, "tainted flow")

	if doc.Version != "2.1.0" {
		t.Errorf("version = %q", doc.Version)
	}
	if len(doc.Runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(doc.Runs))
	}
	run := doc.Runs[0]
	if run.Tool.Driver.Name != "dhscanner" {
		t.Errorf("driver = %q", run.Tool.Driver.Name)
	}
	if len(run.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(run.Results))
	}
	res := run.Results[0]
	if res.RuleID != "dataflow" {
		t.Errorf("ruleId = %q", res.RuleID)
	}
	if res.Message.Text != "tainted flow" {
		t.Errorf("message = %q", res.Message.Text)
	}

	// The top-level location is the sink, the final step of the flow.
	if len(res.Locations) != 1 {
		t.Fatalf("locations = %d, want 1", len(res.Locations))
	}
	if uri := res.Locations[0].PhysicalLocation.ArtifactLocation.URI; uri != "src/b.js" {
		t.Errorf("sink uri = %q, want src/b.js", uri)
	}

	steps := res.CodeFlows[0].ThreadFlows[0].Locations
	if len(steps) != 2 {
		t.Fatalf("thread flow steps = %d, want 2", len(steps))
	}
	if uri := steps[0].Location.PhysicalLocation.ArtifactLocation.URI; uri != "src/a.js" {
		t.Errorf("first step uri = %q, want src/a.js", uri)
	}
}

func TestDocumentEncodingIsBitStable(t *testing.T) {
	f := Finding{
		Query: 1,
		Path: []Step{
			{URI: "lib/a.py", Region: Region{StartLine: 1, EndLine: 1, StartColumn: 1, EndColumn: 8}},
		},
	}
	got, err := Report(f, "d").Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"dhscanner"}},` +
		`"results":[{"ruleId":"dataflow","message":{"text":"d"},` +
		`"locations":[{"physicalLocation":{"artifactLocation":{"uri":"lib/a.py"},` +
		`"region":{"startLine":1,"endLine":1,"startColumn":1,"endColumn":8}}}],` +
		`"codeFlows":[{"threadFlows":[{"locations":[{"location":{"physicalLocation":` +
		`{"artifactLocation":{"uri":"lib/a.py"},` +
		`"region":{"startLine":1,"endLine":1,"startColumn":1,"endColumn":8}}}}]}]}]}]}]}`
	if string(got) != want {
		t.Errorf("encoded document drifted:\n got: %s\nwant: %s", got, want)
	}
}

func TestNoFindingsPayload(t *testing.T) {
	if got := string(NoFindings()); got != `{"debug":"query engine failed"}` {
		t.Errorf("NoFindings = %s", got)
	}
}
