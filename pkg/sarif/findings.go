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

import (
	"regexp"
	"strconv"
	"strings"
)

// The query engine answers in datalog notation. A positive verdict for
// query N looks like
//
//	qN([(startloc_1_1_endloc_1_8_lib_slash_a_dot_py,startloc_3_2_endloc_3_9_lib_slash_a_dot_py)]): yes
//
// where the bracketed list holds dataflow edges and each edge is a pair
// of source spans. Filenames are flattened into the fact alphabet on
// the way into the knowledge base, so path characters come back as
// placeholders that must be substituted out again.
var (
	verdictPattern = regexp.MustCompile(`q(\d+)\(\[(.*?)\]\): yes`)
	edgePattern    = regexp.MustCompile(`\(startloc_(\d+)_(\d+)_endloc_(\d+)_(\d+)_([^,]+),startloc_(\d+)_(\d+)_endloc_(\d+)_(\d+)_([^)]+)\)`)

	filenameRestorer = strings.NewReplacer(
		"_slash_", "/",
		"_dot_", ".",
		"_dash_", "-",
		"_lbracket_", "[",
		"_rbracket_", "]",
		"_lparen_", "(",
		"_rparen_", ")",
	)
)

// Step is one endpoint of a dataflow edge: a span within a source file,
// with the filename already restored.
type Step struct {
	URI    string
	Region Region
}

// Finding is one positive query verdict. Path lists every edge endpoint
// in order; the last step is the sink.
type Finding struct {
	Query int
	Path  []Step
}

// ParseVerdict extracts the first positive verdict from the query
// engine's response. It reports false when the response carries no
// positive verdict, or when the verdict has no parseable edges.
//
// Only the first match is considered even if the engine answered
// several queries positively; reports with more than one finding are
// folded into their first.
func ParseVerdict(text string) (Finding, bool) {
	m := verdictPattern.FindStringSubmatch(text)
	if m == nil {
		return Finding{}, false
	}
	query, _ := strconv.Atoi(m[1])

	var path []Step
	for _, edge := range edgePattern.FindAllStringSubmatch(m[2], -1) {
		path = append(path, endpoint(edge[1:6]), endpoint(edge[6:11]))
	}
	if len(path) == 0 {
		return Finding{}, false
	}
	return Finding{Query: query, Path: path}, true
}

// endpoint decodes one span from its five capture groups:
// start line, start column, end line, end column, flattened filename.
func endpoint(groups []string) Step {
	startLine, _ := strconv.Atoi(groups[0])
	startCol, _ := strconv.Atoi(groups[1])
	endLine, _ := strconv.Atoi(groups[2])
	endCol, _ := strconv.Atoi(groups[3])
	return Step{
		URI: RestoreFilename(groups[4]),
		Region: Region{
			StartLine:   startLine,
			EndLine:     endLine,
			StartColumn: startCol,
			EndColumn:   endCol,
		},
	}
}

// RestoreFilename substitutes the fact-alphabet placeholders back into
// path characters.
func RestoreFilename(flattened string) string {
	return filenameRestorer.Replace(flattened)
}
