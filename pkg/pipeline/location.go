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

package pipeline

import (
	"encoding/json"
	"fmt"
)

// span is the source location the normalizer embeds in FAILED replies.
type span struct {
	Filename  string
	LineStart int
	LineEnd   int
	ColStart  int
	ColEnd    int
}

// String renders the span the way the central log database expects it,
// e.g. "[3:1-3:2]".
func (s span) String() string {
	return fmt.Sprintf("[%d:%d-%d:%d]", s.LineStart, s.ColStart, s.LineEnd, s.ColEnd)
}

// parseSpan decodes a location object. All five fields must be present
// for the span to count; partial locations are discarded.
func parseSpan(raw json.RawMessage) (span, bool) {
	var aux struct {
		Filename  *string `json:"filename"`
		LineStart *int    `json:"lineStart"`
		LineEnd   *int    `json:"lineEnd"`
		ColStart  *int    `json:"colStart"`
		ColEnd    *int    `json:"colEnd"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return span{}, false
	}
	if aux.Filename == nil || aux.LineStart == nil || aux.LineEnd == nil || aux.ColStart == nil || aux.ColEnd == nil {
		return span{}, false
	}
	return span{
		Filename:  *aux.Filename,
		LineStart: *aux.LineStart,
		LineEnd:   *aux.LineEnd,
		ColStart:  *aux.ColStart,
		ColEnd:    *aux.ColEnd,
	}, true
}
