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
	"github.com/kraklabs/dhscanner/pkg/language"
)

// Endpoints holds the URLs of the external services the stage workers
// delegate to. The zero value is unusable; start from DefaultEndpoints
// and override entries for tests or non-default deployments.
type Endpoints struct {
	// AstBuilders maps each scannable language to its native parser.
	// Blade templates go through a preflight endpoint that emits plain
	// PHP code instead of an AST.
	AstBuilders map[language.Language]string

	// Normalizers maps each language to the dhscanner AST builder
	// route. TSX shares the TS route; blade output is not normalized.
	Normalizers map[language.Language]string

	Codegen     string
	Kbgen       string
	Queryengine string
}

// DefaultEndpoints returns the service URLs of the standard docker
// compose deployment.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AstBuilders: map[language.Language]string{
			language.JS:       "http://frontjs:3000/to/esprima/js/ast",
			language.TS:       "http://frontts:3000/to/native/ts/ast",
			language.TSX:      "http://frontts:3000/to/native/ts/ast",
			language.PHP:      "http://frontphp:5000/to/php/ast",
			language.PY:       "http://frontpy:5000/to/native/py/ast",
			language.RB:       "http://frontrb:3000/to/native/cruby/ast",
			language.CS:       "http://frontcs:8080/to/native/cs/ast",
			language.Go:       "http://frontgo:8080/to/native/go/ast",
			language.BladePHP: "http://frontphp:5000/to/php/code",
		},
		Normalizers: map[language.Language]string{
			language.JS:  "http://parsers:3000/from/js/to/dhscanner/ast",
			language.TS:  "http://parsers:3000/from/ts/to/dhscanner/ast",
			language.TSX: "http://parsers:3000/from/ts/to/dhscanner/ast",
			language.PHP: "http://parsers:3000/from/php/to/dhscanner/ast",
			language.PY:  "http://parsers:3000/from/py/to/dhscanner/ast",
			language.RB:  "http://parsers:3000/from/rb/to/dhscanner/ast",
			language.CS:  "http://parsers:3000/from/cs/to/dhscanner/ast",
			language.Go:  "http://parsers:3000/from/go/to/dhscanner/ast",
		},
		Codegen:     "http://codegen:3000/codegen",
		Kbgen:       "http://kbgen:3000/kbgen",
		Queryengine: "http://queryengine:5000/check",
	}
}
