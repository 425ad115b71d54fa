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

// Package storage keeps the transient artifacts a scan produces on its
// way through the pipeline: uploaded source files, the two AST forms,
// extracted callables, knowledge-base facts, the raw query engine
// verdict and the final SARIF document.
//
// Artifacts live for exactly one stage. Each worker reads the kind it
// consumes, writes the kind it produces, and deletes its input when the
// unit of work ends, successfully or not. The Store interface encodes
// the lifecycle contract this requires; see its documentation for the
// exact load/delete semantics.
//
// # Quick Start
//
// Open a local store rooted at a scratch directory:
//
//	store, err := storage.NewLocal(storage.LocalConfig{
//	    Root: "/app/transient_storage/dhscanner_jobs",
//	}, sink, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	meta, n, err := store.SaveSourceFile(ctx, jobID, "src/index.js",
//	    language.JS, "", file)
//
// Derived artifacts are saved against the metadata of the artifact they
// were computed from, which pins their storage names:
//
//	ast, err := store.SaveNativeAst(ctx, meta, body)
//
// Implementations other than Local (an object store, say) are free to
// map ids differently as long as the Store contract holds.
package storage
