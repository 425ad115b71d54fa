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

// Package pipeline provides the stage workers that move a submitted job
// through the dhscanner analysis.
//
// # Pipeline Overview
//
// A job advances through six stages, each owned by one worker:
//
//  1. Native parse: per-language frontends turn source files into
//     language-native ASTs
//  2. Dhscanner parse: the normalizer turns native ASTs into the
//     language-agnostic dhscanner AST
//  3. Codegen: dhscanner ASTs are lowered into callables
//  4. Kbgen: each callable is compiled into knowledge base facts
//  5. Queryengine: the accumulated facts are checked against the query
//     set
//  6. Results: the raw verdict is rendered as a SARIF document
//
// Workers never talk to each other. The coordinator's status machine is
// the only scheduling signal: a worker claims the jobs waiting for its
// trigger status, processes them, and advances the ones that completed.
// Every stage delegates its heavy lifting to a fixed external HTTP
// service and applies the same discipline to each unit of work: read the
// input artifact, POST it, write the output artifact on success, and
// always consume the input so transient storage cannot grow without
// bound.
//
// Unit-level failures (an unparseable file, a misbehaving downstream
// service) are logged and swallowed; they never fail the job. A stage
// reports an error only when its claim-scope work could not run at all,
// which leaves the job in its trigger state for a later tick.
//
// # Quick Start
//
// Create and run a single stage worker:
//
//	stage := pipeline.NewCodegen(pipeline.Config{
//	    Store:     store,
//	    Sink:      sink,
//	    Logger:    logger,
//	    Endpoints: pipeline.DefaultEndpoints(),
//	})
//	worker := pipeline.NewWorker(stage, coord, sink, logger, pipeline.WorkerConfig{})
//	if err := worker.Run(ctx); err != nil {
//	    logger.Error("worker stopped", "err", err)
//	}
package pipeline
