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

// Package coordinator tracks the single piece of mutable state a job
// has: its pipeline status. Stage workers poll for jobs waiting on
// their trigger status and advance them when a tick completes. Because
// exactly one worker class reacts to each waiting status, writes are
// effectively single-writer per key; concurrent instances of the same
// worker class may race, but both write the same target status, so the
// advance is idempotent.
package coordinator

import "context"

// Status is the wire value stored per job. The strings are shared with
// the ingress API (/status returns them verbatim), so they never change.
type Status string

const (
	WaitingForNativeParsing     Status = "WaitingForNativeParsing"
	WaitingForDhscannerParsing  Status = "WaitingForDhscannerParsing"
	WaitingForCodegen           Status = "WaitingForCodegen"
	WaitingForKbgen             Status = "WaitingForKbgen"
	WaitingForQueryengine       Status = "WaitingForQueryengine"
	WaitingForResultsGeneration Status = "WaitingForResultsGeneration"
	Finished                    Status = "Finished"
)

// ParseStatus converts a stored wire value back into a Status.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case WaitingForNativeParsing, WaitingForDhscannerParsing, WaitingForCodegen,
		WaitingForKbgen, WaitingForQueryengine, WaitingForResultsGeneration, Finished:
		return s, true
	}
	return "", false
}

// Terminal reports whether a job in this status will never be picked up
// by another stage worker.
func (s Status) Terminal() bool { return s == Finished }

// Coordinator is the job status store. Implementations must tolerate
// concurrent use from the ingress API and every stage worker.
//
// GetStatus reports ok=false both for jobs that were never announced
// and for stored values that fail to parse; err is reserved for
// transport faults. ListWaiting is a snapshot: it may miss jobs whose
// status changes concurrently, which is fine because the next poll
// catches them.
type Coordinator interface {
	GetStatus(ctx context.Context, jobID string) (Status, bool, error)
	SetStatus(ctx context.Context, jobID string, status Status) error
	ListWaiting(ctx context.Context, desired Status) ([]string, error)

	// MarkJobsFinished advances a batch of jobs that completed a stage
	// tick to the next stage's waiting status.
	MarkJobsFinished(ctx context.Context, jobIDs []string, next Status) error
}
