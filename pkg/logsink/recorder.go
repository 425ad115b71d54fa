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

import (
	"context"
	"sync"
)

// Nop discards every record. Components take a Nop sink when the log
// service is not configured.
type Nop struct{}

func (Nop) Debug(context.Context, Message)   {}
func (Nop) Info(context.Context, Message)    {}
func (Nop) Warning(context.Context, Message) {}
func (Nop) Error(context.Context, Message)   {}

// RecordedMessage pairs a captured record with the severity it was
// submitted at.
type RecordedMessage struct {
	Level Level
	Message
}

// Recorder keeps every record in memory. Tests assert against the
// captured stream instead of running a real sink service.
type Recorder struct {
	mu      sync.Mutex
	entries []RecordedMessage
}

func (r *Recorder) Debug(_ context.Context, m Message)   { r.record(LevelDebug, m) }
func (r *Recorder) Info(_ context.Context, m Message)    { r.record(LevelInfo, m) }
func (r *Recorder) Warning(_ context.Context, m Message) { r.record(LevelWarning, m) }
func (r *Recorder) Error(_ context.Context, m Message)   { r.record(LevelError, m) }

func (r *Recorder) record(level Level, m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, RecordedMessage{Level: level, Message: m})
}

// All returns a copy of the captured records in submission order.
func (r *Recorder) All() []RecordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedMessage, len(r.entries))
	copy(out, r.entries)
	return out
}

// ByEvent returns the captured messages carrying the given event.
func (r *Recorder) ByEvent(e Event) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, entry := range r.entries {
		if entry.Event == e {
			out = append(out, entry.Message)
		}
	}
	return out
}
