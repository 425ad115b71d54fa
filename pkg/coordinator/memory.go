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

package coordinator

import (
	"context"
	"sync"
)

// Memory is an in-process Coordinator for tests and single-binary
// setups where running Redis would be overkill.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]Status
}

// NewMemory returns an empty in-memory coordinator.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]Status)}
}

func (m *Memory) GetStatus(_ context.Context, jobID string) (Status, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.jobs[jobID]
	return status, ok, nil
}

func (m *Memory) SetStatus(_ context.Context, jobID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID] = status
	return nil
}

func (m *Memory) ListWaiting(_ context.Context, desired Status) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var waiting []string
	for id, status := range m.jobs {
		if status == desired {
			waiting = append(waiting, id)
		}
	}
	return waiting, nil
}

func (m *Memory) MarkJobsFinished(_ context.Context, jobIDs []string, next Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range jobIDs {
		m.jobs[id] = next
	}
	return nil
}
