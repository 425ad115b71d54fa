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
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/dhscanner/internal/dhtest"
	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/logsink"
)

// stubStage records the jobs it processes and fails the ones it is
// told to fail.
type stubStage struct {
	trigger coordinator.Status
	next    coordinator.Status
	fail    map[string]bool

	mu   sync.Mutex
	seen []string
}

func (s *stubStage) Name() string                { return "stub" }
func (s *stubStage) Trigger() coordinator.Status { return s.trigger }
func (s *stubStage) Next() coordinator.Status    { return s.next }

func (s *stubStage) Process(_ context.Context, jobID string) error {
	s.mu.Lock()
	s.seen = append(s.seen, jobID)
	s.mu.Unlock()
	if s.fail[jobID] {
		return errors.New("index unreachable")
	}
	return nil
}

func (s *stubStage) processed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.seen...)
	sort.Strings(out)
	return out
}

// brokenCoordinator fails every call, simulating an unreachable redis.
type brokenCoordinator struct{}

func (brokenCoordinator) GetStatus(context.Context, string) (coordinator.Status, bool, error) {
	return "", false, errors.New("connection refused")
}

func (brokenCoordinator) SetStatus(context.Context, string, coordinator.Status) error {
	return errors.New("connection refused")
}

func (brokenCoordinator) ListWaiting(context.Context, coordinator.Status) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (brokenCoordinator) MarkJobsFinished(context.Context, []string, coordinator.Status) error {
	return errors.New("connection refused")
}

func TestWorkerTickAdvancesCompletedJobs(t *testing.T) {
	ctx := context.Background()
	mem := coordinator.NewMemory()
	require.NoError(t, mem.SetStatus(ctx, "j1", coordinator.WaitingForCodegen))
	require.NoError(t, mem.SetStatus(ctx, "j2", coordinator.WaitingForCodegen))
	require.NoError(t, mem.SetStatus(ctx, "j3", coordinator.WaitingForKbgen))

	stage := &stubStage{
		trigger: coordinator.WaitingForCodegen,
		next:    coordinator.WaitingForKbgen,
	}
	w := NewWorker(stage, mem, logsink.Nop{}, dhtest.Logger(), WorkerConfig{})
	w.RunTick(ctx)

	assert.Equal(t, []string{"j1", "j2"}, stage.processed())
	for _, jobID := range []string{"j1", "j2", "j3"} {
		status, ok, err := mem.GetStatus(ctx, jobID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, coordinator.WaitingForKbgen, status, "job %s", jobID)
	}
}

func TestWorkerKeepsFailedJobInTriggerState(t *testing.T) {
	ctx := context.Background()
	mem := coordinator.NewMemory()
	require.NoError(t, mem.SetStatus(ctx, "good", coordinator.WaitingForKbgen))
	require.NoError(t, mem.SetStatus(ctx, "bad", coordinator.WaitingForKbgen))

	stage := &stubStage{
		trigger: coordinator.WaitingForKbgen,
		next:    coordinator.WaitingForQueryengine,
		fail:    map[string]bool{"bad": true},
	}
	w := NewWorker(stage, mem, logsink.Nop{}, dhtest.Logger(), WorkerConfig{})
	w.RunTick(ctx)

	status, _, err := mem.GetStatus(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, coordinator.WaitingForQueryengine, status)

	status, _, err = mem.GetStatus(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, coordinator.WaitingForKbgen, status, "failed job must stay claimable")

	// the next tick re-claims only the failed job
	stage.fail = nil
	w.RunTick(ctx)
	status, _, err = mem.GetStatus(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, coordinator.WaitingForQueryengine, status)
}

func TestWorkerReportsUnreachableCoordinator(t *testing.T) {
	rec := &logsink.Recorder{}
	stage := &stubStage{
		trigger: coordinator.WaitingForNativeParsing,
		next:    coordinator.WaitingForDhscannerParsing,
	}
	w := NewWorker(stage, brokenCoordinator{}, rec, dhtest.Logger(), WorkerConfig{})
	w.RunTick(context.Background())

	assert.Empty(t, stage.processed())
	assert.Len(t, rec.ByEvent(logsink.EventCoordinatorNotResponding), 1)
}

func TestWorkerRunStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stage := &stubStage{
		trigger: coordinator.WaitingForCodegen,
		next:    coordinator.WaitingForKbgen,
	}
	w := NewWorker(stage, coordinator.NewMemory(), logsink.Nop{}, dhtest.Logger(), WorkerConfig{})
	require.NoError(t, w.Run(ctx))
}

func TestAllStagesCoverEveryWaitingStatus(t *testing.T) {
	stages := AllStages(Config{Store: nil})
	require.Len(t, stages, 6)

	prev := coordinator.WaitingForNativeParsing
	for _, s := range stages {
		assert.Equal(t, prev, s.Trigger(), "stage %s", s.Name())
		prev = s.Next()
	}
	assert.Equal(t, coordinator.Finished, prev)
}
