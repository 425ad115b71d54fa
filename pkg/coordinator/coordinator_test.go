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
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// implementations runs the same behavioral suite against every
// Coordinator backend.
func implementations(t *testing.T) map[string]Coordinator {
	t.Helper()
	mr := miniredis.RunT(t)
	return map[string]Coordinator{
		"redis":  NewRedis(RedisConfig{Addr: mr.Addr()}, discardLogger()),
		"memory": NewMemory(),
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for name, coord := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := coord.GetStatus(ctx, "nope"); err != nil || ok {
				t.Fatalf("unknown job: ok=%v err=%v, want absent", ok, err)
			}

			if err := coord.SetStatus(ctx, "job-1", WaitingForNativeParsing); err != nil {
				t.Fatalf("SetStatus: %v", err)
			}
			status, ok, err := coord.GetStatus(ctx, "job-1")
			if err != nil {
				t.Fatalf("GetStatus: %v", err)
			}
			if !ok || status != WaitingForNativeParsing {
				t.Errorf("got %q ok=%v, want WaitingForNativeParsing", status, ok)
			}
		})
	}
}

func TestListWaitingFiltersByStatus(t *testing.T) {
	for name, coord := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := map[string]Status{
				"a": WaitingForCodegen,
				"b": WaitingForKbgen,
				"c": WaitingForCodegen,
				"d": Finished,
			}
			for id, status := range seed {
				if err := coord.SetStatus(ctx, id, status); err != nil {
					t.Fatalf("SetStatus(%s): %v", id, err)
				}
			}

			waiting, err := coord.ListWaiting(ctx, WaitingForCodegen)
			if err != nil {
				t.Fatalf("ListWaiting: %v", err)
			}
			sort.Strings(waiting)
			if len(waiting) != 2 || waiting[0] != "a" || waiting[1] != "c" {
				t.Errorf("waiting = %v, want [a c]", waiting)
			}

			none, err := coord.ListWaiting(ctx, WaitingForQueryengine)
			if err != nil {
				t.Fatalf("ListWaiting: %v", err)
			}
			if len(none) != 0 {
				t.Errorf("waiting for queryengine = %v, want empty", none)
			}
		})
	}
}

func TestMarkJobsFinishedAdvancesBatch(t *testing.T) {
	for name, coord := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"x", "y"} {
				if err := coord.SetStatus(ctx, id, WaitingForKbgen); err != nil {
					t.Fatalf("SetStatus: %v", err)
				}
			}

			if err := coord.MarkJobsFinished(ctx, []string{"x", "y"}, WaitingForQueryengine); err != nil {
				t.Fatalf("MarkJobsFinished: %v", err)
			}

			for _, id := range []string{"x", "y"} {
				status, ok, err := coord.GetStatus(ctx, id)
				if err != nil || !ok {
					t.Fatalf("GetStatus(%s): ok=%v err=%v", id, ok, err)
				}
				if status != WaitingForQueryengine {
					t.Errorf("job %s = %q, want WaitingForQueryengine", id, status)
				}
			}

			if err := coord.MarkJobsFinished(ctx, nil, Finished); err != nil {
				t.Errorf("empty batch must be a no-op, got %v", err)
			}
		})
	}
}

func TestRedisSkipsMalformedValues(t *testing.T) {
	mr := miniredis.RunT(t)
	coord := NewRedis(RedisConfig{Addr: mr.Addr()}, discardLogger())
	ctx := context.Background()

	mr.Set("broken", "not json at all")
	mr.Set("alien", `{"status":"SomethingNew"}`)
	if err := coord.SetStatus(ctx, "good", WaitingForResultsGeneration); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	if _, ok, err := coord.GetStatus(ctx, "broken"); err != nil || ok {
		t.Errorf("malformed value: ok=%v err=%v, want absent without error", ok, err)
	}
	if _, ok, err := coord.GetStatus(ctx, "alien"); err != nil || ok {
		t.Errorf("unknown status value: ok=%v err=%v, want absent without error", ok, err)
	}

	waiting, err := coord.ListWaiting(ctx, WaitingForResultsGeneration)
	if err != nil {
		t.Fatalf("ListWaiting: %v", err)
	}
	if len(waiting) != 1 || waiting[0] != "good" {
		t.Errorf("waiting = %v, want [good]", waiting)
	}
}

func TestRedisPing(t *testing.T) {
	mr := miniredis.RunT(t)
	coord := NewRedis(RedisConfig{Addr: mr.Addr()}, discardLogger())
	if err := coord.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mr.Close()
	if err := coord.Ping(context.Background()); err == nil {
		t.Error("Ping after shutdown must fail")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		want Status
	}{
		{"WaitingForNativeParsing", true, WaitingForNativeParsing},
		{"WaitingForDhscannerParsing", true, WaitingForDhscannerParsing},
		{"WaitingForCodegen", true, WaitingForCodegen},
		{"WaitingForKbgen", true, WaitingForKbgen},
		{"WaitingForQueryengine", true, WaitingForQueryengine},
		{"WaitingForResultsGeneration", true, WaitingForResultsGeneration},
		{"Finished", true, Finished},
		{"finished", false, ""},
		{"", false, ""},
		{"Waiting", false, ""},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseStatus(%q) = %q,%v want %q,%v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}

	if !Finished.Terminal() {
		t.Error("Finished must be terminal")
	}
	if WaitingForKbgen.Terminal() {
		t.Error("waiting statuses must not be terminal")
	}
}
