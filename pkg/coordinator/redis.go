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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// statusEnvelope is the JSON value stored under each job key.
type statusEnvelope struct {
	Status string `json:"status"`
}

// RedisConfig holds connection settings for the status store. The
// database is dedicated to job statuses: every key is a job id.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis implements Coordinator on a Redis database.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects a coordinator to the given Redis database. The
// connection is lazy; call Ping to verify reachability at startup.
func NewRedis(cfg RedisConfig, logger *slog.Logger) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		logger: logger,
	}
}

// Ping verifies the status store is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping status store: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) GetStatus(ctx context.Context, jobID string) (Status, bool, error) {
	raw, err := r.client.Get(ctx, jobID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get status of job %s: %w", jobID, err)
	}
	status, ok := r.decode(jobID, raw)
	return status, ok, nil
}

func (r *Redis) SetStatus(ctx context.Context, jobID string, status Status) error {
	payload, err := json.Marshal(statusEnvelope{Status: string(status)})
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := r.client.Set(ctx, jobID, payload, 0).Err(); err != nil {
		return fmt.Errorf("set status of job %s: %w", jobID, err)
	}
	return nil
}

func (r *Redis) ListWaiting(ctx context.Context, desired Status) ([]string, error) {
	keys, err := r.client.Keys(ctx, "*").Result()
	if err != nil {
		return nil, fmt.Errorf("list job keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch job statuses: %w", err)
	}

	var waiting []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Key vanished between KEYS and MGET.
			continue
		}
		status, ok := r.decode(keys[i], raw)
		if ok && status == desired {
			waiting = append(waiting, keys[i])
		}
	}
	return waiting, nil
}

func (r *Redis) MarkJobsFinished(ctx context.Context, jobIDs []string, next Status) error {
	if len(jobIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(statusEnvelope{Status: string(next)})
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range jobIDs {
			pipe.Set(ctx, id, payload, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("advance %d jobs to %s: %w", len(jobIDs), next, err)
	}
	return nil
}

// decode parses a stored envelope. Malformed values are reported as
// absent so a corrupted key degrades to "unknown job" instead of
// wedging the pipeline.
func (r *Redis) decode(jobID, raw string) (Status, bool) {
	var env statusEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.logger.Warn("coordinator.status.malformed", "job_id", jobID, "error", err)
		return "", false
	}
	status, ok := ParseStatus(env.Status)
	if !ok {
		r.logger.Warn("coordinator.status.unknown", "job_id", jobID, "value", env.Status)
		return "", false
	}
	return status, true
}
