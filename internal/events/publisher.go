// Copyright (c) 2026 Mina Ibrahim
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package events announces processed emails on a Redis pub/sub channel.
// Subscribed UI processes fan the event out to their own clients; this
// side is fire-and-forget.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

// Publisher sends processed-email events to a Redis channel.
type Publisher struct {
	rdb     *redis.Client
	channel string
}

// NewPublisher creates a publisher targeting the given channel.
func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	return &Publisher{
		rdb:     rdb,
		channel: channel,
	}
}

// event is the wire envelope subscribers decode.
type event struct {
	ID   string                `json:"id"`
	Type string                `json:"type"`
	Data models.ProcessedEmail `json:"data"`
}

// PublishProcessed announces one processed email. Failures are logged
// and swallowed — notification is best-effort and must never affect the
// pipeline's outcome.
func (p *Publisher) PublishProcessed(ctx context.Context, rec models.ProcessedEmail) {
	payload, err := json.Marshal(event{
		ID:   uuid.New().String(),
		Type: "email_processed",
		Data: rec,
	})
	if err != nil {
		slog.Error("failed to marshal processed-email event", "error", err)
		return
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		slog.Error("failed to publish processed-email event",
			"message_id", rec.MessageID,
			"channel", p.channel,
			"error", err,
		)
		return
	}

	slog.Debug("published processed-email event",
		"message_id", rec.MessageID,
		"channel", p.channel,
	)
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
