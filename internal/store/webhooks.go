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

package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

const webhookColumns = `id, name, url, active, content_type, send_raw_body, created_at, updated_at`

// CreateWebhook inserts a new webhook config and returns it with its
// generated id and timestamps.
func (s *Store) CreateWebhook(ctx context.Context, w models.WebhookConfig) (*models.WebhookConfig, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_configs (name, url, active, content_type, send_raw_body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+webhookColumns,
		w.Name, w.URL, w.Active, w.ContentType, w.SendRawBody)
	return scanWebhook(row)
}

// GetWebhook retrieves a webhook by id. Returns nil when not found.
func (s *Store) GetWebhook(ctx context.Context, id int64) (*models.WebhookConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+webhookColumns+` FROM webhook_configs WHERE id = $1`, id)
	w, err := scanWebhook(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// ListWebhooks returns all webhook configs ordered by id.
func (s *Store) ListWebhooks(ctx context.Context) ([]models.WebhookConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+webhookColumns+` FROM webhook_configs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// ListActiveWebhooks returns the destinations the dispatcher delivers to.
func (s *Store) ListActiveWebhooks(ctx context.Context) ([]models.WebhookConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+webhookColumns+` FROM webhook_configs WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// UpdateWebhook overwrites an existing webhook config. Returns nil when
// the id does not exist.
func (s *Store) UpdateWebhook(ctx context.Context, w models.WebhookConfig) (*models.WebhookConfig, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE webhook_configs SET
			name          = $2,
			url           = $3,
			active        = $4,
			content_type  = $5,
			send_raw_body = $6,
			updated_at    = NOW()
		WHERE id = $1
		RETURNING `+webhookColumns,
		w.ID, w.Name, w.URL, w.Active, w.ContentType, w.SendRawBody)
	updated, err := scanWebhook(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return updated, err
}

// DeleteWebhook removes a webhook config. Returns false when the id does
// not exist.
func (s *Store) DeleteWebhook(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_configs WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanWebhook(row pgx.Row) (*models.WebhookConfig, error) {
	var w models.WebhookConfig
	err := row.Scan(
		&w.ID, &w.Name, &w.URL, &w.Active, &w.ContentType, &w.SendRawBody,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func collectWebhooks(rows pgx.Rows) ([]models.WebhookConfig, error) {
	var webhooks []models.WebhookConfig
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}
