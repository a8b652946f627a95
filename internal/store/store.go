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

// Package store provides the Postgres-backed persistence layer for monitor
// configurations, webhook configurations, and the processed-email ledger.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides CRUD operations over the forwarder's three tables.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given Postgres pool. It ensures the
// schema exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS monitor_configs (
			id                     BIGSERIAL PRIMARY KEY,
			email_address          TEXT NOT NULL,
			filter_subject         TEXT,
			filter_sender          TEXT,
			check_interval_seconds INT NOT NULL DEFAULT 60,
			active                 BOOLEAN NOT NULL DEFAULT TRUE,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS webhook_configs (
			id             BIGSERIAL PRIMARY KEY,
			name           TEXT NOT NULL,
			url            TEXT NOT NULL,
			active         BOOLEAN NOT NULL DEFAULT TRUE,
			content_type   TEXT NOT NULL DEFAULT 'application/json',
			send_raw_body  BOOLEAN NOT NULL DEFAULT FALSE,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS processed_emails (
			id                     BIGSERIAL PRIMARY KEY,
			message_id             TEXT NOT NULL UNIQUE,
			sender                 TEXT NOT NULL DEFAULT '',
			subject                TEXT NOT NULL DEFAULT '',
			received_at            TIMESTAMPTZ NOT NULL,
			processed_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			forwarded_successfully BOOLEAN NOT NULL DEFAULT FALSE,
			body_snippet           TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_monitors_active ON monitor_configs(active);
		CREATE INDEX IF NOT EXISTS idx_webhooks_active ON webhook_configs(active);
		CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_emails(processed_at);
	`)
	return err
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
