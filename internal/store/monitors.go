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
	"database/sql"

	"github.com/jackc/pgx/v5"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

const monitorColumns = `id, email_address, COALESCE(filter_subject, ''),
	COALESCE(filter_sender, ''), check_interval_seconds, active, created_at, updated_at`

// CreateMonitor inserts a new monitor config and returns it with its
// generated id and timestamps. Blank filters are stored as NULL.
func (s *Store) CreateMonitor(ctx context.Context, m models.MonitorConfig) (*models.MonitorConfig, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO monitor_configs
			(email_address, filter_subject, filter_sender, check_interval_seconds, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+monitorColumns,
		m.EmailAddress, nullIfEmpty(m.FilterSubject), nullIfEmpty(m.FilterSender),
		m.CheckIntervalSeconds, m.Active)
	return scanMonitor(row)
}

// GetMonitor retrieves a monitor by id. Returns nil when not found.
func (s *Store) GetMonitor(ctx context.Context, id int64) (*models.MonitorConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+monitorColumns+` FROM monitor_configs WHERE id = $1`, id)
	m, err := scanMonitor(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ListMonitors returns all monitor configs ordered by id.
func (s *Store) ListMonitors(ctx context.Context) ([]models.MonitorConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitor_configs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMonitors(rows)
}

// ListActiveMonitors returns the monitors the scheduler should poll.
func (s *Store) ListActiveMonitors(ctx context.Context) ([]models.MonitorConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitor_configs WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMonitors(rows)
}

// UpdateMonitor overwrites an existing monitor config. Returns nil when
// the id does not exist.
func (s *Store) UpdateMonitor(ctx context.Context, m models.MonitorConfig) (*models.MonitorConfig, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE monitor_configs SET
			email_address          = $2,
			filter_subject         = $3,
			filter_sender          = $4,
			check_interval_seconds = $5,
			active                 = $6,
			updated_at             = NOW()
		WHERE id = $1
		RETURNING `+monitorColumns,
		m.ID, m.EmailAddress, nullIfEmpty(m.FilterSubject), nullIfEmpty(m.FilterSender),
		m.CheckIntervalSeconds, m.Active)
	updated, err := scanMonitor(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return updated, err
}

// DeleteMonitor removes a monitor config. Returns false when the id does
// not exist.
func (s *Store) DeleteMonitor(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitor_configs WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanMonitor(row pgx.Row) (*models.MonitorConfig, error) {
	var m models.MonitorConfig
	err := row.Scan(
		&m.ID, &m.EmailAddress, &m.FilterSubject, &m.FilterSender,
		&m.CheckIntervalSeconds, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMonitors(rows pgx.Rows) ([]models.MonitorConfig, error) {
	var monitors []models.MonitorConfig
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, *m)
	}
	return monitors, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
