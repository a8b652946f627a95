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
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

const processedColumns = `id, message_id, sender, subject, received_at,
	processed_at, forwarded_successfully, COALESCE(body_snippet, '')`

// InsertProcessed records a processed email. The second return value is
// false when the message_id is already recorded — the UNIQUE constraint
// rejected the insert, meaning a concurrent writer got there first. That
// is not an error.
func (s *Store) InsertProcessed(ctx context.Context, e models.ProcessedEmail) (*models.ProcessedEmail, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO processed_emails
			(message_id, sender, subject, received_at, forwarded_successfully, body_snippet)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+processedColumns,
		e.MessageID, e.Sender, e.Subject, e.ReceivedAt, e.ForwardedSuccessfully,
		nullIfEmpty(e.BodySnippet))
	rec, err := scanProcessed(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

// IsProcessed reports whether a message id already has a ledger row.
func (s *Store) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_emails WHERE message_id = $1)`,
		messageID).Scan(&exists)
	return exists, err
}

// EmailFilter narrows ListProcessed results.
type EmailFilter struct {
	Status   string // "success", "failed", or "" for all
	Search   string // substring match on subject, sender, or snippet
	Days     int    // limit to the last N days; 0 = no limit
	Page     int    // zero-based
	PageSize int
}

// ListProcessed returns a page of processed emails, newest first, along
// with the total count matching the filter.
func (s *Store) ListProcessed(ctx context.Context, f EmailFilter) ([]models.ProcessedEmail, int, error) {
	var conds []string
	var args []any

	switch strings.ToLower(f.Status) {
	case "success":
		conds = append(conds, "forwarded_successfully")
	case "failed":
		conds = append(conds, "NOT forwarded_successfully")
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		p := fmt.Sprintf("$%d", len(args))
		conds = append(conds, fmt.Sprintf(
			"(subject ILIKE %s OR sender ILIKE %s OR body_snippet ILIKE %s)", p, p, p))
	}
	if f.Days > 0 {
		args = append(args, time.Now().AddDate(0, 0, -f.Days))
		conds = append(conds, fmt.Sprintf("processed_at >= $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM processed_emails"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.PageSize <= 0 {
		f.PageSize = 10
	}
	args = append(args, f.PageSize, f.Page*f.PageSize)
	query := fmt.Sprintf(`
		SELECT %s FROM processed_emails%s
		ORDER BY processed_at DESC
		LIMIT $%d OFFSET $%d`, processedColumns, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	emails, err := collectProcessed(rows)
	return emails, total, err
}

// GetProcessed retrieves a processed email by id. Returns nil when not found.
func (s *Store) GetProcessed(ctx context.Context, id int64) (*models.ProcessedEmail, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+processedColumns+` FROM processed_emails WHERE id = $1`, id)
	e, err := scanProcessed(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// DeleteProcessed removes one ledger row. Returns false when the id does
// not exist. Deleting a row allows the message to be forwarded again if
// it still matches a monitor's query window.
func (s *Store) DeleteProcessed(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processed_emails WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClearProcessed removes every ledger row and returns how many were deleted.
func (s *Store) ClearProcessed(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processed_emails`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DashboardStats summarises pipeline activity for the dashboard endpoint.
type DashboardStats struct {
	ActiveWebhooks int                     `json:"active_webhooks"`
	ActiveMonitors int                     `json:"active_email_configs"`
	TotalProcessed int                     `json:"total_emails_processed"`
	Processed24h   int                     `json:"emails_processed_24h"`
	SuccessRate    float64                 `json:"success_rate"`
	RecentEmails   []models.ProcessedEmail `json:"recent_emails"`
}

// Stats computes the dashboard summary in one round trip per figure.
func (s *Store) Stats(ctx context.Context) (*DashboardStats, error) {
	var st DashboardStats
	var successful int

	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM webhook_configs WHERE active),
			(SELECT COUNT(*) FROM monitor_configs WHERE active),
			(SELECT COUNT(*) FROM processed_emails),
			(SELECT COUNT(*) FROM processed_emails WHERE forwarded_successfully),
			(SELECT COUNT(*) FROM processed_emails WHERE processed_at >= NOW() - INTERVAL '24 hours')
	`).Scan(&st.ActiveWebhooks, &st.ActiveMonitors, &st.TotalProcessed, &successful, &st.Processed24h)
	if err != nil {
		return nil, err
	}

	if st.TotalProcessed > 0 {
		st.SuccessRate = float64(successful) / float64(st.TotalProcessed) * 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+processedColumns+` FROM processed_emails
		ORDER BY processed_at DESC LIMIT 5`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st.RecentEmails, err = collectProcessed(rows)
	if err != nil {
		return nil, err
	}
	if st.RecentEmails == nil {
		st.RecentEmails = []models.ProcessedEmail{}
	}
	return &st, nil
}

func scanProcessed(row pgx.Row) (*models.ProcessedEmail, error) {
	var e models.ProcessedEmail
	err := row.Scan(
		&e.ID, &e.MessageID, &e.Sender, &e.Subject, &e.ReceivedAt,
		&e.ProcessedAt, &e.ForwardedSuccessfully, &e.BodySnippet,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectProcessed(rows pgx.Rows) ([]models.ProcessedEmail, error) {
	var emails []models.ProcessedEmail
	for rows.Next() {
		e, err := scanProcessed(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}
