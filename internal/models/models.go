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

// Package models defines the data structures shared across the forwarder.
package models

import "time"

// MonitorConfig describes a mailbox to watch plus optional filters.
// Rows are managed through the configuration API and read by the poll
// scheduler each cycle; the pipeline never mutates them.
type MonitorConfig struct {
	ID                   int64     `json:"id"`
	EmailAddress         string    `json:"email_address"`
	FilterSubject        string    `json:"filter_subject,omitempty"`
	FilterSender         string    `json:"filter_sender,omitempty"`
	CheckIntervalSeconds int       `json:"check_interval_seconds"`
	Active               bool      `json:"active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// MinCheckInterval is the floor for a monitor's poll cadence. Anything
// lower would hammer the Gmail API for no benefit.
const MinCheckInterval = 30

// DefaultCheckInterval is applied when a monitor is created without an
// explicit cadence, and used by the scheduler when no monitors are active.
const DefaultCheckInterval = 60

// WebhookConfig describes one HTTP destination for forwarded emails.
type WebhookConfig struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Active      bool      `json:"active"`
	ContentType string    `json:"content_type"`
	SendRawBody bool      `json:"send_raw_body"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProcessedEmail records one forwarded (or attempted) message. The
// message_id column carries a UNIQUE constraint — it is the dedup
// ledger's source of truth.
type ProcessedEmail struct {
	ID                    int64     `json:"id"`
	MessageID             string    `json:"message_id"`
	Sender                string    `json:"sender"`
	Subject               string    `json:"subject"`
	ReceivedAt            time.Time `json:"received_at"`
	ProcessedAt           time.Time `json:"processed_at"`
	ForwardedSuccessfully bool      `json:"forwarded_successfully"`
	BodySnippet           string    `json:"body_snippet,omitempty"`
}

// SnippetLength bounds body_snippet to the first 500 bytes of the
// extracted body.
const SnippetLength = 500
