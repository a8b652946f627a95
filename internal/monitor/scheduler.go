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

// Package monitor runs the background loop that discovers new emails for
// every active monitor and drives them through dedup, extraction,
// webhook dispatch, recording, and event publication.
//
// Per-message flow:
//
//	listed -> already known?       skip, no side effects
//	       -> fetched -> no body?  warn and skip, NOT recorded
//	       -> dispatched -> recorded -> published
//
// Listing is at-least-once (query windows overlap across cycles);
// recording is at-most-once (UNIQUE message_id); together forwarding is
// effectively once.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/extract"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

// ConfigSource supplies the active configuration each cycle. Implemented
// by store.Store.
type ConfigSource interface {
	ListActiveMonitors(ctx context.Context) ([]models.MonitorConfig, error)
	ListActiveWebhooks(ctx context.Context) ([]models.WebhookConfig, error)
}

// MailClient lists candidate message ids and fetches full payloads.
// Implemented by gmail.Client.
type MailClient interface {
	ListMessages(ctx context.Context, m models.MonitorConfig, since time.Time) ([]string, error)
	GetMessage(ctx context.Context, id string) (*gmailapi.Message, error)
}

// Ledger is the dedup boundary. Implemented by dedup.Ledger.
type Ledger interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	Record(ctx context.Context, e models.ProcessedEmail) (*models.ProcessedEmail, bool, error)
}

// Forwarder delivers one message to the active webhooks and reports
// whether any accepted it. Implemented by dispatch.Dispatcher.
type Forwarder interface {
	Dispatch(ctx context.Context, msg extract.Message, webhooks []models.WebhookConfig) bool
}

// EventSink receives fire-and-forget notifications after a message is
// durably recorded. Implemented by events.Publisher.
type EventSink interface {
	PublishProcessed(ctx context.Context, rec models.ProcessedEmail)
}

// Config wires a Scheduler.
type Config struct {
	Store      ConfigSource
	Mail       MailClient
	Ledger     Ledger
	Dispatcher Forwarder
	Events     EventSink

	// Lookback bounds the Gmail query window each check.
	Lookback time.Duration
	// DefaultInterval is the sleep when no monitors are active.
	DefaultInterval time.Duration
	// ErrorBackoff is the sleep after a cycle that failed to list configs.
	ErrorBackoff time.Duration
}

// Scheduler owns the single polling task. Cycles never overlap: the
// loop body, including the inter-cycle sleep, completes before the next
// iteration starts.
type Scheduler struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = time.Duration(models.DefaultCheckInterval) * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 60 * time.Second
	}
	return &Scheduler{cfg: cfg, now: time.Now}
}

// Start launches the polling loop. Starting a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.run(loopCtx)
	}()

	slog.Info("email monitor started",
		"default_interval", s.cfg.DefaultInterval,
		"lookback", s.cfg.Lookback,
	)
}

// Stop cancels the loop and waits for the in-flight cycle to wind down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("email monitor stopped")
}

// IsRunning reports whether the polling loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// run loops until the context is cancelled. Errors never terminate it.
func (s *Scheduler) run(ctx context.Context) {
	for {
		sleep := s.cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// cycle checks every active monitor once and returns how long to sleep
// before the next cycle: the shortest configured interval, or the
// default when no monitors are active, or the error backoff when the
// config listing failed.
func (s *Scheduler) cycle(ctx context.Context) time.Duration {
	monitors, err := s.cfg.Store.ListActiveMonitors(ctx)
	if err != nil {
		slog.Error("failed to list active monitors", "error", err)
		return s.cfg.ErrorBackoff
	}

	for _, m := range monitors {
		if ctx.Err() != nil {
			return s.cfg.DefaultInterval
		}
		if err := s.checkMonitor(ctx, m); err != nil {
			slog.Error("error checking monitor",
				"address", m.EmailAddress,
				"error", err,
			)
		}
	}

	// The sleep is the shortest interval among active monitors; the
	// default applies only when nothing is configured.
	var sleep time.Duration
	for _, m := range monitors {
		iv := time.Duration(m.CheckIntervalSeconds) * time.Second
		if iv <= 0 {
			continue
		}
		if sleep == 0 || iv < sleep {
			sleep = iv
		}
	}
	if sleep == 0 {
		sleep = s.cfg.DefaultInterval
	}
	return sleep
}

// checkMonitor lists candidates for one monitor and processes them in
// listing order. A returned error aborts this monitor only.
func (s *Scheduler) checkMonitor(ctx context.Context, m models.MonitorConfig) error {
	since := s.now().Add(-s.cfg.Lookback)
	ids, err := s.cfg.Mail.ListMessages(ctx, m, since)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processMessage(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// processMessage drives one message id through the pipeline. Only
// ledger/config-store failures return an error — dedup correctness
// depends on the store, so those cannot be papered over. Fetch failures
// and unusable payloads are logged and skipped; the message stays
// unrecorded and a later cycle may retry it.
func (s *Scheduler) processMessage(ctx context.Context, id string) error {
	known, err := s.cfg.Ledger.IsProcessed(ctx, id)
	if err != nil {
		return err
	}
	if known {
		return nil
	}

	payload, err := s.cfg.Mail.GetMessage(ctx, id)
	if err != nil {
		slog.Error("failed to fetch message", "message_id", id, "error", err)
		return nil
	}

	msg := extract.FromGmail(payload)
	if !msg.HasBody() {
		slog.Warn("could not extract body, skipping", "message_id", id)
		return nil
	}

	webhooks, err := s.cfg.Store.ListActiveWebhooks(ctx)
	if err != nil {
		return err
	}

	forwarded := s.cfg.Dispatcher.Dispatch(ctx, msg, webhooks)

	rec, inserted, err := s.cfg.Ledger.Record(ctx, models.ProcessedEmail{
		MessageID:             id,
		Sender:                msg.Sender,
		Subject:               msg.Subject,
		ReceivedAt:            msg.ReceivedAt,
		ForwardedSuccessfully: forwarded,
		BodySnippet:           snippet(msg.Body),
	})
	if err != nil {
		return err
	}
	if !inserted {
		// A concurrent cycle recorded it first; its writer already
		// published the event.
		return nil
	}

	slog.Info("processed email",
		"message_id", id,
		"subject", msg.Subject,
		"sender", msg.Sender,
		"forwarded", forwarded,
	)

	if s.cfg.Events != nil && rec != nil {
		s.cfg.Events.PublishProcessed(ctx, *rec)
	}
	return nil
}

// snippet keeps the first SnippetLength characters of the body. The cut
// lands on a rune boundary so the stored value is always valid UTF-8.
func snippet(body string) string {
	n := 0
	for i := range body {
		if n == models.SnippetLength {
			return body[:i]
		}
		n++
	}
	return body
}
