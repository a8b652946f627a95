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

package monitor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/dispatch"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

type fakeConfigSource struct {
	monitors []models.MonitorConfig
	webhooks []models.WebhookConfig
	listErr  error
}

func (f *fakeConfigSource) ListActiveMonitors(context.Context) ([]models.MonitorConfig, error) {
	return f.monitors, f.listErr
}

func (f *fakeConfigSource) ListActiveWebhooks(context.Context) ([]models.WebhookConfig, error) {
	return f.webhooks, nil
}

type fakeMail struct {
	ids      []string
	messages map[string]*gmailapi.Message
	getErr   error
}

func (f *fakeMail) ListMessages(context.Context, models.MonitorConfig, time.Time) ([]string, error) {
	return f.ids, nil
}

func (f *fakeMail) GetMessage(_ context.Context, id string) (*gmailapi.Message, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.messages[id], nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]models.ProcessedEmail
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]models.ProcessedEmail)}
}

func (f *fakeLedger) IsProcessed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok, nil
}

func (f *fakeLedger) Record(_ context.Context, e models.ProcessedEmail) (*models.ProcessedEmail, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[e.MessageID]; ok {
		return nil, false, nil
	}
	e.ProcessedAt = time.Now()
	f.records[e.MessageID] = e
	return &e, true, nil
}

type fakeEvents struct {
	mu        sync.Mutex
	published []models.ProcessedEmail
}

func (f *fakeEvents) PublishProcessed(_ context.Context, rec models.ProcessedEmail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, rec)
}

func textMessage(from, subject, date, body string) *gmailapi.Message {
	return &gmailapi.Message{
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "Subject", Value: subject},
				{Name: "Date", Value: date},
			},
			Body: &gmailapi.MessagePartBody{
				Data: base64.RawURLEncoding.EncodeToString([]byte(body)),
			},
		},
	}
}

func TestCycleForwardsRecordsAndPublishesOnce(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads [][]byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		payloads = append(payloads, b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeConfigSource{
		monitors: []models.MonitorConfig{{
			ID:                   1,
			EmailAddress:         "alerts@example.com",
			FilterSender:         "bot@example.com",
			CheckIntervalSeconds: 60,
			Active:               true,
		}},
		webhooks: []models.WebhookConfig{{
			ID:     1,
			Name:   "trading-bot",
			URL:    srv.URL,
			Active: true,
		}},
	}
	mail := &fakeMail{
		ids: []string{"abc123"},
		messages: map[string]*gmailapi.Message{
			"abc123": textMessage("bot@example.com", "Signal", "Sun, 30 Aug 2026 12:00:00 +0000", "BUY XYZ"),
		},
	}
	ledger := newFakeLedger()
	events := &fakeEvents{}

	s := NewScheduler(Config{
		Store:      store,
		Mail:       mail,
		Ledger:     ledger,
		Dispatcher: dispatch.New(srv.Client()),
		Events:     events,
	})

	s.cycle(context.Background())

	mu.Lock()
	if len(payloads) != 1 {
		mu.Unlock()
		t.Fatalf("webhook received %d payloads, want 1", len(payloads))
	}
	var got map[string]string
	if err := json.Unmarshal(payloads[0], &got); err != nil {
		mu.Unlock()
		t.Fatalf("webhook payload is not JSON: %v", err)
	}
	mu.Unlock()

	if got["body"] != "BUY XYZ" || got["subject"] != "Signal" || got["sender"] != "bot@example.com" {
		t.Errorf("unexpected payload: %v", got)
	}

	rec, ok := ledger.records["abc123"]
	if !ok {
		t.Fatal("message abc123 not recorded")
	}
	if !rec.ForwardedSuccessfully {
		t.Error("forwarded_successfully = false, want true")
	}
	if rec.BodySnippet != "BUY XYZ" {
		t.Errorf("snippet = %q, want %q", rec.BodySnippet, "BUY XYZ")
	}
	if len(events.published) != 1 {
		t.Fatalf("published %d events, want 1", len(events.published))
	}

	// A second cycle sees the same listing and must not redeliver.
	s.cycle(context.Background())

	mu.Lock()
	n := len(payloads)
	mu.Unlock()
	if n != 1 {
		t.Errorf("webhook received %d payloads after second cycle, want 1", n)
	}
	if len(ledger.records) != 1 {
		t.Errorf("ledger has %d records, want 1", len(ledger.records))
	}
	if len(events.published) != 1 {
		t.Errorf("published %d events after second cycle, want 1", len(events.published))
	}
}

func TestCycleSkipsMessageWithoutBody(t *testing.T) {
	store := &fakeConfigSource{
		monitors: []models.MonitorConfig{{ID: 1, EmailAddress: "alerts@example.com", Active: true}},
	}
	mail := &fakeMail{
		ids: []string{"empty1"},
		messages: map[string]*gmailapi.Message{
			"empty1": {Payload: &gmailapi.MessagePart{
				MimeType: "multipart/alternative",
				Headers: []*gmailapi.MessagePartHeader{
					{Name: "From", Value: "bot@example.com"},
					{Name: "Subject", Value: "Signal"},
				},
				Parts: []*gmailapi.MessagePart{{
					MimeType: "text/html",
					Body: &gmailapi.MessagePartBody{
						Data: base64.RawURLEncoding.EncodeToString([]byte("<p>hi</p>")),
					},
				}},
			}},
		},
	}
	ledger := newFakeLedger()

	s := NewScheduler(Config{
		Store:      store,
		Mail:       mail,
		Ledger:     ledger,
		Dispatcher: dispatch.New(nil),
		Events:     &fakeEvents{},
	})
	s.cycle(context.Background())

	// Unrecorded so a later cycle can retry once the body is readable.
	if len(ledger.records) != 0 {
		t.Errorf("ledger has %d records, want 0", len(ledger.records))
	}
}

func TestCycleRecordsWithoutWebhooks(t *testing.T) {
	store := &fakeConfigSource{
		monitors: []models.MonitorConfig{{ID: 1, EmailAddress: "alerts@example.com", Active: true}},
	}
	mail := &fakeMail{
		ids: []string{"abc123"},
		messages: map[string]*gmailapi.Message{
			"abc123": textMessage("bot@example.com", "Signal", "Sun, 30 Aug 2026 12:00:00 +0000", "BUY XYZ"),
		},
	}
	ledger := newFakeLedger()

	s := NewScheduler(Config{
		Store:      store,
		Mail:       mail,
		Ledger:     ledger,
		Dispatcher: dispatch.New(nil),
		Events:     &fakeEvents{},
	})
	s.cycle(context.Background())

	rec, ok := ledger.records["abc123"]
	if !ok {
		t.Fatal("message abc123 not recorded")
	}
	if rec.ForwardedSuccessfully {
		t.Error("forwarded_successfully = true with no webhooks configured")
	}
}

func TestCycleLeavesFailedFetchUnrecorded(t *testing.T) {
	store := &fakeConfigSource{
		monitors: []models.MonitorConfig{{ID: 1, EmailAddress: "alerts@example.com", Active: true}},
	}
	mail := &fakeMail{ids: []string{"abc123"}, getErr: errors.New("transient")}
	ledger := newFakeLedger()

	s := NewScheduler(Config{
		Store:      store,
		Mail:       mail,
		Ledger:     ledger,
		Dispatcher: dispatch.New(nil),
	})
	s.cycle(context.Background())

	if len(ledger.records) != 0 {
		t.Errorf("ledger has %d records, want 0", len(ledger.records))
	}
}

func TestCycleSleepSelection(t *testing.T) {
	tests := []struct {
		name      string
		intervals []int
		want      time.Duration
	}{
		{"no monitors", nil, 60 * time.Second},
		{"min of several", []int{120, 45}, 45 * time.Second},
		{"single monitor above default", []int{120}, 120 * time.Second},
		{"single monitor below default", []int{30}, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var monitors []models.MonitorConfig
			for i, iv := range tt.intervals {
				monitors = append(monitors, models.MonitorConfig{
					ID:                   int64(i + 1),
					EmailAddress:         "a@example.com",
					CheckIntervalSeconds: iv,
					Active:               true,
				})
			}
			s := NewScheduler(Config{
				Store:      &fakeConfigSource{monitors: monitors},
				Mail:       &fakeMail{},
				Ledger:     newFakeLedger(),
				Dispatcher: dispatch.New(nil),
			})
			if got := s.cycle(context.Background()); got != tt.want {
				t.Errorf("sleep = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCycleBacksOffOnListError(t *testing.T) {
	s := NewScheduler(Config{
		Store:        &fakeConfigSource{listErr: errors.New("db down")},
		Mail:         &fakeMail{},
		Ledger:       newFakeLedger(),
		Dispatcher:   dispatch.New(nil),
		ErrorBackoff: 5 * time.Second,
	})
	if got := s.cycle(context.Background()); got != 5*time.Second {
		t.Errorf("sleep = %v, want error backoff 5s", got)
	}
}

func TestSnippetTruncatesOnRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "short body unchanged",
			body: "BUY XYZ",
			want: "BUY XYZ",
		},
		{
			name: "exactly at limit",
			body: strings.Repeat("a", models.SnippetLength),
			want: strings.Repeat("a", models.SnippetLength),
		},
		{
			// The 500th character is a multi-byte rune; a byte cut
			// would leave a dangling lead byte.
			name: "multibyte rune at the limit",
			body: strings.Repeat("a", models.SnippetLength-1) + "€€",
			want: strings.Repeat("a", models.SnippetLength-1) + "€",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snippet(tt.body)
			if got != tt.want {
				t.Errorf("snippet = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Error("snippet is not valid UTF-8")
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(Config{
		Store:           &fakeConfigSource{},
		Mail:            &fakeMail{},
		Ledger:          newFakeLedger(),
		Dispatcher:      dispatch.New(nil),
		DefaultInterval: 10 * time.Millisecond,
	})

	if s.IsRunning() {
		t.Fatal("not started yet, IsRunning = true")
	}
	s.Stop() // stopping a stopped scheduler is a no-op

	s.Start(context.Background())
	if !s.IsRunning() {
		t.Fatal("IsRunning = false after Start")
	}
	s.Start(context.Background()) // double start is a no-op

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if s.IsRunning() {
		t.Error("IsRunning = true after Stop")
	}
}
