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

// Package dispatch delivers a normalized email to every active webhook.
// Deliveries are independent: one endpoint failing, timing out, or being
// misconfigured never blocks the others. The overall dispatch succeeds
// when ANY webhook accepts — webhooks are best-effort destinations and
// at-least-one-reaches beats strict fan-out here.
package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/extract"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

// maxResponseLog bounds how much of a failing webhook's response body is
// read for the log line.
const maxResponseLog = 2048

// Dispatcher posts email content to configured webhook endpoints.
type Dispatcher struct {
	client *http.Client
}

// New creates a dispatcher. A nil client gets a default with a 30 second
// timeout so one slow endpoint cannot stall a poll cycle.
func New(client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{client: client}
}

// envelope is the structured-mode POST body.
type envelope struct {
	Body      string `json:"body"`
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// Result describes one webhook delivery attempt.
type Result struct {
	Webhook     string `json:"webhook_name"`
	Success     bool   `json:"success"`
	StatusCode  int    `json:"status_code,omitempty"`
	Response    string `json:"response,omitempty"`
	RequestBody string `json:"sample_payload,omitempty"`
}

// Dispatch fans the message out to every webhook concurrently and
// reports whether at least one accepted it. Zero webhooks is not an
// error — the message simply was not forwarded.
func (d *Dispatcher) Dispatch(ctx context.Context, msg extract.Message, webhooks []models.WebhookConfig) bool {
	if len(webhooks) == 0 {
		slog.Warn("no active webhooks configured")
		return false
	}

	var wg sync.WaitGroup
	var delivered atomic.Bool

	for _, wh := range webhooks {
		wg.Add(1)
		go func(wh models.WebhookConfig) {
			defer wg.Done()
			if d.Deliver(ctx, wh, msg).Success {
				delivered.Store(true)
			}
		}(wh)
	}
	wg.Wait()

	return delivered.Load()
}

// Deliver posts the message to a single webhook and returns the outcome.
// Failures are logged with the webhook's name, never raised.
func (d *Dispatcher) Deliver(ctx context.Context, wh models.WebhookConfig, msg extract.Message) Result {
	res := Result{Webhook: wh.Name}

	body := msg.Body
	if !wh.SendRawBody {
		data, err := json.Marshal(envelope{
			Body:      msg.Body,
			Subject:   msg.Subject,
			Sender:    msg.Sender,
			Timestamp: msg.ReceivedAt.Format(time.RFC3339),
		})
		if err != nil {
			slog.Error("failed to marshal webhook payload", "webhook", wh.Name, "error", err)
			res.Response = err.Error()
			return res
		}
		body = string(data)
	}
	res.RequestBody = body

	contentType := wh.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, strings.NewReader(body))
	if err != nil {
		slog.Error("failed to build webhook request", "webhook", wh.Name, "error", err)
		res.Response = err.Error()
		return res
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		slog.Error("webhook request failed", "webhook", wh.Name, "error", err)
		res.Response = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLog))
	res.Response = string(respBody)

	if resp.StatusCode >= 300 {
		slog.Error("webhook rejected delivery",
			"webhook", wh.Name,
			"status", resp.StatusCode,
			"response", res.Response,
		)
		return res
	}

	slog.Info("forwarded email to webhook", "webhook", wh.Name, "status", resp.StatusCode)
	res.Success = true
	return res
}
