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

// Package gmail wraps the Gmail API for candidate discovery and message
// fetch. All calls run under a shared rate limiter sized against the
// API's published quota units.
package gmail

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

// ReadonlyScope is the only Gmail permission the forwarder needs.
const ReadonlyScope = gmailapi.GmailReadonlyScope

// Gmail grants 250 quota units per user-second; messages.list costs 5
// units and messages.get costs 5. Staying at 80% leaves headroom for
// other clients of the same account.
const (
	quotaUnitsPerList = 5
	quotaUnitsPerGet  = 5

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond
)

// Client lists and fetches messages for the authorized account.
type Client struct {
	svc     *gmailapi.Service
	limiter *rate.Limiter
}

// NewClient builds a Gmail client on top of an OAuth-authorized HTTP
// client.
func NewClient(ctx context.Context, httpClient *http.Client) (*Client, error) {
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{
		svc:     svc,
		limiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}, nil
}

// buildQuery renders a monitor's filters as a Gmail search expression,
// windowed to messages after since.
func buildQuery(m models.MonitorConfig, since time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "to:%s", m.EmailAddress)
	if m.FilterSender != "" {
		fmt.Fprintf(&b, " from:%s", m.FilterSender)
	}
	if m.FilterSubject != "" {
		fmt.Fprintf(&b, " subject:%s", m.FilterSubject)
	}
	fmt.Fprintf(&b, " after:%s", since.Format("2006/01/02"))
	return b.String()
}

// ListMessages returns the ids of messages matching the monitor's
// filters, in the order the API returns them. The since parameter bounds
// the search window.
func (c *Client) ListMessages(ctx context.Context, m models.MonitorConfig, since time.Time) ([]string, error) {
	if err := c.limiter.WaitN(ctx, quotaUnitsPerList); err != nil {
		return nil, err
	}

	var ids []string
	req := c.svc.Users.Messages.List("me").Q(buildQuery(m, since))
	err := req.Pages(ctx, func(page *gmailapi.ListMessagesResponse) error {
		for _, msg := range page.Messages {
			ids = append(ids, msg.Id)
		}
		if page.NextPageToken != "" {
			return c.limiter.WaitN(ctx, quotaUnitsPerList)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", m.EmailAddress, err)
	}
	return ids, nil
}

// GetMessage fetches the full payload for one message id.
func (c *Client) GetMessage(ctx context.Context, id string) (*gmailapi.Message, error) {
	if err := c.limiter.WaitN(ctx, quotaUnitsPerGet); err != nil {
		return nil, err
	}

	msg, err := c.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}
