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

// Package extract converts a Gmail API message payload into the
// provider-agnostic record the dispatcher forwards.
package extract

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

// Message is the normalized form of one email.
type Message struct {
	Sender     string
	Subject    string
	ReceivedAt time.Time
	Body       string
}

// HasBody reports whether extraction found usable text. A message
// without a body is nothing to forward — the caller skips it without
// recording, so a later poll may retry.
func (m Message) HasBody() bool {
	return m.Body != ""
}

// FromGmail builds a normalized Message from a Gmail API payload.
//
// Headers use last-value-wins semantics; From, Subject, and Date are the
// three consulted. An unparseable Date falls back to the current time —
// extraction never fails on a malformed date. Aside from that fallback
// this is a pure function of its input.
func FromGmail(msg *gmailapi.Message) Message {
	headers := make(map[string]string)
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}

	receivedAt := time.Now()
	if t, err := mail.ParseDate(headers["Date"]); err == nil {
		receivedAt = t
	}

	return Message{
		Sender:     headers["From"],
		Subject:    headers["Subject"],
		ReceivedAt: receivedAt,
		Body:       body(msg),
	}
}

// body pulls plain text out of the payload: the first text/plain part
// wins, with the top-level body as fallback.
func body(msg *gmailapi.Message) string {
	if msg.Payload == nil {
		return ""
	}

	for _, part := range msg.Payload.Parts {
		if part.MimeType != "text/plain" {
			continue
		}
		if part.Body == nil || part.Body.Data == "" {
			continue
		}
		if text, ok := decode(part.Body.Data); ok {
			return text
		}
	}

	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		if text, ok := decode(msg.Payload.Body.Data); ok {
			return text
		}
	}

	return ""
}

// decode handles the web-safe base64 Gmail uses, padded or not.
func decode(data string) (string, bool) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", false
	}
	return string(b), true
}
