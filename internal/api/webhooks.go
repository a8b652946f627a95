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

package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/extract"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

type webhookRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Active      *bool  `json:"active"`
	ContentType string `json:"content_type"`
	SendRawBody bool   `json:"send_raw_body"`
}

func (wr *webhookRequest) validate() (models.WebhookConfig, string) {
	if wr.Name == "" {
		return models.WebhookConfig{}, "name is required"
	}
	u, err := url.Parse(wr.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.WebhookConfig{}, "url must be an absolute http or https URL"
	}
	if wr.ContentType == "" {
		wr.ContentType = "application/json"
	}
	active := true
	if wr.Active != nil {
		active = *wr.Active
	}
	return models.WebhookConfig{
		Name:        wr.Name,
		URL:         wr.URL,
		Active:      active,
		ContentType: wr.ContentType,
		SendRawBody: wr.SendRawBody,
	}, ""
}

func listWebhooks(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhooks, err := s.ListWebhooks(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if webhooks == nil {
			webhooks = []models.WebhookConfig{}
		}
		respondJSON(w, http.StatusOK, webhooks)
	})
}

func createWebhook(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var wr webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wh, msg := wr.validate()
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		created, err := s.CreateWebhook(r.Context(), wh)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusCreated, created)
	})
}

func getWebhook(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wh, err := s.GetWebhook(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if wh == nil {
			http.Error(w, "webhook not found", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, wh)
	})
}

func updateWebhook(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var wr webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wh, msg := wr.validate()
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		wh.ID = id
		updated, err := s.UpdateWebhook(r.Context(), wh)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if updated == nil {
			http.Error(w, "webhook not found", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, updated)
	})
}

func deleteWebhook(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		deleted, err := s.DeleteWebhook(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "webhook not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// testWebhook fires a sample payload at one configured endpoint and
// reports the delivery outcome without touching the ledger.
func testWebhook(s Storage, d Deliverer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wh, err := s.GetWebhook(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if wh == nil {
			http.Error(w, "webhook not found", http.StatusNotFound)
			return
		}
		result := d.Deliver(r.Context(), *wh, extract.Message{
			Sender:     "test@example.com",
			Subject:    "Test notification",
			Body:       "This is a test message from the email signal forwarder.",
			ReceivedAt: time.Now().UTC(),
		})
		respondJSON(w, http.StatusOK, result)
	})
}
