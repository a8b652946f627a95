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
	"net/http"
	"strconv"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/store"
)

type emailPage struct {
	Emails   []models.ProcessedEmail `json:"emails"`
	Total    int                     `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
}

func listEmails(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := store.EmailFilter{
			Status:   q.Get("status"),
			Search:   q.Get("search"),
			Days:     queryInt(q.Get("days"), 0),
			Page:     queryInt(q.Get("page"), 0),
			PageSize: queryInt(q.Get("page_size"), 10),
		}
		if f.Page < 0 {
			f.Page = 0
		}
		if f.PageSize <= 0 || f.PageSize > 100 {
			f.PageSize = 10
		}

		emails, total, err := s.ListProcessed(r.Context(), f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if emails == nil {
			emails = []models.ProcessedEmail{}
		}
		respondJSON(w, http.StatusOK, emailPage{
			Emails:   emails,
			Total:    total,
			Page:     f.Page,
			PageSize: f.PageSize,
		})
	})
}

func getEmail(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := s.GetProcessed(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if e == nil {
			http.Error(w, "email not found", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, e)
	})
}

// deleteEmail removes one ledger row and evicts its message id from the
// dedup cache; the message becomes eligible for forwarding again while
// it stays inside a monitor's query window.
func deleteEmail(s Storage, seen SeenCache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := s.GetProcessed(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if e == nil {
			http.Error(w, "email not found", http.StatusNotFound)
			return
		}
		deleted, err := s.DeleteProcessed(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "email not found", http.StatusNotFound)
			return
		}
		if seen != nil {
			seen.Forget(e.MessageID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func clearEmails(s Storage, seen SeenCache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := s.ClearProcessed(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if seen != nil {
			seen.Reset()
		}
		respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
	})
}

func dashboardStats(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, st)
	})
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
