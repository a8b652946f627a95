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

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

type monitorRequest struct {
	EmailAddress         string `json:"email_address"`
	FilterSubject        string `json:"filter_subject"`
	FilterSender         string `json:"filter_sender"`
	CheckIntervalSeconds int    `json:"check_interval_seconds"`
	Active               *bool  `json:"active"`
}

// validate applies defaults and rejects out-of-range values. The
// scheduler treats a monitor's interval as a polling floor, so an
// unset interval defaults rather than erroring.
func (mr *monitorRequest) validate() (models.MonitorConfig, string) {
	if mr.EmailAddress == "" {
		return models.MonitorConfig{}, "email_address is required"
	}
	if mr.CheckIntervalSeconds == 0 {
		mr.CheckIntervalSeconds = models.DefaultCheckInterval
	}
	if mr.CheckIntervalSeconds < models.MinCheckInterval {
		return models.MonitorConfig{}, "check_interval_seconds must be at least 30"
	}
	active := true
	if mr.Active != nil {
		active = *mr.Active
	}
	return models.MonitorConfig{
		EmailAddress:         mr.EmailAddress,
		FilterSubject:        mr.FilterSubject,
		FilterSender:         mr.FilterSender,
		CheckIntervalSeconds: mr.CheckIntervalSeconds,
		Active:               active,
	}, ""
}

func listMonitors(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		monitors, err := s.ListMonitors(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if monitors == nil {
			monitors = []models.MonitorConfig{}
		}
		respondJSON(w, http.StatusOK, monitors)
	})
}

func createMonitor(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var mr monitorRequest
		if err := json.NewDecoder(r.Body).Decode(&mr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m, msg := mr.validate()
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		created, err := s.CreateMonitor(r.Context(), m)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusCreated, created)
	})
}

func getMonitor(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m, err := s.GetMonitor(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if m == nil {
			http.Error(w, "monitor not found", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, m)
	})
}

func updateMonitor(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var mr monitorRequest
		if err := json.NewDecoder(r.Body).Decode(&mr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m, msg := mr.validate()
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		m.ID = id
		updated, err := s.UpdateMonitor(r.Context(), m)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if updated == nil {
			http.Error(w, "monitor not found", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, updated)
	})
}

func deleteMonitor(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		deleted, err := s.DeleteMonitor(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "monitor not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
