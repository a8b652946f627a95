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

// Package api exposes the management HTTP surface: monitor and webhook
// CRUD, the processed-email ledger, dashboard stats, Gmail OAuth, and
// health.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"golang.org/x/oauth2"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/dispatch"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/extract"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/store"
)

// Storage is the persistence surface the handlers need. Implemented by
// store.Store.
type Storage interface {
	CreateMonitor(ctx context.Context, m models.MonitorConfig) (*models.MonitorConfig, error)
	GetMonitor(ctx context.Context, id int64) (*models.MonitorConfig, error)
	ListMonitors(ctx context.Context) ([]models.MonitorConfig, error)
	UpdateMonitor(ctx context.Context, m models.MonitorConfig) (*models.MonitorConfig, error)
	DeleteMonitor(ctx context.Context, id int64) (bool, error)

	CreateWebhook(ctx context.Context, w models.WebhookConfig) (*models.WebhookConfig, error)
	GetWebhook(ctx context.Context, id int64) (*models.WebhookConfig, error)
	ListWebhooks(ctx context.Context) ([]models.WebhookConfig, error)
	UpdateWebhook(ctx context.Context, w models.WebhookConfig) (*models.WebhookConfig, error)
	DeleteWebhook(ctx context.Context, id int64) (bool, error)

	ListProcessed(ctx context.Context, f store.EmailFilter) ([]models.ProcessedEmail, int, error)
	GetProcessed(ctx context.Context, id int64) (*models.ProcessedEmail, error)
	DeleteProcessed(ctx context.Context, id int64) (bool, error)
	ClearProcessed(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*store.DashboardStats, error)

	Ping(ctx context.Context) error
}

// Deliverer sends a single webhook delivery. Implemented by
// dispatch.Dispatcher.
type Deliverer interface {
	Deliver(ctx context.Context, wh models.WebhookConfig, msg extract.Message) dispatch.Result
}

// Authorizer is the Gmail OAuth surface. Implemented by gauth.Manager.
type Authorizer interface {
	Configured() bool
	Authorized() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Reset() error
}

// StateStore holds pending OAuth state tokens. Implemented by
// session.Store.
type StateStore interface {
	Put(key, value string)
	Get(key string) (string, bool)
	Delete(key string)
}

// Runner reports whether the background monitor loop is active.
// Implemented by monitor.Scheduler.
type Runner interface {
	IsRunning() bool
}

// SeenCache is the dedup ledger's in-process cache. Row deletions must
// evict it or IsProcessed keeps answering from stale state for the rest
// of the run. Implemented by dedup.Ledger.
type SeenCache interface {
	Forget(messageID string)
	Reset()
}

// Pinger is a liveness check on a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the handlers. OnAuthorized and OnReset are optional
// lifecycle hooks invoked after a successful token exchange and after a
// credentials reset.
type Deps struct {
	Store      Storage
	Dispatcher Deliverer
	Auth       Authorizer
	States     StateStore
	Monitor    Runner
	Events     Pinger
	Seen       SeenCache

	OnAuthorized func()
	OnReset      func()
}

// Handlers builds the router.
func Handlers(deps Deps) *chi.Mux {
	logger := httplog.NewLogger("signal-forwarder-api", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", health(deps).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/monitors", func(r chi.Router) {
			r.Get("/", listMonitors(deps.Store).ServeHTTP)
			r.Post("/", createMonitor(deps.Store).ServeHTTP)
			r.Get("/{id}", getMonitor(deps.Store).ServeHTTP)
			r.Put("/{id}", updateMonitor(deps.Store).ServeHTTP)
			r.Delete("/{id}", deleteMonitor(deps.Store).ServeHTTP)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", listWebhooks(deps.Store).ServeHTTP)
			r.Post("/", createWebhook(deps.Store).ServeHTTP)
			r.Get("/{id}", getWebhook(deps.Store).ServeHTTP)
			r.Put("/{id}", updateWebhook(deps.Store).ServeHTTP)
			r.Delete("/{id}", deleteWebhook(deps.Store).ServeHTTP)
			r.Post("/{id}/test", testWebhook(deps.Store, deps.Dispatcher).ServeHTTP)
		})

		r.Route("/emails", func(r chi.Router) {
			r.Get("/", listEmails(deps.Store).ServeHTTP)
			r.Delete("/", clearEmails(deps.Store, deps.Seen).ServeHTTP)
			r.Get("/{id}", getEmail(deps.Store).ServeHTTP)
			r.Delete("/{id}", deleteEmail(deps.Store, deps.Seen).ServeHTTP)
		})

		r.Get("/stats/dashboard", dashboardStats(deps.Store).ServeHTTP)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/status", authStatus(deps).ServeHTTP)
			r.Get("/authorize", authAuthorize(deps).ServeHTTP)
			r.Get("/callback", authCallback(deps).ServeHTTP)
			r.Post("/reset", authReset(deps).ServeHTTP)
		})
	})

	return r
}

func health(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{
			"status":   "healthy",
			"database": "ok",
			"redis":    "ok",
		}
		code := http.StatusOK

		if err := deps.Store.Ping(r.Context()); err != nil {
			resp["status"] = "unhealthy"
			resp["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if deps.Events != nil {
			if err := deps.Events.Ping(r.Context()); err != nil {
				resp["status"] = "unhealthy"
				resp["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		respondJSON(w, code, resp)
	})
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return int64(id), err
}
