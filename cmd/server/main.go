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

// Email Signal Forwarder
//
// Entry point for the forwarding service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Starts the email monitor when Gmail credentials are present
//  4. Serves the management API (monitors, webhooks, ledger, OAuth)
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/api"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/config"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/dedup"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/dispatch"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/events"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/gauth"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/gmail"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/monitor"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/session"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/store"
)

const stateTTL = 10 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting email signal forwarder")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"poll_interval", cfg.PollInterval,
		"lookback", cfg.Lookback,
		"events_channel", cfg.EventsChannel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	db, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := events.NewPublisher(rdb, cfg.EventsChannel)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Core components ---
	ledger := dedup.NewLedger(db)
	dispatcher := dispatch.New(&http.Client{Timeout: cfg.WebhookTimeout})
	auth := gauth.NewManager(cfg.Gmail)

	states := session.New(stateTTL)
	states.StartSweeper(ctx, time.Minute)

	// --- Monitor supervisor ---
	sup := &supervisor{
		build: func(ctx context.Context) (*monitor.Scheduler, error) {
			httpClient, err := auth.Client(ctx)
			if err != nil {
				return nil, err
			}
			mail, err := gmail.NewClient(ctx, httpClient)
			if err != nil {
				return nil, err
			}
			return monitor.NewScheduler(monitor.Config{
				Store:           db,
				Mail:            mail,
				Ledger:          ledger,
				Dispatcher:      dispatcher,
				Events:          publisher,
				Lookback:        cfg.Lookback,
				DefaultInterval: cfg.PollInterval,
				ErrorBackoff:    cfg.ErrorBackoff,
			}), nil
		},
	}

	switch {
	case !auth.Configured():
		slog.Warn("gmail OAuth client not configured, email monitoring disabled")
	case !auth.Authorized():
		slog.Warn("gmail not authorized, visit /api/auth/authorize to start monitoring")
	default:
		sup.start(ctx)
	}

	// --- Management API ---
	handler := api.Handlers(api.Deps{
		Store:        db,
		Dispatcher:   dispatcher,
		Auth:         auth,
		States:       states,
		Monitor:      sup,
		Events:       publisher,
		Seen:         ledger,
		OnAuthorized: func() { sup.start(ctx) },
		OnReset:      func() { sup.stop() },
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 65 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		sup.stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("email signal forwarder listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("email signal forwarder stopped")
}

// supervisor owns the monitor scheduler's lifecycle. The scheduler is
// rebuilt on each start so a fresh OAuth token is picked up after
// authorization.
type supervisor struct {
	build func(ctx context.Context) (*monitor.Scheduler, error)

	mu    sync.Mutex
	sched *monitor.Scheduler
}

func (s *supervisor) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched != nil && s.sched.IsRunning() {
		return
	}
	sched, err := s.build(ctx)
	if err != nil {
		slog.Error("failed to start email monitor", "error", err)
		return
	}
	sched.Start(ctx)
	s.sched = sched
}

func (s *supervisor) stop() {
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
}

func (s *supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil && s.sched.IsRunning()
}
