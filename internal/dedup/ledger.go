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

// Package dedup guarantees at-most-once forwarding per Gmail message id.
// It layers an in-process cache over the processed_emails table; the
// table's UNIQUE constraint is the source of truth, the cache only saves
// round trips within a run.
package dedup

import (
	"context"
	"log/slog"
	"sync"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
)

// ProcessedStore is the persistence the ledger needs. Implemented by
// store.Store.
type ProcessedStore interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	InsertProcessed(ctx context.Context, e models.ProcessedEmail) (*models.ProcessedEmail, bool, error)
}

// Ledger tracks which message ids have already been forwarded.
type Ledger struct {
	store ProcessedStore

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store ProcessedStore) *Ledger {
	return &Ledger{
		store: store,
		seen:  make(map[string]struct{}),
	}
}

// IsProcessed reports whether the message id has already been handled.
// The cache is consulted first; on a miss the store decides, and a
// persistent hit backfills the cache. A store error propagates — dedup
// correctness depends on the store, so it cannot be papered over.
func (l *Ledger) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	l.mu.Lock()
	_, cached := l.seen[messageID]
	l.mu.Unlock()
	if cached {
		return true, nil
	}

	known, err := l.store.IsProcessed(ctx, messageID)
	if err != nil {
		return false, err
	}
	if known {
		l.markSeen(messageID)
	}
	return known, nil
}

// Record persists a processed-email row. The bool is false when another
// writer recorded the same message id first; that duplicate is benign
// and the cache is updated either way.
func (l *Ledger) Record(ctx context.Context, e models.ProcessedEmail) (*models.ProcessedEmail, bool, error) {
	rec, inserted, err := l.store.InsertProcessed(ctx, e)
	if err != nil {
		return nil, false, err
	}

	l.markSeen(e.MessageID)

	if !inserted {
		slog.Debug("message already recorded by a concurrent writer",
			"message_id", e.MessageID,
		)
	}
	return rec, inserted, nil
}

// Forget drops one id from the cache. Called after its ledger row is
// deleted so the message becomes eligible for forwarding again.
func (l *Ledger) Forget(messageID string) {
	l.mu.Lock()
	delete(l.seen, messageID)
	l.mu.Unlock()
}

// Reset empties the cache. Called after the ledger table is cleared.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.seen = make(map[string]struct{})
	l.mu.Unlock()
}

func (l *Ledger) markSeen(messageID string) {
	l.mu.Lock()
	l.seen[messageID] = struct{}{}
	l.mu.Unlock()
}
