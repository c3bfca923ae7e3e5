/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package health composes a point-in-time snapshot of the indexer's
// dependencies for the external query surface. It holds no schedule of its
// own and performs no I/O beyond the calls it delegates.
package health

import (
	"context"
	"time"
)

// Pinger is satisfied by internal/persist.Store and internal/broadcast.Publisher.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TokenCounter is satisfied by internal/state.Store.
type TokenCounter interface {
	Len() int
}

// DependencyStatus reports one dependency's reachability.
type DependencyStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Snapshot is the shape returned to the external query surface.
type Snapshot struct {
	Database       DependencyStatus `json:"database"`
	Pubsub         DependencyStatus `json:"pubsub"`
	LiveSource     LiveSourceStatus `json:"live_source"`
	ReferencePrice PriceStatus      `json:"reference_price"`
	TokensInState  int              `json:"tokens_in_state"`
	Uptime         time.Duration    `json:"uptime"`
}

// LiveSourceStatus reports when the live ingestion source last delivered a
// message, so a caller can judge whether it's silently stalled.
type LiveSourceStatus struct {
	LastMessageAt time.Time     `json:"last_message_at"`
	Since         time.Duration `json:"since"`
}

// PriceStatus reports the reference price cell's staleness.
type PriceStatus struct {
	Valid bool          `json:"valid"`
	Since time.Duration `json:"since"`
}

// LastMessageTracker is satisfied by internal/ingest.Runner, which records
// the time of its most recent delivered record.
type LastMessageTracker interface {
	LastMessageAt() time.Time
}

// Aggregator composes a Snapshot on demand from its collaborators. The
// reference price's validity and last-update time are supplied per call to
// Check, since internal/price.Cell's reading carries a decimal.Decimal that
// this package has no reason to depend on directly.
type Aggregator struct {
	Database   Pinger
	Pubsub     Pinger
	LiveSource LastMessageTracker
	State      TokenCounter

	startedAt time.Time
}

// New builds an Aggregator. startedAt marks process start, for Uptime.
func New(database, pubsub Pinger, liveSource LastMessageTracker, state TokenCounter, startedAt time.Time) *Aggregator {
	return &Aggregator{Database: database, Pubsub: pubsub, LiveSource: liveSource, State: state, startedAt: startedAt}
}

// Check pings database and pubsub with ctx's deadline and assembles the
// rest of the snapshot from already-available in-memory state.
func (a *Aggregator) Check(ctx context.Context, priceValid bool, priceAt time.Time) Snapshot {
	now := time.Now()

	snap := Snapshot{
		Database:      ping(ctx, a.Database),
		Pubsub:        ping(ctx, a.Pubsub),
		TokensInState: a.State.Len(),
		Uptime:        now.Sub(a.startedAt),
	}

	if a.LiveSource != nil {
		last := a.LiveSource.LastMessageAt()
		snap.LiveSource = LiveSourceStatus{LastMessageAt: last, Since: sinceOrZero(now, last)}
	}

	snap.ReferencePrice = PriceStatus{Valid: priceValid, Since: sinceOrZero(now, priceAt)}

	return snap
}

func ping(ctx context.Context, p Pinger) DependencyStatus {
	if p == nil {
		return DependencyStatus{OK: false, Error: "not configured"}
	}
	if err := p.Ping(ctx); err != nil {
		return DependencyStatus{OK: false, Error: err.Error()}
	}
	return DependencyStatus{OK: true}
}

func sinceOrZero(now, at time.Time) time.Duration {
	if at.IsZero() {
		return 0
	}
	return now.Sub(at)
}
