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

// Package flusher periodically writes each live token's derived fields
// (price, market cap, graduation progress) to the relational store. It is
// the sole writer of those columns: the router never touches them directly
// on the hot path, only the in-memory state store.
package flusher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aditya-1304/pumpfun-indexer/internal/state"
)

const defaultInterval = 60 * time.Second

// Snapshotter supplies the current view of every live token, satisfied by
// internal/state.Store.
type Snapshotter interface {
	Snapshot() []state.Token
}

// DerivedWriter persists one token's derived fields, satisfied by
// internal/persist.Store.
type DerivedWriter interface {
	FlushDerived(ctx context.Context, tok state.Token) error
}

// Flusher ticks on Interval and writes every live token's derived fields. A
// failed write for one token is logged and retried on the next tick; it
// never blocks the rest of the batch.
type Flusher struct {
	State    Snapshotter
	Persist  DerivedWriter
	Log      zerolog.Logger
	Interval time.Duration
}

// New builds a Flusher with the standard 60-second cadence.
func New(st Snapshotter, persist DerivedWriter, log zerolog.Logger) *Flusher {
	return &Flusher{State: st, Persist: persist, Log: log, Interval: defaultInterval}
}

// Run ticks until ctx is canceled, flushing every live token on each tick.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.flushOnce(ctx)
		}
	}
}

// flushOnce writes every live token's derived fields exactly once.
func (f *Flusher) flushOnce(ctx context.Context) {
	tokens := f.State.Snapshot()
	for _, tok := range tokens {
		if ctx.Err() != nil {
			return
		}
		if err := f.Persist.FlushDerived(ctx, tok); err != nil {
			f.Log.Error().Err(err).Str("mint", tok.Mint).Msg("failed to flush derived fields, retrying next tick")
		}
	}
}
