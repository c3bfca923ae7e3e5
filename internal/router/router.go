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

/*
Package router is the hot-path entry point for decoded on-chain events.

HOT PATH - Event Processing Flow

Both the live ingestion source and the backfill driver funnel every
transaction they see through the router: the live source via
Router.HandleLogRecord, the backfill driver via
Router.HandleLogRecordFiltered. For a busy program this
runs many hundreds of times a second, so the steps below are the critical
path:

	[1] HandleLogRecord          ENTRY POINT
	    - Always records the transaction envelope (UpsertTransaction),
	      win or lose, decodable or not.
	    - A failed transaction is recorded but never decoded further.
	[2] decode each log line      PARSER
	    - decoder.Decode per line; UnknownDiscriminator lines are skipped.
	[3] dispatch by Kind          COORDINATOR
	    - Creation  -> state.GetOrCreate, persist.UpsertToken, broadcast.NewToken
	    - Trade     -> state.ApplyTrade (lazy-load on miss), persist.InsertTrade,
	                   broadcast.Trade (only after a successful insert)
	    - Completion -> state.MarkComplete, persist.UpsertToken, broadcast.Completion

Idempotency: every persistence call is keyed by signature or mint. A
DatabaseConflict on a write is treated as "already applied" — not an error,
and specifically not republished, so a replayed trade is published once even
under live/backfill overlap. Creations and completions are written through
token upserts, which do not conflict on a replay, so a replayed creation or
completion is published again.
*/
package router

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aditya-1304/pumpfun-indexer/internal/decoder"
	"github.com/Aditya-1304/pumpfun-indexer/internal/errs"
	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
	"github.com/Aditya-1304/pumpfun-indexer/internal/state"
)

// Persister is the subset of internal/persist.Store the router depends on.
type Persister interface {
	UpsertToken(ctx context.Context, tok state.Token) error
	InsertTrade(ctx context.Context, tr events.Trade) error
	UpsertTransaction(ctx context.Context, txn events.Transaction) error
	LoadToken(ctx context.Context, mint string) (state.Token, bool, error)
}

// Publisher is the subset of internal/broadcast.Publisher the router
// depends on.
type Publisher interface {
	NewToken(ctx context.Context, c events.Creation) error
	Trade(ctx context.Context, tr events.Trade) error
	Completion(ctx context.Context, c events.Completion) error
}

// Router applies decoded events to the state store, the relational store,
// and the broadcast bus.
type Router struct {
	State     *state.Store
	Persist   Persister
	Publish   Publisher
	Log       zerolog.Logger
}

// New builds a Router from its three collaborators.
func New(st *state.Store, p Persister, pub Publisher, log zerolog.Logger) *Router {
	return &Router{State: st, Persist: p, Publish: pub, Log: log}
}

// HandleLogRecord is the entry point for one transaction's worth of log
// lines, used by the live source, which applies every decoded event kind.
//
// HOT PATH [1]: called once per transaction.
func (r *Router) HandleLogRecord(ctx context.Context, rec events.LogRecord) {
	r.HandleLogRecordFiltered(ctx, rec, nil)
}

// HandleLogRecordFiltered behaves like HandleLogRecord, except a decoded
// event is only dispatched if allow(decoded.Kind) is true; a nil allow
// dispatches every kind. The transaction envelope is always recorded
// regardless of allow, since mode isolation is about which events are
// applied, not which transactions are acknowledged.
//
// This is how the backfill driver implements tokens-only/trades-only mode
// isolation without the router knowing anything about backfill's Mode type.
func (r *Router) HandleLogRecordFiltered(ctx context.Context, rec events.LogRecord, allow func(events.Kind) bool) {
	if err := r.Persist.UpsertTransaction(ctx, rec.Transaction); err != nil {
		if !errors.Is(err, errs.ErrDatabaseConflict) {
			r.Log.Error().Err(err).Str("signature", rec.Signature).Msg("failed to record transaction envelope")
		}
	}

	if !rec.Success {
		// Failed transactions are recorded but never decoded further.
		return
	}

	env := events.Envelope{
		Signature: rec.Signature,
		Slot:      rec.Slot,
		BlockTime: rec.BlockTime,
		Signer:    rec.Signer,
	}

	for _, line := range rec.LogMessages {
		decoded, ok, err := decoder.Decode(line, env)
		if err != nil {
			r.Log.Warn().Err(err).Str("signature", rec.Signature).Msg("malformed event payload")
			continue
		}
		if !ok {
			continue
		}
		if allow != nil && !allow(decoded.Kind) {
			continue
		}
		r.dispatch(ctx, decoded)
	}
}

func (r *Router) dispatch(ctx context.Context, decoded events.Decoded) {
	switch decoded.Kind {
	case events.KindCreate:
		r.handleCreation(ctx, decoded.Creation)
	case events.KindTrade:
		r.handleTrade(ctx, decoded.Trade)
	case events.KindComplete:
		r.handleCompletion(ctx, decoded.Completion)
	}
}

func (r *Router) handleCreation(ctx context.Context, c *events.Creation) {
	now := c.BlockTime
	if now.IsZero() {
		now = time.Now().UTC()
	}
	tok := r.State.GetOrCreate(c.Mint, c.Name, c.Symbol, c.URI, c.BondingCurve, c.Creator,
		c.InitialVirtualTokenRes, c.InitialVirtualBaseRes, c.InitialRealTokenRes, c.TotalSupply, now)

	err := r.Persist.UpsertToken(ctx, tok)
	if err != nil && !errors.Is(err, errs.ErrDatabaseConflict) {
		r.Log.Error().Err(err).Str("mint", c.Mint).Msg("failed to upsert token on creation")
		return
	}
	if err == nil {
		if pubErr := r.Publish.NewToken(ctx, *c); pubErr != nil {
			r.Log.Error().Err(pubErr).Str("mint", c.Mint).Msg("failed to publish new token")
		}
	}
}

func (r *Router) handleTrade(ctx context.Context, t *events.Trade) {
	now := t.BlockTime
	if now.IsZero() {
		now = time.Now().UTC()
	}

	_, err := r.State.ApplyTrade(t.Mint, t.PostVirtualTokenRes, t.PostVirtualBaseRes, t.PostRealTokenRes, t.PostRealBaseRes, now)
	if errors.Is(err, errs.ErrUnknownToken) {
		loaded, found, loadErr := r.Persist.LoadToken(ctx, t.Mint)
		if loadErr != nil {
			r.Log.Error().Err(loadErr).Str("mint", t.Mint).Msg("failed to lazy-load token for trade")
			return
		}
		if !found {
			r.Log.Warn().Err(errs.ErrOrphanTrade).Str("mint", t.Mint).Str("signature", t.Signature).Msg("dropping orphan trade")
			return
		}
		r.State.Load(loaded)
		_, err = r.State.ApplyTrade(t.Mint, t.PostVirtualTokenRes, t.PostVirtualBaseRes, t.PostRealTokenRes, t.PostRealBaseRes, now)
	}
	if err != nil {
		r.Log.Error().Err(err).Str("mint", t.Mint).Msg("failed to apply trade to state store")
		return
	}

	insertErr := r.Persist.InsertTrade(ctx, *t)
	if insertErr != nil {
		if !errors.Is(insertErr, errs.ErrDatabaseConflict) {
			r.Log.Error().Err(insertErr).Str("signature", t.Signature).Msg("failed to insert trade")
		}
		// Conflict or failure: do not publish. A duplicate trade is a no-op,
		// and its broadcast side effect is a no-op too.
		return
	}

	if pubErr := r.Publish.Trade(ctx, *t); pubErr != nil {
		r.Log.Error().Err(pubErr).Str("signature", t.Signature).Msg("failed to publish trade")
	}
}

func (r *Router) handleCompletion(ctx context.Context, c *events.Completion) {
	tok, err := r.State.MarkComplete(c.Mint, c.FinalVirtualToken, c.FinalVirtualBase, c.FinalRealToken, c.FinalRealBase, c.BlockTime)
	if errors.Is(err, errs.ErrUnknownToken) {
		loaded, found, loadErr := r.Persist.LoadToken(ctx, c.Mint)
		if loadErr != nil {
			r.Log.Error().Err(loadErr).Str("mint", c.Mint).Msg("failed to lazy-load token for completion")
			return
		}
		if !found {
			r.Log.Warn().Str("mint", c.Mint).Str("signature", c.Signature).Msg("dropping completion for unknown token")
			return
		}
		r.State.Load(loaded)
		tok, err = r.State.MarkComplete(c.Mint, c.FinalVirtualToken, c.FinalVirtualBase, c.FinalRealToken, c.FinalRealBase, c.BlockTime)
	}
	if err != nil {
		r.Log.Error().Err(err).Str("mint", c.Mint).Msg("failed to mark token complete")
		return
	}

	persistErr := r.Persist.UpsertToken(ctx, tok)
	if persistErr != nil {
		if !errors.Is(persistErr, errs.ErrDatabaseConflict) {
			r.Log.Error().Err(persistErr).Str("mint", c.Mint).Msg("failed to upsert token on completion")
		}
		return
	}

	if pubErr := r.Publish.Completion(ctx, *c); pubErr != nil {
		r.Log.Error().Err(pubErr).Str("mint", c.Mint).Msg("failed to publish completion")
	}
}
