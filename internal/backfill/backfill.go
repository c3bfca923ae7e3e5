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

// Package backfill walks historical signatures for the launchpad program and
// replays them through the same router the live source feeds, in one of two
// mutually exclusive modes.
package backfill

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
)

// SignatureWalker pages through historical signatures and fetches the full
// transaction for any one of them. A concrete adapter (internal/solanarpc)
// backs this with getSignaturesForAddress / getTransaction.
type SignatureWalker interface {
	ListSignatures(ctx context.Context, programID, before string, limit int) ([]string, error)
	FetchTransaction(ctx context.Context, signature string) (events.LogRecord, error)
}

// Mode selects which slice of history a Driver run covers. Exactly one must
// be set; the two modes exist because a full backfill of every transaction
// is rarely needed once the token catalog is seeded from tokens-only.
type Mode int

const (
	// ModeTokensOnly applies only creation events; trades and completions
	// are fetched (their transaction envelope is still recorded) but not
	// applied. See KindAllowed.
	ModeTokensOnly Mode = iota
	// ModeTradesOnly applies trades and completions, skipping creations and
	// relying on the router's lazy-load to backfill state for mints it
	// already knows from the relational store. See KindAllowed.
	ModeTradesOnly
)

// Sink is what a Driver hands every fetched record to. For mode isolation to
// actually take effect, the caller must build Sink from
// internal/router.Router.HandleLogRecordFiltered with the predicate from
// KindAllowed(cfg.Mode) — router.Router.HandleLogRecord alone applies every
// decoded kind and does not honor Mode.
type Sink func(ctx context.Context, rec events.LogRecord)

// KindAllowed returns the event-kind predicate for mode: ModeTokensOnly
// applies only creation events; ModeTradesOnly applies trades and
// completions, relying on the router's lazy-load to backfill state for
// mints it already knows from the relational store. The transaction
// envelope is still recorded for every transaction regardless of mode; only
// which decoded events are applied is mode-gated.
func KindAllowed(mode Mode) func(events.Kind) bool {
	switch mode {
	case ModeTokensOnly:
		return func(k events.Kind) bool { return k == events.KindCreate }
	case ModeTradesOnly:
		return func(k events.Kind) bool { return k == events.KindTrade || k == events.KindComplete }
	default:
		return nil
	}
}

// Config controls one Driver run.
type Config struct {
	ProgramID   string
	Mode        Mode
	Before      string // resume cursor: the oldest signature seen so far
	MaxTxs      int    // 0 means unbounded
	BatchSize   int    // signatures requested per ListSignatures page
	Concurrency int    // bounded-concurrency transaction fetches per page
}

// Driver pages backward through history via a SignatureWalker, fetching and
// replaying each transaction through Sink.
type Driver struct {
	Walker SignatureWalker
	Sink   Sink
	Log    zerolog.Logger
}

// NewDriver builds a Driver around a SignatureWalker and a Sink. Build Sink
// from router.Router.HandleLogRecordFiltered with KindAllowed(cfg.Mode), not
// router.Router.HandleLogRecord, or mode isolation will not hold.
func NewDriver(walker SignatureWalker, sink Sink, log zerolog.Logger) *Driver {
	return &Driver{Walker: walker, Sink: sink, Log: log}
}

// Progress is reported after every page, for the caller to log or count.
type Progress struct {
	PagesWalked       int
	SignaturesWalked  int
	TransactionsFetched int
	OldestSignature   string
}

// Run walks history backward from cfg.Before until a page comes back empty,
// cfg.MaxTxs is hit, or ctx is canceled, fetching and replaying every
// transaction via cfg.Concurrency concurrent fetches per page.
func (d *Driver) Run(ctx context.Context, cfg Config) (Progress, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}

	var progress Progress
	before := cfg.Before

	for {
		if ctx.Err() != nil {
			return progress, ctx.Err()
		}
		if cfg.MaxTxs > 0 && progress.TransactionsFetched >= cfg.MaxTxs {
			return progress, nil
		}

		limit := cfg.BatchSize
		if cfg.MaxTxs > 0 {
			remaining := cfg.MaxTxs - progress.TransactionsFetched
			if remaining < limit {
				limit = remaining
			}
		}

		sigs, err := d.Walker.ListSignatures(ctx, cfg.ProgramID, before, limit)
		if err != nil {
			return progress, fmt.Errorf("backfill: list signatures before %q: %w", before, err)
		}
		if len(sigs) == 0 {
			return progress, nil
		}

		fetched, err := d.fetchPage(ctx, sigs, cfg.Concurrency)
		if err != nil {
			return progress, err
		}

		// Every fetched transaction is handed to the Sink so its envelope is
		// always recorded, even when it carries no program data; which
		// decoded events get applied is gated inside the Sink by mode (see
		// KindAllowed), not here.
		for _, rec := range fetched {
			d.Sink(ctx, rec)
		}

		progress.PagesWalked++
		progress.SignaturesWalked += len(sigs)
		progress.TransactionsFetched += len(fetched)
		progress.OldestSignature = sigs[len(sigs)-1]
		before = progress.OldestSignature

		d.Log.Info().
			Int("pages", progress.PagesWalked).
			Int("transactions", progress.TransactionsFetched).
			Str("cursor", progress.OldestSignature).
			Msg("backfill progress")
	}
}

// fetchPage fetches every signature in sigs with up to concurrency workers,
// preserving the page's original order in the result.
func (d *Driver) fetchPage(ctx context.Context, sigs []string, concurrency int) ([]events.LogRecord, error) {
	out := make([]events.LogRecord, len(sigs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, sig := range sigs {
		i, sig := i, sig
		g.Go(func() error {
			rec, err := d.Walker.FetchTransaction(ctx, sig)
			if err != nil {
				return fmt.Errorf("backfill: fetch transaction %s: %w", sig, err)
			}
			out[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
