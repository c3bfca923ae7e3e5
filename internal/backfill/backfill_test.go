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

package backfill

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
)

// fakeWalker serves signatures from a fixed, pre-paginated history, oldest
// last within each page, matching a real chain RPC's ordering.
type fakeWalker struct {
	mu      sync.Mutex
	pages   [][]string
	served  int
	hasData map[string]bool
}

func (f *fakeWalker) ListSignatures(ctx context.Context, programID, before string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.served]
	f.served++
	if len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (f *fakeWalker) FetchTransaction(ctx context.Context, signature string) (events.LogRecord, error) {
	return events.LogRecord{
		Transaction: events.Transaction{
			Signature:      signature,
			Success:        true,
			HasProgramData: f.hasData[signature],
		},
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestDriver_WalksAllPagesUntilEmpty(t *testing.T) {
	walker := &fakeWalker{
		pages: [][]string{
			{"sig3", "sig2"},
			{"sig1"},
		},
		hasData: map[string]bool{"sig3": true, "sig2": true, "sig1": true},
	}
	var seen []string
	var mu sync.Mutex
	sink := func(ctx context.Context, rec events.LogRecord) {
		mu.Lock()
		seen = append(seen, rec.Signature)
		mu.Unlock()
	}
	d := NewDriver(walker, sink, testLogger())

	progress, err := d.Run(context.Background(), Config{ProgramID: "prog", Mode: ModeTradesOnly, BatchSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if progress.PagesWalked != 2 || progress.SignaturesWalked != 3 || progress.TransactionsFetched != 3 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 records delivered to the sink, got %d", len(seen))
	}
	if progress.OldestSignature != "sig1" {
		t.Fatalf("expected cursor to land on the oldest signature, got %q", progress.OldestSignature)
	}
}

func TestDriver_DeliversEveryFetchedTransactionToSinkRegardlessOfProgramData(t *testing.T) {
	// The driver no longer drops transactions without program data: their
	// envelope must still be recorded. Mode isolation at the event-kind
	// level is the Sink's job (see TestKindAllowed_* and
	// internal/router.Router.HandleLogRecordFiltered), not the driver's.
	walker := &fakeWalker{
		pages:   [][]string{{"sigA", "sigB"}},
		hasData: map[string]bool{"sigA": true, "sigB": false},
	}
	var seen []string
	sink := func(ctx context.Context, rec events.LogRecord) {
		seen = append(seen, rec.Signature)
	}
	d := NewDriver(walker, sink, testLogger())

	_, err := d.Run(context.Background(), Config{ProgramID: "prog", Mode: ModeTokensOnly, BatchSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected both transactions to reach the sink, got %v", seen)
	}
}

func TestKindAllowed_TokensOnlyAppliesOnlyCreation(t *testing.T) {
	allow := KindAllowed(ModeTokensOnly)
	cases := map[events.Kind]bool{
		events.KindCreate:   true,
		events.KindTrade:    false,
		events.KindComplete: false,
		events.KindUnknown:  false,
	}
	for kind, want := range cases {
		if got := allow(kind); got != want {
			t.Fatalf("KindAllowed(ModeTokensOnly)(%v) = %v, want %v", kind, got, want)
		}
	}
}

func TestKindAllowed_TradesOnlyAppliesTradeAndComplete(t *testing.T) {
	allow := KindAllowed(ModeTradesOnly)
	cases := map[events.Kind]bool{
		events.KindCreate:   false,
		events.KindTrade:    true,
		events.KindComplete: true,
		events.KindUnknown:  false,
	}
	for kind, want := range cases {
		if got := allow(kind); got != want {
			t.Fatalf("KindAllowed(ModeTradesOnly)(%v) = %v, want %v", kind, got, want)
		}
	}
}

func TestDriver_StopsAtMaxTxs(t *testing.T) {
	walker := &fakeWalker{
		pages:   [][]string{{"sig1", "sig2"}, {"sig3", "sig4"}},
		hasData: map[string]bool{"sig1": true, "sig2": true, "sig3": true, "sig4": true},
	}
	count := 0
	var mu sync.Mutex
	sink := func(ctx context.Context, rec events.LogRecord) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	d := NewDriver(walker, sink, testLogger())

	progress, err := d.Run(context.Background(), Config{ProgramID: "prog", Mode: ModeTradesOnly, BatchSize: 10, MaxTxs: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if progress.TransactionsFetched != 2 {
		t.Fatalf("expected exactly 2 transactions fetched, got %d", progress.TransactionsFetched)
	}
}

func TestDriver_PropagatesWalkerError(t *testing.T) {
	boom := fmt.Errorf("rpc unavailable")
	walker := &erroringWalker{err: boom}
	d := NewDriver(walker, func(ctx context.Context, rec events.LogRecord) {}, testLogger())

	_, err := d.Run(context.Background(), Config{ProgramID: "prog", Mode: ModeTradesOnly})
	if err == nil {
		t.Fatalf("expected an error from a failing walker")
	}
}

type erroringWalker struct{ err error }

func (w *erroringWalker) ListSignatures(ctx context.Context, programID, before string, limit int) ([]string, error) {
	return nil, w.err
}
func (w *erroringWalker) FetchTransaction(ctx context.Context, signature string) (events.LogRecord, error) {
	return events.LogRecord{}, w.err
}
