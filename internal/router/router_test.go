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

package router

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Aditya-1304/pumpfun-indexer/internal/errs"
	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
	"github.com/Aditya-1304/pumpfun-indexer/internal/protocol"
	"github.com/Aditya-1304/pumpfun-indexer/internal/state"
)

// Scenario-level tests for the router. A fakePersister and fakePublisher
// stand in for a live database and Redis, so these run with no I/O.

const testMint = "So11111111111111111111111111111111111111112"
const testBondingCurve = "Cfpso1exFyeXcA5jNZXF7dCEQVBJJUFdsYo2BRdXCsSF"
const testCreator = "TSLvdd1pWpHVjahSpsvCXUbgwsL3JAcvokwaKt1eokM"
const testActor = "AddressLookupTab1e1111111111111111111111111"
const testFeeRecipient = "Vote111111111111111111111111111111111111111"

type encoder struct{ buf []byte }

func (e *encoder) u8(v byte) { e.buf = append(e.buf, v) }
func (e *encoder) boolv(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}
func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}
func (e *encoder) i64(v int64) { e.u64(uint64(v)) }
func (e *encoder) pubkey(s string) {
	decoded, err := base58.Decode(s)
	if err != nil {
		panic(err)
	}
	var key [32]byte
	copy(key[:], decoded)
	e.buf = append(e.buf, key[:]...)
}
func (e *encoder) str(s string) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
	e.buf = append(e.buf, b[:]...)
	e.buf = append(e.buf, s...)
}

func logLine(disc [8]byte, body []byte) string {
	raw := append(append([]byte{}, disc[:]...), body...)
	return protocol.ProgramDataPrefix + base64.StdEncoding.EncodeToString(raw)
}

func creationLine(mint string) string {
	e := &encoder{}
	e.pubkey(mint)
	e.str("DOGE")
	e.str("DOGE")
	e.str("https://example.com/doge.json")
	e.pubkey(testBondingCurve)
	e.pubkey(testCreator)
	e.u64(1_073_000_000_000_000)
	e.u64(30_000_000_000)
	e.u64(793_100_000_000_000)
	e.u64(1_000_000_000_000_000)
	return logLine(protocol.DiscriminatorCreate, e.buf)
}

func tradeLine(mint string) string {
	e := &encoder{}
	e.pubkey(mint)
	e.boolv(true)
	e.u64(50_000_000)
	e.u64(1_000_000_000)
	e.pubkey(testActor)
	e.u64(1_072_000_000_000_000)
	e.u64(30_050_000_000)
	e.u64(792_100_000_000_000)
	e.u64(50_000_000)
	e.pubkey(testFeeRecipient)
	e.u64(100)
	e.u64(500_000)
	e.pubkey(testCreator)
	e.u64(50)
	e.u64(250_000)
	e.boolv(true)
	e.u64(0)
	e.u64(0)
	e.u64(50_000_000)
	e.i64(1_700_000_000)
	e.str(protocol.InstructionBuy)
	return logLine(protocol.DiscriminatorTrade, e.buf)
}

func completionLine(mint string) string {
	e := &encoder{}
	e.pubkey(mint)
	e.u64(0)
	e.u64(85_000_000_000)
	e.u64(0)
	e.u64(85_000_000_000)
	e.i64(1_700_000_100)
	return logLine(protocol.DiscriminatorComplete, e.buf)
}

type fakePersister struct {
	tokens       map[string]state.Token
	tradeSigs    map[string]bool
	txSigs       map[string]bool
	upsertTokens int
	insertTrades int
	loadCalls    int
}

func newFakePersister() *fakePersister {
	return &fakePersister{
		tokens:    make(map[string]state.Token),
		tradeSigs: make(map[string]bool),
		txSigs:    make(map[string]bool),
	}
}

func (f *fakePersister) UpsertToken(ctx context.Context, tok state.Token) error {
	f.upsertTokens++
	f.tokens[tok.Mint] = tok
	return nil
}

func (f *fakePersister) InsertTrade(ctx context.Context, tr events.Trade) error {
	if f.tradeSigs[tr.Signature] {
		return errs.ErrDatabaseConflict
	}
	f.tradeSigs[tr.Signature] = true
	f.insertTrades++
	return nil
}

func (f *fakePersister) UpsertTransaction(ctx context.Context, txn events.Transaction) error {
	if f.txSigs[txn.Signature] {
		return errs.ErrDatabaseConflict
	}
	f.txSigs[txn.Signature] = true
	return nil
}

func (f *fakePersister) LoadToken(ctx context.Context, mint string) (state.Token, bool, error) {
	f.loadCalls++
	tok, ok := f.tokens[mint]
	return tok, ok, nil
}

type fakePublisher struct {
	newTokens   int
	trades      int
	completions int
}

func (f *fakePublisher) NewToken(ctx context.Context, c events.Creation) error {
	f.newTokens++
	return nil
}
func (f *fakePublisher) Trade(ctx context.Context, tr events.Trade) error {
	f.trades++
	return nil
}
func (f *fakePublisher) Completion(ctx context.Context, c events.Completion) error {
	f.completions++
	return nil
}

func testRouter() (*Router, *fakePersister, *fakePublisher) {
	st := state.New(nil)
	p := newFakePersister()
	pub := &fakePublisher{}
	r := New(st, p, pub, zerolog.New(io.Discard))
	return r, p, pub
}

func TestRouter_FreshCreation(t *testing.T) {
	r, p, pub := testRouter()
	rec := events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-create", Success: true},
		LogMessages: []string{creationLine(testMint)},
	}

	r.HandleLogRecord(context.Background(), rec)

	if _, ok := r.State.Get(testMint); !ok {
		t.Fatalf("expected token to exist in state after creation")
	}
	if p.upsertTokens != 1 {
		t.Fatalf("expected 1 UpsertToken call, got %d", p.upsertTokens)
	}
	if pub.newTokens != 1 {
		t.Fatalf("expected 1 NewToken publish, got %d", pub.newTokens)
	}
}

func TestRouter_TradeAfterCreation(t *testing.T) {
	r, p, pub := testRouter()
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-create", Success: true},
		LogMessages: []string{creationLine(testMint)},
	})
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-trade", Success: true},
		LogMessages: []string{tradeLine(testMint)},
	})

	tok, ok := r.State.Get(testMint)
	if !ok {
		t.Fatalf("expected token to exist")
	}
	if tok.VirtualTokenReserves != 1_072_000_000_000_000 {
		t.Fatalf("expected reserves to be updated by the trade, got %d", tok.VirtualTokenReserves)
	}
	if p.insertTrades != 1 {
		t.Fatalf("expected 1 InsertTrade call, got %d", p.insertTrades)
	}
	if pub.trades != 1 {
		t.Fatalf("expected 1 Trade publish, got %d", pub.trades)
	}
}

func TestRouter_OrphanTrade_LazyLoadsFromPersistence(t *testing.T) {
	r, p, pub := testRouter()
	// The mint is known to the relational store (e.g. from a prior process
	// run) but has not yet been loaded into the in-memory state store.
	p.tokens[testMint] = state.Token{Mint: testMint, TotalSupply: 1_000_000_000_000_000}

	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-trade", Success: true},
		LogMessages: []string{tradeLine(testMint)},
	})

	if p.loadCalls != 1 {
		t.Fatalf("expected exactly 1 lazy-load call, got %d", p.loadCalls)
	}
	if _, ok := r.State.Get(testMint); !ok {
		t.Fatalf("expected the lazy-loaded token to now be in state")
	}
	if pub.trades != 1 {
		t.Fatalf("expected the trade to still be published after a successful lazy load")
	}
}

func TestRouter_OrphanTrade_UnknownEverywhereIsDropped(t *testing.T) {
	r, p, pub := testRouter()

	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-trade", Success: true},
		LogMessages: []string{tradeLine(testMint)},
	})

	if _, ok := r.State.Get(testMint); ok {
		t.Fatalf("a trade for a wholly unknown mint must not create state")
	}
	if p.insertTrades != 0 || pub.trades != 0 {
		t.Fatalf("an orphan trade must not be persisted or published")
	}
}

func TestRouter_DuplicateTrade_IsIdempotentAndNotRepublished(t *testing.T) {
	r, p, pub := testRouter()
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-create", Success: true},
		LogMessages: []string{creationLine(testMint)},
	})
	rec := events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-trade", Success: true},
		LogMessages: []string{tradeLine(testMint)},
	}
	r.HandleLogRecord(context.Background(), rec)
	r.HandleLogRecord(context.Background(), rec) // replayed, e.g. backfill overlap

	if p.insertTrades != 1 {
		t.Fatalf("expected the trade to be inserted exactly once, got %d", p.insertTrades)
	}
	if pub.trades != 1 {
		t.Fatalf("a replayed trade must not be republished, got %d publishes", pub.trades)
	}
}

func TestRouter_Completion_PinsProgressAndPublishes(t *testing.T) {
	r, p, pub := testRouter()
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-create", Success: true},
		LogMessages: []string{creationLine(testMint)},
	})
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-complete", Success: true},
		LogMessages: []string{completionLine(testMint)},
	})

	tok, ok := r.State.Get(testMint)
	if !ok {
		t.Fatalf("expected token to exist")
	}
	if !tok.Complete {
		t.Fatalf("expected token to be marked complete")
	}
	if !tok.ProgressPercent.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected progress to be pinned at 100 once complete, got %v", tok.ProgressPercent)
	}
	if p.upsertTokens != 2 {
		t.Fatalf("expected an UpsertToken on creation and again on completion, got %d", p.upsertTokens)
	}
	if pub.completions != 1 {
		t.Fatalf("expected 1 Completion publish, got %d", pub.completions)
	}
}

func TestRouter_FailedTransaction_RecordedButNotDecoded(t *testing.T) {
	r, p, pub := testRouter()
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-failed", Success: false},
		LogMessages: []string{creationLine(testMint)},
	})

	if _, ok := p.txSigs["sig-failed"]; !ok {
		t.Fatalf("expected the failed transaction's envelope to be recorded")
	}
	if _, ok := r.State.Get(testMint); ok {
		t.Fatalf("a failed transaction must never be decoded into state")
	}
	if p.upsertTokens != 0 || pub.newTokens != 0 {
		t.Fatalf("a failed transaction must not reach persistence or broadcast")
	}
}

func TestRouter_TransactionEnvelope_AlwaysRecordedEvenWithoutEvent(t *testing.T) {
	r, p, _ := testRouter()
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-noop", Success: true},
		LogMessages: []string{"Program log: nothing decodable here"},
	})

	if _, ok := p.txSigs["sig-noop"]; !ok {
		t.Fatalf("expected the transaction envelope to be recorded regardless of decodability")
	}
}

func onlyCreate(k events.Kind) bool { return k == events.KindCreate }
func onlyTradeAndComplete(k events.Kind) bool {
	return k == events.KindTrade || k == events.KindComplete
}

func TestRouter_HandleLogRecordFiltered_TokensOnlyAppliesOnlyCreation(t *testing.T) {
	r, p, pub := testRouter()
	r.HandleLogRecordFiltered(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-create", Success: true},
		LogMessages: []string{creationLine(testMint)},
	}, onlyCreate)
	r.HandleLogRecordFiltered(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-trade", Success: true},
		LogMessages: []string{tradeLine(testMint)},
	}, onlyCreate)
	r.HandleLogRecordFiltered(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-complete", Success: true},
		LogMessages: []string{completionLine(testMint)},
	}, onlyCreate)

	if p.upsertTokens != 1 {
		t.Fatalf("expected exactly 1 UpsertToken call (creation only), got %d", p.upsertTokens)
	}
	if p.insertTrades != 0 {
		t.Fatalf("expected no InsertTrade call in tokens-only mode, got %d", p.insertTrades)
	}
	tok, ok := r.State.Get(testMint)
	if !ok {
		t.Fatalf("expected the created token to exist in state")
	}
	if tok.Complete {
		t.Fatalf("expected completion to be skipped in tokens-only mode")
	}
	if pub.newTokens != 1 || pub.trades != 0 || pub.completions != 0 {
		t.Fatalf("expected only a NewToken publish, got newTokens=%d trades=%d completions=%d", pub.newTokens, pub.trades, pub.completions)
	}
	// The transaction envelope is still recorded for every transaction,
	// including the ones whose events were filtered out.
	for _, sig := range []string{"sig-create", "sig-trade", "sig-complete"} {
		if !p.txSigs[sig] {
			t.Fatalf("expected envelope for %q to be recorded despite mode filtering", sig)
		}
	}
}

func TestRouter_HandleLogRecordFiltered_TradesOnlySkipsCreationButAppliesTradeAndCompletion(t *testing.T) {
	r, p, pub := testRouter()
	// The mint is already known to the relational store, as it would be
	// after a prior tokens-only pass; trades-only relies on lazy-load
	// instead of a creation event to populate state.
	p.tokens[testMint] = state.Token{Mint: testMint, TotalSupply: 1_000_000_000_000_000}

	r.HandleLogRecordFiltered(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-create", Success: true},
		LogMessages: []string{creationLine(testMint)},
	}, onlyTradeAndComplete)
	r.HandleLogRecordFiltered(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-trade", Success: true},
		LogMessages: []string{tradeLine(testMint)},
	}, onlyTradeAndComplete)
	r.HandleLogRecordFiltered(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-complete", Success: true},
		LogMessages: []string{completionLine(testMint)},
	}, onlyTradeAndComplete)

	if pub.newTokens != 0 {
		t.Fatalf("expected the creation event to be skipped in trades-only mode, got %d NewToken publishes", pub.newTokens)
	}
	if p.insertTrades != 1 {
		t.Fatalf("expected exactly 1 InsertTrade call, got %d", p.insertTrades)
	}
	tok, ok := r.State.Get(testMint)
	if !ok {
		t.Fatalf("expected the lazy-loaded token to exist in state")
	}
	if !tok.Complete {
		t.Fatalf("expected the completion event to still be applied in trades-only mode")
	}
	if pub.trades != 1 || pub.completions != 1 {
		t.Fatalf("expected trade and completion to publish, got trades=%d completions=%d", pub.trades, pub.completions)
	}
}

func TestRouter_HandleLogRecord_AppliesEveryKindWithNoFilter(t *testing.T) {
	r, p, pub := testRouter()
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-create", Success: true},
		LogMessages: []string{creationLine(testMint)},
	})
	r.HandleLogRecord(context.Background(), events.LogRecord{
		Transaction: events.Transaction{Signature: "sig-trade", Success: true},
		LogMessages: []string{tradeLine(testMint)},
	})

	if p.upsertTokens != 1 || p.insertTrades != 1 {
		t.Fatalf("expected both creation and trade applied, got upsertTokens=%d insertTrades=%d", p.upsertTokens, p.insertTrades)
	}
	if pub.newTokens != 1 || pub.trades != 1 {
		t.Fatalf("expected both publishes, got newTokens=%d trades=%d", pub.newTokens, pub.trades)
	}
}
