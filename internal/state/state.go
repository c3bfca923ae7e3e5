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

// Package state holds the concurrent, in-memory view of every live token:
// its reserves, completion flag, and derived pricing fields.
//
// HOT PATH: ApplyTrade is called once per trade seen by the router — for a
// busy program that can be many hundreds of times a second. GetOrCreate and
// MarkComplete are comparatively rare.
//
// Concurrency model: the mint space is split across shardCount shards, each
// guarded by its own sync.RWMutex. A single coarse lock would serialize every
// trade across every mint; sharding by a hash of the mint address lets trades
// against different mints proceed without contending on the same lock.
// Writers (ApplyTrade, MarkComplete, GetOrCreate on miss) take their shard's
// write lock; readers (Snapshot, Get) take the read lock and always return a
// copy so a caller can never observe a state struct being mutated underneath
// it.
package state

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aditya-1304/pumpfun-indexer/internal/curve"
	"github.com/Aditya-1304/pumpfun-indexer/internal/errs"
)

const shardCount = 16

// Token is the live, in-memory view of one mint.
type Token struct {
	Mint         string
	Name         string
	Symbol       string
	URI          string
	BondingCurve string
	Creator      string

	VirtualTokenReserves uint64
	VirtualBaseReserves  uint64
	RealTokenReserves    uint64
	RealBaseReserves     uint64
	TotalSupply          uint64

	HolderCount int

	Complete bool

	PriceBase               decimal.Decimal
	PriceDefined            bool
	MarketCapBase           decimal.Decimal
	MarketCapReference      decimal.Decimal
	MarketCapReferenceValid bool
	ProgressPercent         decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PriceReader supplies the shared reference-price reading; satisfied by
// internal/price.Cell.
type PriceReader interface {
	Read() (price decimal.Decimal, valid bool)
}

// shard is one partition of the mint space: its own lock, its own map.
type shard struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

// Store is the concurrent token state store.
type Store struct {
	shards [shardCount]*shard
	prices PriceReader
}

// New creates an empty Store. prices supplies the reference-price reading
// used when recomputing derived fields; it may be nil in tests that only
// exercise base-currency derivations.
func New(prices PriceReader) *Store {
	s := &Store{prices: prices}
	for i := range s.shards {
		s.shards[i] = &shard{tokens: make(map[string]*Token)}
	}
	return s
}

// shardFor routes a mint to its shard by FNV-1a hash, a fast non-cryptographic
// hash well suited to the hot path.
func (s *Store) shardFor(mint string) *shard {
	h := fnv.New32a()
	h.Write([]byte(mint))
	return s.shards[h.Sum32()%shardCount]
}

func (s *Store) referencePrice() (decimal.Decimal, bool) {
	if s.prices == nil {
		return decimal.Zero, false
	}
	return s.prices.Read()
}

// GetOrCreate inserts a token from a creation event if the mint is not
// already present, and returns the resulting state (a copy). If the mint is
// already known, the existing entry is returned unmodified: creation events
// are not expected to repeat, but the router may see one replayed during a
// backfill/live overlap.
func (s *Store) GetOrCreate(mint, name, symbol, uri, bondingCurve, creator string, vt, vb, rt, totalSupply uint64, now time.Time) Token {
	sh := s.shardFor(mint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.tokens[mint]; ok {
		return *existing
	}

	refPrice, refValid := s.referencePrice()
	derived := curve.Derive(vt, vb, 0, totalSupply, false, refPrice, refValid)

	tok := &Token{
		Mint:                    mint,
		Name:                    name,
		Symbol:                  symbol,
		URI:                     uri,
		BondingCurve:            bondingCurve,
		Creator:                 creator,
		VirtualTokenReserves:    vt,
		VirtualBaseReserves:     vb,
		RealTokenReserves:       rt,
		TotalSupply:             totalSupply,
		PriceBase:               derived.PriceBase,
		PriceDefined:            derived.PriceDefined,
		MarketCapBase:           derived.MarketCapBase,
		MarketCapReference:      derived.MarketCapReference,
		MarketCapReferenceValid: derived.MarketCapReferenceValid,
		ProgressPercent:         derived.ProgressPercent,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	sh.tokens[mint] = tok
	return *tok
}

// Load inserts or overwrites a token's state from the relational store, used
// on startup to rebuild the store and by the router's lazy-load path on an
// orphan trade. It does not recompute CreatedAt.
func (s *Store) Load(tok Token) {
	sh := s.shardFor(tok.Mint)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cp := tok
	sh.tokens[tok.Mint] = &cp
}

// Get returns a copy of the current state for mint, and whether it exists.
func (s *Store) Get(mint string) (Token, bool) {
	sh := s.shardFor(mint)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	tok, ok := sh.tokens[mint]
	if !ok {
		return Token{}, false
	}
	return *tok, true
}

// ApplyTrade updates a mint's reserves to the post-trade values carried on
// the trade event and recomputes derived fields. Returns errs.ErrUnknownToken
// if the mint has never been created; the router handles that as an
// OrphanTrade.
//
// HOT PATH: called once per trade.
func (s *Store) ApplyTrade(mint string, postVt, postVb, postRt, postRb uint64, now time.Time) (Token, error) {
	sh := s.shardFor(mint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	tok, ok := sh.tokens[mint]
	if !ok {
		return Token{}, errs.ErrUnknownToken
	}

	tok.VirtualTokenReserves = postVt
	tok.VirtualBaseReserves = postVb
	tok.RealTokenReserves = postRt
	tok.RealBaseReserves = postRb
	tok.UpdatedAt = now

	refPrice, refValid := s.referencePrice()
	derived := curve.Derive(postVt, postVb, postRb, tok.TotalSupply, tok.Complete, refPrice, refValid)
	tok.PriceBase = derived.PriceBase
	tok.PriceDefined = derived.PriceDefined
	tok.MarketCapBase = derived.MarketCapBase
	tok.MarketCapReference = derived.MarketCapReference
	tok.MarketCapReferenceValid = derived.MarketCapReferenceValid
	tok.ProgressPercent = derived.ProgressPercent

	return *tok, nil
}

// MarkComplete sets the completion flag and records final reserves. Once
// set, the flag is never cleared: a completion event seen twice (live +
// backfill overlap, or a replay) is a harmless no-op on the flag itself,
// though reserves are still updated to the values carried on this event.
func (s *Store) MarkComplete(mint string, finalVt, finalVb, finalRt, finalRb uint64, now time.Time) (Token, error) {
	sh := s.shardFor(mint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	tok, ok := sh.tokens[mint]
	if !ok {
		return Token{}, errs.ErrUnknownToken
	}

	tok.Complete = true
	tok.VirtualTokenReserves = finalVt
	tok.VirtualBaseReserves = finalVb
	tok.RealTokenReserves = finalRt
	tok.RealBaseReserves = finalRb
	tok.UpdatedAt = now
	tok.ProgressPercent = curve.Progress(finalRb, true)

	return *tok, nil
}

// Snapshot returns a copy of every token currently held, for the periodic
// flusher. Order is unspecified. Each shard is locked and released in turn,
// not all at once: a snapshot is a consistent-per-shard, not a
// consistent-across-shards, view.
func (s *Store) Snapshot() []Token {
	var out []Token
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, tok := range sh.tokens {
			out = append(out, *tok)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len reports how many mints are currently held, used by the health snapshot.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.tokens)
		sh.mu.RUnlock()
	}
	return total
}
