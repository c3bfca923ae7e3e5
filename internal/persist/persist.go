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

// Package persist is the relational persistence adapter: tokens, trades, and
// transactions, backed by PostgreSQL via a pooled jackc/pgx/v5 connection.
// schema.sql documents the tables this package assumes already exist; it
// runs no DDL of its own.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Aditya-1304/pumpfun-indexer/internal/errs"
	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
	"github.com/Aditya-1304/pumpfun-indexer/internal/state"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique-constraint hit.
const uniqueViolation = "23505"

// Store is the persistence adapter. The zero value is not usable; build one
// with Open.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects a bounded pool (default max 20) to databaseURL.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("persist: parse database url: %w", err)
	}
	// ParseConfig always fills in its own MaxConns default, so only an
	// explicit pool_max_conns in the URL overrides ours.
	if !strings.Contains(databaseURL, "pool_max_conns") {
		cfg.MaxConns = 20
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("persist: open pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool's connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable, for the health aggregator.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isConflict classifies a pgx error as a unique-constraint hit, which the
// router and callers treat as success rather than failure.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// wrapWriteError normalizes a write error to the shared error taxonomy:
// conflicts become errs.ErrDatabaseConflict, everything else is wrapped with
// errs.ErrDatabaseFailure (and the original cause) for the caller to log and
// retry at the next opportunity.
func wrapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return fmt.Errorf("persist: %s: %w", op, errs.ErrDatabaseConflict)
	}
	return fmt.Errorf("persist: %s: %w: %w", op, errs.ErrDatabaseFailure, err)
}

// UpsertToken inserts a token row on creation, or, if the mint already exists
// (the lazy-load/backfill overlap case), updates its reserves, completion
// flag, and updated_at; identity fields keep the values first inserted. Returns errs.ErrDatabaseConflict only in the pathological case of a
// concurrent insert racing this one; ordinary upserts never conflict.
func (s *Store) UpsertToken(ctx context.Context, tok state.Token) error {
	const q = `
INSERT INTO tokens (
	mint_address, name, symbol, uri, bonding_curve, creator,
	virtual_token_reserves, virtual_base_reserves, real_token_reserves, real_base_reserves,
	total_supply, complete, price_base, market_cap_base, market_cap_reference,
	bonding_curve_progress, holder_count, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (mint_address) DO UPDATE SET
	virtual_token_reserves = EXCLUDED.virtual_token_reserves,
	virtual_base_reserves  = EXCLUDED.virtual_base_reserves,
	real_token_reserves    = EXCLUDED.real_token_reserves,
	real_base_reserves     = EXCLUDED.real_base_reserves,
	complete               = EXCLUDED.complete,
	updated_at             = EXCLUDED.updated_at`

	var marketCapRef *decimal.Decimal
	if tok.MarketCapReferenceValid {
		marketCapRef = &tok.MarketCapReference
	}
	var priceBase *decimal.Decimal
	if tok.PriceDefined {
		priceBase = &tok.PriceBase
	}

	_, err := s.pool.Exec(ctx, q,
		tok.Mint, tok.Name, tok.Symbol, tok.URI, tok.BondingCurve, tok.Creator,
		tok.VirtualTokenReserves, tok.VirtualBaseReserves, tok.RealTokenReserves, tok.RealBaseReserves,
		tok.TotalSupply, tok.Complete, priceBase, tok.MarketCapBase, marketCapRef,
		tok.ProgressPercent, tok.HolderCount, tok.CreatedAt, tok.UpdatedAt,
	)
	return wrapWriteError("upsert token", err)
}

// FlushDerived writes only the derived fields the flusher owns. Unlike
// UpsertToken, this never touches identity fields and is the only writer of
// market_cap_base/market_cap_reference/bonding_curve_progress.
func (s *Store) FlushDerived(ctx context.Context, tok state.Token) error {
	const q = `
UPDATE tokens SET
	virtual_token_reserves = $2,
	virtual_base_reserves  = $3,
	real_token_reserves    = $4,
	real_base_reserves     = $5,
	price_base             = $6,
	market_cap_base        = $7,
	market_cap_reference   = $8,
	bonding_curve_progress = $9,
	updated_at             = $10
WHERE mint_address = $1`

	var marketCapRef *decimal.Decimal
	if tok.MarketCapReferenceValid {
		marketCapRef = &tok.MarketCapReference
	}
	var priceBase *decimal.Decimal
	if tok.PriceDefined {
		priceBase = &tok.PriceBase
	}

	_, err := s.pool.Exec(ctx, q,
		tok.Mint, tok.VirtualTokenReserves, tok.VirtualBaseReserves, tok.RealTokenReserves, tok.RealBaseReserves,
		priceBase, tok.MarketCapBase, marketCapRef, tok.ProgressPercent, tok.UpdatedAt,
	)
	return wrapWriteError("flush derived fields", err)
}

// InsertTrade inserts a trade row keyed by signature. A duplicate signature
// yields errs.ErrDatabaseConflict, which callers (the router) treat as "this
// trade was already applied" rather than an error.
func (s *Store) InsertTrade(ctx context.Context, tr events.Trade) error {
	const q = `
INSERT INTO trades (
	signature, mint_address, is_buy, base_amount, token_amount, actor,
	post_virtual_token_res, post_virtual_base_res, post_real_token_res, post_real_base_res,
	fee_recipient, fee_basis_points, fee_amount, creator, creator_fee_basis_pts, creator_fee_amount,
	track_volume, total_unclaimed_tokens, total_claimed_tokens, cumulative_base_volume,
	last_update_timestamp, instruction, slot, block_time
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`

	_, err := s.pool.Exec(ctx, q,
		tr.Signature, tr.Mint, tr.IsBuy, tr.BaseAmount, tr.TokenAmount, tr.Actor,
		tr.PostVirtualTokenRes, tr.PostVirtualBaseRes, tr.PostRealTokenRes, tr.PostRealBaseRes,
		tr.FeeRecipient, tr.FeeBasisPoints, tr.FeeAmount, tr.Creator, tr.CreatorFeeBasisPts, tr.CreatorFeeAmount,
		tr.TrackVolume, tr.TotalUnclaimedTokens, tr.TotalClaimedTokens, tr.CumulativeBaseVolume,
		tr.LastUpdateTimestamp, tr.Instruction, tr.Slot, tr.BlockTime,
	)
	return wrapWriteError("insert trade", err)
}

// UpsertTransaction records the transaction envelope regardless of whether
// it carried a decodable event. A duplicate signature is a conflict, not an
// error: the envelope for a given signature never changes.
func (s *Store) UpsertTransaction(ctx context.Context, txn events.Transaction) error {
	const q = `
INSERT INTO transactions (
	signature, slot, block_time, success, fee, signer,
	instruction_count, log_message_count, has_program_data,
	accounts_involved, pre_balances, post_balances, compute_units, error
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (signature) DO NOTHING`

	// The array columns are NOT NULL, and pgx encodes a nil slice as NULL.
	accounts, pre, post := txn.AccountsInvolved, txn.PreBalances, txn.PostBalances
	if accounts == nil {
		accounts = []string{}
	}
	if pre == nil {
		pre = []uint64{}
	}
	if post == nil {
		post = []uint64{}
	}

	tag, err := s.pool.Exec(ctx, q,
		txn.Signature, txn.Slot, txn.BlockTime, txn.Success, txn.Fee, txn.Signer,
		txn.InstructionCount, txn.LogMessageCount, txn.HasProgramData,
		accounts, pre, post, txn.ComputeUnits, nullableString(txn.Error),
	)
	if err != nil {
		return wrapWriteError("upsert transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("persist: upsert transaction: %w", errs.ErrDatabaseConflict)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// LoadToken fetches a single token row, used by the router's lazy-load path
// on an orphan trade. ok is false if the mint is unknown.
func (s *Store) LoadToken(ctx context.Context, mint string) (state.Token, bool, error) {
	const q = `
SELECT mint_address, name, symbol, uri, bonding_curve, creator,
       virtual_token_reserves, virtual_base_reserves, real_token_reserves, real_base_reserves,
       total_supply, complete, bonding_curve_progress, holder_count, created_at, updated_at
FROM tokens WHERE mint_address = $1`

	row := s.pool.QueryRow(ctx, q, mint)
	var tok state.Token
	err := row.Scan(
		&tok.Mint, &tok.Name, &tok.Symbol, &tok.URI, &tok.BondingCurve, &tok.Creator,
		&tok.VirtualTokenReserves, &tok.VirtualBaseReserves, &tok.RealTokenReserves, &tok.RealBaseReserves,
		&tok.TotalSupply, &tok.Complete, &tok.ProgressPercent, &tok.HolderCount, &tok.CreatedAt, &tok.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return state.Token{}, false, nil
	}
	if err != nil {
		return state.Token{}, false, fmt.Errorf("persist: load token: %w", err)
	}
	return tok, true, nil
}

// LoadAllTokens fetches every token row, used to rebuild the state store on
// startup.
func (s *Store) LoadAllTokens(ctx context.Context) ([]state.Token, error) {
	const q = `
SELECT mint_address, name, symbol, uri, bonding_curve, creator,
       virtual_token_reserves, virtual_base_reserves, real_token_reserves, real_base_reserves,
       total_supply, complete, bonding_curve_progress, holder_count, created_at, updated_at
FROM tokens`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("persist: load all tokens: %w", err)
	}
	defer rows.Close()

	var out []state.Token
	for rows.Next() {
		var tok state.Token
		if err := rows.Scan(
			&tok.Mint, &tok.Name, &tok.Symbol, &tok.URI, &tok.BondingCurve, &tok.Creator,
			&tok.VirtualTokenReserves, &tok.VirtualBaseReserves, &tok.RealTokenReserves, &tok.RealBaseReserves,
			&tok.TotalSupply, &tok.Complete, &tok.ProgressPercent, &tok.HolderCount, &tok.CreatedAt, &tok.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("persist: load all tokens: scan: %w", err)
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persist: load all tokens: %w", err)
	}
	return out, nil
}
