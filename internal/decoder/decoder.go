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
Package decoder turns opaque "Program data: <base64>" log lines into typed
events.

HOT PATH: Decode is called once per log line seen by the router — for a busy
program that can be many thousands of times a second. The steps below are the
critical path; optimizations here have the highest impact.

Decoding Strategy:
We read the little-endian byte stream field-by-field with gagliardetto/binary's
low-level Decoder methods instead of its reflection-based Decode(v), because:
 1. The event shapes are fixed and known at compile time — no schema lookup.
 2. Field-by-field reads are allocation-free except for string and
    public-key fields.
 3. The decoder bounds-checks every read and returns an error instead of
    relying on recover().

Performance Characteristics:
  - base64 decode: one allocation sized to the decoded length.
  - field reads: zero allocations (fixed-width reads are value copies).
  - string fields: one allocation per string (length-prefixed, capped at
    protocol.MaxStringFieldLength).
  - public-key fields: one allocation each for the base58-encoded string.
*/
package decoder

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/mr-tron/base58"

	"github.com/Aditya-1304/pumpfun-indexer/internal/errs"
	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
	"github.com/Aditya-1304/pumpfun-indexer/internal/protocol"
)

// Decode parses a single "Program data: <base64>" log line. An unknown
// discriminator is not an error: ok is false and err is nil, meaning "skip".
//
// HOT PATH: called once per log line. Cost is dominated by the base64 decode.
func Decode(logLine string, env events.Envelope) (decoded events.Decoded, ok bool, err error) {
	payload, isProgramData := extractProgramData(logLine)
	if !isProgramData {
		return events.Decoded{}, false, nil
	}

	raw, decErr := base64.StdEncoding.DecodeString(payload)
	if decErr != nil {
		return events.Decoded{}, false, fmt.Errorf("%w: invalid base64: %v", errs.ErrMalformedPayload, decErr)
	}
	if len(raw) < 8 {
		// Too short to even carry a discriminator: not one of ours, skip silently.
		return events.Decoded{}, false, nil
	}

	var disc [8]byte
	copy(disc[:], raw[:8])
	body := raw[8:]

	switch disc {
	case protocol.DiscriminatorCreate:
		c, err := decodeCreation(body, env)
		if err != nil {
			return events.Decoded{}, false, err
		}
		return events.Decoded{Kind: events.KindCreate, Creation: c}, true, nil
	case protocol.DiscriminatorTrade:
		t, err := decodeTrade(body, env)
		if err != nil {
			return events.Decoded{}, false, err
		}
		return events.Decoded{Kind: events.KindTrade, Trade: t}, true, nil
	case protocol.DiscriminatorComplete:
		cp, err := decodeCompletion(body, env)
		if err != nil {
			return events.Decoded{}, false, err
		}
		return events.Decoded{Kind: events.KindComplete, Completion: cp}, true, nil
	default:
		// UnknownDiscriminator: a normal, non-error skip.
		return events.Decoded{}, false, nil
	}
}

// extractProgramData strips the "Program data: " prefix. HOT PATH: single
// prefix check, no allocation.
func extractProgramData(logLine string) (payload string, ok bool) {
	if !strings.HasPrefix(logLine, protocol.ProgramDataPrefix) {
		return "", false
	}
	return logLine[len(protocol.ProgramDataPrefix):], true
}

// cursor wraps a gagliardetto/binary Decoder, translating its bounds-check
// errors into errs.ErrMalformedPayload so every field read fails closed the
// moment it would run past the end of the buffer.
type cursor struct {
	dec *bin.Decoder
}

func newCursor(buf []byte) *cursor {
	return &cursor{dec: bin.NewBinDecoder(buf)}
}

func wrapMalformed(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", errs.ErrMalformedPayload, err)
}

func (c *cursor) bool() (bool, error) {
	v, err := c.dec.ReadBool()
	return v, wrapMalformed(err)
}

func (c *cursor) u64() (uint64, error) {
	v, err := c.dec.ReadUint64(bin.LE)
	return v, wrapMalformed(err)
}

func (c *cursor) i64() (int64, error) {
	v, err := c.dec.ReadInt64(bin.LE)
	return v, wrapMalformed(err)
}

// pubkey reads 32 raw bytes and base58-encodes them, matching the chain SDKs'
// account-address encoding.
func (c *cursor) pubkey() (string, error) {
	raw, err := c.dec.ReadNBytes(32)
	if err != nil {
		return "", wrapMalformed(err)
	}
	return base58.Encode(raw), nil
}

// str reads a 4-byte little-endian length prefix followed by that many raw
// bytes, rejecting lengths beyond protocol.MaxStringFieldLength.
func (c *cursor) str() (string, error) {
	n, err := c.dec.ReadUint32(bin.LE)
	if err != nil {
		return "", wrapMalformed(err)
	}
	if n > protocol.MaxStringFieldLength {
		return "", fmt.Errorf("%w: string length %d exceeds cap %d", errs.ErrMalformedPayload, n, protocol.MaxStringFieldLength)
	}
	raw, err := c.dec.ReadNBytes(int(n))
	if err != nil {
		return "", wrapMalformed(err)
	}
	return string(raw), nil
}

// done fails if the variant declared fewer fields than the buffer carries.
func (c *cursor) done() error {
	if rem := c.dec.Remaining(); rem != 0 {
		return fmt.Errorf("%w: %d trailing bytes after known fields", errs.ErrMalformedPayload, rem)
	}
	return nil
}

func decodeCreation(body []byte, env events.Envelope) (*events.Creation, error) {
	c := newCursor(body)
	mint, err := c.pubkey()
	if err != nil {
		return nil, err
	}
	name, err := c.str()
	if err != nil {
		return nil, err
	}
	symbol, err := c.str()
	if err != nil {
		return nil, err
	}
	uri, err := c.str()
	if err != nil {
		return nil, err
	}
	bondingCurve, err := c.pubkey()
	if err != nil {
		return nil, err
	}
	creator, err := c.pubkey()
	if err != nil {
		return nil, err
	}
	vTok, err := c.u64()
	if err != nil {
		return nil, err
	}
	vBase, err := c.u64()
	if err != nil {
		return nil, err
	}
	rTok, err := c.u64()
	if err != nil {
		return nil, err
	}
	supply, err := c.u64()
	if err != nil {
		return nil, err
	}
	if err := c.done(); err != nil {
		return nil, err
	}

	return &events.Creation{
		Envelope:               env,
		Mint:                   mint,
		Name:                   name,
		Symbol:                 symbol,
		URI:                    uri,
		BondingCurve:           bondingCurve,
		Creator:                creator,
		InitialVirtualTokenRes: vTok,
		InitialVirtualBaseRes:  vBase,
		InitialRealTokenRes:    rTok,
		TotalSupply:            supply,
	}, nil
}

func decodeTrade(body []byte, env events.Envelope) (*events.Trade, error) {
	c := newCursor(body)

	mint, err := c.pubkey()
	if err != nil {
		return nil, err
	}
	isBuy, err := c.bool()
	if err != nil {
		return nil, err
	}
	baseAmount, err := c.u64()
	if err != nil {
		return nil, err
	}
	tokenAmount, err := c.u64()
	if err != nil {
		return nil, err
	}
	actor, err := c.pubkey()
	if err != nil {
		return nil, err
	}
	postVTok, err := c.u64()
	if err != nil {
		return nil, err
	}
	postVBase, err := c.u64()
	if err != nil {
		return nil, err
	}
	postRTok, err := c.u64()
	if err != nil {
		return nil, err
	}
	postRBase, err := c.u64()
	if err != nil {
		return nil, err
	}
	feeRecipient, err := c.pubkey()
	if err != nil {
		return nil, err
	}
	feeBps, err := c.u64()
	if err != nil {
		return nil, err
	}
	feeAmount, err := c.u64()
	if err != nil {
		return nil, err
	}
	creator, err := c.pubkey()
	if err != nil {
		return nil, err
	}
	creatorFeeBps, err := c.u64()
	if err != nil {
		return nil, err
	}
	creatorFeeAmount, err := c.u64()
	if err != nil {
		return nil, err
	}
	trackVolume, err := c.bool()
	if err != nil {
		return nil, err
	}
	totalUnclaimed, err := c.u64()
	if err != nil {
		return nil, err
	}
	totalClaimed, err := c.u64()
	if err != nil {
		return nil, err
	}
	cumulativeVolume, err := c.u64()
	if err != nil {
		return nil, err
	}
	lastUpdate, err := c.i64()
	if err != nil {
		return nil, err
	}
	instruction, err := c.str()
	if err != nil {
		return nil, err
	}
	if err := c.done(); err != nil {
		return nil, err
	}
	if instruction != protocol.InstructionBuy && instruction != protocol.InstructionSell && instruction != protocol.InstructionBuyExactIn {
		return nil, fmt.Errorf("%w: unrecognized instruction tag %q", errs.ErrMalformedPayload, instruction)
	}

	return &events.Trade{
		Envelope:             env,
		Mint:                 mint,
		IsBuy:                isBuy,
		BaseAmount:           baseAmount,
		TokenAmount:          tokenAmount,
		Actor:                actor,
		PostVirtualTokenRes:  postVTok,
		PostVirtualBaseRes:   postVBase,
		PostRealTokenRes:     postRTok,
		PostRealBaseRes:      postRBase,
		FeeRecipient:         feeRecipient,
		FeeBasisPoints:       feeBps,
		FeeAmount:            feeAmount,
		Creator:              creator,
		CreatorFeeBasisPts:   creatorFeeBps,
		CreatorFeeAmount:     creatorFeeAmount,
		TrackVolume:          trackVolume,
		TotalUnclaimedTokens: totalUnclaimed,
		TotalClaimedTokens:   totalClaimed,
		CumulativeBaseVolume: cumulativeVolume,
		LastUpdateTimestamp:  time.Unix(lastUpdate, 0).UTC(),
		Instruction:          instruction,
	}, nil
}

func decodeCompletion(body []byte, env events.Envelope) (*events.Completion, error) {
	c := newCursor(body)

	mint, err := c.pubkey()
	if err != nil {
		return nil, err
	}
	finalVTok, err := c.u64()
	if err != nil {
		return nil, err
	}
	finalVBase, err := c.u64()
	if err != nil {
		return nil, err
	}
	finalRTok, err := c.u64()
	if err != nil {
		return nil, err
	}
	finalRBase, err := c.u64()
	if err != nil {
		return nil, err
	}
	blockTime, err := c.i64()
	if err != nil {
		return nil, err
	}
	if err := c.done(); err != nil {
		return nil, err
	}

	return &events.Completion{
		Envelope:          env,
		Mint:              mint,
		FinalVirtualToken: finalVTok,
		FinalVirtualBase:  finalVBase,
		FinalRealToken:    finalRTok,
		FinalRealBase:     finalRBase,
		BlockTime:         time.Unix(blockTime, 0).UTC(),
	}, nil
}
