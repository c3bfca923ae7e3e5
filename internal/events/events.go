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

// Package events defines the decoded event variants and the transaction
// envelope they ride in on, shared by the decoder, router, state store, and
// persistence layers.
package events

import "time"

// Envelope carries the transaction-level metadata common to every decoded event.
type Envelope struct {
	Signature string
	Slot      uint64
	BlockTime time.Time
	Signer    string
}

// Kind identifies which variant a decoded event is.
type Kind int

const (
	KindUnknown Kind = iota
	KindCreate
	KindTrade
	KindComplete
)

// Creation is emitted when a new bonding-curve token is launched.
type Creation struct {
	Envelope

	Mint                   string
	Name                   string
	Symbol                 string
	URI                    string
	BondingCurve           string
	Creator                string
	InitialVirtualTokenRes uint64
	InitialVirtualBaseRes  uint64
	InitialRealTokenRes    uint64
	TotalSupply            uint64
}

// Trade is emitted on every buy/sell against a bonding curve.
type Trade struct {
	Envelope

	Mint                 string
	IsBuy                bool
	BaseAmount           uint64
	TokenAmount          uint64
	Actor                string
	PostVirtualTokenRes  uint64
	PostVirtualBaseRes   uint64
	PostRealTokenRes     uint64
	PostRealBaseRes      uint64
	FeeRecipient         string
	FeeBasisPoints       uint64
	FeeAmount            uint64
	Creator              string
	CreatorFeeBasisPts   uint64
	CreatorFeeAmount     uint64
	TrackVolume          bool
	TotalUnclaimedTokens uint64
	TotalClaimedTokens   uint64
	CumulativeBaseVolume uint64
	LastUpdateTimestamp  time.Time
	Instruction          string // "buy" | "sell" | "buy_exact_sol_in"
}

// Completion is emitted once a token graduates off the bonding curve.
type Completion struct {
	Envelope

	Mint              string
	FinalVirtualToken uint64
	FinalVirtualBase  uint64
	FinalRealToken    uint64
	FinalRealBase     uint64
	BlockTime         time.Time
}

// Decoded wraps exactly one populated variant plus its Kind tag, as returned
// by the decoder.
type Decoded struct {
	Kind       Kind
	Creation   *Creation
	Trade      *Trade
	Completion *Completion
}

// Transaction is the durable record of a transaction envelope, independent of
// whether it carried a decodable event.
type Transaction struct {
	Signature        string
	Slot             uint64
	BlockTime        time.Time
	Success          bool
	Fee              uint64
	Signer           string
	InstructionCount int
	LogMessageCount  int
	HasProgramData   bool
	AccountsInvolved []string
	PreBalances      []uint64
	PostBalances     []uint64
	ComputeUnits     uint64
	Error            string
}

// TradeRecord is the persisted shape of a trade: the trade event fields plus
// the signature, which doubles as the primary key.
type TradeRecord struct {
	Trade
}

// LogRecord is what the live ingestion source and the backfill driver both
// produce: one transaction envelope plus its ordered log messages.
type LogRecord struct {
	Transaction
	LogMessages []string
}
