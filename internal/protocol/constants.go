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

// Package protocol holds the wire-level constants for the launchpad program:
// event discriminators, decimal conventions, and the graduation threshold.
package protocol

// --- Event discriminators ---
//
// Each discriminator is the first 8 bytes of an anchor-style "Program data:" log
// record. They select which variant the remaining bytes deserialize into.
var (
	DiscriminatorCreate   = [8]byte{27, 114, 169, 77, 222, 235, 99, 118}
	DiscriminatorTrade    = [8]byte{189, 219, 127, 211, 78, 230, 97, 238}
	DiscriminatorComplete = [8]byte{95, 114, 97, 156, 212, 46, 152, 8}
)

// --- Decimal conventions ---
const (
	BaseCurrencyDecimals = 9 // SOL
	TokenDecimals        = 6
	MaxStringFieldLength = 1024 // cap on a length-prefixed string field, in bytes
)

// GraduationThresholdBaseUnits is the real base-currency reserve, in whole units,
// at which the bonding curve is considered fully progressed (100%).
const GraduationThresholdBaseUnits = 85

// --- Instruction tags carried on trade events ---
const (
	InstructionBuy        = "buy"
	InstructionSell       = "sell"
	InstructionBuyExactIn = "buy_exact_sol_in"
)

// --- Pub/sub channel names ---
const (
	ChannelTrades      = "pump:trades"
	ChannelNewTokens   = "pump:tokens:new"
	ChannelCompletions = "pump:completions"
)

// ProgramDataPrefix is the log-message prefix that carries base64 event payloads.
const ProgramDataPrefix = "Program data: "

// DefaultProgramID is used when PROGRAM_ID is not set in the environment.
const DefaultProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
