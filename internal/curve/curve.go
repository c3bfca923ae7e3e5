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

// Package curve derives price, market cap, and graduation progress from a
// bonding curve's virtual and real reserves. Every function here is pure: no
// I/O, no locking, no global state. All arithmetic goes through
// shopspring/decimal so that cumulative volume and price never round the way
// float64 would across a long-running process.
package curve

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/Aditya-1304/pumpfun-indexer/internal/protocol"
)

// fromUint64 converts an on-chain integer base-unit quantity to a decimal,
// going through big.Int since reserve and supply figures can exceed the
// range a float64 can represent exactly.
func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

var (
	baseUnit  = decimal.New(1, protocol.BaseCurrencyDecimals)
	tokenUnit = decimal.New(1, protocol.TokenDecimals)

	graduationThreshold = decimal.NewFromInt(protocol.GraduationThresholdBaseUnits).Mul(baseUnit)

	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Derived holds the fields computed from a token's current reserves.
type Derived struct {
	// PriceBase is the price of one whole token, denominated in whole base
	// currency units. Zero value (and PriceDefined=false) when reserves are
	// not both strictly positive.
	PriceBase    decimal.Decimal
	PriceDefined bool

	// MarketCapBase is PriceBase times the whole-token total supply.
	MarketCapBase decimal.Decimal

	// MarketCapReference is MarketCapBase converted via the reference price,
	// when one is available.
	MarketCapReference      decimal.Decimal
	MarketCapReferenceValid bool

	// ProgressPercent is clamped to [0, 100], pinned to 100 once complete.
	ProgressPercent decimal.Decimal
}

// Price returns the base-currency price of one whole token given virtual
// token reserves vt and virtual base-currency reserves vb, both in integer
// base units. The second return value is false when either reserve is zero,
// matching the "division by zero yields null, not panic" requirement.
func Price(vt, vb uint64) (decimal.Decimal, bool) {
	if vt == 0 || vb == 0 {
		return zero, false
	}
	vbWhole := fromUint64(vb).Div(baseUnit)
	vtWhole := fromUint64(vt).Div(tokenUnit)
	return vbWhole.Div(vtWhole), true
}

// MarketCapBase returns price times the whole-token total supply.
func MarketCapBase(price decimal.Decimal, totalSupply uint64) decimal.Decimal {
	supplyWhole := fromUint64(totalSupply).Div(tokenUnit)
	return price.Mul(supplyWhole)
}

// MarketCapReference converts a base-currency market cap using a reference
// price reading. ok mirrors whether the caller supplied a valid reading.
func MarketCapReference(marketCapBase decimal.Decimal, referencePrice decimal.Decimal, referencePriceValid bool) (decimal.Decimal, bool) {
	if !referencePriceValid {
		return zero, false
	}
	return marketCapBase.Mul(referencePrice), true
}

// Progress returns the bonding-curve graduation percentage given the real
// base-currency reserves, in integer base units. complete pins the result at
// 100 regardless of the reserve figure, matching monotone completion.
func Progress(realBaseReserves uint64, complete bool) decimal.Decimal {
	if complete {
		return hundred
	}
	realWhole := fromUint64(realBaseReserves)
	pct := realWhole.Div(graduationThreshold).Mul(hundred)
	switch {
	case pct.LessThan(zero):
		return zero
	case pct.GreaterThan(hundred):
		return hundred
	default:
		return pct
	}
}

// Derive computes the full set of derived fields in one call, the shape the
// state store and the periodic flusher both want.
func Derive(vt, vb, realBase, totalSupply uint64, complete bool, referencePrice decimal.Decimal, referencePriceValid bool) Derived {
	price, priceOK := Price(vt, vb)

	d := Derived{
		PriceBase:       price,
		PriceDefined:    priceOK,
		ProgressPercent: Progress(realBase, complete),
	}
	if priceOK {
		d.MarketCapBase = MarketCapBase(price, totalSupply)
		d.MarketCapReference, d.MarketCapReferenceValid = MarketCapReference(d.MarketCapBase, referencePrice, referencePriceValid)
	}
	return d
}
