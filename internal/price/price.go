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

// Package price holds the reference-price polling loop and the shared cell
// its readers consult. The core depends only on the Oracle interface;
// concrete HTTP-backed oracles live in internal/solanarpc.
package price

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Aditya-1304/pumpfun-indexer/internal/errs"
)

// Oracle fetches the current reference price (for example, SOL/USD). Callers
// supply the timeout via ctx; FetchPrice must respect cancellation.
type Oracle interface {
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
}

// reading is the immutable snapshot swapped into the Cell on each
// successful poll.
type reading struct {
	price decimal.Decimal
	at    time.Time
	valid bool
}

// Cell is a process-wide, write-one/read-many holder for the last
// successfully observed reference price. Readers never block: Read loads an
// atomic pointer and never competes with the poller for a lock.
type Cell struct {
	current atomic.Pointer[reading]
}

// NewCell returns a Cell with no reading yet; Read reports valid=false until
// the first successful poll.
func NewCell() *Cell {
	c := &Cell{}
	c.current.Store(&reading{valid: false})
	return c
}

// Read returns the last successfully observed price and whether one has ever
// succeeded. It never blocks on the poller.
func (c *Cell) Read() (decimal.Decimal, bool) {
	r := c.current.Load()
	if r == nil || !r.valid {
		return decimal.Zero, false
	}
	return r.price, true
}

// ReadAt additionally reports the wall-clock time of the last successful
// reading, for staleness checks in the health aggregator.
func (c *Cell) ReadAt() (decimal.Decimal, time.Time, bool) {
	r := c.current.Load()
	if r == nil || !r.valid {
		return decimal.Zero, time.Time{}, false
	}
	return r.price, r.at, true
}

func (c *Cell) set(price decimal.Decimal, at time.Time) {
	c.current.Store(&reading{price: price, at: at, valid: true})
}

// Poller periodically reads a primary oracle, falling back to a secondary on
// transport error, timeout, or an empty/non-positive reading.
type Poller struct {
	Primary  Oracle
	Fallback Oracle
	Cell     *Cell
	Interval time.Duration
	Timeout  time.Duration
	Log      zerolog.Logger
}

// NewPoller wires a poller with a 15-second cadence and a conservative
// per-fetch timeout.
func NewPoller(primary, fallback Oracle, cell *Cell, log zerolog.Logger) *Poller {
	return &Poller{
		Primary:  primary,
		Fallback: fallback,
		Cell:     cell,
		Interval: 15 * time.Second,
		Timeout:  5 * time.Second,
		Log:      log,
	}
}

// Run blocks, polling at p.Interval until ctx is canceled. It never
// busy-waits: between polls it only waits on the ticker or ctx.Done.
func (p *Poller) Run(ctx context.Context) {
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	price, err := p.Primary.FetchPrice(fetchCtx)
	if err == nil && price.IsPositive() {
		p.Cell.set(price, time.Now())
		return
	}
	p.Log.Warn().Err(err).Msg("primary price oracle failed, trying fallback")

	if p.Fallback == nil {
		p.Log.Error().Msg("no fallback oracle configured; reference price unavailable")
		return
	}

	fallbackCtx, cancel2 := context.WithTimeout(ctx, p.Timeout)
	defer cancel2()

	price, err = p.Fallback.FetchPrice(fallbackCtx)
	if err == nil && price.IsPositive() {
		p.Cell.set(price, time.Now())
		return
	}
	p.Log.Error().Err(errors.Join(errs.ErrOracleUnavailable, err)).Msg("fallback price oracle failed")
}
