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

// Package ingest drives the long-lived subscription to live program activity
// and reconnects it with exponential backoff when it drops.
package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
)

// LiveSource subscribes to transactions touching the launchpad program and
// streams decoded-ready log records as they arrive. A concrete adapter
// (internal/solanarpc) backs this with a logsSubscribe websocket connection;
// tests and the runner below only depend on this interface.
type LiveSource interface {
	Subscribe(ctx context.Context) (<-chan events.LogRecord, error)
}

const (
	minBackoff = time.Second
	maxBackoff = 60 * time.Second
)

// Runner owns the reconnect loop: it resubscribes to source whenever the
// channel closes, doubling its wait between attempts up to maxBackoff, and
// resets to minBackoff the moment a connection yields at least one message.
//
// There is no durable cursor here: on reconnect the runner simply resumes
// from whatever the source's live subscription delivers next. Gaps opened by
// a prolonged outage are the backfill driver's job to close, not this one's.
type Runner struct {
	Source LiveSource
	Log    zerolog.Logger

	lastMessageAt atomic.Int64 // unix nanos; 0 means "never"
}

// NewRunner builds a Runner around a LiveSource.
func NewRunner(source LiveSource, log zerolog.Logger) *Runner {
	return &Runner{Source: source, Log: log}
}

// LastMessageAt reports when the runner last forwarded a record, for the
// health aggregator. The zero Time means no record has arrived yet.
func (r *Runner) LastMessageAt() time.Time {
	nanos := r.lastMessageAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// Run subscribes to source and forwards every record onto out until ctx is
// canceled. It never returns on a dropped connection; it reconnects with
// backoff instead. It returns only when ctx is done.
func (r *Runner) Run(ctx context.Context, out chan<- events.LogRecord) {
	backoff := minBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		records, err := r.Source.Subscribe(ctx)
		if err != nil {
			r.Log.Error().Err(err).Dur("backoff", backoff).Msg("live subscription failed, retrying")
			if !r.wait(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		received := r.drain(ctx, records, out)
		if ctx.Err() != nil {
			return
		}

		if received > 0 {
			// A clean connect that yielded at least one message earns a
			// reset: whatever caused the drop is presumed transient.
			backoff = minBackoff
			r.Log.Warn().Msg("live subscription channel closed, reconnecting")
			continue
		}

		r.Log.Error().Dur("backoff", backoff).Msg("live subscription closed without delivering a message, backing off")
		if !r.wait(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// drain forwards records from in to out until in closes or ctx is done,
// returning how many records were forwarded.
func (r *Runner) drain(ctx context.Context, in <-chan events.LogRecord, out chan<- events.LogRecord) int {
	received := 0
	for {
		select {
		case <-ctx.Done():
			return received
		case rec, ok := <-in:
			if !ok {
				return received
			}
			received++
			r.lastMessageAt.Store(time.Now().UnixNano())
			select {
			case out <- rec:
			case <-ctx.Done():
				return received
			}
		}
	}
}

// wait blocks for d or until ctx is canceled, reporting whether it returned
// because the wait elapsed (true) as opposed to ctx being canceled (false).
func (r *Runner) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
