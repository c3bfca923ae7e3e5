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

// Package errs holds the sentinel error values shared across the ingestion
// pipeline so callers can classify failures with errors.Is/errors.As instead
// of matching on formatted strings.
package errs

import "errors"

var (
	// ErrMalformedPayload is returned by the decoder when a known-discriminator
	// payload cannot be fully deserialized (overrun, oversized string, trailing bytes).
	ErrMalformedPayload = errors.New("decoder: malformed payload")

	// ErrOrphanTrade is logged by the router when a trade references a mint that
	// is neither in the state store nor the relational store. Not fatal.
	ErrOrphanTrade = errors.New("router: orphan trade")

	// ErrUnknownToken is returned by the state store when apply_trade/mark_complete
	// target a mint that has never been created.
	ErrUnknownToken = errors.New("state: unknown token")

	// ErrTransientTransport marks a network error worth retrying locally.
	ErrTransientTransport = errors.New("transport: transient error")

	// ErrRateLimited marks a backoff-and-retry network condition.
	ErrRateLimited = errors.New("transport: rate limited")

	// ErrDatabaseConflict marks a unique-constraint hit on an idempotent insert;
	// callers should treat this as success, not failure.
	ErrDatabaseConflict = errors.New("persist: conflict (idempotent)")

	// ErrDatabaseFailure marks any relational-store error that is not a
	// conflict: connection loss, constraint violations other than the
	// idempotency key, syntax errors. Callers should treat this as fatal to
	// the operation, unlike ErrDatabaseConflict.
	ErrDatabaseFailure = errors.New("persist: database failure")

	// ErrOracleUnavailable marks both the primary and fallback price oracle
	// failing within the same poll; the router degrades to base-currency-only
	// market caps until the next successful read.
	ErrOracleUnavailable = errors.New("price: oracle unavailable")
)
