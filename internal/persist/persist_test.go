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

package persist

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Aditya-1304/pumpfun-indexer/internal/errs"
)

// Tests for the error-classification helpers. The pooled-connection paths
// (UpsertToken, InsertTrade, ...) require a live PostgreSQL instance and are
// exercised by an external integration suite, not here.

func TestIsConflict_UniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: uniqueViolation}
	if !isConflict(err) {
		t.Fatalf("expected a 23505 error to be classified as a conflict")
	}
}

func TestIsConflict_OtherPgError(t *testing.T) {
	err := &pgconn.PgError{Code: "23503"} // foreign_key_violation
	if isConflict(err) {
		t.Fatalf("foreign key violations must not be classified as conflicts")
	}
}

func TestIsConflict_NonPgError(t *testing.T) {
	if isConflict(errors.New("connection refused")) {
		t.Fatalf("a plain error must not be classified as a conflict")
	}
}

func TestWrapWriteError_ConflictMapsToSentinel(t *testing.T) {
	err := wrapWriteError("insert trade", &pgconn.PgError{Code: uniqueViolation})
	if !errors.Is(err, errs.ErrDatabaseConflict) {
		t.Fatalf("expected ErrDatabaseConflict, got %v", err)
	}
}

func TestWrapWriteError_OtherErrorsPassThrough(t *testing.T) {
	cause := errors.New("connection refused")
	err := wrapWriteError("insert trade", cause)
	if errors.Is(err, errs.ErrDatabaseConflict) {
		t.Fatalf("a non-conflict error must not be classified as ErrDatabaseConflict")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the original cause to be wrapped, got %v", err)
	}
}

func TestWrapWriteError_Nil(t *testing.T) {
	if err := wrapWriteError("noop", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestNullableString(t *testing.T) {
	if nullableString("") != nil {
		t.Fatalf("expected nil for empty string")
	}
	got := nullableString("boom")
	if got == nil || *got != "boom" {
		t.Fatalf("expected a pointer to %q, got %v", "boom", got)
	}
}
