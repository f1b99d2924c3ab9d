// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

// Package postgres implements the auth repositories on PostgreSQL. The
// single-use semantics live in the SQL: consumption is DELETE ... RETURNING
// and supersession is a delete+insert inside one transaction, so concurrent
// callers race on rows, not on application state.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// poolIface is the subset of pgxpool.Pool the repositories use. Tests
// substitute a pgxmock pool.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}
