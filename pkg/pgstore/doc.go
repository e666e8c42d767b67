// Package pgstore implements the storage contract on PostgreSQL via pgx.
//
// The atomic operations lean on Postgres itself: session rotation is one
// conditional UPDATE with RETURNING, verification consumption is one DELETE
// with RETURNING, and the uniqueness invariants are unique constraints.
// Migrations are embedded and applied with goose.
package pgstore
