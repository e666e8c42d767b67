// Package store defines the persistence contract the authkit engine runs against.
//
// The engine never talks to a database directly. Every entity it owns (User,
// Account, Session, Verification, Organization, Member) is read and written
// through the narrow per-entity interfaces declared here, and services depend
// only on the slice of the contract they actually use. The composite Adapter
// interface is what a backend implementation provides.
//
// Two operations carry atomicity requirements beyond plain CRUD:
//
//   - RotateSession must replace a session token in a single indivisible step,
//     so that concurrent refreshes of the same token have exactly one winner.
//   - ConsumeVerification must check-and-delete in a single indivisible step,
//     so that a verification token can never be redeemed twice.
//
// Backends that cannot express a conditional update natively (e.g. a plain
// key/value store) must serialize these operations themselves. The in-memory
// adapter in this package satisfies the contract under a mutex and is the
// default backend for tests and local development.
//
// # Usage
//
//	adapter := store.NewMemoryAdapter(5 * time.Minute)
//	defer adapter.Close()
//
//	user := &store.User{ID: uuid.New(), Email: "user@example.com"}
//	if err := adapter.CreateUser(ctx, user); err != nil {
//	    // store.ErrConflict if the email is taken
//	}
//
// External adapters (Redis, Postgres) live in sibling packages and implement
// the same contract.
package store
