// Package session manages the lifecycle of authenticated sessions: creation,
// validation, refresh with optional token rotation, and revocation.
//
// A session moves through a fixed state machine:
//
//	created -> active -> (refreshed*) -> revoked | expired
//
// revoked and expired are terminal. Validation triggers passive expiry: a
// session read past its expiry is lazily marked revoked, which is idempotent
// even when raced.
//
// Token rotation is delegated to the storage adapter's atomic RotateSession
// primitive, so that two refresh calls racing on one token produce exactly
// one winner; the loser observes ErrSessionRevoked. The manager never relies
// on in-process locking for this invariant because deployments may run many
// engine instances against one shared store.
//
// Transports define how tokens travel between client and server. The cookie
// transport (HttpOnly, SameSite=Lax) is the default; the header transport
// reads "Authorization: Bearer" tokens; the composite transport chains both.
//
// # Usage
//
//	manager := session.NewManager(adapter,
//	    session.WithConfig(session.Config{TTL: 7 * 24 * time.Hour, RotateOnRefresh: true}),
//	)
//
//	sess, err := manager.Create(ctx, userID)
//	sess, err = manager.Validate(ctx, sess.Token)
//	sess, err = manager.Refresh(ctx, sess.Token) // new token if rotation is on
//	err = manager.Revoke(ctx, sess.Token)        // idempotent
package session
