// Package authkit is an embeddable authentication and authorization engine.
//
// An Engine wires credential verification (password, magic link, OAuth,
// passkeys), session lifecycle, role-based access control and a plugin hook
// pipeline over a pluggable storage adapter, and exposes the whole surface
// as an http.Handler that mounts into any router.
//
// Minimal setup:
//
//	adapter := store.NewMemoryAdapter(time.Minute)
//	engine, err := authkit.New(ctx, adapter)
//	if err != nil { ... }
//	mux.Mount("/auth", engine)
//
// Every optional capability is enabled through options: WithOAuth adds a
// provider, WithPasskeys enables WebAuthn, WithMailer turns on outbound
// email, WithPlugin installs hook plugins, WithRoles configures the
// permission model.
package authkit
