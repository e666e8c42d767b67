// Package credential verifies authentication factors and produces
// authenticated identities.
//
// Four methods are supported, each as its own service over narrow storage
// interfaces:
//
//   - Password: bcrypt by default, swappable through the Hasher contract.
//     Comparison is timing-safe and failures are reported as the generic
//     ErrInvalidCredentials so callers cannot distinguish a missing user
//     from a wrong password.
//   - Magic link: passwordless email sign-in backed by single-use
//     Verification records. Redemption is atomic at the storage boundary, so
//     a link can never be redeemed twice, raced or not.
//   - OAuth: authorization-code exchange through provider adapters (Google
//     and GitHub ship in the box), with configurable policy for linking a
//     provider identity that collides with an existing account.
//   - Passkey: WebAuthn registration and assertion, with the challenge state
//     held as a single-use Verification record.
//
// Successful verification never creates a session. Services return the
// authenticated *store.User and leave session issuance to the engine,
// keeping verification pure.
package credential
