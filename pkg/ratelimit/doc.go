// Package ratelimit implements token bucket rate limiting for
// authentication endpoints.
//
// A Bucket limits by arbitrary string key, typically the client IP or the
// target identifier of a credential attempt. State lives behind the Store
// interface; NewMemoryStore covers single-process deployments.
package ratelimit
