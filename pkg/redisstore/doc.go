// Package redisstore implements the storage contract on Redis.
//
// Sessions are hashes so the rotation script can inspect fields without
// JSON parsing; users, accounts, verifications and organizations are JSON
// strings with secondary index keys for the unique lookups. The atomic
// operations the contract demands run as Lua scripts (session rotation)
// or single commands (GETDEL for verification consumption), so concurrent
// callers race inside Redis rather than in the client.
package redisstore
