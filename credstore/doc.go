// Package credstore is the Redis-backed implementation of the authgrid
// CredentialStore contract.
//
// Principal records are JSON blobs addressed by ID; identity uniqueness is
// enforced through per-scope index keys (email and username, lowercased), so
// the same email can exist once per project and once at platform scope.
// Creation runs as a Lua script: both index checks and the writes commit
// atomically or not at all. Principals are tombstoned, never hard-deleted —
// the blob survives with its indexes removed, so lookups miss but the record
// remains for audit.
package credstore
