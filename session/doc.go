// Package session is the Redis-backed registry of live refresh-token grants.
//
// Each principal owns an ordered list of sessions (most-recent-last). Adding
// a session beyond the policy's cap evicts the oldest entries — FIFO, not
// LRU: refreshing an old session does not move it in the list. Session
// records store only the SHA-256 of the refresh token, never the token.
//
// # What this package must NOT do
//
//   - Verify token signatures; that is the token package's job.
//   - Apply policy beyond the eviction cap passed in by the engine.
package session
