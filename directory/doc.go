// Package directory is the Redis-backed implementation of the authgrid
// ProjectDirectory contract.
//
// Projects are JSON blobs addressed by ID. API keys are never stored; the
// directory indexes the SHA-256 of each key, so a dump of the backing store
// cannot be replayed against the API.
package directory
