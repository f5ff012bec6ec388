// Package internal provides shared primitives for the authgrid engine:
// cryptographically random identifiers, opaque challenge token encoding
// (challenge ID + secret, base64url), and SHA-256 digests of secrets so that
// storage never holds raw token material.
//
// # What this package must NOT do
//
//   - Be imported outside the authgrid module.
//   - Perform any I/O beyond crypto/rand reads.
package internal
