// Package token issues and verifies the signed compact tokens used by the
// authgrid engine. Access and refresh tokens are HS256 JWTs signed with two
// independent process-wide secrets, so leaking one verification key never
// compromises the other. Both carry the principal ID, a scope tag, an
// optional project ID, the session ID, and an explicit "typ" claim
// ("access"/"refresh") as defense-in-depth against cross-use.
//
// All operations are stateless; session liveness is the engine's concern.
package token
