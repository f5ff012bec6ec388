// Package authgrid implements the credential and session lifecycle engine for
// a multi-tenant authentication backend: platform accounts and project-scoped
// end-user accounts share one unified Principal model, parameterized by Scope.
//
// The engine issues signed access/refresh token pairs, enforces per-project
// authentication policy (signup gating, password complexity, email
// verification, failed-attempt lockout, bounded concurrent sessions), and
// exposes the full account lifecycle: signup, login, refresh, logout,
// password change and reset, email verification, and profile access.
//
// # Architecture boundaries
//
// authgrid is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore], [ProjectDirectory], and [Mailer] collaborator
// interfaces, and value types. Storage layouts, atomic lockout scripts, and
// token encoding live in sub-packages and internal/ and are not part of the
// API contract.
//
// # What this package must NOT do
//
//   - Expose Redis clients, key layouts, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Map typed errors to transport concerns; HTTP/CLI shells own that mapping.
//
// # Concurrency contract
//
// Engine methods are safe for concurrent use after [Builder.Build]. Per-
// principal mutations (attempt counters, session lists) are applied atomically
// at the storage layer, never read-modify-write in process memory.
package authgrid
