// Package lockout implements the failed-attempt lockout state machine,
// parameterized per project policy and backed by Redis.
//
// # State machine
//
// Unlocked(attempts) -> Locked(until) -> Unlocked(0). The failure transition
// runs as a single Lua script so that two concurrent failed logins for the
// same principal can never both observe attempts=N and both write N+1, and
// so that the restart-at-1 transition after an expired lock executes exactly
// once per observing request.
//
// # What this package must NOT do
//
//   - Check account status or passwords; those gates belong to the engine.
//   - Be imported outside the authgrid module.
package lockout
