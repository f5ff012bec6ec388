// Package password provides the slow credential hash (argon2id in PHC string
// format) and the per-policy plaintext complexity validator.
//
// Hashing parameters are fixed at construction and at least as costly as a
// bcrypt cost factor of 12. Complexity rules (minimum length, character
// classes) are policy-driven and validated before hashing ever runs.
package password
