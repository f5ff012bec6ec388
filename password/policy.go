package password

import "unicode"

// Rules are the policy-driven plaintext requirements checked before hashing.
type Rules struct {
	MinLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	RequireSpecialChars bool
}

// CheckRules reports whether the plaintext satisfies the rules. A MinLength
// below 1 is treated as 1: empty passwords never pass.
func CheckRules(plaintext string, rules Rules) bool {
	minLength := rules.MinLength
	if minLength < 1 {
		minLength = 1
	}
	if len([]rune(plaintext)) < minLength {
		return false
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if rules.RequireUppercase && !hasUpper {
		return false
	}
	if rules.RequireLowercase && !hasLower {
		return false
	}
	if rules.RequireNumbers && !hasNumber {
		return false
	}
	if rules.RequireSpecialChars && !hasSpecial {
		return false
	}

	return true
}
