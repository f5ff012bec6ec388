package authgrid

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// API key prefixes. Publishable keys identify a project from browser code;
// secret keys authorize server-side project administration. Both resolve
// through the ProjectDirectory; only the hash of a key is ever stored.
const (
	apiKeyPublishablePrefix = "pk_"
	apiKeySecretPrefix      = "sk_"
	apiKeyEntropyBytes      = 24
)

// APIKeyPair is one generated publishable/secret key pair. The raw keys are
// shown once at generation; afterwards only their hashes exist.
type APIKeyPair struct {
	Publishable string
	Secret      string
}

// GenerateAPIKeyPair mints a fresh key pair for a project.
func GenerateAPIKeyPair() (APIKeyPair, error) {
	pub, err := generateAPIKey(apiKeyPublishablePrefix)
	if err != nil {
		return APIKeyPair{}, err
	}
	sec, err := generateAPIKey(apiKeySecretPrefix)
	if err != nil {
		return APIKeyPair{}, err
	}
	return APIKeyPair{Publishable: pub, Secret: sec}, nil
}

func generateAPIKey(prefix string) (string, error) {
	raw := make([]byte, apiKeyEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// IsSecretKey reports whether the key carries the secret prefix. Operations
// that mutate project state must reject publishable keys before lookup.
func IsSecretKey(apiKey string) bool {
	return strings.HasPrefix(apiKey, apiKeySecretPrefix)
}

// IsPublishableKey reports whether the key carries the publishable prefix.
func IsPublishableKey(apiKey string) bool {
	return strings.HasPrefix(apiKey, apiKeyPublishablePrefix)
}
