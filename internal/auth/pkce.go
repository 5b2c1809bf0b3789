package auth

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

// pkcePair binds an authorization code to a locally generated secret.
type pkcePair struct {
	Verifier  string
	Challenge string
}

// newPKCE returns a verifier of 32 random bytes and its S256 challenge, both base64url encoded.
func newPKCE() pkcePair {
	verifier := oauth2.GenerateVerifier()
	return pkcePair{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}

// randomToken returns size random bytes, base64url encoded. Used for the CSRF state.
func randomToken(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
