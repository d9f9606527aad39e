package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	verifierBytes = 64
	stateBytes    = 16
)

// PKCE holds the per-attempt proof key and anti-forgery state.
type PKCE struct {
	Verifier  string
	Challenge string
	State     string
}

func NewPKCE() (*PKCE, error) {
	verifier, err := randomToken(verifierBytes)
	if err != nil {
		return nil, err
	}
	state, err := randomToken(stateBytes)
	if err != nil {
		return nil, err
	}
	return &PKCE{
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
		State:     state,
	}, nil
}

// ChallengeS256 is base64url(SHA-256(verifier)) without padding.
func ChallengeS256(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
