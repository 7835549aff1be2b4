package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// DefaultVerifierLength is the verifier length used for the admin handshake.
	DefaultVerifierLength = 64

	// ChallengeMethod is the only PKCE method the gateway uses.
	ChallengeMethod = "S256"

	verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// bytes at or above this are rejected so every alphabet index is equally likely
const maxUnbiased = 256 - (256 % len(verifierAlphabet))

var randRead = rand.Read

// PKCE is a code verifier and its S256 challenge.
//
// The verifier is held by the caller across the authorization redirect; the gateway never stores it.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE generates a verifier of [DefaultVerifierLength] and derives its challenge.
func NewPKCE() (*PKCE, error) {
	verifier, err := GenerateVerifier(DefaultVerifierLength)
	if err != nil {
		return nil, err
	}
	return &PKCE{Verifier: verifier, Challenge: DeriveChallenge(verifier), Method: ChallengeMethod}, nil
}

// GenerateVerifier returns a random alphanumeric string of the given length (43-128 per RFC 7636).
// A non-positive length uses [DefaultVerifierLength].
func GenerateVerifier(length int) (string, error) {
	if length <= 0 {
		length = DefaultVerifierLength
	}
	if length < 43 || length > 128 {
		return "", fmt.Errorf("verifier length must be between 43 and 128, got %d", length)
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := randRead(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, verifierAlphabet[int(b)%len(verifierAlphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}

// DeriveChallenge returns base64url(sha256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
