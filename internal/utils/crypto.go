// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

func GenerateRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

// GenerateOAuthState produces the anti-CSRF state nonce for OAuth
// redirect flows.
func GenerateOAuthState() (string, error) {
	return GenerateRandomString(32)
}

// GenerateRunToken produces the short-lived token handed out by the
// run-app endpoint.
func GenerateRunToken() (string, error) {
	randomPart, err := GenerateRandomString(32)
	if err != nil {
		return "", err
	}
	return "run_" + randomPart, nil
}

func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}
