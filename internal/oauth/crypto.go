package oauth

import (
	"crypto/rand"
	"encoding/base64"
)

const (
	codeBytes     = 32
	tokenBytes    = 48
	secretBytes   = 48
	clientIDBytes = 18
)

// RandomString returns a base64url-encoded random string.
func RandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomID(prefix string) (string, error) {
	id, err := RandomString(clientIDBytes)
	if err != nil {
		return "", err
	}
	return prefix + "_" + id, nil
}
