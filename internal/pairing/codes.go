package pairing

import (
	"crypto/rand"
	"strings"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// NormalizeCode canonicalizes user-entered invite codes: surrounding
// whitespace is stripped and the code is uppercased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateCode returns a fresh 6-character uppercase alphanumeric
// invite code. The 36^6 code space makes collisions unlikely; codes
// are NOT checked against live rooms, so a collision would silently
// upsert onto the existing room. Known latent defect, kept for
// compatibility with the code-as-primary-key scheme.
func GenerateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
