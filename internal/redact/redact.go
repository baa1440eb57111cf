// Package redact masks credentials and personal data before they reach logs or audit sinks.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Email keeps the first two runes of the local part and the full domain.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := []rune(parts[0]), parts[1]
	if len(local) > 2 {
		return string(local[:2]) + "***@" + domain
	}
	return "***@" + domain
}

// Token returns a stable short fingerprint so log lines can be correlated without
// revealing the secret. An empty token renders as "none".
func Token(token string) string {
	if token == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:4])
}

func Password() string { return "[REDACTED_PASSWORD]" }
