package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

var b64 = base64.RawURLEncoding

// SessionID identifies one refresh session on the development backend.
type SessionID [16]byte

// RefreshSecret is the unguessable half of an opaque refresh token. Only its
// SHA-256 is stored server side.
type RefreshSecret [32]byte

// refresh tokens are base64url(sid || secret)
const refreshTokenLen = len(SessionID{}) + len(RefreshSecret{})

func fill(dst []byte, what string) error {
	if _, err := rand.Read(dst); err != nil {
		return fmt.Errorf("generate %s: %w", what, err)
	}
	return nil
}

func NewSessionID() (sid SessionID, err error) {
	err = fill(sid[:], "session id")
	return sid, err
}

func (s SessionID) String() string { return b64.EncodeToString(s[:]) }

func ParseSessionID(s string) (SessionID, error) {
	var sid SessionID
	raw, err := b64.DecodeString(s)
	if err != nil {
		return sid, fmt.Errorf("session id: %w", err)
	}
	if len(raw) != len(sid) {
		return sid, fmt.Errorf("session id: %d bytes, want %d", len(raw), len(sid))
	}
	copy(sid[:], raw)
	return sid, nil
}

func NewRefreshSecret() (secret RefreshSecret, err error) {
	err = fill(secret[:], "refresh secret")
	return secret, err
}

func (s RefreshSecret) Hash() [32]byte { return sha256.Sum256(s[:]) }

// EncodeRefreshToken packs the session id and secret into one string.
func EncodeRefreshToken(sid SessionID, secret RefreshSecret) string {
	raw := make([]byte, 0, refreshTokenLen)
	raw = append(raw, sid[:]...)
	raw = append(raw, secret[:]...)
	return b64.EncodeToString(raw)
}

// DecodeRefreshToken is the inverse of EncodeRefreshToken.
func DecodeRefreshToken(token string) (sid SessionID, secret RefreshSecret, err error) {
	raw, err := b64.DecodeString(token)
	if err != nil {
		return sid, secret, fmt.Errorf("refresh token: %w", err)
	}
	if len(raw) != refreshTokenLen {
		return sid, secret, fmt.Errorf("refresh token: %d bytes, want %d", len(raw), refreshTokenLen)
	}
	n := copy(sid[:], raw)
	copy(secret[:], raw[n:])
	return sid, secret, nil
}

// NewResetToken returns a password-reset token and the hash to store for it.
func NewResetToken() (token string, hash [32]byte, err error) {
	var secret [32]byte
	if err = fill(secret[:], "reset token"); err != nil {
		return "", hash, err
	}
	return b64.EncodeToString(secret[:]), sha256.Sum256(secret[:]), nil
}
