package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm used by [Manager].
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	accessTokenType = "access"
	maxLeeway       = 2 * time.Minute
)

var (
	// ErrNoSigningKey is returned by CreateAccess on a verify-only manager.
	ErrNoSigningKey = errors.New("jwt: manager has no signing key")
	errUnknownKID   = errors.New("jwt: unknown kid")
)

// Config controls token issuance and verification.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// Manager signs and verifies access tokens. Keys are decoded once by
// NewManager; the Manager is safe for concurrent use.
type Manager struct {
	cfg    Config
	method jwt.SigningMethod
	sign   any // nil for a verify-only Ed25519 manager
	verify any
	parser *jwt.Parser
}

// NewManager validates cfg, decodes its keys and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("jwt: access ttl must be positive, got %s", cfg.AccessTTL)
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("jwt: leeway %s outside [0, %s]", cfg.Leeway, maxLeeway)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{cfg: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("jwt: hs256 needs a shared secret in PrivateKey")
		}
		m.method = jwt.SigningMethodHS256
		m.sign, m.verify = cfg.PrivateKey, cfg.PrivateKey
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("jwt: ed25519 needs a public key")
		}
		pub, err := decodeEdPublic(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
		m.verify = pub
		if len(cfg.PrivateKey) > 0 {
			priv, err := decodeEdPrivate(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.sign = priv
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// CreateAccess issues a signed access token. generation lets the issuer
// invalidate every outstanding token at once by bumping its own counter.
func (m *Manager) CreateAccess(userID, email, role string, generation int64) (string, error) {
	if m.sign == nil {
		return "", ErrNoSigningKey
	}
	issued := time.Now()
	claims := AccessClaims{
		UserID:     UserID(userID),
		Email:      email,
		Role:       role,
		TokenType:  accessTokenType,
		Generation: generation,
	}
	claims.Subject = userID
	claims.Issuer = m.cfg.Issuer
	claims.IssuedAt = jwt.NewNumericDate(issued)
	claims.ExpiresAt = jwt.NewNumericDate(issued.Add(m.cfg.AccessTTL))
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	tok := jwt.NewWithClaims(m.method, claims)
	if m.cfg.KeyID != "" {
		tok.Header["kid"] = m.cfg.KeyID
	}
	return tok.SignedString(m.sign)
}

// ParseAccess checks the signature and registered claims of raw and returns
// its payload. Tokens typed as anything other than access are rejected.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := m.parser.ParseWithClaims(raw, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !tok.Valid || (claims.TokenType != "" && claims.TokenType != accessTokenType) {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	if alg := t.Method.Alg(); alg != m.method.Alg() {
		return nil, fmt.Errorf("jwt: unexpected signing algorithm %s", alg)
	}
	if m.cfg.KeyID != "" {
		if kid, _ := t.Header["kid"].(string); kid != m.cfg.KeyID {
			return nil, errUnknownKID
		}
	}
	return m.verify, nil
}

// decodeEdPrivate accepts a raw 64-byte key or a PKCS#8 PEM block.
func decodeEdPrivate(raw []byte) (ed25519.PrivateKey, error) {
	if len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), nil
	}
	k, err := jwt.ParseEdPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("jwt: decode ed25519 private key: %w", err)
	}
	priv, ok := k.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("jwt: private key is %T, not ed25519", k)
	}
	return priv, nil
}

// decodeEdPublic accepts a raw 32-byte key or a PKIX PEM block.
func decodeEdPublic(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	k, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("jwt: decode ed25519 public key: %w", err)
	}
	pub, ok := k.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("jwt: public key is %T, not ed25519", k)
	}
	return pub, nil
}
