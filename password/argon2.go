package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Lower bounds enforced on both configuration and stored hashes.
const (
	floorMemoryKB    = 8 * 1024
	floorTime        = 1
	floorParallelism = 1
	floorSaltLen     = 16
	floorKeyLen      = 16
)

const phcPrefix = "$argon2id$"

var (
	// ErrTooShort is returned by Hash for passwords under Config.MinLength bytes.
	ErrTooShort = errors.New("password too short")
	// ErrInvalidHash is returned for stored hashes that are not argon2id PHC strings.
	ErrInvalidHash = errors.New("invalid password hash")
)

// Config holds the argon2id cost parameters and the minimum password length.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// DefaultConfig returns the cheapest accepted cost. It backs the development
// server, where login latency matters more than brute-force resistance.
func DefaultConfig() Config {
	return Config{
		Memory:      floorMemoryKB,
		Time:        floorTime,
		Parallelism: floorParallelism,
		SaltLength:  floorSaltLen,
		KeyLength:   32,
		MinLength:   8,
	}
}

// cost is the part of a PHC string that feeds argon2.IDKey.
type cost struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func (c cost) derive(plain string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plain), salt, c.time, c.memory, c.parallelism, keyLen)
}

// weakerThan reports whether any factor of c is below o.
func (c cost) weakerThan(o cost) bool {
	return c.memory < o.memory || c.time < o.time || c.parallelism < o.parallelism
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	cost    cost
	saltLen uint32
	keyLen  uint32
	minLen  int
}

func New(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < floorMemoryKB:
		return nil, fmt.Errorf("password: memory %d KiB below %d", cfg.Memory, floorMemoryKB)
	case cfg.Time < floorTime:
		return nil, errors.New("password: time cost must be at least 1")
	case cfg.Parallelism < floorParallelism:
		return nil, errors.New("password: parallelism must be at least 1")
	case cfg.SaltLength < floorSaltLen:
		return nil, fmt.Errorf("password: salt length %d below %d", cfg.SaltLength, floorSaltLen)
	case cfg.KeyLength < floorKeyLen:
		return nil, fmt.Errorf("password: key length %d below %d", cfg.KeyLength, floorKeyLen)
	case cfg.MinLength < 1:
		return nil, errors.New("password: minimum length must be at least 1")
	}
	return &Hasher{
		cost:    cost{memory: cfg.Memory, time: cfg.Time, parallelism: cfg.Parallelism},
		saltLen: cfg.SaltLength,
		keyLen:  cfg.KeyLength,
		minLen:  cfg.MinLength,
	}, nil
}

// Hash returns a PHC-encoded argon2id hash of the raw password bytes.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) < h.minLen {
		return "", fmt.Errorf("%w: at least %d bytes required", ErrTooShort, h.minLen)
	}
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	key := h.cost.derive(plain, salt, h.keyLen)

	b64 := base64.RawStdEncoding
	var sb strings.Builder
	sb.WriteString(phcPrefix)
	fmt.Fprintf(&sb, "v=%d$m=%d,t=%d,p=%d$", argon2.Version, h.cost.memory, h.cost.time, h.cost.parallelism)
	sb.WriteString(b64.EncodeToString(salt))
	sb.WriteByte('$')
	sb.WriteString(b64.EncodeToString(key))
	return sb.String(), nil
}

// Verify reports whether plain matches encoded, using the cost recorded in
// encoded rather than the Hasher's own.
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	c, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := c.derive(plain, salt, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with a weaker cost or a
// different key length than the Hasher's.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	c, _, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return c.weakerThan(h.cost) || uint32(len(key)) != h.keyLen, nil
}

// decode splits "$argon2id$v=19$m=..,t=..,p=..$salt$key".
func decode(encoded string) (cost, []byte, []byte, error) {
	var c cost
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return c, nil, nil, ErrInvalidHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return c, nil, nil, ErrInvalidHash
	}
	if fields[0] != "v="+strconv.Itoa(argon2.Version) {
		return c, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, fields[0])
	}
	if err := c.parse(fields[1]); err != nil {
		return c, nil, nil, err
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(fields[2])
	if err != nil || len(salt) < floorSaltLen {
		return c, nil, nil, fmt.Errorf("%w: bad salt", ErrInvalidHash)
	}
	key, err := b64.DecodeString(fields[3])
	if err != nil || len(key) == 0 {
		return c, nil, nil, fmt.Errorf("%w: bad key", ErrInvalidHash)
	}
	return c, salt, key, nil
}

// parse reads exactly the m, t and p parameters, each at or above its floor.
func (c *cost) parse(s string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(s, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return fmt.Errorf("%w: bad parameter %q", ErrInvalidHash, pair)
		}
		seen[name] = true

		var bits int
		var floor uint64
		switch name {
		case "m":
			bits, floor = 32, floorMemoryKB
		case "t":
			bits, floor = 32, floorTime
		case "p":
			bits, floor = 8, floorParallelism
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidHash, name)
		}
		n, err := strconv.ParseUint(raw, 10, bits)
		if err != nil || n < floor {
			return fmt.Errorf("%w: parameter %s=%q out of range", ErrInvalidHash, name, raw)
		}
		switch name {
		case "m":
			c.memory = uint32(n)
		case "t":
			c.time = uint32(n)
		case "p":
			c.parallelism = uint8(n)
		}
	}
	if len(seen) != 3 {
		return fmt.Errorf("%w: missing parameters", ErrInvalidHash)
	}
	return nil
}
