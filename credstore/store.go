package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("credential not found")

// ErrUnavailable wraps failures of the backing store.
var ErrUnavailable = errors.New("credential store unavailable")

// Store is a scoped key-value view over a persistent, private backend.
//
// Set writes every entry of values as one unit: a concurrent reader observes either
// all of the old values or all of the new ones. Delete removes every named key and
// succeeds when a key is already absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Backend names accepted by [Open].
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config selects and parameterizes a backend for [Open].
type Config struct {
	Backend     string        `yaml:"backend" env:"ECOAUTH_STORE_BACKEND"`
	FilePath    string        `yaml:"file_path" env:"ECOAUTH_STORE_FILE"`
	RedisAddr   string        `yaml:"redis_addr" env:"ECOAUTH_STORE_REDIS_ADDR"`
	RedisDB     int           `yaml:"redis_db" env:"ECOAUTH_STORE_REDIS_DB"`
	RedisPrefix string        `yaml:"redis_prefix" env:"ECOAUTH_STORE_REDIS_PREFIX"`
	RedisTTL    time.Duration `yaml:"redis_ttl" env:"ECOAUTH_STORE_REDIS_TTL"`
}

// Open builds the backend named by cfg.Backend. The returned close function releases
// backend resources and is never nil.
func Open(cfg Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendMemory:
		return NewMemory(), noop, nil
	case BackendFile, "":
		path := cfg.FilePath
		if path == "" {
			p, err := DefaultFilePath()
			if err != nil {
				return nil, noop, err
			}
			path = p
		}
		return NewFile(path), noop, nil
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, noop, errors.New("credstore: redis backend requires an address")
		}
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		return NewRedis(client, cfg.RedisPrefix, cfg.RedisTTL), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("credstore: unknown backend %q", cfg.Backend)
	}
}
