package devserver

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config controls a [Server]. Zero values take the defaults noted per field.
type Config struct {
	// Redis holds refresh sessions and login counters. Required.
	Redis redis.UniversalClient
	// KeyPrefix namespaces every redis key. Default "devserver".
	KeyPrefix string

	// SigningKey is the HS256 key for access tokens. Default: 32 random bytes.
	SigningKey []byte
	// AccessTTL defaults to 5 minutes, RefreshTTL to 24 hours.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RotateRefresh makes the refresh endpoint return a new refresh token and
	// retire the presented one.
	RotateRefresh bool
	// RefreshLatency delays every refresh response.
	RefreshLatency time.Duration

	// MaxLoginAttempts failed logins per email within LoginCooldown are allowed
	// before the endpoint answers 429. Defaults 5 and 15 minutes.
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	// MaxRefreshCalls per session within RefreshWindow; 0 disables the limit.
	MaxRefreshCalls int
	RefreshWindow   time.Duration

	// PageSize of every list endpoint. Default 10.
	PageSize int

	Logger *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.Redis == nil {
		return c, errors.New("devserver: redis client required")
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "devserver"
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 5 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 24 * time.Hour
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = 5
	}
	if c.LoginCooldown <= 0 {
		c.LoginCooldown = 15 * time.Minute
	}
	if c.RefreshWindow <= 0 {
		c.RefreshWindow = time.Minute
	}
	if c.PageSize <= 0 {
		c.PageSize = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}
