package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. A zero limit disables the
// matching check.
type Config struct {
	Prefix           string
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxRefreshCalls  int
	RefreshWindow    time.Duration
}

// hitScript increments a fixed-window counter and arms its expiry on the
// first hit, in one round trip.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Limiter keeps fixed-window counters in redis: failed logins per email and,
// optionally, per client IP, plus refresh calls per session.
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

// New creates a Limiter. Keys live under cfg.Prefix, "rl" by default.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{rdb: rdb, cfg: cfg}
}

// CheckLogin returns ErrRateLimited when the email, or the IP with IP
// throttling on, has no failed attempts left in the current window.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l.cfg.MaxLoginAttempts <= 0 {
		return nil
	}
	for _, key := range l.loginKeys(identifier, ip) {
		n, err := l.read(ctx, key)
		if err != nil {
			return err
		}
		if n >= int64(l.cfg.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin records one failed attempt. It returns ErrRateLimited once a
// counter goes past the budget.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if l.cfg.MaxLoginAttempts <= 0 {
		return nil
	}
	var limited bool
	for _, key := range l.loginKeys(identifier, ip) {
		n, err := l.hit(ctx, key, l.cfg.LoginCooldown)
		if err != nil {
			return err
		}
		limited = limited || n > int64(l.cfg.MaxLoginAttempts)
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin forgets failed attempts after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	if err := l.rdb.Del(ctx, l.loginKeys(identifier, ip)...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// CheckRefresh spends one refresh call from the session's window.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	if l.cfg.MaxRefreshCalls <= 0 {
		return nil
	}
	n, err := l.hit(ctx, l.key("refresh", sessionID), l.cfg.RefreshWindow)
	if err != nil {
		return err
	}
	if n > int64(l.cfg.MaxRefreshCalls) {
		return ErrRateLimited
	}
	return nil
}

// LoginAttempts returns the failed-login count recorded for an email.
func (l *Limiter) LoginAttempts(ctx context.Context, identifier string) (int, error) {
	n, err := l.read(ctx, l.key("login", normalizeIdentifier(identifier)))
	if err != nil {
		return 0, err
	}
	return int(max(n, 0)), nil
}

func (l *Limiter) loginKeys(identifier, ip string) []string {
	keys := []string{l.key("login", normalizeIdentifier(identifier))}
	if l.cfg.EnableIPThrottle && ip != "" {
		keys = append(keys, l.key("login-ip", ip))
	}
	return keys
}

func (l *Limiter) key(kind, id string) string {
	return l.cfg.Prefix + ":" + kind + ":" + id
}

func (l *Limiter) read(ctx context.Context, key string) (int64, error) {
	n, err := l.rdb.Get(ctx, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, unavailable(err)
	}
	return n, nil
}

func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := hitScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}
