package credstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name  string
	setup func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{
			name:  "memory",
			setup: func(t *testing.T) Store { return NewMemory() },
		},
		{
			name: "file",
			setup: func(t *testing.T) Store {
				return NewFile(filepath.Join(t.TempDir(), "nested", "credentials.json"))
			},
		},
		{
			name: "redis",
			setup: func(t *testing.T) Store {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return NewRedis(rdb, "test", 0)
			},
		},
	}
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.setup(t)

			_, err := s.Get(ctx, "accessToken")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, map[string]string{
				"accessToken":  "A1",
				"refreshToken": "R1",
			}))

			v, err := s.Get(ctx, "accessToken")
			require.NoError(t, err)
			require.Equal(t, "A1", v)

			v, err = s.Get(ctx, "refreshToken")
			require.NoError(t, err)
			require.Equal(t, "R1", v)

			require.NoError(t, s.Set(ctx, map[string]string{"accessToken": "A2"}))
			v, err = s.Get(ctx, "accessToken")
			require.NoError(t, err)
			require.Equal(t, "A2", v)

			require.NoError(t, s.Delete(ctx, "accessToken", "refreshToken"))
			_, err = s.Get(ctx, "accessToken")
			require.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get(ctx, "refreshToken")
			require.ErrorIs(t, err, ErrNotFound)

			// deleting absent keys is not an error
			require.NoError(t, s.Delete(ctx, "accessToken"))
		})
	}
}

func TestStoreConcurrentPairWritesNeverTear(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.setup(t)
			require.NoError(t, s.Set(ctx, map[string]string{"a": "0", "b": "0"}))

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					v := string(rune('0' + n))
					_ = s.Set(ctx, map[string]string{"a": v, "b": v})
				}(i)
			}
			wg.Wait()

			a, err := s.Get(ctx, "a")
			require.NoError(t, err)
			bv, err := s.Get(ctx, "b")
			require.NoError(t, err)
			require.Equal(t, a, bv)
		})
	}
}

func TestFileIsOwnerOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := NewFile(path)
	require.NoError(t, s.Set(context.Background(), map[string]string{"k": "v"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileCorruptDocumentIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFile(path).Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisTTLApplied(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedis(rdb, "", time.Minute)
	require.NoError(t, s.Set(context.Background(), map[string]string{"accessToken": "A1"}))

	require.True(t, mr.Exists("ecoauth:cred:accessToken"))
	require.Equal(t, time.Minute, mr.TTL("ecoauth:cred:accessToken"))
}

func TestRedisUnavailableWrapsError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, err := NewRedis(rdb, "x", 0).Get(context.Background(), "k")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestOpenBackends(t *testing.T) {
	s, closeFn, err := Open(Config{Backend: "memory"})
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)
	require.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "c.json")
	s, _, err = Open(Config{Backend: "file", FilePath: path})
	require.NoError(t, err)
	require.Equal(t, path, s.(*File).Path())

	_, _, err = Open(Config{Backend: "redis"})
	require.Error(t, err)

	_, _, err = Open(Config{Backend: "etcd"})
	require.Error(t, err)
}
