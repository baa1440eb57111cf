package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ecochallenge/ecoauth"
	"github.com/ecochallenge/ecoauth/credstore"
	"github.com/ecochallenge/ecoauth/internal/devserver"
)

func newSignedInClient(t *testing.T) (*Client, *devserver.Server) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dev, err := devserver.New(devserver.Config{Redis: rdb, PageSize: 2, Logger: logger})
	require.NoError(t, err)
	_, err = dev.CreateUser("ada", "ada@example.com", "correct-horse", "")
	require.NoError(t, err)
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)

	cfg := ecoauth.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Store.Backend = credstore.BackendMemory
	m, err := ecoauth.New().
		WithConfig(cfg).
		WithStore(credstore.NewMemory()).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, err = m.Login(t.Context(), "ada@example.com", "correct-horse")
	require.NoError(t, err)
	return New(m), dev
}

func TestProfileRoundTrip(t *testing.T) {
	c, _ := newSignedInClient(t)
	ctx := t.Context()

	p, err := c.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "ada", p.Username)
	require.True(t, p.NotificationsEnabled)

	city, off := "Bergen", false
	p, err = c.UpdateProfile(ctx, ProfileUpdate{City: &city, NotificationsEnabled: &off})
	require.NoError(t, err)
	require.Equal(t, "Bergen", p.City)
	require.False(t, p.NotificationsEnabled)
}

func TestReferenceListsSpanPages(t *testing.T) {
	c, _ := newSignedInClient(t)
	ctx := t.Context()

	subs, err := c.Subcategories(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 5)
	require.Equal(t, "2.00", subs[0].ScorePerUnit)

	templates, err := c.GoalTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 5)
	require.Equal(t, "Bottle collector", templates[0].Name)
}

func TestGoalsAndWasteLogs(t *testing.T) {
	c, dev := newSignedInClient(t)
	ctx := t.Context()

	goals, err := c.Goals(ctx)
	require.NoError(t, err)
	require.Empty(t, goals)

	goal, err := c.CreateGoal(ctx, NewGoal{Category: 4, Timeframe: "monthly", Target: 10})
	require.NoError(t, err)
	require.Equal(t, "Food scraps", goal.Category.Name)

	for range 3 {
		log, err := c.CreateWasteLog(ctx, NewWasteLog{SubCategory: 4, Quantity: "2.5", DisposalLocation: "Garden"})
		require.NoError(t, err)
		require.Equal(t, "2.50", log.Quantity)
		require.InDelta(t, 2.5, log.Score, 1e-9)
	}

	// Force a refresh in the middle of a multi-page walk.
	dev.ExpireAccessTokens()
	logs, err := c.WasteLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, []int{1, 2, 3}, []int{logs[0].ID, logs[1].ID, logs[2].ID})

	goals, err = c.Goals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.Equal(t, 6, goals[0].Progress)
	require.False(t, goals[0].IsComplete)
	require.EqualValues(t, 1, dev.RefreshCalls())
}

func TestRejectedWriteIsAPIError(t *testing.T) {
	c, _ := newSignedInClient(t)

	_, err := c.CreateGoal(t.Context(), NewGoal{Category: 1, Timeframe: "yearly", Target: 1})
	var apiErr *ecoauth.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, `timeframe: "yearly" is not a valid choice.`, apiErr.Detail)
	require.Equal(t, "create goal", apiErr.Op)
}

type fetcherFunc func(ctx context.Context, path string, opts *ecoauth.RequestOptions) (*ecoauth.Response, error)

func (f fetcherFunc) AuthenticatedFetch(ctx context.Context, path string, opts *ecoauth.RequestOptions) (*ecoauth.Response, error) {
	return f(ctx, path, opts)
}

func TestFetchErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	var seen []string
	c := New(fetcherFunc(func(_ context.Context, path string, opts *ecoauth.RequestOptions) (*ecoauth.Response, error) {
		method := http.MethodGet
		if opts != nil && opts.Method != "" {
			method = opts.Method
		}
		seen = append(seen, method+" "+path)
		return nil, boom
	}))
	ctx := t.Context()

	_, err := c.Profile(ctx)
	require.ErrorIs(t, err, boom)
	_, err = c.WasteLogs(ctx)
	require.ErrorIs(t, err, boom)
	_, err = c.CreateWasteLog(ctx, NewWasteLog{SubCategory: 1, Quantity: "1"})
	require.ErrorIs(t, err, boom)

	require.Equal(t, []string{
		"GET " + PathProfile,
		"GET " + PathWasteLogs,
		"POST " + PathWasteLogs,
	}, seen)
}
