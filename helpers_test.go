package ecoauth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ecochallenge/ecoauth/credstore"
	"github.com/stretchr/testify/require"
)

// fakeBackend accepts bearer tokens listed in valid and serves a refresh endpoint
// that hands out nextAccess for refreshToken.
type fakeBackend struct {
	srv *httptest.Server

	mu           sync.Mutex
	valid        map[string]bool
	refreshToken string
	nextAccess   string
	rotateTo     string
	headers      []string
	bodies       []string
	requestIDs   []string

	refreshCalls   atomic.Int32
	protectedCalls atomic.Int32
	unauthorized   atomic.Int32

	// refreshHook, when set, replaces the default refresh behaviour.
	refreshHook func(w http.ResponseWriter, r *http.Request)
	// protectedHook, when set, runs before the default protected handler and
	// reports whether it wrote the response.
	protectedHook func(w http.ResponseWriter, r *http.Request) bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		valid:        map[string]bool{},
		refreshToken: "R1",
		nextAccess:   "A2",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/refresh/", b.handleRefresh)
	mux.HandleFunc("/", b.handleProtected)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) accept(tokens ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tok := range tokens {
		b.valid[tok] = true
	}
}

func (b *fakeBackend) revoke(tokens ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tok := range tokens {
		delete(b.valid, tok)
	}
}

func (b *fakeBackend) seenHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.headers...)
}

func (b *fakeBackend) lastBody() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bodies) == 0 {
		return ""
	}
	return b.bodies[len(b.bodies)-1]
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	if b.refreshHook != nil {
		b.refreshHook(w, r)
		return
	}

	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || r.Method != http.MethodPost {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
		return
	}

	b.mu.Lock()
	if body.Refresh != b.refreshToken {
		b.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	b.valid[b.nextAccess] = true
	resp := map[string]string{"access": b.nextAccess}
	if b.rotateTo != "" {
		resp["refresh"] = b.rotateTo
		b.refreshToken = b.rotateTo
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (b *fakeBackend) handleProtected(w http.ResponseWriter, r *http.Request) {
	b.protectedCalls.Add(1)
	data, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.headers = append(b.headers, r.Header.Get("Authorization"))
	b.bodies = append(b.bodies, string(data))
	b.requestIDs = append(b.requestIDs, r.Header.Get("X-Request-ID"))
	b.mu.Unlock()

	if b.protectedHook != nil && b.protectedHook(w, r) {
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	ok := b.valid[token]
	b.mu.Unlock()
	if !ok {
		b.unauthorized.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "token": token})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestManager(t *testing.T, baseURL string, store credstore.Store, mutate ...func(*Builder)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Store.Backend = credstore.BackendMemory
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	b := New().
		WithConfig(cfg).
		WithStore(store).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, fn := range mutate {
		fn(b)
	}
	m, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}
