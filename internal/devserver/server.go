package devserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ecochallenge/ecoauth/internal/rate"
	"github.com/ecochallenge/ecoauth/jwt"
	"github.com/ecochallenge/ecoauth/middleware"
	"github.com/ecochallenge/ecoauth/password"
)

var errStaleGeneration = errors.New("access token generation revoked")

// Server is the reference backend. It is safe for concurrent use.
type Server struct {
	config   Config
	logger   *slog.Logger
	tokens   *jwt.Manager
	users    *userStore
	sessions *sessionStore
	limiter  *rate.Limiter
	catalog  *catalog
	router   chi.Router

	generation     atomic.Int64
	refreshCalls   atomic.Int64
	resetRequests  atomic.Int64
	rotate         atomic.Bool
	refreshLatency atomic.Int64
}

// New builds a Server from cfg.
func New(cfg Config) (*Server, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = make([]byte, 32)
		if _, err := rand.Read(cfg.SigningKey); err != nil {
			return nil, fmt.Errorf("devserver: signing key: %w", err)
		}
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.SigningKey,
		Issuer:        "ecochallenge-devserver",
	})
	if err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}
	hasher, err := password.New(password.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger.With("component", "devserver"),
		tokens: tokens,
		users:  newUserStore(hasher),
		sessions: &sessionStore{
			redis:  cfg.Redis,
			prefix: cfg.KeyPrefix,
			ttl:    cfg.RefreshTTL,
		},
		limiter: rate.New(cfg.Redis, rate.Config{
			Prefix:           cfg.KeyPrefix + ":rl",
			EnableIPThrottle: false,
			MaxLoginAttempts: cfg.MaxLoginAttempts,
			LoginCooldown:    cfg.LoginCooldown,
			MaxRefreshCalls:  cfg.MaxRefreshCalls,
			RefreshWindow:    cfg.RefreshWindow,
		}),
		catalog: newCatalog(),
	}
	s.generation.Store(1)
	s.rotate.Store(cfg.RotateRefresh)
	s.refreshLatency.Store(int64(cfg.RefreshLatency))
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer, s.logRequests)

	r.Post("/api/auth/login/", s.handleLogin)
	r.Post("/api/auth/register/", s.handleRegister)
	r.Post("/api/auth/password/reset/", s.handlePasswordReset)
	r.Post("/api/token/refresh/", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(middleware.VerifierFunc(s.VerifyAccess)))

		r.Get("/api/auth/test-protected/", s.handleProtected)
		r.Get("/api/user/me/", s.handleProfile)
		r.Patch("/api/user/me/", s.handleUpdateProfile)

		r.Get("/api/v1/goals/goals/", s.handleListGoals)
		r.Post("/api/v1/goals/goals/", s.handleCreateGoal)
		r.Get("/api/v1/goals/templates/", s.handleListTemplates)
		r.Get("/api/v1/waste/logs/", s.handleListLogs)
		r.Post("/api/v1/waste/logs/", s.handleCreateLog)
		r.Get("/api/v1/waste/subcategories/", s.handleListSubcategories)

		r.With(middleware.RequireRole("admin")).Get("/api/admin/stats/", s.handleAdminStats)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method \"%s\" not allowed.", r.Method))
	})
	return r
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler { return s.router }

// VerifyAccess validates an access token issued by this server. Tokens minted
// before the last [Server.ExpireAccessTokens] call are rejected.
func (s *Server) VerifyAccess(_ context.Context, token string) (*jwt.AccessClaims, error) {
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return nil, err
	}
	if claims.Generation != s.generation.Load() {
		return nil, errStaleGeneration
	}
	return claims, nil
}

// CreateUser seeds an account. An empty role means "user".
func (s *Server) CreateUser(username, email, plain, role string) (User, error) {
	return s.users.create(username, email, plain, role)
}

// IssueAccess mints an access token for an existing user.
func (s *Server) IssueAccess(userID int) (string, error) {
	u, ok := s.users.get(userID)
	if !ok {
		return "", fmt.Errorf("devserver: unknown user %d", userID)
	}
	return s.issueAccess(u)
}

func (s *Server) issueAccess(u User) (string, error) {
	return s.tokens.CreateAccess(strconv.Itoa(u.ID), u.Email, u.Role, s.generation.Load())
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.generation.Add(1)
	s.logger.Info("access tokens expired", "generation", s.generation.Load())
}

// RevokeRefreshTokens ends every refresh session and returns how many were open.
func (s *Server) RevokeRefreshTokens(ctx context.Context) (int, error) {
	n, err := s.sessions.RevokeAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("refresh sessions revoked", "count", n)
	return n, nil
}

// RefreshCalls counts requests to the refresh endpoint, including rejected ones.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// ResetRequests counts accepted password reset requests for known emails.
func (s *Server) ResetRequests() int64 { return s.resetRequests.Load() }

// SetRotateRefresh toggles refresh-token rotation.
func (s *Server) SetRotateRefresh(on bool) { s.rotate.Store(on) }

// SetRefreshLatency delays every subsequent refresh response by d.
func (s *Server) SetRefreshLatency(d time.Duration) { s.refreshLatency.Store(int64(d)) }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.LogAttrs(r.Context(), slog.LevelDebug, "http",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("dur", time.Since(start)),
			slog.String("request_id", r.Header.Get("X-Request-ID")),
		)
	})
}
