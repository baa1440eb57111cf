package devserver

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ecochallenge/ecoauth/internal"
	"github.com/ecochallenge/ecoauth/internal/rate"
	"github.com/ecochallenge/ecoauth/middleware"
	"github.com/ecochallenge/ecoauth/password"
)

const (
	detailThrottled    = "Request was throttled."
	detailTokenInvalid = "Token is invalid or expired"
	detailUnavailable  = "Service temporarily unavailable, try again later."
	fieldRequired      = "This field is required."
	maxRequestBody     = 1 << 20
	resetTokenTTL      = time.Hour
)

/*
====================================
RENDERING
====================================
*/

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusBadRequest, fields)
}

// decodeBody reads a JSON object into v. Malformed input is answered with 400
// and false is returned.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

/*
====================================
AUTH
====================================
*/

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Refresh  string `json:"refresh"`
	Access   string `json:"access"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decodeBody(w, r, &in) {
		return
	}
	fields := map[string][]string{}
	if strings.TrimSpace(in.Email) == "" {
		fields["email"] = []string{fieldRequired}
	}
	if in.Password == "" {
		fields["password"] = []string{fieldRequired}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	ctx := r.Context()
	ip := clientIP(r)
	if err := s.limiter.CheckLogin(ctx, in.Email, ip); err != nil {
		s.writeLimiterError(w, err)
		return
	}

	u, err := s.users.authenticate(in.Email, in.Password)
	if err != nil {
		if errors.Is(err, errBadLogin) {
			if err := s.limiter.IncrementLogin(ctx, in.Email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
				s.logger.Warn("login counter", "error", err)
			}
			writeDetail(w, http.StatusUnauthorized, errBadLogin.Error())
			return
		}
		s.logger.Error("authenticate", "error", err)
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	if err := s.limiter.ResetLogin(ctx, in.Email, ip); err != nil {
		s.logger.Warn("login counter reset", "error", err)
	}

	refresh, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		s.logger.Error("create session", "error", err)
		writeDetail(w, http.StatusServiceUnavailable, detailUnavailable)
		return
	}
	access, err := s.issueAccess(u)
	if err != nil {
		s.logger.Error("issue access", "error", err)
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Refresh:  refresh,
		Access:   access,
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	})
}

type registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registration
	if !decodeBody(w, r, &in) {
		return
	}

	fields := map[string][]string{}
	if strings.TrimSpace(in.Username) == "" {
		fields["username"] = []string{fieldRequired}
	}
	if strings.TrimSpace(in.Email) == "" {
		fields["email"] = []string{fieldRequired}
	} else if !strings.Contains(in.Email, "@") {
		fields["email"] = []string{"Enter a valid email address."}
	}
	if in.Password == "" {
		fields["password"] = []string{fieldRequired}
	} else if in.Password != in.Password2 {
		fields["password"] = []string{"Password fields didn't match."}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	u, err := s.users.create(in.Username, in.Email, in.Password, "")
	switch {
	case err == nil:
	case errors.Is(err, errEmailTaken):
		writeFieldErrors(w, map[string][]string{"email": {err.Error()}})
		return
	case errors.Is(err, errUsernameTaken):
		writeFieldErrors(w, map[string][]string{"username": {err.Error()}})
		return
	case errors.Is(err, password.ErrTooShort):
		writeFieldErrors(w, map[string][]string{"password": {"This password is too short. It must contain at least 8 characters."}})
		return
	default:
		s.logger.Error("register", "error", err)
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}

	s.logger.Info("user registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"username": u.Username, "email": u.Email})
}

// handlePasswordReset always answers 200 so the endpoint does not reveal which
// emails have accounts. Known emails get a hashed reset token in redis.
func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Email) == "" {
		writeFieldErrors(w, map[string][]string{"email": {fieldRequired}})
		return
	}

	if s.users.exists(in.Email) {
		_, hash, err := internal.NewResetToken()
		if err != nil {
			s.logger.Error("reset token", "error", err)
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}
		key := s.config.KeyPrefix + ":reset:" + hex.EncodeToString(hash[:])
		if err := s.config.Redis.Set(r.Context(), key, normalizeEmail(in.Email), resetTokenTTL).Err(); err != nil {
			s.logger.Error("store reset token", "error", err)
			writeDetail(w, http.StatusServiceUnavailable, detailUnavailable)
			return
		}
		s.resetRequests.Add(1)
	}
	writeDetail(w, http.StatusOK, "Password reset e-mail has been sent.")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if !s.sleep(r.Context(), time.Duration(s.refreshLatency.Load())) {
		return
	}

	var in struct {
		Refresh string `json:"refresh"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Refresh == "" {
		writeFieldErrors(w, map[string][]string{"refresh": {fieldRequired}})
		return
	}

	ctx := r.Context()
	if sid, _, err := internal.DecodeRefreshToken(in.Refresh); err == nil {
		if err := s.limiter.CheckRefresh(ctx, sid.String()); err != nil {
			s.writeLimiterError(w, err)
			return
		}
	}

	rotate := s.rotate.Load()
	userID, next, err := s.sessions.Use(ctx, in.Refresh, rotate)
	if err != nil {
		if errors.Is(err, errRedisUnavailable) {
			s.logger.Error("refresh session", "error", err)
			writeDetail(w, http.StatusServiceUnavailable, detailUnavailable)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": detailTokenInvalid, "code": "token_not_valid"})
		return
	}

	u, ok := s.users.get(userID)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": detailTokenInvalid, "code": "token_not_valid"})
		return
	}
	access, err := s.issueAccess(u)
	if err != nil {
		s.logger.Error("issue access", "error", err)
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}

	out := map[string]string{"access": access}
	if rotate {
		out["refresh"] = next
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeLimiterError(w http.ResponseWriter, err error) {
	if errors.Is(err, rate.ErrRateLimited) {
		writeDetail(w, http.StatusTooManyRequests, detailThrottled)
		return
	}
	s.logger.Error("rate limiter", "error", err)
	writeDetail(w, http.StatusServiceUnavailable, detailUnavailable)
}

// sleep waits d or until ctx ends; false means the client went away.
func (s *Server) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

/*
====================================
PROTECTED
====================================
*/

// currentUser resolves the user behind the verified access token. It answers
// 401 itself when the account no longer exists.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (User, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return User{}, false
	}
	id, err := strconv.Atoi(claims.UserID.String())
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
		return User{}, false
	}
	u, ok := s.users.get(id)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "User not found")
		return User{}, false
	}
	return u, true
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "You have access to this protected view!",
		"user_id":  u.ID,
		"username": u.Username,
		"email":    u.Email,
		"role":     u.Role,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var patch profilePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	updated, ok := s.users.update(u.ID, patch)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, _ *http.Request) {
	s.users.mu.RLock()
	count := len(s.users.byID)
	s.users.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]int{"users": count})
}

/*
====================================
RESOURCES
====================================
*/

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T, size int) {
	body, ok := paginate(r, items, size)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Invalid page.")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writePage(w, r, s.catalog.listGoals(u.ID), s.config.PageSize)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var in struct {
		Category  int    `json:"category"`
		Timeframe string `json:"timeframe"`
		Target    int    `json:"target"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	g, fields := s.catalog.addGoal(u.ID, in.Category, in.Timeframe, in.Target)
	if fields != nil {
		writeFieldErrors(w, fields)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writePage(w, r, s.catalog.listTemplates(), s.config.PageSize)
}

func (s *Server) handleListSubcategories(w http.ResponseWriter, r *http.Request) {
	writePage(w, r, s.catalog.listSubcategories(), s.config.PageSize)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writePage(w, r, s.catalog.listLogs(u.ID), s.config.PageSize)
}

// decimal accepts a JSON number or a numeric string.
type decimal float64

func (d *decimal) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.New("A valid number is required.")
	}
	*d = decimal(f)
	return nil
}

func (s *Server) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var in struct {
		SubCategory      int     `json:"sub_category"`
		Quantity         decimal `json:"quantity"`
		DisposalDate     string  `json:"disposal_date"`
		DisposalLocation string  `json:"disposal_location"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	l, fields := s.catalog.addLog(u.ID, in.SubCategory, float64(in.Quantity), in.DisposalDate, in.DisposalLocation)
	if fields != nil {
		writeFieldErrors(w, fields)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}
