package ecoauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ecochallenge/ecoauth/internal/flows"
	"github.com/ecochallenge/ecoauth/internal/redact"
	"github.com/ecochallenge/ecoauth/jwt"
)

type loginResponse struct {
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
	UserID  jwt.UserID `json:"user_id"`
	Email   string     `json:"email"`
	Role    string     `json:"role"`
}

// Login exchanges an email and password for a credential pair and saves it.
// A rejection by the backend is returned as *[APIError].
func (m *Manager) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if m == nil {
		return LoginResult{}, ErrManagerNotReady
	}
	ctx, _ = ensureRequestID(ctx)

	result, err := m.login(ctx, email, password)
	if err != nil {
		m.metricInc(MetricLoginFailure)
		m.logger.Warn("login failed", "email", redact.Email(email), "error", err)
		m.emitAudit(ctx, auditEventLoginFailure, false, "", m.config.Endpoints.Login, err, nil)
		return LoginResult{}, err
	}

	m.metricInc(MetricLoginSuccess)
	m.logger.Info("login succeeded", "email", redact.Email(email), "user_id", result.UserID)
	m.emitAudit(ctx, auditEventLoginSuccess, true, result.UserID, m.config.Endpoints.Login, nil, nil)
	return result, nil
}

func (m *Manager) login(ctx context.Context, email, password string) (LoginResult, error) {
	resp, err := m.postJSON(ctx, "login", m.config.Endpoints.Login, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return LoginResult{}, err
	}

	var body loginResponse
	if err := json.Unmarshal(resp.Bytes(), &body); err != nil {
		return LoginResult{}, &StatusError{Kind: ErrMalformedResponse, Op: "login", Status: resp.StatusCode, Err: err}
	}
	if body.Access == "" || body.Refresh == "" {
		return LoginResult{}, &StatusError{Kind: ErrMalformedResponse, Op: "login", Status: resp.StatusCode, Detail: "response lacks access or refresh token"}
	}

	if err := m.SaveTokens(ctx, body.Access, body.Refresh); err != nil {
		return LoginResult{}, err
	}

	result := LoginResult{UserID: string(body.UserID), Email: body.Email, Role: body.Role}
	if result.Email == "" {
		result.Email = email
	}
	m.SetEmail(result.Email)
	return result, nil
}

// Register creates an account. It does not sign in; call Login afterwards.
func (m *Manager) Register(ctx context.Context, in RegisterInput) error {
	if m == nil {
		return ErrManagerNotReady
	}
	ctx, _ = ensureRequestID(ctx)

	if in.Password2 == "" {
		in.Password2 = in.Password
	}
	_, err := m.postJSON(ctx, "register", m.config.Endpoints.Register, in)
	if err != nil {
		m.metricInc(MetricRegisterFailure)
		m.logger.Warn("registration failed", "email", redact.Email(in.Email), "error", err)
	} else {
		m.metricInc(MetricRegisterSuccess)
		m.logger.Info("registered", "email", redact.Email(in.Email))
	}
	m.emitAudit(ctx, auditEventRegister, err == nil, "", m.config.Endpoints.Register, err, nil)
	return err
}

// RequestPasswordReset asks the backend to send a reset link to email.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	if m == nil {
		return ErrManagerNotReady
	}
	ctx, _ = ensureRequestID(ctx)

	_, err := m.postJSON(ctx, "password reset", m.config.Endpoints.PasswordReset, map[string]string{"email": email})
	m.emitAudit(ctx, auditEventPasswordReset, err == nil, "", m.config.Endpoints.PasswordReset, err, nil)
	return err
}

// SignOut ends the session locally by clearing the credentials.
func (m *Manager) SignOut(ctx context.Context) error {
	if m == nil {
		return ErrManagerNotReady
	}
	err := m.ClearTokens(ctx)
	m.metricInc(MetricSignOut)
	m.logger.Info("signed out")
	m.emitAudit(ctx, auditEventSignOut, err == nil, "", "", err, nil)
	return err
}

// AutoLogin reports whether the stored credentials are still accepted, probing
// the verify endpoint through AuthenticatedFetch (which may refresh). Without a
// complete pair it returns false without any network call. A rejected session
// yields false with a nil error; a transport failure is returned so callers can
// tell "signed out" from "offline".
func (m *Manager) AutoLogin(ctx context.Context) (bool, error) {
	ok, err := m.HasValidTokens(ctx)
	if err != nil || !ok {
		return false, err
	}

	resp, err := m.AuthenticatedFetch(ctx, m.config.Endpoints.Verify, nil)
	switch {
	case err == nil:
		return resp.OK(), nil
	case errors.Is(err, ErrRefresh), errors.Is(err, ErrAuthorization):
		return false, nil
	default:
		return false, err
	}
}

// postJSON sends an unauthenticated JSON POST and returns the response when the
// status is 2xx, otherwise an *APIError.
func (m *Manager) postJSON(ctx context.Context, op, endpoint string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ecoauth: %s: encode body: %w", op, err)
	}
	resp, err := m.postUnauthenticated(ctx, endpoint, body)
	if err != nil {
		return nil, &StatusError{Kind: ErrNetwork, Op: op, Err: err}
	}
	if !resp.OK() {
		return nil, &APIError{
			Op:     op,
			Status: resp.StatusCode,
			Detail: flows.Detail(resp.Bytes()),
			Body:   resp.Bytes(),
		}
	}
	return resp, nil
}
