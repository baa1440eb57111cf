package ecoauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/ecochallenge/ecoauth/jwt"
)

// Claims decodes the stored access token without verifying its signature. The
// backend remains the authority; use the result for display and local gating only.
func (m *Manager) Claims(ctx context.Context) (*jwt.AccessClaims, error) {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	claims, err := jwt.ParseUnverified(token)
	if err != nil {
		return nil, fmt.Errorf("ecoauth: decode access token: %w", err)
	}
	return claims, nil
}

// Role returns the role claim of the stored access token, or "" when it has none.
func (m *Manager) Role(ctx context.Context) (string, error) {
	claims, err := m.Claims(ctx)
	if err != nil {
		return "", err
	}
	return claims.Role, nil
}

// RoleProtectedFetch refuses locally, without a network call, when the stored
// token's role is not one of roles. Otherwise it behaves as AuthenticatedFetch.
// A 403 from the backend is passed through like any other status.
func (m *Manager) RoleProtectedFetch(ctx context.Context, path string, roles []string, opts *RequestOptions) (*Response, error) {
	if m == nil {
		return nil, ErrManagerNotReady
	}
	role, err := m.Role(ctx)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return nil, &StatusError{Kind: ErrAuthorization, Op: "role check " + path, Status: http.StatusUnauthorized, Err: err}
		}
		return nil, err
	}
	if role == "" || !slices.Contains(roles, role) {
		m.logger.Warn("role check refused request", "path", path, "role", role, "required", roles)
		m.emitAudit(ctx, auditEventPermissionCheck, false, "", path, ErrPermissionDenied, func() map[string]string {
			return map[string]string{"role": role}
		})
		return nil, &StatusError{Kind: ErrPermissionDenied, Op: "role check " + path, Status: http.StatusForbidden}
	}
	return m.AuthenticatedFetch(ctx, path, opts)
}
