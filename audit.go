package ecoauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	auditEventLoginSuccess    = "login_success"
	auditEventLoginFailure    = "login_failure"
	auditEventRegister        = "register"
	auditEventTokensSaved     = "tokens_saved"
	auditEventRefreshSuccess  = "refresh_success"
	auditEventRefreshFailure  = "refresh_failure"
	auditEventSessionEnded    = "session_ended"
	auditEventSignOut         = "sign_out"
	auditEventPasswordReset   = "password_reset_request"
	auditEventPermissionCheck = "permission_denied"
)

// AuditErrorCode is the redacted failure class recorded on audit events.
type AuditErrorCode string

const (
	auditErrNetwork           AuditErrorCode = "network"
	auditErrUnauthorized      AuditErrorCode = "unauthorized"
	auditErrRefreshRejected   AuditErrorCode = "refresh_rejected"
	auditErrNoRefreshToken    AuditErrorCode = "no_refresh_token"
	auditErrMalformed         AuditErrorCode = "malformed_response"
	auditErrStore             AuditErrorCode = "store_unavailable"
	auditErrPermissionDenied  AuditErrorCode = "permission_denied"
	auditErrInvalidCredential AuditErrorCode = "invalid_credentials"
	auditErrRejected          AuditErrorCode = "rejected"
	auditErrCanceled          AuditErrorCode = "canceled"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	endpoint string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: m.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		RequestID: RequestIDFromContext(ctx),
		Endpoint:  endpoint,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	m.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	case errors.Is(err, ErrNoRefreshToken):
		return auditErrNoRefreshToken
	case errors.Is(err, ErrStore):
		return auditErrStore
	case errors.Is(err, ErrMalformedResponse):
		return auditErrMalformed
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	case errors.Is(err, ErrRefresh):
		return auditErrRefreshRejected
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredential
	case errors.As(err, &apiErr):
		if apiErr.Status == 401 || apiErr.Status == 403 {
			return auditErrUnauthorized
		}
		return auditErrRejected
	case errors.Is(err, ErrAuthorization):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}

func durationMillis(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
