package ecoauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ecochallenge/ecoauth/internal/flows"
	"github.com/ecochallenge/ecoauth/internal/redact"
)

// Refresh exchanges the stored refresh token for a new access token outside of any
// request. It joins a refresh already in flight for the current access token. On
// failure the credentials are cleared exactly as they are after a rejected request.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	if m == nil {
		return "", ErrManagerNotReady
	}
	ctx, _ = ensureRequestID(ctx)
	current, err := m.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	return m.refreshAfterReject(ctx, current)
}

// refreshAfterReject returns an access token to retry with after stale was rejected.
// Concurrent callers that saw the same stale token share one refresh call; the
// call itself runs detached from the caller's cancellation and is bounded by
// HTTP.RefreshTimeout. A caller whose ctx ends stops waiting but does not abort
// the shared refresh.
func (m *Manager) refreshAfterReject(ctx context.Context, stale string) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.refreshes.DoChan(stale, func() (any, error) {
		return m.runRefresh(detached, stale)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.metricInc(MetricRefreshShared)
			m.logger.Debug("joined in-flight refresh", "stale", redact.Token(stale))
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &StatusError{Kind: ErrNetwork, Op: "wait for refresh", Err: ctx.Err()}
	}
}

// runRefresh is the body of one single-flight refresh.
func (m *Manager) runRefresh(ctx context.Context, stale string) (string, error) {
	// A refresh for this stale token may have completed just before this call
	// was started; the stored token then already differs and no exchange is needed.
	current, err := m.AccessToken(ctx)
	if err != nil {
		return "", &StatusError{Kind: ErrRefresh, Op: "refresh", Err: err}
	}
	if current != "" && current != stale {
		m.metricInc(MetricRefreshSkipped)
		m.logger.Debug("access token already replaced", "stale", redact.Token(stale), "current", redact.Token(current))
		return current, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.HTTP.RefreshTimeout)
	defer cancel()

	start := m.now()
	m.setState(StateRefreshing)

	var (
		used       string
		superseded bool
	)
	result := flows.RunRefresh(ctx, flows.RefreshDeps{
		RefreshToken: func(ctx context.Context) (string, error) {
			token, err := m.RefreshToken(ctx)
			used = token
			return token, err
		},
		Exchange: m.exchangeRefresh,
		SaveTokens: func(ctx context.Context, access, refresh string) error {
			m.pairMu.Lock()
			defer m.pairMu.Unlock()
			// A login or sign-out during the exchange wins over this refresh.
			stored, err := m.getLocked(ctx, m.config.Keys.Refresh)
			if err != nil {
				return err
			}
			if stored != used {
				superseded = true
				return nil
			}
			return m.writePairLocked(ctx, access, refresh)
		},
		Warn: func(msg string, args ...any) { m.logger.Warn(msg, args...) },
	})
	elapsed := m.elapsedSince(start)
	m.metricObserve(MetricRefreshLatency, elapsed)

	if result.Failure == flows.RefreshFailureNone {
		if superseded {
			m.logger.Debug("refresh result discarded, credentials changed during exchange")
			latest, err := m.AccessToken(ctx)
			if err != nil {
				return "", &StatusError{Kind: ErrRefresh, Op: "refresh", Err: err}
			}
			if latest == "" {
				return "", &StatusError{Kind: ErrAuthorization, Op: "refresh", Status: http.StatusUnauthorized, Err: ErrNotAuthenticated}
			}
			return latest, nil
		}

		m.setState(StateIdle)
		m.metricInc(MetricRefreshSuccess)
		if result.Rotated {
			m.metricInc(MetricRefreshRotated)
		}
		m.logger.Info("credentials refreshed",
			"access", redact.Token(result.AccessToken),
			"rotated", result.Rotated,
			"duration", elapsed)
		m.emitAudit(ctx, auditEventRefreshSuccess, true, "", m.config.Endpoints.Refresh, nil, func() map[string]string {
			return map[string]string{
				"rotated":  strconv.FormatBool(result.Rotated),
				"duration": durationMillis(elapsed),
			}
		})
		return result.AccessToken, nil
	}

	err = m.refreshError(result)
	m.metricInc(MetricRefreshFailure)
	m.emitAudit(ctx, auditEventRefreshFailure, false, "", m.config.Endpoints.Refresh, err, func() map[string]string {
		md := map[string]string{"reason": result.Failure.String()}
		if result.Status != 0 {
			md["status"] = strconv.Itoa(result.Status)
		}
		return md
	})

	if result.Failure == flows.RefreshFailureStore {
		// Nothing was learned about the credentials; keep them.
		m.setState(StateIdle)
		m.logger.Warn("refresh aborted, credential store unavailable", "error", result.Err)
		return "", err
	}

	if result.Failure == flows.RefreshFailureMissingToken && current == "" {
		// Already signed out; there is no session to end.
		m.setState(StateLoggedOut)
		return "", err
	}

	m.endSession(ctx, result.Failure.String())
	m.logger.Warn("refresh failed, session ended", "reason", result.Failure.String(), "status", result.Status, "error", err)
	return "", err
}

// endSession clears the credentials after an unrecoverable refresh.
func (m *Manager) endSession(ctx context.Context, reason string) {
	if err := m.ClearTokens(ctx); err != nil {
		m.logger.Warn("clearing credentials after failed refresh", "error", err)
	}
	m.metricInc(MetricSessionEnded)
	m.emitAudit(ctx, auditEventSessionEnded, true, "", "", nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

func (m *Manager) refreshError(result flows.RefreshResult) error {
	switch result.Failure {
	case flows.RefreshFailureStore:
		return &StatusError{Kind: ErrRefresh, Op: "refresh", Err: result.Err}
	case flows.RefreshFailureMissingToken:
		return &StatusError{Kind: ErrAuthorization, Op: "refresh", Status: http.StatusUnauthorized, Err: ErrNoRefreshToken}
	case flows.RefreshFailureTransport:
		return &StatusError{Kind: ErrRefresh, Op: "refresh", Err: fmt.Errorf("%w: %w", ErrNetwork, result.Err)}
	case flows.RefreshFailureStatus:
		return &StatusError{Kind: ErrRefresh, Op: "refresh", Status: result.Status, Detail: result.Detail}
	case flows.RefreshFailureDecode:
		return &StatusError{Kind: ErrRefresh, Op: "refresh", Status: result.Status, Err: fmt.Errorf("%w: %w", ErrMalformedResponse, result.Err)}
	case flows.RefreshFailurePersist:
		return &StatusError{Kind: ErrRefresh, Op: "refresh", Err: result.Err}
	default:
		return &StatusError{Kind: ErrRefresh, Op: "refresh", Err: result.Err}
	}
}

// exchangeRefresh posts {"refresh": token} to the refresh endpoint.
func (m *Manager) exchangeRefresh(ctx context.Context, refreshToken string) (int, []byte, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return 0, nil, err
	}
	resp, err := m.postUnauthenticated(ctx, m.config.Endpoints.Refresh, payload)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp.Bytes(), nil
}

// postUnauthenticated sends a JSON POST without credentials and without the
// refresh-and-retry behaviour.
func (m *Manager) postUnauthenticated(ctx context.Context, endpoint string, payload []byte) (*Response, error) {
	target, err := m.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	ctx, requestID := ensureRequestID(ctx)
	req := &preparedRequest{
		method: http.MethodPost,
		url:    target,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   payload,
	}
	return m.send(ctx, req, "", requestID)
}
