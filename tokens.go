package ecoauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecochallenge/ecoauth/credstore"
	"github.com/ecochallenge/ecoauth/internal/redact"
)

// SaveTokens persists a new credential pair, overwriting any prior pair, and moves
// the session to Idle. Both halves are written as one unit.
func (m *Manager) SaveTokens(ctx context.Context, access, refresh string) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if access == "" || refresh == "" {
		return ErrInvalidCredentials
	}

	m.pairMu.Lock()
	err := m.writePairLocked(ctx, access, refresh)
	m.pairMu.Unlock()
	if err != nil {
		m.logger.Warn("saving credentials failed", "error", err)
		return err
	}

	m.setState(StateIdle)
	m.metricInc(MetricTokensSaved)
	m.logger.Debug("credentials saved", "access", redact.Token(access))
	m.emitAudit(ctx, auditEventTokensSaved, true, "", "", nil, nil)
	return nil
}

// AccessToken reads the stored access token. It returns "" when none is stored.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if m == nil {
		return "", ErrManagerNotReady
	}
	m.pairMu.RLock()
	defer m.pairMu.RUnlock()
	return m.getLocked(ctx, m.config.Keys.Access)
}

// RefreshToken reads the stored refresh token. It returns "" when none is stored.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	if m == nil {
		return "", ErrManagerNotReady
	}
	m.pairMu.RLock()
	defer m.pairMu.RUnlock()
	return m.getLocked(ctx, m.config.Keys.Refresh)
}

// Tokens returns both halves read under one lock, so the pair is never torn by a
// concurrent save or refresh.
func (m *Manager) Tokens(ctx context.Context) (CredentialPair, error) {
	if m == nil {
		return CredentialPair{}, ErrManagerNotReady
	}
	m.pairMu.RLock()
	defer m.pairMu.RUnlock()

	access, err := m.getLocked(ctx, m.config.Keys.Access)
	if err != nil {
		return CredentialPair{}, err
	}
	refresh, err := m.getLocked(ctx, m.config.Keys.Refresh)
	if err != nil {
		return CredentialPair{}, err
	}
	return CredentialPair{Access: access, Refresh: refresh}, nil
}

// HasValidTokens reports whether both halves of the pair are stored. It does not
// contact the backend; see [Manager.AutoLogin].
func (m *Manager) HasValidTokens(ctx context.Context) (bool, error) {
	pair, err := m.Tokens(ctx)
	if err != nil {
		return false, err
	}
	return pair.Complete(), nil
}

// ClearTokens deletes both credentials and the remembered email and moves the
// session to LoggedOut. The state changes even when the store reports an error.
func (m *Manager) ClearTokens(ctx context.Context) error {
	if m == nil {
		return ErrManagerNotReady
	}
	m.pairMu.Lock()
	err := m.deletePairLocked(ctx)
	m.pairMu.Unlock()

	m.SetEmail("")
	m.setState(StateLoggedOut)
	if err != nil {
		m.logger.Warn("clearing credentials failed", "error", err)
	}
	return err
}

// SetEmail remembers the signed-in user's email in memory only.
func (m *Manager) SetEmail(email string) {
	if m == nil {
		return
	}
	m.emailMu.Lock()
	m.email = email
	m.emailMu.Unlock()
}

// Email returns the address set by SetEmail or Login, or "".
func (m *Manager) Email() string {
	if m == nil {
		return ""
	}
	m.emailMu.RLock()
	defer m.emailMu.RUnlock()
	return m.email
}

func (m *Manager) getLocked(ctx context.Context, key string) (string, error) {
	v, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, credstore.ErrNotFound):
		return "", nil
	default:
		return "", fmt.Errorf("%w: read %s: %w", ErrStore, key, err)
	}
}

func (m *Manager) writePairLocked(ctx context.Context, access, refresh string) error {
	err := m.store.Set(ctx, map[string]string{
		m.config.Keys.Access:  access,
		m.config.Keys.Refresh: refresh,
	})
	if err != nil {
		return fmt.Errorf("%w: write credentials: %w", ErrStore, err)
	}
	return nil
}

func (m *Manager) deletePairLocked(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.config.Keys.Access, m.config.Keys.Refresh); err != nil {
		return fmt.Errorf("%w: delete credentials: %w", ErrStore, err)
	}
	return nil
}
