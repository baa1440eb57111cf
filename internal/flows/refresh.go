package flows

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureStore
	RefreshFailureMissingToken
	RefreshFailureTransport
	RefreshFailureStatus
	RefreshFailureDecode
	RefreshFailurePersist
)

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureNone:
		return "none"
	case RefreshFailureStore:
		return "store"
	case RefreshFailureMissingToken:
		return "missing_refresh_token"
	case RefreshFailureTransport:
		return "transport"
	case RefreshFailureStatus:
		return "status"
	case RefreshFailureDecode:
		return "decode"
	case RefreshFailurePersist:
		return "persist"
	default:
		return "unknown"
	}
}

var (
	errMissingAccess = errors.New("refresh response has no access token")
	errEmptyRefresh  = errors.New("no refresh token stored")
)

// RefreshResult carries either the new credential pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	Status       int
	Detail       string
	AccessToken  string
	RefreshToken string
	Rotated      bool
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// RefreshToken reads the stored refresh token.
	RefreshToken func(context.Context) (string, error)
	// Exchange posts the refresh token to the backend and returns the status and body.
	Exchange func(ctx context.Context, refreshToken string) (int, []byte, error)
	// SaveTokens persists both halves of the new pair together.
	SaveTokens func(ctx context.Context, access, refresh string) error
	Warn       func(string, ...any)
}

type refreshBody struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RunRefresh exchanges the stored refresh token for a new access token and persists
// the result. When the backend does not rotate the refresh token the stored one is kept.
func RunRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	refreshToken, err := deps.RefreshToken(ctx)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissingToken, Err: errEmptyRefresh}
	}

	status, body, err := deps.Exchange(ctx, refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureTransport, Err: err}
	}
	if status < 200 || status > 299 {
		return RefreshResult{
			Failure: RefreshFailureStatus,
			Status:  status,
			Detail:  Detail(body),
		}
	}

	var parsed refreshBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err, Status: status}
	}
	if parsed.Access == "" {
		return RefreshResult{Failure: RefreshFailureDecode, Err: errMissingAccess, Status: status}
	}

	nextRefresh := refreshToken
	rotated := false
	if parsed.Refresh != "" && parsed.Refresh != refreshToken {
		nextRefresh = parsed.Refresh
		rotated = true
	}

	if err := deps.SaveTokens(ctx, parsed.Access, nextRefresh); err != nil {
		if deps.Warn != nil {
			deps.Warn("ecoauth: refreshed pair could not be persisted")
		}
		return RefreshResult{Failure: RefreshFailurePersist, Err: err, Status: status}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		Status:       status,
		AccessToken:  parsed.Access,
		RefreshToken: nextRefresh,
		Rotated:      rotated,
	}
}

// Detail extracts the backend's human-readable error text from a JSON error body.
// It understands {"detail": "..."} and {"message": "..."}, and otherwise falls back to
// the first message of a field-error map such as {"email": ["already taken"]}.
func Detail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if raw, ok := doc[key]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
		}
	}

	// Field errors: pick the lexically first field for a stable result.
	var first string
	for field := range doc {
		if first == "" || field < first {
			first = field
		}
	}
	if first == "" {
		return ""
	}
	var msgs []string
	if json.Unmarshal(doc[first], &msgs) == nil && len(msgs) > 0 {
		return first + ": " + strings.Join(msgs, " ")
	}
	var msg string
	if json.Unmarshal(doc[first], &msg) == nil && msg != "" {
		return first + ": " + msg
	}
	return ""
}
