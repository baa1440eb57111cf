package ecoauth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNetwork reports that the transport call itself failed.
	ErrNetwork = errors.New("network failure")
	// ErrAuthorization reports that the backend rejected the credentials even after
	// the single refresh-and-retry, or that no refresh was possible.
	ErrAuthorization = errors.New("authorization failure")
	// ErrRefresh reports that the refresh exchange failed. The session has been ended.
	ErrRefresh = errors.New("refresh failure")
	// ErrMalformedResponse reports a response body that lacks the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrPagination reports a non-ok status in the middle of a page walk.
	ErrPagination = errors.New("pagination failure")

	ErrNoRefreshToken      = errors.New("no refresh token stored")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrStore               = errors.New("credential store failure")
	ErrInvalidCredentials  = errors.New("access and refresh tokens must both be non-empty")
	ErrResponseTooLarge    = errors.New("response body too large")
	ErrManagerNotReady     = errors.New("manager not ready")
	ErrBuilderAlreadyBuilt = errors.New("builder already used")
)

// StatusError is a classified failure. Kind is one of the package sentinels and
// errors.Is matches both Kind and the wrapped cause.
type StatusError struct {
	Kind   error
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *StatusError) Error() string {
	var b strings.Builder
	b.WriteString("ecoauth: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("request failed")
	}
	if e.Status != 0 {
		b.WriteString(" (status ")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StatusError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// APIError is returned by the unauthenticated account calls (login, register,
// password reset) when the backend answers with a non-2xx status.
type APIError struct {
	Op     string
	Status int
	Detail string
	Body   []byte
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ecoauth: %s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("ecoauth: %s: status %d", e.Op, e.Status)
}

// Is lets callers match a rejected login with errors.Is(err, ErrAuthorization).
func (e *APIError) Is(target error) bool {
	return target == ErrAuthorization && (e.Status == 401 || e.Status == 403)
}
