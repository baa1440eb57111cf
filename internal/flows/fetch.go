package flows

import (
	"context"
	"net/http"
)

// FetchFailureKind classifies authenticated fetch failures for root-level mapping.
type FetchFailureKind int

const (
	FetchFailureNone FetchFailureKind = iota
	FetchFailureStore
	FetchFailureTransport
	FetchFailureRefresh
	FetchFailureUnauthorized
)

// FetchAttempt describes one send of a request. Retried is set on the single retry
// that follows a successful refresh; a retried attempt is never refreshed again.
type FetchAttempt struct {
	Token   string
	Retried bool
}

// FetchResult reports how an authenticated fetch ended.
type FetchResult struct {
	Failure   FetchFailureKind
	Err       error
	Status    int
	Attempts  int
	Refreshed bool
}

// FetchDeps captures authenticated fetch dependencies.
type FetchDeps struct {
	// AccessToken reads the current access token. Empty means send without credentials.
	AccessToken func(context.Context) (string, error)
	// Send performs one HTTP exchange and returns its status code.
	Send func(context.Context, FetchAttempt) (int, error)
	// Refresh obtains a fresh access token after stale was rejected.
	Refresh func(ctx context.Context, stale string) (string, error)
}

// RunFetch sends a request with the current access token and, on a 401, refreshes
// once and retries once with the new token.
func RunFetch(ctx context.Context, deps FetchDeps) FetchResult {
	token, err := deps.AccessToken(ctx)
	if err != nil {
		return FetchResult{Failure: FetchFailureStore, Err: err}
	}
	return ResumeFetch(ctx, deps, FetchAttempt{Token: token})
}

// ResumeFetch sends attempt and follows a 401 with a refresh and a retry. Only
// an attempt that is not Retried may trigger a refresh; a 401 on a Retried
// attempt ends the fetch as FetchFailureUnauthorized.
func ResumeFetch(ctx context.Context, deps FetchDeps, attempt FetchAttempt) FetchResult {
	var refreshed bool
	for sent := 1; ; sent++ {
		status, err := deps.Send(ctx, attempt)
		if err != nil {
			return FetchResult{Failure: FetchFailureTransport, Err: err, Attempts: sent, Refreshed: refreshed}
		}
		if status != http.StatusUnauthorized {
			return FetchResult{Status: status, Attempts: sent, Refreshed: refreshed}
		}
		if attempt.Retried {
			return FetchResult{Failure: FetchFailureUnauthorized, Status: status, Attempts: sent, Refreshed: refreshed}
		}

		fresh, err := deps.Refresh(ctx, attempt.Token)
		if err != nil {
			return FetchResult{Failure: FetchFailureRefresh, Err: err, Status: status, Attempts: sent}
		}
		refreshed = true
		attempt = FetchAttempt{Token: fresh, Retried: true}
	}
}
