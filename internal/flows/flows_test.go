package flows

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type fakeStore struct {
	access, refresh string
	saves           int
	saveErr         error
}

func (s *fakeStore) refreshDeps(exchange func(context.Context, string) (int, []byte, error)) RefreshDeps {
	return RefreshDeps{
		RefreshToken: func(context.Context) (string, error) { return s.refresh, nil },
		Exchange:     exchange,
		SaveTokens: func(_ context.Context, access, refresh string) error {
			if s.saveErr != nil {
				return s.saveErr
			}
			s.saves++
			s.access, s.refresh = access, refresh
			return nil
		},
	}
}

func TestRunRefreshKeepsRefreshWhenNotRotated(t *testing.T) {
	s := &fakeStore{access: "A1", refresh: "R1"}
	var sent string
	res := RunRefresh(context.Background(), s.refreshDeps(func(_ context.Context, refresh string) (int, []byte, error) {
		sent = refresh
		return http.StatusOK, []byte(`{"access":"A2"}`), nil
	}))

	if res.Failure != RefreshFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if sent != "R1" {
		t.Fatalf("expected R1 sent, got %q", sent)
	}
	if s.access != "A2" || s.refresh != "R1" || res.Rotated {
		t.Fatalf("unexpected pair {%s %s} rotated=%v", s.access, s.refresh, res.Rotated)
	}
}

func TestRunRefreshAppliesRotation(t *testing.T) {
	s := &fakeStore{access: "A1", refresh: "R1"}
	res := RunRefresh(context.Background(), s.refreshDeps(func(context.Context, string) (int, []byte, error) {
		return http.StatusOK, []byte(`{"access":"A2","refresh":"R2"}`), nil
	}))
	if res.Failure != RefreshFailureNone || !res.Rotated {
		t.Fatalf("expected rotation, got %+v", res)
	}
	if s.refresh != "R2" {
		t.Fatalf("expected R2 stored, got %q", s.refresh)
	}
}

func TestRunRefreshFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		refresh  string
		status   int
		body     string
		exchErr  error
		saveErr  error
		want     RefreshFailureKind
		wantText string
	}{
		{name: "missing token", refresh: "", want: RefreshFailureMissingToken},
		{name: "transport", refresh: "R1", exchErr: errors.New("dial tcp: refused"), want: RefreshFailureTransport},
		{name: "rejected", refresh: "R1", status: 401, body: `{"detail":"Token is invalid or expired"}`, want: RefreshFailureStatus, wantText: "Token is invalid or expired"},
		{name: "server error", refresh: "R1", status: 500, body: `oops`, want: RefreshFailureStatus},
		{name: "not json", refresh: "R1", status: 200, body: `<html>`, want: RefreshFailureDecode},
		{name: "no access", refresh: "R1", status: 200, body: `{"refresh":"R2"}`, want: RefreshFailureDecode},
		{name: "persist", refresh: "R1", status: 200, body: `{"access":"A2"}`, saveErr: errors.New("disk full"), want: RefreshFailurePersist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeStore{access: "A1", refresh: tt.refresh, saveErr: tt.saveErr}
			called := false
			res := RunRefresh(context.Background(), s.refreshDeps(func(context.Context, string) (int, []byte, error) {
				called = true
				return tt.status, []byte(tt.body), tt.exchErr
			}))
			if res.Failure != tt.want {
				t.Fatalf("expected %v, got %v (%v)", tt.want, res.Failure, res.Err)
			}
			if tt.want == RefreshFailureMissingToken && called {
				t.Fatal("exchange must not run without a refresh token")
			}
			if res.Detail != tt.wantText {
				t.Fatalf("expected detail %q, got %q", tt.wantText, res.Detail)
			}
			if s.saves != 0 {
				t.Fatal("failed refresh must not persist tokens")
			}
		})
	}
}

func TestDetail(t *testing.T) {
	tests := map[string]string{
		`{"detail":"No active account found"}`:               "No active account found",
		`{"message":"bad"}`:                                  "bad",
		`{"email":["user with this email already exists."]}`: "email: user with this email already exists.",
		`{"password":"too short"}`:                           "password: too short",
		`not json`:                                           "",
		``:                                                   "",
		`{}`:                                                 "",
	}
	for body, want := range tests {
		if got := Detail([]byte(body)); got != want {
			t.Fatalf("Detail(%q) = %q, want %q", body, got, want)
		}
	}
}

type sendLog struct {
	attempts []FetchAttempt
	statuses []int
}

func (l *sendLog) send(_ context.Context, a FetchAttempt) (int, error) {
	l.attempts = append(l.attempts, a)
	status := l.statuses[0]
	l.statuses = l.statuses[1:]
	return status, nil
}

func TestRunFetchNoRefreshOnSuccess(t *testing.T) {
	log := &sendLog{statuses: []int{200}}
	res := RunFetch(context.Background(), FetchDeps{
		AccessToken: func(context.Context) (string, error) { return "A1", nil },
		Send:        log.send,
		Refresh: func(context.Context, string) (string, error) {
			t.Fatal("refresh must not run")
			return "", nil
		},
	})
	if res.Failure != FetchFailureNone || res.Status != 200 || res.Attempts != 1 || res.Refreshed {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunFetchRefreshesOnceAndRetriesOnce(t *testing.T) {
	log := &sendLog{statuses: []int{401, 200}}
	var stale []string
	res := RunFetch(context.Background(), FetchDeps{
		AccessToken: func(context.Context) (string, error) { return "A1", nil },
		Send:        log.send,
		Refresh: func(_ context.Context, s string) (string, error) {
			stale = append(stale, s)
			return "A2", nil
		},
	})
	if res.Failure != FetchFailureNone || res.Status != 200 || res.Attempts != 2 || !res.Refreshed {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(stale) != 1 || stale[0] != "A1" {
		t.Fatalf("expected one refresh for A1, got %v", stale)
	}
	want := []FetchAttempt{{Token: "A1"}, {Token: "A2", Retried: true}}
	if len(log.attempts) != 2 || log.attempts[0] != want[0] || log.attempts[1] != want[1] {
		t.Fatalf("unexpected attempts %+v", log.attempts)
	}
}

func TestRunFetchRetry401IsUnauthorized(t *testing.T) {
	log := &sendLog{statuses: []int{401, 401}}
	refreshes := 0
	res := RunFetch(context.Background(), FetchDeps{
		AccessToken: func(context.Context) (string, error) { return "A1", nil },
		Send:        log.send,
		Refresh: func(context.Context, string) (string, error) {
			refreshes++
			return "A2", nil
		},
	})
	if res.Failure != FetchFailureUnauthorized || refreshes != 1 || res.Attempts != 2 {
		t.Fatalf("unexpected result %+v refreshes=%d", res, refreshes)
	}
}

func TestRunFetchRefreshFailureStopsBeforeRetry(t *testing.T) {
	log := &sendLog{statuses: []int{401}}
	boom := errors.New("refresh rejected")
	res := RunFetch(context.Background(), FetchDeps{
		AccessToken: func(context.Context) (string, error) { return "A1", nil },
		Send:        log.send,
		Refresh:     func(context.Context, string) (string, error) { return "", boom },
	})
	if res.Failure != FetchFailureRefresh || !errors.Is(res.Err, boom) || len(log.attempts) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunFetchTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	res := RunFetch(context.Background(), FetchDeps{
		AccessToken: func(context.Context) (string, error) { return "", nil },
		Send:        func(context.Context, FetchAttempt) (int, error) { return 0, boom },
		Refresh:     func(context.Context, string) (string, error) { return "", nil },
	})
	if res.Failure != FetchFailureTransport || !errors.Is(res.Err, boom) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResumeFetchNeverRefreshesARetriedAttempt(t *testing.T) {
	log := &sendLog{statuses: []int{401}}
	res := ResumeFetch(context.Background(), FetchDeps{
		Send: log.send,
		Refresh: func(context.Context, string) (string, error) {
			t.Fatal("a retried attempt must not refresh")
			return "", nil
		},
	}, FetchAttempt{Token: "A2", Retried: true})
	if res.Failure != FetchFailureUnauthorized || res.Status != 401 || res.Attempts != 1 || res.Refreshed {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(log.attempts) != 1 {
		t.Fatalf("expected a single send, got %+v", log.attempts)
	}
}

func TestRunFetchRefreshesAtMostOnceWhenRetryKeepsFailing(t *testing.T) {
	log := &sendLog{statuses: []int{401, 401, 401}}
	refreshes := 0
	res := RunFetch(context.Background(), FetchDeps{
		AccessToken: func(context.Context) (string, error) { return "A1", nil },
		Send:        log.send,
		Refresh: func(_ context.Context, stale string) (string, error) {
			refreshes++
			return stale + "'", nil
		},
	})
	if refreshes != 1 || len(log.attempts) != 2 || !log.attempts[1].Retried {
		t.Fatalf("refreshes=%d attempts=%+v", refreshes, log.attempts)
	}
	if res.Failure != FetchFailureUnauthorized || !res.Refreshed {
		t.Fatalf("unexpected result %+v", res)
	}
}
