package ecoauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ecochallenge/ecoauth/internal/flows"
	"github.com/ecochallenge/ecoauth/internal/redact"
)

const headerRequestID = "X-Request-ID"

// preparedRequest is the replayable form of one logical call.
type preparedRequest struct {
	method string
	url    string
	header http.Header
	body   []byte
}

func (m *Manager) prepare(path string, opts *RequestOptions) (*preparedRequest, error) {
	target, err := m.resolve(path)
	if err != nil {
		return nil, fmt.Errorf("ecoauth: invalid path %q: %w", path, err)
	}

	req := &preparedRequest{
		method: http.MethodGet,
		url:    target,
		header: make(http.Header),
	}
	if opts == nil {
		return req, nil
	}

	if opts.Method != "" {
		req.method = strings.ToUpper(opts.Method)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.header.Add(k, v)
		}
	}
	switch {
	case opts.JSON != nil && opts.Body != nil:
		return nil, errors.New("ecoauth: RequestOptions Body and JSON are mutually exclusive")
	case opts.JSON != nil:
		body, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, fmt.Errorf("ecoauth: encode request body: %w", err)
		}
		req.body = body
		if req.header.Get("Content-Type") == "" {
			req.header.Set("Content-Type", "application/json")
		}
	case opts.Body != nil:
		req.body = append([]byte(nil), opts.Body...)
	}
	return req, nil
}

// send performs one HTTP exchange. A non-empty token replaces any caller-supplied
// Authorization header; an empty token sends none of ours.
func (m *Manager) send(ctx context.Context, req *preparedRequest, token, requestID string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.HTTP.Timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if m.config.HTTP.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", m.config.HTTP.UserAgent)
	}
	httpReq.Header.Set(headerRequestID, requestID)

	httpResp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	limit := m.config.HTTP.MaxBodyBytes
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		RequestID:  requestID,
		body:       data,
	}, nil
}

// AuthenticatedFetch sends a request to path (relative to the base URL) with the
// stored access token as a bearer credential.
//
// Any response other than 401 is returned as is, with a nil error, whatever its
// status. On a 401 the Manager refreshes the credentials once, sharing one refresh
// among all concurrent callers, and re-sends the request exactly once:
//
//   - retry answered with anything but 401: that response, nil error.
//   - retry answered with 401: that response and an error matching [ErrAuthorization].
//   - refresh failed: nil response, an error matching [ErrRefresh] (or
//     [ErrAuthorization] when no refresh token is stored), and the credentials are
//     cleared.
//   - transport failure: nil response, an error matching [ErrNetwork].
//   - ctx ended while waiting on a shared refresh: nil response, an error matching
//     [ErrNetwork] and ctx.Err(). The refresh itself keeps running.
func (m *Manager) AuthenticatedFetch(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	if m == nil {
		return nil, ErrManagerNotReady
	}
	req, err := m.prepare(path, opts)
	if err != nil {
		return nil, err
	}

	ctx, requestID := ensureRequestID(ctx)
	start := m.now()
	m.metricInc(MetricFetchTotal)

	var last *Response
	result := flows.RunFetch(ctx, flows.FetchDeps{
		AccessToken: m.AccessToken,
		Send: func(ctx context.Context, attempt flows.FetchAttempt) (int, error) {
			if attempt.Retried {
				m.metricInc(MetricFetchRetry)
				m.logger.Debug("retrying after refresh",
					"method", req.method, "path", path, "request_id", requestID,
					"access", redact.Token(attempt.Token))
			}
			resp, err := m.send(ctx, req, attempt.Token, requestID)
			if err != nil {
				return 0, err
			}
			last = resp
			if resp.StatusCode == http.StatusUnauthorized {
				m.metricInc(MetricFetchUnauthorized)
			}
			return resp.StatusCode, nil
		},
		Refresh: m.refreshAfterReject,
	})
	m.metricObserve(MetricFetchLatency, m.elapsedSince(start))

	switch result.Failure {
	case flows.FetchFailureNone:
		return last, nil
	case flows.FetchFailureStore:
		return nil, result.Err
	case flows.FetchFailureTransport:
		m.metricInc(MetricFetchTransportFailure)
		kind := ErrNetwork
		if errors.Is(result.Err, ErrResponseTooLarge) {
			kind = ErrMalformedResponse
		}
		m.logger.Warn("request failed", "method", req.method, "path", path,
			"request_id", requestID, "attempts", result.Attempts, "error", result.Err)
		return nil, &StatusError{Kind: kind, Op: req.method + " " + path, Err: result.Err}
	case flows.FetchFailureRefresh:
		return nil, result.Err
	case flows.FetchFailureUnauthorized:
		m.logger.Warn("credentials rejected after refresh", "method", req.method, "path", path,
			"request_id", requestID)
		return last, &StatusError{
			Kind:   ErrAuthorization,
			Op:     req.method + " " + path,
			Status: result.Status,
			Detail: flows.Detail(last.Bytes()),
		}
	default:
		return nil, fmt.Errorf("ecoauth: unexpected fetch outcome %d", result.Failure)
	}
}

// Do is a convenience for AuthenticatedFetch with a method and optional JSON body.
func (m *Manager) Do(ctx context.Context, method, path string, payload any) (*Response, error) {
	return m.AuthenticatedFetch(ctx, path, &RequestOptions{Method: method, JSON: payload})
}

func (m *Manager) elapsedSince(start time.Time) time.Duration {
	return m.now().Sub(start)
}
