package ecoauth

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is a fully read HTTP response. The body is buffered so the response
// can be inspected after the connection is released.
type Response struct {
	StatusCode int
	Header     http.Header
	RequestID  string
	body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode <= 299
}

// Bytes returns the buffered response body.
func (r *Response) Bytes() []byte {
	if r == nil {
		return nil
	}
	return r.body
}

// JSON decodes the body into v. A body that is not valid JSON for v yields an
// error wrapping [ErrMalformedResponse].
func (r *Response) JSON(v any) error {
	if r == nil {
		return fmt.Errorf("%w: nil response", ErrMalformedResponse)
	}
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}
