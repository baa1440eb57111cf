package ecoauth

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/ecochallenge/ecoauth/internal/flows"
)

// Fetcher is the authenticated-call primitive FetchAllPages walks with.
// *Manager implements it.
type Fetcher interface {
	AuthenticatedFetch(ctx context.Context, path string, opts *RequestOptions) (*Response, error)
}

// Page is the list envelope shared by every paginated endpoint. A nil Results
// means the field was missing or null; an empty array decodes to an empty slice.
type Page[T any] struct {
	Results  []T     `json:"results"`
	Next     *string `json:"next"`
	Previous *string `json:"previous,omitempty"`
	Count    *int    `json:"count,omitempty"`
}

type pageObserver interface {
	observePage()
	observePaginationFailure()
}

// pageLinker maps a next cursor onto a path the fetcher resolves correctly.
// Fetchers without it get NextPath.
type pageLinker interface {
	pagePath(next string) string
}

// FetchAllPages follows the next cursor from startPath and returns every page's
// results in page order. It fails the whole call on the first non-ok page
// ([ErrPagination], carrying the status) or on a page without a results array
// ([ErrMalformedResponse]); no partial results are returned. Errors from the
// underlying fetch are returned unchanged. The walk ends when next is null, absent,
// or empty, and is otherwise bounded only by ctx.
func FetchAllPages[T any](ctx context.Context, f Fetcher, startPath string) ([]T, error) {
	obs, _ := f.(pageObserver)
	nextPath := NextPath
	if l, ok := f.(pageLinker); ok {
		nextPath = l.pagePath
	}
	fail := func(err error) ([]T, error) {
		if obs != nil {
			obs.observePaginationFailure()
		}
		return nil, err
	}

	all := make([]T, 0)
	path := startPath
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		resp, err := f.AuthenticatedFetch(ctx, path, nil)
		if err != nil {
			return fail(err)
		}
		if !resp.OK() {
			return fail(&StatusError{
				Kind:   ErrPagination,
				Op:     "fetch page " + path,
				Status: resp.StatusCode,
				Detail: flows.Detail(resp.Bytes()),
			})
		}

		var page Page[T]
		if err := json.Unmarshal(resp.Bytes(), &page); err != nil {
			return fail(&StatusError{Kind: ErrMalformedResponse, Op: "fetch page " + path, Status: resp.StatusCode, Err: err})
		}
		if page.Results == nil {
			return fail(&StatusError{Kind: ErrMalformedResponse, Op: "fetch page " + path, Status: resp.StatusCode, Detail: "response has no results field"})
		}

		all = append(all, page.Results...)
		if obs != nil {
			obs.observePage()
		}

		if page.Next == nil || *page.Next == "" {
			return all, nil
		}
		path = nextPath(*page.Next)
	}
}

// NextPath turns a next cursor into a request path. An absolute URL contributes
// its path and query; anything else, including a string that does not parse, is
// used verbatim.
func NextPath(next string) string {
	u, err := url.Parse(next)
	if err != nil || !u.IsAbs() || u.Opaque != "" {
		return next
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}
