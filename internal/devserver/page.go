package devserver

import (
	"net/http"
	"net/url"
	"strconv"
)

// pageBody is the list envelope. Next and Previous are absolute URLs or null.
type pageBody[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// paginate slices items for the ?page=N query of r. ok is false when N is out
// of range, which the handlers answer with 404 "Invalid page.".
func paginate[T any](r *http.Request, items []T, size int) (pageBody[T], bool) {
	number := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return pageBody[T]{}, false
		}
		number = n
	}

	start := (number - 1) * size
	if start > 0 && start >= len(items) {
		return pageBody[T]{}, false
	}
	end := min(start+size, len(items))

	body := pageBody[T]{
		Count:   len(items),
		Results: append([]T{}, items[start:end]...),
	}
	if end < len(items) {
		next := pageURL(r, number+1)
		body.Next = &next
	}
	if number > 1 {
		prev := pageURL(r, number-1)
		body.Previous = &prev
	}
	return body, true
}

func pageURL(r *http.Request, number int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := r.URL.Query()
	if number == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(number))
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}
