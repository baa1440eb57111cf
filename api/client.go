package api

import (
	"context"
	"net/http"

	"github.com/ecochallenge/ecoauth"
	"github.com/ecochallenge/ecoauth/internal/flows"
)

// Resource paths, relative to the Manager's base URL.
const (
	PathProfile       = "/api/user/me/"
	PathGoals         = "/api/v1/goals/goals/"
	PathGoalTemplates = "/api/v1/goals/templates/"
	PathWasteLogs     = "/api/v1/waste/logs/"
	PathSubcategories = "/api/v1/waste/subcategories/"
)

// Client issues typed resource calls. It is safe for concurrent use when the
// underlying Fetcher is.
type Client struct {
	fetcher ecoauth.Fetcher
}

// New returns a Client that sends every call through f.
func New(f ecoauth.Fetcher) *Client {
	return &Client{fetcher: f}
}

// Profile fetches the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var out Profile
	err := c.call(ctx, "profile", http.MethodGet, PathProfile, nil, &out)
	return out, err
}

// UpdateProfile sends a partial update and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) (Profile, error) {
	var out Profile
	err := c.call(ctx, "update profile", http.MethodPatch, PathProfile, in, &out)
	return out, err
}

// Goals lists every goal of the signed-in user across all pages.
func (c *Client) Goals(ctx context.Context) ([]Goal, error) {
	return ecoauth.FetchAllPages[Goal](ctx, c.fetcher, PathGoals)
}

// CreateGoal creates a goal and returns it as stored.
func (c *Client) CreateGoal(ctx context.Context, in NewGoal) (Goal, error) {
	var out Goal
	err := c.call(ctx, "create goal", http.MethodPost, PathGoals, in, &out)
	return out, err
}

// GoalTemplates lists the goal templates across all pages.
func (c *Client) GoalTemplates(ctx context.Context) ([]GoalTemplate, error) {
	return ecoauth.FetchAllPages[GoalTemplate](ctx, c.fetcher, PathGoalTemplates)
}

// Subcategories lists the waste subcategories across all pages.
func (c *Client) Subcategories(ctx context.Context) ([]Subcategory, error) {
	return ecoauth.FetchAllPages[Subcategory](ctx, c.fetcher, PathSubcategories)
}

// WasteLogs lists the signed-in user's waste logs across all pages.
func (c *Client) WasteLogs(ctx context.Context) ([]WasteLog, error) {
	return ecoauth.FetchAllPages[WasteLog](ctx, c.fetcher, PathWasteLogs)
}

// CreateWasteLog records a disposal; the backend computes the score.
func (c *Client) CreateWasteLog(ctx context.Context, in NewWasteLog) (WasteLog, error) {
	var out WasteLog
	err := c.call(ctx, "create waste log", http.MethodPost, PathWasteLogs, in, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, op, method, path string, payload, out any) error {
	opts := &ecoauth.RequestOptions{Method: method}
	if payload != nil {
		opts.JSON = payload
	}

	resp, err := c.fetcher.AuthenticatedFetch(ctx, path, opts)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &ecoauth.APIError{
			Op:     op,
			Status: resp.StatusCode,
			Detail: flows.Detail(resp.Bytes()),
			Body:   resp.Bytes(),
		}
	}
	return resp.JSON(out)
}
