// Package api is the HTTP client for the remote templates API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/bazaar/internal/domain"
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: API error (%d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: API error (%d): %s", e.Op, e.Status, e.Body)
}

// ListQuery filters the template listing. Empty fields are omitted, except
// SortBy which is always sent.
type ListQuery struct {
	Category string
	Search   string
	SortBy   string
}

// Values encodes the query in category, search, sort_by order.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	v.Set("sort_by", q.SortBy)
	return v
}

// Client talks to {base}/templates.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for baseURL. A zero timeout leaves requests
// bounded only by their context.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string { return c.baseURL }

// ListTemplates fetches GET {base}/templates/.
func (c *Client) ListTemplates(ctx context.Context, q ListQuery) ([]domain.Template, error) {
	endpoint := c.baseURL + "/templates/?" + q.Values().Encode()

	var templates []domain.Template
	if err := c.do(ctx, "list templates", http.MethodGet, endpoint, nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// UseTemplate materializes a template via POST {base}/templates/{id}/use.
func (c *Client) UseTemplate(ctx context.Context, id string) (*domain.WorkflowDetail, error) {
	endpoint := fmt.Sprintf("%s/templates/%s/use", c.baseURL, url.PathEscape(id))

	var detail domain.WorkflowDetail
	if err := c.do(ctx, "use template "+id, http.MethodPost, endpoint, []byte("{}"), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListCategories fetches GET {base}/templates/categories.
func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := c.do(ctx, "list categories", http.MethodGet, c.baseURL+"/templates/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", op, err)
	}
	return nil
}
