// Package hypothesis talks to a Hypothesis-compatible annotation API.
//
// The core engines consume the Source interface; the HTTP client here is one
// implementation of it. Tests substitute an in-memory fake.
package hypothesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quincelabs/quince/internal/annotation"
)

// DefaultBaseURL is the public Hypothesis API endpoint.
const DefaultBaseURL = "https://api.hypothes.is/api"

// DefaultPageSize is the bounded page size used for cursor-ordered fetches.
const DefaultPageSize = 200

// Remote-source errors, checked with errors.Is().
var (
	// ErrUnauthorized is returned on authentication or authorization
	// failures. Not retried automatically.
	ErrUnauthorized = errors.New("remote source rejected credentials")

	// ErrRemote is returned for any other remote failure.
	ErrRemote = errors.New("remote source error")
)

// Query describes one page request against the remote source.
type Query struct {
	// User restricts results to one author (e.g. "acct:name@hypothes.is").
	User string
	// Group restricts results to one group.
	Group string
	// SearchAfter is the cursor: only records whose sort value is strictly
	// after it are returned. Callers wanting records tied at the cursor
	// must step it back themselves.
	SearchAfter string
	// Limit bounds the page size. Zero means DefaultPageSize.
	Limit int
	// Descending flips the sort direction. Sync always fetches ascending.
	Descending bool
}

// Source is the remote capability the core engines consume.
//
// Search returns one page of annotations ordered ascending by update time.
// Update, Move, and Delete push local edits upstream; they are used by the
// tagging and move commands, not by the sync path.
type Source interface {
	Search(ctx context.Context, q Query) ([]annotation.Annotation, error)
	Update(ctx context.Context, id string, tags []string) error
	Move(ctx context.Context, id, group string) error
	Delete(ctx context.Context, id string) error
}

// Client is the HTTP implementation of Source.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given API root. An empty baseURL uses
// the public endpoint. The token is the account's developer API key.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// searchResponse mirrors the wire shape of GET /search.
type searchResponse struct {
	Total int                     `json:"total"`
	Rows  []annotation.Annotation `json:"rows"`
}

// Search implements Source.Search.
func (c *Client) Search(ctx context.Context, q Query) ([]annotation.Annotation, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "updated")
	if q.Descending {
		params.Set("order", "desc")
	} else {
		params.Set("order", "asc")
	}
	if q.SearchAfter != "" {
		params.Set("search_after", q.SearchAfter)
	}
	if q.User != "" {
		params.Set("user", q.User)
	}
	if q.Group != "" {
		params.Set("group", q.Group)
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// Update implements Source.Update, replacing an annotation's tag set.
func (c *Client) Update(ctx context.Context, id string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	body, err := json.Marshal(map[string]any{"tags": tags})
	if err != nil {
		return fmt.Errorf("failed to marshal tag update: %w", err)
	}
	return c.do(ctx, http.MethodPatch, "/annotations/"+url.PathEscape(id), body, nil)
}

// Move implements Source.Move, reassigning an annotation to another group.
func (c *Client) Move(ctx context.Context, id, group string) error {
	body, err := json.Marshal(map[string]any{"group": group})
	if err != nil {
		return fmt.Errorf("failed to marshal group update: %w", err)
	}
	return c.do(ctx, http.MethodPatch, "/annotations/"+url.PathEscape(id), body, nil)
}

// Delete implements Source.Delete.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/annotations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrRemote)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrRemote)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}
