// Package ghstore implements a versioned object store over the GitHub
// repository contents API: get/put/delete with optimistic version tokens
// plus directory listing. The version token is the git blob SHA the API
// reports for a file.
package ghstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/itaober/memogit/internal/models"
)

const defaultBaseURL = "https://api.github.com"

// Config identifies the repository used as the backing store.
type Config struct {
	Owner  string
	Repo   string
	Branch string

	// BaseURL overrides the GitHub API endpoint (tests, GitHub Enterprise).
	// Empty means api.github.com.
	BaseURL string

	// Retry overrides the transient failure policy. The zero value means
	// DefaultRetryConfig.
	Retry RetryConfig
}

// Entry is one item of a directory listing.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// Client talks to the GitHub contents API for a single repository.
// It retries transient failures internally; every other failure mode is
// surfaced as a classified models.Error.
type Client struct {
	cfg        Config
	tokens     TokenSource
	httpClient *http.Client
	retry      RetryConfig
}

// NewClient creates a contents API client for the configured repository.
func NewClient(cfg Config, tokens TokenSource) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry,
	}
}

// contentsURL builds the API URL for a path, escaping each segment.
func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.cfg.BaseURL, c.cfg.Owner, c.cfg.Repo, strings.Join(segments, "/"))
}

// fileResponse is the contents API shape for a single file.
type fileResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

// GetText fetches a file and returns its content with the current version
// token. A missing file is a classified NotFound.
func (c *Client) GetText(ctx context.Context, path string) (string, string, error) {
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		u := c.contentsURL(path) + "?ref=" + url.QueryEscape(c.cfg.Branch)
		return c.newRequest(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return "", "", fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("get %s: %w", path, c.statusError(resp))
	}

	var file fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", "", fmt.Errorf("get %s: decode response: %w", path, err)
	}
	if file.Type != "file" {
		return "", "", models.Validation(fmt.Sprintf("%s is not a file", path))
	}
	// The API wraps base64 content with newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", "", fmt.Errorf("get %s: decode content: %w", path, err)
	}
	return string(raw), file.SHA, nil
}

// putRequest is the contents API shape for creating or replacing a file.
type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// Put creates or replaces a file and returns the new version token.
//
// When expectedVersion is empty the current blob SHA is looked up first and
// the write lands on top of whatever is there (last-write-wins). When it is
// set and stale, the write fails with a classified Conflict.
func (c *Client) Put(ctx context.Context, path string, content []byte, message, expectedVersion string) (string, error) {
	sha := expectedVersion
	if sha == "" {
		// Unconditional write: adopt whatever version currently exists.
		current, err := c.currentSHA(ctx, path)
		if err != nil {
			return "", fmt.Errorf("put %s: %w", path, err)
		}
		sha = current
	}

	body, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.cfg.Branch,
		SHA:     sha,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: encode request: %w", path, err)
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPut, c.contentsURL(path), body)
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("put %s: %w", path, c.statusError(resp))
	}

	var result struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("put %s: decode response: %w", path, err)
	}
	return result.Content.SHA, nil
}

// deleteRequest is the contents API shape for deleting a file.
type deleteRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

// DeleteObject removes a file. It returns false without error when the file
// is already absent. A stale expectedVersion fails with a classified
// Conflict.
func (c *Client) DeleteObject(ctx context.Context, path, message, expectedVersion string) (bool, error) {
	sha := expectedVersion
	if sha == "" {
		current, err := c.currentSHA(ctx, path)
		if err != nil {
			return false, fmt.Errorf("delete %s: %w", path, err)
		}
		if current == "" {
			return false, nil
		}
		sha = current
	}

	body, err := json.Marshal(deleteRequest{Message: message, SHA: sha, Branch: c.cfg.Branch})
	if err != nil {
		return false, fmt.Errorf("delete %s: encode request: %w", path, err)
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodDelete, c.contentsURL(path), body)
	})
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("delete %s: %w", path, c.statusError(resp))
	}
	return true, nil
}

// ListDir lists the files of a directory. A missing directory yields an
// empty list, not an error.
func (c *Client) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		u := c.contentsURL(dir) + "?ref=" + url.QueryEscape(c.cfg.Branch)
		return c.newRequest(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: %w", dir, c.statusError(resp))
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("list %s: decode response: %w", dir, err)
	}
	return entries, nil
}

// currentSHA returns the current blob SHA of path, or "" when absent.
func (c *Client) currentSHA(ctx context.Context, path string) (string, error) {
	_, sha, err := c.GetText(ctx, path)
	if models.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sha, nil
}

// newRequest builds an authenticated contents API request.
func (c *Client) newRequest(ctx context.Context, method, u string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, models.AuthInvalid().Wrap(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// statusError classifies a non-success response. The body is consumed for
// the error message.
func (c *Client) statusError(resp *http.Response) error {
	msg := fmt.Sprintf("GitHub API error %d", resp.StatusCode)
	var apiErr struct {
		Message string `json:"message"`
	}
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, apiErr.Message)
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return models.AuthInvalid()
	case http.StatusForbidden:
		return models.RateLimited()
	case http.StatusNotFound:
		return models.NotFound("object")
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// GitHub reports a stale SHA either as 409 or as a 422 validation
		// failure depending on the endpoint.
		return models.Conflict(msg)
	default:
		return models.Network(msg)
	}
}
