package ghstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/itaober/memogit/internal/models"
)

// RetryConfig bounds the internal retry loop for transient failures.
type RetryConfig struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff and Retry-After cap
}

// DefaultRetryConfig returns the retry policy used against api.github.com.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
	}
}

// retryableStatus reports whether a response status is worth retrying.
// Conflicts, auth failures, and not-found are never retried here.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// doWithRetry executes a request with exponential backoff on transient
// failures. The build callback produces a fresh request per attempt so the
// body can be resent. A server Retry-After hint overrides the computed
// delay, capped at MaxDelay. Non-transient responses are returned to the
// caller for classification.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		wait := delay
		if err != nil {
			lastErr = models.Network("network error").Wrap(err)
		} else {
			lastErr = models.Network(fmt.Sprintf("GitHub API error %d", resp.StatusCode))
			if after := retryAfter(resp); after > 0 {
				wait = min(after, c.retry.MaxDelay)
			}
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}

		if attempt == c.retry.MaxRetries {
			break
		}
		slog.WarnContext(ctx, "Retrying request", "url", req.URL.Path, "attempt", attempt+1, "wait", wait, "err", lastErr)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, c.retry.MaxDelay)
	}
	return nil, lastErr
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
