// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package insightvm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	defaultMaxAttempts    = 4
	defaultInitialDelay   = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultRateLimitDelay = 5 * time.Second
)

// retryPolicy bounds the retry loop around a single logical request.
// The sleep function is injectable for tests.
type retryPolicy struct {
	maxAttempts    int
	initialDelay   time.Duration
	factor         float64
	rateLimitDelay time.Duration
	sleep          func(time.Duration)
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts:    defaultMaxAttempts,
		initialDelay:   defaultInitialDelay,
		factor:         defaultBackoffFactor,
		rateLimitDelay: defaultRateLimitDelay,
		sleep:          time.Sleep,
	}
}

// newBackOff builds the exponential schedule for one logical request.
func (p retryPolicy) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialDelay
	bo.Multiplier = p.factor
	bo.RandomizationFactor = 0
	bo.MaxInterval = 10 * time.Minute
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// request issues an authenticated request against the console and returns
// the response, retrying transient failures per the retry policy. The
// returned response always has a 2xx status; the caller owns the body.
func (c *Client) request(ctx context.Context, url, method string) (*http.Response, error) {
	bo := c.retry.newBackOff()

	var lastErr error
	for attempt := 1; attempt <= c.retry.maxAttempts; attempt++ {
		resp, err := c.do(ctx, url, method)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
		if attempt == c.retry.maxAttempts {
			break
		}

		wait := bo.NextBackOff()
		var rateLimited *RateLimitError
		if errors.As(err, &rateLimited) {
			wait = c.retry.rateLimitDelay
			if rateLimited.RetryAfter > 0 {
				wait = time.Duration(rateLimited.RetryAfter) * time.Second
			}
		}

		c.logger.Warn("retrying request",
			"url", url, "attempt", attempt, "wait", wait.String(), "err", err)
		c.retry.sleep(wait)
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", url, c.retry.maxAttempts, lastErr)
}

// do issues a single attempt without retry handling.
func (c *Client) do(ctx context.Context, url, method string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+basicAuth(c.username, c.password))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, responseError(url, resp)
	}

	return resp, nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
