// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the rate-limited HTTP caller shared by the
// external service clients.
package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// HTTP 429 responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// Caller issues HTTP requests through an optional rate limiter and retries
// HTTP 429 responses up to MaxRetries times. With MaxRetries zero every
// request is attempted exactly once.
type Caller struct {
	Client     *http.Client
	Limiter    *rate.Limiter
	MaxRetries int
	Logger     *zap.Logger
}

// NewCaller builds a Caller that allows rps requests per second. A
// non-positive rps disables limiting.
func NewCaller(client *http.Client, rps float64, maxRetries int, log *zap.Logger) *Caller {
	c := &Caller{Client: client, MaxRetries: maxRetries, Logger: log}
	if rps > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

// Do sends req. The delay before retry n is RetryBaseDelay * 2^n unless
// the server supplies Retry-After in seconds. If the context is cancelled
// while waiting Do returns ctx.Err(). After the last retry the 429
// response is returned so the caller can inspect it.
func (c *Caller) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}

	for attempt := 0; ; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptReq := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attemptReq.Body = body
		}
		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.MaxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			backoff = time.Duration(s) * time.Second
		}
		log.Warn("rate limited, backing off",
			zap.String("url", req.URL.Redacted()),
			zap.Duration("backoff", backoff),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.MaxRetries))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
