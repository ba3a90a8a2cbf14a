package github

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Rate limit response headers
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

// RateLimit is the last rate limit state GitHub reported to this client
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimitStatus is the body of GET /rate_limit
type RateLimitStatus struct {
	Core    RateLimit
	Search  RateLimit
	GraphQL RateLimit
}

type rateLimitResource struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

func (r rateLimitResource) toRateLimit() RateLimit {
	return RateLimit{Limit: r.Limit, Remaining: r.Remaining, Reset: time.Unix(r.Reset, 0)}
}

// RateLimit returns a snapshot of the tracked rate limit state
func (c *Client) RateLimit() RateLimit {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	return c.rate
}

// updateRateLimit applies whichever rate limit headers are present
func (c *Client) updateRateLimit(h http.Header) {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	changed := false
	if v, err := strconv.Atoi(h.Get(HeaderRateLimit)); err == nil {
		c.rate.Limit = v
		changed = true
	}
	if v, err := strconv.Atoi(h.Get(HeaderRateRemaining)); err == nil {
		c.rate.Remaining = v
		changed = true
	}
	if v, err := strconv.ParseInt(h.Get(HeaderRateReset), 10, 64); err == nil {
		c.rate.Reset = time.Unix(v, 0)
		changed = true
	}
	if changed {
		c.metrics.SetRateLimit(c.rate.Limit, c.rate.Remaining)
	}
}

func (c *Client) rateLimitError() *RateLimitError {
	rl := c.RateLimit()
	wait := 0
	if !rl.Reset.IsZero() {
		if d := rl.Reset.Sub(c.now()); d > 0 {
			wait = int(math.Ceil(d.Minutes()))
		}
	}
	return &RateLimitError{
		Limit:       rl.Limit,
		Remaining:   rl.Remaining,
		Reset:       rl.Reset,
		WaitMinutes: wait,
	}
}
