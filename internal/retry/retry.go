// Package retry implements the backoff policy for rate-limited agent
// invocations. Rate-limit retries are unbounded by design: capacity errors
// resolve themselves, and giving up on one would surface a spurious failure
// for something that is not the caller's fault.
package retry

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultInitialBackoff is the base delay for the first retry.
	DefaultInitialBackoff = 5 * time.Second
	// DefaultMaxBackoff caps both exponential growth and server hints.
	DefaultMaxBackoff = 320 * time.Second
	// DefaultJitterFactor applies symmetric +/-25% jitter to the base.
	DefaultJitterFactor = 0.25
	// minBackoff is the floor after jitter.
	minBackoff = 100 * time.Millisecond
)

// rateLimitIndicators is the fixed vocabulary of rate-limit and overload
// signatures matched against error text.
var rateLimitIndicators = []string{
	"429",
	"rate limit",
	"rate_limit",
	"ratelimit",
	"overloaded",
	"too many requests",
	"capacity",
	"throttl",
}

// retryAfterPatterns extract a server-suggested delay from free-text error
// messages.
var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)try again in (\d+(?:\.\d+)?)\s*(?:seconds?)?`),
	regexp.MustCompile(`(?i)wait (\d+(?:\.\d+)?)\s*(?:seconds?)?`),
}

// Policy computes backoff durations. The zero value is not usable; call
// NewPolicy. Jitter randomness is injectable so tests are deterministic.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
	rnd     func() float64
}

// NewPolicy returns a Policy with the default constants.
func NewPolicy() *Policy {
	return &Policy{
		Initial: DefaultInitialBackoff,
		Max:     DefaultMaxBackoff,
		Jitter:  DefaultJitterFactor,
		rnd:     rand.Float64,
	}
}

// Backoff returns the delay before retry number attempt (0-indexed). When
// hint is positive it is used as the base, capped at Max; otherwise the base
// grows exponentially from Initial, doubling per attempt, capped at Max.
// Symmetric jitter of +/-Jitter is applied to avoid synchronized retry
// storms across concurrent callers.
func (p *Policy) Backoff(attempt int, hint time.Duration) time.Duration {
	var base time.Duration
	if hint > 0 {
		base = hint
		if base > p.Max {
			base = p.Max
		}
	} else {
		base = p.Initial
		for i := 0; i < attempt && base < p.Max; i++ {
			base *= 2
		}
		if base > p.Max {
			base = p.Max
		}
	}

	jitter := time.Duration(float64(base) * p.Jitter * (2*p.rnd() - 1))
	d := base + jitter
	if d < minBackoff {
		d = minBackoff
	}
	return d
}

// IsRateLimit reports whether the error text matches a rate-limit or
// overload signature. Any other error is a caller or programming fault that
// retrying will not fix.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range rateLimitIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

// ExtractRetryAfter parses a server-suggested retry delay out of an error
// message. Returns 0 if no hint is present.
func ExtractRetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}
	msg := err.Error()
	for _, pat := range retryAfterPatterns {
		if m := pat.FindStringSubmatch(msg); m != nil {
			secs, perr := strconv.ParseFloat(m[1], 64)
			if perr == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}
