package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AlessioGiambrone/stackistry/internal/ratelimit"
)

// RateLimiter meters export requests per subject; cost is the number of
// output steps the request asks to render.
type RateLimiter interface {
	Allow(ctx context.Context, subject string, cost int64) (ratelimit.Decision, error)
}

// allowRequest charges the caller's budget and writes the 429 response when
// it is exhausted. Returns false if the handler must stop. A failing
// limiter lets the request through: the queue is the backstop, not the
// limiter.
func (s *Server) allowRequest(w http.ResponseWriter, r *http.Request, cost int64) bool {
	if s.rateLimiter == nil {
		return true
	}

	subject := strings.TrimSpace(r.Header.Get(s.userIDHeader))
	if subject == "" {
		subject = "anonymous"
	}

	decision, err := s.rateLimiter.Allow(r.Context(), subject, cost)
	if err != nil {
		s.logger.Printf("rate limiter check failed subject=%s cost=%d err=%v", subject, cost, err)
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	if decision.Allowed {
		return true
	}

	retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(routeLabel(r.URL.Path)).Inc()
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error": "rate limit exceeded",
	})
	return false
}
