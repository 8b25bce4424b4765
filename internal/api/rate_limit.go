package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelshelf/internal/ratelimit"
)

type RateLimiter interface {
	AllowN(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

// Routes that decode and re-encode an image spend more of the budget than a
// delete. Reads are never limited.
var routeCosts = map[string]int{
	"/api/upload":      2,
	"/api/save":        2,
	"/api/edit":        2,
	"/api/images/{id}": 1,
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cost, limited := requestCost(r)
		if !limited {
			next.ServeHTTP(w, r)
			return
		}

		route := routeLabel(r.URL.Path)
		subject := s.rateLimitSubject(r) + ":" + route
		decision, err := s.rateLimiter.AllowN(r.Context(), subject, cost)
		if err != nil {
			s.logger.Printf("rate limiter check failed subject=%s err=%v", subject, err)
			next.ServeHTTP(w, r)
			return
		}

		if decision.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := max(1, int(decision.RetryAfter.Round(time.Second).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: "rate limit exceeded",
			Kind:  "rate_limited",
		})
	})
}

func requestCost(r *http.Request) (int, bool) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
		return 0, false
	}
	cost, ok := routeCosts[routeLabel(r.URL.Path)]
	return cost, ok
}

// rateLimitSubject prefers the configured user header and falls back to the
// peer address.
func (s *Server) rateLimitSubject(r *http.Request) string {
	if subject := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader)); subject != "" {
		return subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "anonymous"
	}
	return host
}
