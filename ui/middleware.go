package ui

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"riskboard/domain/core"
	"riskboard/internal/errors"
)

// requestLogger logs one line per request once the response is written
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// requireSession rejects requests while nobody is signed in
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Current().SignedIn() {
			s.writeError(w, errors.Unauthorized("Please sign in to continue"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitUploads applies the per-identity upload budget
func (s *Server) rateLimitUploads(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.auth.Current().Identity
		if !s.limiter.allow(id) {
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.retryAfter()))
			s.logger.Warn("upload rate limit exceeded", "identity", id)
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error: "Too many uploads. Please try again later.",
				Code:  "RATE_LIMITED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limiterCleanupInterval is how often idle per-identity limiters are dropped.
// An entry idle for twice the interval is removed.
const limiterCleanupInterval = 5 * time.Minute

type identityLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// uploadLimiter keeps one token bucket per identity
type uploadLimiter struct {
	mu        sync.Mutex
	perMinute int
	limit     rate.Limit
	burst     int
	limiters  map[core.ID]*identityLimiter
	now       func() time.Time
}

func newUploadLimiter(perMinute int) *uploadLimiter {
	return &uploadLimiter{
		perMinute: perMinute,
		limit:     rate.Limit(float64(perMinute) / 60),
		burst:     perMinute,
		limiters:  make(map[core.ID]*identityLimiter),
		now:       time.Now,
	}
}

func (l *uploadLimiter) allow(id core.ID) bool {
	l.mu.Lock()
	il, ok := l.limiters[id]
	if !ok {
		il = &identityLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[id] = il
	}
	il.lastAccess = l.now()
	l.mu.Unlock()
	return il.limiter.Allow()
}

// retryAfter is the whole seconds until one more token is available
func (l *uploadLimiter) retryAfter() int {
	return (60 + l.perMinute - 1) / l.perMinute
}

// cleanupLoop drops idle limiters until ctx is done
func (l *uploadLimiter) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(2 * interval)
		case <-ctx.Done():
			return
		}
	}
}

// cleanup removes limiters not used within ttl
func (l *uploadLimiter) cleanup(ttl time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, il := range l.limiters {
		if now.Sub(il.lastAccess) > ttl {
			delete(l.limiters, id)
		}
	}
}

func (l *uploadLimiter) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
