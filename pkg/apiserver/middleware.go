package apiserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// principal identifies an authenticated API caller.
type principal struct {
	name string
	role Role
}

type contextKey int

const principalContextKey contextKey = 1

// maxRequestBodyBytes caps request bodies at 1 MiB. Every control-plane
// payload (node descriptors, market entries, reachability reports) fits well
// under this.
const maxRequestBodyBytes = 1 << 20

// applyMiddleware wraps the mux with the control-plane middleware chain.
// Order, outermost first: recovery, requestID, logging, cors, auth,
// rateLimit, rbac, bodyLimit.
func (s *Server) applyMiddleware(h http.Handler) http.Handler {
	h = requestBodyLimitMiddleware(h)
	h = s.rbacMiddleware(h)
	h = s.rateLimitMiddleware(h)
	h = s.authMiddleware(h)
	h = s.corsMiddleware(h)
	h = loggingMiddleware(h)
	h = requestIDMiddleware(h)
	h = recoveryMiddleware(h)
	return h
}

// isProbe reports whether the path is a liveness/readiness probe. Probes stay
// open even with authentication enabled.
func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

// authMiddleware resolves the caller's Bearer token into a principal. With no
// API keys configured the server runs open and every caller is an admin; that
// mode is for development and tests only.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if len(s.opts.APIKeys) == 0 {
			p := principal{name: "anonymous", role: RoleAdmin}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalContextKey, p)))
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		info, ok := s.opts.APIKeys[token]
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown API key")
			return
		}
		p := principal{name: info.Description, role: info.Role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalContextKey, p)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token := strings.TrimPrefix(h, "Bearer ")
	if token == h || token == "" {
		return "", false
	}
	return token, true
}

// callerPrincipal returns the principal stored by authMiddleware.
func callerPrincipal(r *http.Request) principal {
	p, _ := r.Context().Value(principalContextKey).(principal)
	return p
}

// agentWritable reports whether the endpoint belongs to the node agent's
// self-reporting surface: joining the fleet, heartbeats, reachability and
// link reports, and asset observation reports.
func agentWritable(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	p := r.URL.Path
	switch {
	case p == "/api/v1/nodes" || p == "/api/v1/topology/links":
		return true
	case strings.HasPrefix(p, "/api/v1/nodes/") &&
		(strings.HasSuffix(p, "/heartbeat") || strings.HasSuffix(p, "/reachability")):
		return true
	case strings.HasPrefix(p, "/api/v1/assets/") && strings.HasSuffix(p, "/reports"):
		return true
	}
	return false
}

// rbacMiddleware enforces method-level access: viewers read, agents
// additionally write to their self-reporting endpoints, operators write
// everywhere, and only admins delete.
func (s *Server) rbacMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		role := callerPrincipal(r).role
		var allowed bool
		switch r.Method {
		case http.MethodGet:
			allowed = true
		case http.MethodPost, http.MethodPut:
			allowed = role >= RoleOperator || (role == RoleAgent && agentWritable(r))
		default:
			allowed = role >= RoleAdmin
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestBodyLimitMiddleware caps request bodies so a misbehaving client
// cannot exhaust memory; oversized reads fail with 413.
func requestBodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware tags every request and response with an X-Request-ID,
// honoring one supplied by the caller so cross-service traces line up.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			b := make([]byte, 8)
			_, _ = rand.Read(b)
			id = hex.EncodeToString(b)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware writes one access-log line per request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		log.Printf("apiserver: %s %s %d %s rid=%s",
			r.Method, r.URL.Path, sr.status, time.Since(start), w.Header().Get("X-Request-ID"))
	})
}

// recoveryMiddleware turns handler panics into a 500 instead of tearing down
// the connection.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("apiserver: panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimiter hands out a token bucket per principal, so a chatty agent
// cannot starve operator traffic behind the same server.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(ratePerSec, burst float64) *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    ratePerSec,
		burst:   burst,
	}
}

// allow refills the caller's bucket and consumes one token if available.
func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}
	b.tokens += now.Sub(b.last).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// rateLimitMiddleware enforces a per-principal request budget (10 req/s
// sustained, burst of 50). Probes are exempt so orchestrator health checks
// never see a 429.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	limiter := newRateLimiter(10, 50)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !limiter.allow(callerPrincipal(r).name, time.Now()) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflight requests and reflects origins from the
// configured allowlist. With no allowlist the API stays same-origin only.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.opts.AllowedOrigins))
	for _, o := range s.opts.AllowedOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
