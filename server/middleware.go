package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID returns the request ID attached by the middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID assigns each request a UUID, honoring an incoming X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// unauthenticated paths, reachable without a bearer token.
var openPaths = map[string]bool{
	"/healthz": true,
}

// authenticate validates the bearer JWT against the configured HMAC secret.
// Settings are read per request so secret rotation via hot reload applies
// without restart.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac := s.cfg.Get().Auth
		if !ac.Enabled || openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "auth", "missing or invalid authorization header")
			return
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(ac.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "auth", "invalid token")
			return
		}

		if ac.Issuer != "" {
			iss, err := parsed.Claims.GetIssuer()
			if err != nil || iss != ac.Issuer {
				writeError(w, http.StatusUnauthorized, "auth", "invalid token issuer")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// limiterState caches the token bucket so hot reloads rebuild it only when
// the rate settings actually change.
type limiterState struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	perMin  int
	burst   int
}

func (l *limiterState) get(perMin, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limiter == nil || l.perMin != perMin || l.burst != burst {
		l.limiter = rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst)
		l.perMin = perMin
		l.burst = burst
	}
	return l.limiter
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl := s.cfg.Get().RateLimit
		if !rl.Enabled || openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.get(rl.RequestsPerMinute, rl.BurstSize).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limit", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
