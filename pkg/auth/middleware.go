package auth

import (
	"crypto/subtle"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"chatsync/pkg/logger"
)

// limiterPool keeps one token bucket per caller address.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 5
	}
	burst := p.burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// Middleware guards the local control API with an optional shared key
// and a per-address rate limit.
type Middleware struct {
	apiKey  string
	limiter *limiterPool
}

// NewMiddleware builds the guard. An empty apiKey disables the key
// check (the API still only binds to loopback by default).
func NewMiddleware(apiKey string, rps float64, burst int) *Middleware {
	return &Middleware{
		apiKey:  apiKey,
		limiter: &limiterPool{rps: rps, burst: burst},
	}
}

// Wrap applies rate limiting and key verification to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LogRequest(r)
		addr := callerAddr(r)
		if !m.limiter.Allow(addr) {
			logger.Warn("rate_limited", "remote", addr, "path", r.URL.Path)
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		if m.apiKey != "" {
			got := r.Header.Get("X-API-Key")
			if got == "" {
				if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
					got = strings.TrimPrefix(h, "Bearer ")
				}
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(m.apiKey)) != 1 {
				logger.Warn("invalid_api_key", "remote", addr, "path", r.URL.Path)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func callerAddr(r *http.Request) string {
	host := r.RemoteAddr
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		host = ap.Addr().String()
	}
	return host
}
