package api

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 10 << 20

const contentSecurityPolicy = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data: https:"

// securityHeaders sets the response headers browsers use to restrict
// what a page served by us may do.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// bodyLimit caps the readable request body at n bytes.
func bodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// recoverer turns a panic into a JSON 500. The stack trace is included
// outside production.
func recoverer(logger *log.Logger, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := debug.Stack()
				logger.Printf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, stack)

				message := "Internal Server Error"
				switch v := rec.(type) {
				case error:
					message = v.Error()
				case string:
					message = v
				}

				trace := ""
				if !production {
					trace = fmt.Sprintf("%v\n%s", rec, stack)
				}
				writeFault(w, http.StatusInternalServerError, message, trace)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter applies a token bucket per client IP. The bucket holds
// perWindow tokens and refills at perWindow per window.
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perWindow int
	window    time.Duration
	every     rate.Limit
	message   string
	now       func() time.Time
}

// pruneThreshold is the visitor count above which idle entries are dropped.
const pruneThreshold = 1024

func newIPLimiter(perWindow int, window time.Duration, message string) *ipLimiter {
	l := &ipLimiter{
		visitors:  make(map[string]*visitor),
		perWindow: perWindow,
		window:    window,
		message:   message,
		now:       time.Now,
	}
	if perWindow > 0 && window > 0 {
		l.every = rate.Every(window / time.Duration(perWindow))
	}
	return l
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.perWindow)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	if len(l.visitors) > pruneThreshold {
		for key, other := range l.visitors {
			if now.Sub(other.lastSeen) > l.window {
				delete(l.visitors, key)
			}
		}
	}

	return v.limiter.AllowN(now, 1)
}

// Handler rejects requests over budget with a JSON 429. A non-positive
// budget disables limiting.
func (l *ipLimiter) Handler(next http.Handler) http.Handler {
	if l.perWindow <= 0 || l.window <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("RateLimit-Limit", strconv.Itoa(l.perWindow))
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			writeFault(w, http.StatusTooManyRequests, l.message, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// rewritten from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
