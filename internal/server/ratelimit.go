package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/logging"
)

// defaultRateBurst applies when RateLimit is set without RateBurst.
const defaultRateBurst = 20

const (
	// bucketIdle is how long a client may stay quiet before its bucket is
	// forgotten. A returning client starts with a full bucket.
	bucketIdle = 5 * time.Minute

	// sweepEvery is the interval between idle-bucket sweeps.
	sweepEvery = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	tokens *rate.Limiter
	seen   time.Time
}

// rateLimiter throttles the build and search endpoints per client address.
type rateLimiter struct {
	// mu guards buckets.
	mu      sync.Mutex
	buckets map[string]*bucket

	rps   rate.Limit
	burst int
	log   *slog.Logger

	// now is the sweep clock.
	now func() time.Time

	// rejected counts 429 responses. Optional.
	rejected prometheus.Counter
}

// newRateLimiter returns a limiter allowing rps sustained requests and burst
// extra per client, plus a stop func for its sweeper. stop is idempotent.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
		now:     time.Now,
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.sweep()
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// allow spends one token from client's bucket.
func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[client] = b
	}
	b.seen = rl.now()
	rl.mu.Unlock()
	return b.tokens.Allow()
}

// sweep forgets buckets idle for longer than bucketIdle.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-bucketIdle)
	for client, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
}

// tracked reports how many clients currently hold a bucket.
func (rl *rateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// middleware answers 429 with a retry-class error body once a client's
// bucket is empty.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if rl.allow(client) {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("request throttled",
			slog.String("client", client),
			slog.String("path", r.URL.Path),
		)
		if rl.rejected != nil {
			rl.rejected.Inc()
		}
		w.Header().Set("Retry-After", "1")
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{
			Error: "rate limit exceeded",
			Kind:  "rate_limited",
			Class: string(apperr.ClassRetry),
		})
	})
}

// clientIP is the host part of RemoteAddr. Forwarding headers are ignored,
// so clients behind one proxy share a bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
