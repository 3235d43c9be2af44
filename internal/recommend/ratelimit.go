package recommend

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxTrackedClients bounds the memory held by MemoryLimiter.
const maxTrackedClients = 10000

// Limiter decides whether a client may submit another recommendation.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a sliding-window limiter that keeps a timestamp log per client.
// Clients idle for longer than the window are evicted, as are the least recently
// seen clients once the bound is reached.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu  sync.Mutex
	log *expirable.LRU[string, []time.Time]
}

// NewMemoryLimiter allows limit requests per client within any window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		log:    expirable.NewLRU[string, []time.Time](maxTrackedClients, nil, window),
	}
}

// Allow records the request and reports whether it is within the limit.
// Rejected requests are not recorded.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	previous, _ := l.log.Get(key)

	recent := make([]time.Time, 0, len(previous)+1)
	for _, t := range previous {
		if now.Sub(t) < l.window {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.log.Add(key, recent)
		return false, nil
	}

	l.log.Add(key, append(recent, now))
	return true, nil
}

// ClientKey identifies the submitting client: the first X-Forwarded-For entry,
// then X-Real-IP, then the host part of the remote address.
func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
