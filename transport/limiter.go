package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"
)

// HostLimiter paces outbound calls per destination host. A zero rate disables
// pacing.
type HostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

func (l *HostLimiter) Enabled() bool {
	return l != nil && l.limit > 0
}

func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.limiter(host).Wait(ctx); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: wait for host rate limit",
			http.StatusBadGateway,
			map[string]any{"host": host},
		)
	}
	return nil
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	host = strings.ToLower(strings.TrimSpace(host))
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}
