package chat

import (
	"fmt"
	"sync"

	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"golang.org/x/time/rate"
)

// RateLimitedError is returned when a key sends faster than its budget.
type RateLimitedError struct {
	Key models.ConversationKey
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many messages for %s, slow down", e.Key)
}

// limiter keeps one token bucket per conversation key.
type limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[models.ConversationKey]*rate.Limiter
}

func newLimiter(perSecond float64, burst int) *limiter {
	if burst < 1 {
		burst = 1
	}
	return &limiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[models.ConversationKey]*rate.Limiter),
	}
}

func (l *limiter) allow(key models.ConversationKey) error {
	if l.limit <= 0 {
		return nil
	}
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	if !b.Allow() {
		return &RateLimitedError{Key: key}
	}
	return nil
}
