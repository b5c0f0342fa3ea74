package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

const defaultIdleTTL = 2 * time.Hour

// Sessions maps session IDs to their Deduper. A session's state is dropped
// after it has been idle for the configured TTL.
type Sessions struct {
	mu      sync.Mutex
	items   *cache.Cache
	ttl     time.Duration
	maxSize int
	log     logger.Logger
}

// NewSessions creates an empty registry.
func NewSessions(opts ...SessionsOption) *Sessions {
	s := &Sessions{
		ttl:     defaultIdleTTL,
		maxSize: defaultMaxSize,
		log:     logger.GetOrNop().Named("sessions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.items = cache.New(s.ttl, s.ttl/2)
	s.items.OnEvicted(func(id string, _ any) {
		s.log.Debug(context.Background(), "session expired", logger.String("session", id))
	})
	return s
}

// For returns the deduper of session id, creating it on first use, and
// extends the session's lifetime.
func (s *Sessions) For(id string) Deduper {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.items.Get(id)
	if !ok {
		d = NewInMemoryDeduper(WithMaxSize(s.maxSize))
	}
	s.items.SetDefault(id, d)
	metrics.UpdateActiveSessions(s.items.ItemCount())
	return d.(Deduper)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.items.ItemCount()
}

// Drop forgets a session.
func (s *Sessions) Drop(id string) {
	s.items.Delete(id)
}
