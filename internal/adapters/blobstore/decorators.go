package blobstore

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/pkg/metrics"
)

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call to next by d. A deadline hit is reported as
// evalerr.ErrTransient. A non-positive d returns next unchanged.
func WithTimeout(next Store, d time.Duration) Store {
	if d <= 0 {
		return next
	}
	return &timeoutStore{next: next, timeout: d}
}

func (s *timeoutStore) Get(ctx context.Context, key string) (Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	b, err := s.next.Get(ctx, key)
	return b, deadline(ctx, "blobstore.get", err)
}

func (s *timeoutStore) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.next.Put(ctx, key, data, expected)
	return v, deadline(ctx, "blobstore.put", err)
}

func (s *timeoutStore) Close() error { return Close(s.next) }

func deadline(ctx context.Context, op string, err error) error {
	if err == nil || errors.Is(err, evalerr.ErrTransient) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return evalerr.Wrap(op, evalerr.ErrTransient, err)
	}
	return err
}

type rateLimitedStore struct {
	next    Store
	limiter *rate.Limiter
}

// WithRateLimit makes every call to next wait for a token from limiter. A
// nil limiter returns next unchanged.
func WithRateLimit(next Store, limiter *rate.Limiter) Store {
	if limiter == nil {
		return next
	}
	return &rateLimitedStore{next: next, limiter: limiter}
}

func (s *rateLimitedStore) Get(ctx context.Context, key string) (Blob, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Blob{}, evalerr.Wrap("blobstore.ratelimit", evalerr.ErrTransient, err)
	}
	return s.next.Get(ctx, key)
}

func (s *rateLimitedStore) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", evalerr.Wrap("blobstore.ratelimit", evalerr.ErrTransient, err)
	}
	return s.next.Put(ctx, key, data, expected)
}

func (s *rateLimitedStore) Close() error { return Close(s.next) }

type instrumentedStore struct {
	next    Store
	backend string
}

// Instrument records request counts and latency for next under backend.
func Instrument(next Store, backend string) Store {
	return &instrumentedStore{next: next, backend: backend}
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (Blob, error) {
	start := time.Now()
	b, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return b, err
}

func (s *instrumentedStore) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	start := time.Now()
	v, err := s.next.Put(ctx, key, data, expected)
	s.observe("put", start, err)
	return v, err
}

func (s *instrumentedStore) Close() error { return Close(s.next) }

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = evalerr.Code(err)
	}
	metrics.RecordBlobRequest(s.backend, op, outcome)
	metrics.RecordBlobRequestLatency(s.backend, op, float64(time.Since(start).Microseconds())/1000)
}
