package blobstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/pkg/logger"
)

type backendFactory func(t *testing.T) blobstore.Store

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) blobstore.Store {
			t.Helper()
			return blobstore.NewMemory()
		},
		"badger": func(t *testing.T) blobstore.Store {
			t.Helper()
			s, err := blobstore.NewBadger("", logger.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) blobstore.Store {
			t.Helper()
			s, err := blobstore.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "blobs.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreConformance(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("missing key is not found", func(t *testing.T) {
				s := open(t)
				_, err := s.Get(context.Background(), "history.csv")
				assert.ErrorIs(t, err, evalerr.ErrNotFound)
			})

			t.Run("create then read", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				v1, err := s.Put(ctx, "history.csv", []byte("a"), "")
				require.NoError(t, err)
				require.NotEmpty(t, v1)

				b, err := s.Get(ctx, "history.csv")
				require.NoError(t, err)
				assert.Equal(t, []byte("a"), b.Data)
				assert.Equal(t, v1, b.Version)
			})

			t.Run("create over existing conflicts", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				_, err := s.Put(ctx, "k", []byte("a"), "")
				require.NoError(t, err)
				_, err = s.Put(ctx, "k", []byte("b"), "")
				assert.ErrorIs(t, err, evalerr.ErrVersionConflict)

				b, err := s.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, []byte("a"), b.Data)
			})

			t.Run("stale version conflicts", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				v1, err := s.Put(ctx, "k", []byte("a"), "")
				require.NoError(t, err)
				v2, err := s.Put(ctx, "k", []byte("b"), v1)
				require.NoError(t, err)
				assert.NotEqual(t, v1, v2)

				_, err = s.Put(ctx, "k", []byte("c"), v1)
				assert.ErrorIs(t, err, evalerr.ErrVersionConflict)

				b, err := s.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, []byte("b"), b.Data)
				assert.Equal(t, v2, b.Version)
			})

			t.Run("update of missing key conflicts", func(t *testing.T) {
				s := open(t)
				_, err := s.Put(context.Background(), "k", []byte("a"), "7")
				assert.ErrorIs(t, err, evalerr.ErrVersionConflict)
			})

			t.Run("concurrent compare and swap loses nothing", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				_, err := s.Put(ctx, "counter", []byte("0"), "")
				require.NoError(t, err)

				const writers = 8
				var wg sync.WaitGroup
				for i := 0; i < writers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						for {
							b, err := s.Get(ctx, "counter")
							if err != nil {
								continue
							}
							n, _ := strconv.Atoi(string(b.Data))
							_, err = s.Put(ctx, "counter", []byte(strconv.Itoa(n+1)), b.Version)
							if err == nil || !evalerr.Retryable(err) {
								return
							}
						}
					}()
				}
				wg.Wait()

				b, err := s.Get(ctx, "counter")
				require.NoError(t, err)
				assert.Equal(t, strconv.Itoa(writers), string(b.Data))
			})
		})
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s := blobstore.NewMemory()

	wrote, err := blobstore.Seed(ctx, s, "labels.csv", []byte("id,target\n"))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = blobstore.Seed(ctx, s, "labels.csv", []byte("other"))
	require.NoError(t, err)
	assert.False(t, wrote)

	b, err := s.Get(ctx, "labels.csv")
	require.NoError(t, err)
	assert.Equal(t, "id,target\n", string(b.Data))
}

type slowStore struct{ blobstore.Store }

func (s slowStore) Get(ctx context.Context, key string) (blobstore.Blob, error) {
	<-ctx.Done()
	return blobstore.Blob{}, ctx.Err()
}

func TestDecorators(t *testing.T) {
	t.Run("timeout becomes transient", func(t *testing.T) {
		s := blobstore.WithTimeout(slowStore{blobstore.NewMemory()}, 10*time.Millisecond)
		_, err := s.Get(context.Background(), "k")
		assert.ErrorIs(t, err, evalerr.ErrTransient)
		assert.True(t, evalerr.Retryable(err))
	})

	t.Run("zero timeout is a no-op", func(t *testing.T) {
		m := blobstore.NewMemory()
		assert.Same(t, m, blobstore.WithTimeout(m, 0))
	})

	t.Run("rate limit waits for tokens", func(t *testing.T) {
		s := blobstore.WithRateLimit(blobstore.NewMemory(), rate.NewLimiter(rate.Limit(1), 1))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, evalerr.ErrNotFound)

		_, err = s.Get(ctx, "k")
		assert.ErrorIs(t, err, evalerr.ErrTransient)
	})

	t.Run("instrumented store passes results through", func(t *testing.T) {
		s := blobstore.Instrument(blobstore.NewMemory(), "memory")
		v, err := s.Put(context.Background(), "k", []byte("x"), "")
		require.NoError(t, err)
		b, err := s.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, v, b.Version)
		assert.NoError(t, blobstore.Close(s))
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := blobstore.Open(ctx, blobstore.Settings{Backend: "memory", Timeout: time.Second, RateLimitRPS: 100}, logger.NewNop())
	require.NoError(t, err)
	_, err = s.Put(ctx, "k", []byte("x"), "")
	require.NoError(t, err)

	s, err = blobstore.Open(ctx, blobstore.Settings{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "b.db")}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobstore.Close(s) })

	_, err = blobstore.Open(ctx, blobstore.Settings{Backend: "ftp"}, logger.NewNop())
	assert.True(t, errors.Is(err, blobstore.ErrUnknownBackend))

	_, err = blobstore.Open(ctx, blobstore.Settings{Backend: "github", GitHubRepo: "no-slash"}, logger.NewNop())
	assert.ErrorIs(t, err, blobstore.ErrInvalidRepo)
}
