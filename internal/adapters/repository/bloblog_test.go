package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/domain/dedupe"
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

// flakyStore fails the first failures puts with err, then delegates.
type flakyStore struct {
	blobstore.Store
	failures int64
	err      error
	puts     atomic.Int64
}

func (s *flakyStore) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	if s.puts.Add(1) <= s.failures {
		return "", s.err
	}
	return s.Store.Put(ctx, key, data, expected)
}

// gatedStore holds the result of the first Get until gate is closed.
type gatedStore struct {
	blobstore.Store
	entered chan struct{}
	gate    chan struct{}
	once    atomic.Bool
}

func newGatedStore(inner blobstore.Store) *gatedStore {
	return &gatedStore{Store: inner, entered: make(chan struct{}), gate: make(chan struct{})}
}

func (s *gatedStore) Get(ctx context.Context, key string) (blobstore.Blob, error) {
	b, err := s.Store.Get(ctx, key)
	if s.once.CompareAndSwap(false, true) {
		close(s.entered)
		<-s.gate
	}
	return b, err
}

var t0 = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func record(user string, score float64, mode string) model.ResultRecord {
	return model.ResultRecord{
		Timestamp:       t0,
		UserID:          user,
		FileFingerprint: "fp-" + user,
		NIDs:            50,
		Score:           score,
		Mode:            mode,
	}
}

func newLog(store blobstore.Store, opts ...repository.Option) *repository.BlobLog {
	opts = append([]repository.Option{repository.WithBackoff(time.Millisecond, 5*time.Millisecond)}, opts...)
	l, err := repository.NewBlobLog(store, opts...)
	So(err, ShouldBeNil)
	return l
}

func TestAppendUnderRace(t *testing.T) {
	Convey("Given an empty log shared by many writers", t, func() {
		ctx := context.Background()
		store := blobstore.NewMemory()
		const writers = 24

		Convey("When each writer appends a distinct record concurrently", func() {
			var (
				wg     sync.WaitGroup
				failed atomic.Int64
			)
			for i := range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					// Each writer has its own log, as separate processes would.
					l, err := repository.NewBlobLog(store,
						repository.WithMaxAttempts(200),
						repository.WithBackoff(time.Millisecond, 4*time.Millisecond),
						repository.WithCacheTTL(0))
					if err != nil {
						failed.Add(1)
						return
					}
					if _, err := l.Append(ctx, dedupe.NewInMemoryDeduper(), record(fmt.Sprintf("user-%02d", i), float64(i), "a")); err != nil {
						failed.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then the log should hold exactly one row per writer", func() {
				So(failed.Load(), ShouldEqual, 0)
				recs, err := newLog(store).Snapshot(ctx)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, writers)

				users := make(map[string]int)
				for _, r := range recs {
					users[r.UserID]++
				}
				So(users, ShouldHaveLength, writers)
				for _, n := range users {
					So(n, ShouldEqual, 1)
				}
			})
		})
	})
}

func TestAppendDedupe(t *testing.T) {
	Convey("Given a session", t, func() {
		ctx := context.Background()
		l := newLog(blobstore.NewMemory())
		session := dedupe.NewInMemoryDeduper()
		rec := record("alice", 81.5, "track-a")

		Convey("When the same record is appended twice", func() {
			first, err := l.Append(ctx, session, rec)
			So(err, ShouldBeNil)
			second, err := l.Append(ctx, session, rec)
			So(err, ShouldBeNil)

			Convey("Then only the first should be written", func() {
				So(first.Duplicate, ShouldBeFalse)
				So(first.Attempts, ShouldEqual, 1)
				So(first.Version, ShouldNotBeEmpty)
				So(second.Duplicate, ShouldBeTrue)

				recs, err := l.Snapshot(ctx)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 1)
			})
		})

		Convey("When the mode differs only by case", func() {
			_, _ = l.Append(ctx, session, rec)
			again := rec
			again.Mode = " TRACK-A "
			res, err := l.Append(ctx, session, again)

			Convey("Then it should be the same key", func() {
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeTrue)
			})
		})

		Convey("When another session sends the same record", func() {
			_, _ = l.Append(ctx, session, rec)
			res, err := l.Append(ctx, dedupe.NewInMemoryDeduper(), rec)

			Convey("Then it should be written again", func() {
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				recs, _ := l.Snapshot(ctx)
				So(recs, ShouldHaveLength, 2)
			})
		})

		Convey("When the record has no user", func() {
			_, err := l.Append(ctx, session, record(" ", 1, ""))

			Convey("Then it should be refused without claiming the key", func() {
				So(errors.Is(err, evalerr.ErrValidation), ShouldBeTrue)
				So(session.Size(), ShouldEqual, 0)
			})
		})
	})
}

func TestAppendConflicts(t *testing.T) {
	Convey("Given a store that conflicts on the first three commits", t, func() {
		ctx := context.Background()
		store := &flakyStore{Store: blobstore.NewMemory(), failures: 3, err: evalerr.New("test", evalerr.ErrVersionConflict)}
		l := newLog(store)

		res, err := l.Append(ctx, dedupe.NewInMemoryDeduper(), record("bob", 70, ""))

		Convey("Then the append should converge on the fourth attempt", func() {
			So(err, ShouldBeNil)
			So(res.Attempts, ShouldEqual, 4)
			recs, err := l.Snapshot(ctx)
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
			So(recs[0].UserID, ShouldEqual, "bob")
		})
	})

	Convey("Given a store that always conflicts", t, func() {
		ctx := context.Background()
		mem := blobstore.NewMemory()
		seed := newLog(mem)
		_, err := seed.Append(ctx, nil, record("carol", 60, ""))
		So(err, ShouldBeNil)
		before, err := mem.Get(ctx, seed.Key())
		So(err, ShouldBeNil)

		store := &flakyStore{Store: mem, failures: 1 << 30, err: evalerr.New("test", evalerr.ErrVersionConflict)}
		l := newLog(store, repository.WithMaxAttempts(5))
		session := dedupe.NewInMemoryDeduper()
		rec := record("dave", 90, "")

		res, err := l.Append(ctx, session, rec)

		Convey("Then it should fail after exactly the attempt budget", func() {
			So(errors.Is(err, evalerr.ErrRetriesExhausted), ShouldBeTrue)
			So(errors.Is(err, evalerr.ErrVersionConflict), ShouldBeTrue)
			So(res.Attempts, ShouldEqual, 5)
			So(store.puts.Load(), ShouldEqual, 5)
		})

		Convey("And the stored log should be unchanged", func() {
			after, err := mem.Get(ctx, seed.Key())
			So(err, ShouldBeNil)
			So(after, ShouldResemble, before)
		})

		Convey("And the key should be released for a manual retry", func() {
			So(session.Seen(ctx, rec.Key().String()), ShouldBeFalse)
		})
	})

	Convey("Given a store that refuses credentials", t, func() {
		ctx := context.Background()
		store := &flakyStore{Store: blobstore.NewMemory(), failures: 1 << 30, err: evalerr.New("test", evalerr.ErrAuth)}
		_, err := newLog(store).Append(ctx, nil, record("erin", 1, ""))

		Convey("Then it should not be retried", func() {
			So(errors.Is(err, evalerr.ErrAuth), ShouldBeTrue)
			So(errors.Is(err, evalerr.ErrRetriesExhausted), ShouldBeFalse)
			So(store.puts.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given transient failures", t, func() {
		ctx := context.Background()
		store := &flakyStore{Store: blobstore.NewMemory(), failures: 2, err: evalerr.New("test", evalerr.ErrTransient)}
		res, err := newLog(store).Append(ctx, nil, record("frank", 1, ""))

		Convey("Then they should be retried like conflicts", func() {
			So(err, ShouldBeNil)
			So(res.Attempts, ShouldEqual, 3)
		})
	})
}

func TestSnapshot(t *testing.T) {
	Convey("Given a log with extra columns written by another tool", t, func() {
		ctx := context.Background()
		mem := blobstore.NewMemory()
		_, err := mem.Put(ctx, "history.csv", []byte("timestamp_utc,user_id,score,comment\n2025-01-01T00:00:00Z,zoe,55,first\n"), "")
		So(err, ShouldBeNil)
		l := newLog(mem, repository.WithClock(func() time.Time { return t0 }))

		Convey("When a record is appended", func() {
			_, err := l.Append(ctx, nil, model.ResultRecord{UserID: "yan", Score: 60, NIDs: 3, FileFingerprint: "x"})
			So(err, ShouldBeNil)

			Convey("Then old rows and extra columns should survive", func() {
				b, _ := mem.Get(ctx, "history.csv")
				So(string(b.Data), ShouldStartWith, "timestamp_utc,user_id,score,comment,file_fingerprint,n_ids,mode\n")
				So(string(b.Data), ShouldContainSubstring, "zoe,55,first")

				recs, err := l.Snapshot(ctx)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 2)
				So(recs[1].Timestamp, ShouldEqual, t0)
			})
		})
	})

	Convey("Given a cached snapshot", t, func() {
		ctx := context.Background()
		mem := blobstore.NewMemory()
		l := newLog(mem, repository.WithCacheTTL(time.Hour))
		other := newLog(mem)

		recs, err := l.Snapshot(ctx)
		So(err, ShouldBeNil)
		So(recs, ShouldBeEmpty)

		Convey("When another writer appends", func() {
			_, err := other.Append(ctx, nil, record("remote", 1, ""))
			So(err, ShouldBeNil)

			Convey("Then the cached view may lag until invalidated", func() {
				recs, _ := l.Snapshot(ctx)
				So(recs, ShouldBeEmpty)

				l.Invalidate()
				recs, _ = l.Snapshot(ctx)
				So(recs, ShouldHaveLength, 1)
			})
		})

		Convey("When this writer appends", func() {
			_, err := l.Append(ctx, nil, record("local", 1, ""))
			So(err, ShouldBeNil)

			Convey("Then the next snapshot should include it", func() {
				recs, _ := l.Snapshot(ctx)
				So(recs, ShouldHaveLength, 1)
				So(recs[0].UserID, ShouldEqual, "local")
			})
		})
	})

	Convey("Given a snapshot read that started before a local append", t, func() {
		ctx := context.Background()
		store := newGatedStore(blobstore.NewMemory())
		l := newLog(store, repository.WithCacheTTL(time.Hour))

		stale := make(chan []model.ResultRecord, 1)
		go func() {
			recs, _ := l.Snapshot(ctx)
			stale <- recs
		}()
		<-store.entered

		_, err := l.Append(ctx, dedupe.NewInMemoryDeduper(), record("alice", 91, "main"))
		So(err, ShouldBeNil)
		close(store.gate)

		Convey("When the old read finishes after the commit", func() {
			So(<-stale, ShouldBeEmpty)

			Convey("Then it should not hide the new row from later snapshots", func() {
				recs, err := l.Snapshot(ctx)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 1)
				So(recs[0].UserID, ShouldEqual, "alice")
			})
		})
	})

	Convey("Given a nil store", t, func() {
		_, err := repository.NewBlobLog(nil)
		So(errors.Is(err, repository.ErrNilStore), ShouldBeTrue)
	})
}
