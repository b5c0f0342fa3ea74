package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/config"
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
)

const groundTruth = "id,target\n1,0\n2,1\n3,1\n4,0\n"

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func seededStore(ctx context.Context) blobstore.Store {
	store := blobstore.NewMemory()
	if _, err := blobstore.Seed(ctx, store, "ground_truth.csv", []byte(groundTruth)); err != nil {
		panic(err)
	}
	return store
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := service.New(seededStore(ctx), service.WithDefaultMode("main"))

		Convey("When it is used before Start", func() {
			_, err := svc.Submit(ctx, types.SubmitRequest{UserID: "a", Data: []byte("id,prediction\n1,0\n")})

			Convey("Then it should refuse", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.Stats()["started"], ShouldEqual, false)
			})
		})

		Convey("When started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.Stats()
			So(stats["started"], ShouldEqual, true)
			So(stats["defaultMode"], ShouldEqual, "main")
			So(stats["activeSessions"], ShouldEqual, 0)

			svc.Stop()
			So(svc.Stats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a service without a store", t, func() {
		So(errors.Is(service.New(nil).Start(context.Background()), service.ErrNoStore), ShouldBeTrue)
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
		svc := service.New(seededStore(ctx),
			service.WithDefaultMode("main"),
			service.WithHistory("", 0),
			service.WithClock(func() time.Time { return now }),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		perfect := []byte("id,prediction\n1,0\n2,1\n3,1\n4,0\n")

		Convey("When a named user submits under two modes", func() {
			resp, err := svc.Submit(ctx, types.SubmitRequest{
				SessionID: "s1",
				UserID:    " Alice ",
				Modes:     []string{"track-a", "Track-A", " ", "track-b"},
				Filename:  "p.csv",
				Data:      perfect,
			})
			So(err, ShouldBeNil)

			Convey("Then one record per distinct mode should be written", func() {
				So(resp.Evaluation.Score, ShouldEqual, 100.0)
				So(resp.Recorded, ShouldBeTrue)
				So(resp.Records, ShouldHaveLength, 2)
				So(resp.Records[0].Mode, ShouldEqual, "track-a")
				So(resp.Records[1].Mode, ShouldEqual, "track-b")

				recs, err := svc.History(ctx)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 2)
				So(recs[0].UserID, ShouldEqual, "Alice")
				So(recs[0].Timestamp, ShouldEqual, now)
			})

			Convey("And the leaderboard should be filterable by mode", func() {
				board, err := svc.Leaderboard(ctx, "TRACK-B", 0)
				So(err, ShouldBeNil)
				So(board, ShouldHaveLength, 1)
				So(board[0].Name, ShouldEqual, "Alice")

				modes, err := svc.Modes(ctx)
				So(err, ShouldBeNil)
				So(modes, ShouldResemble, []string{"track-a", "track-b"})
			})

			Convey("And resubmitting in the same session should be a no-op", func() {
				resp, err := svc.Submit(ctx, types.SubmitRequest{
					SessionID: "s1", UserID: "Alice", Modes: []string{"track-a"}, Data: perfect,
				})
				So(err, ShouldBeNil)
				So(resp.Records[0].Duplicate, ShouldBeTrue)
				So(resp.Records[0].Recorded, ShouldBeFalse)
				So(resp.Recorded, ShouldBeFalse)

				recs, _ := svc.History(ctx)
				So(recs, ShouldHaveLength, 2)
			})
		})

		Convey("When no mode is given", func() {
			resp, err := svc.Submit(ctx, types.SubmitRequest{UserID: "bob", Data: perfect})
			So(err, ShouldBeNil)

			Convey("Then the default mode should be recorded", func() {
				So(resp.Records, ShouldHaveLength, 1)
				So(resp.Records[0].Mode, ShouldEqual, "main")
			})
		})

		Convey("When the user is anonymous", func() {
			resp, err := svc.Submit(ctx, types.SubmitRequest{Data: perfect})
			So(err, ShouldBeNil)

			Convey("Then the score should be shown but not recorded", func() {
				So(resp.Evaluation.NIDs, ShouldEqual, 4)
				So(resp.Recorded, ShouldBeFalse)
				So(resp.Records, ShouldBeEmpty)
				So(resp.Warnings, ShouldNotBeEmpty)
				recs, _ := svc.History(ctx)
				So(recs, ShouldBeEmpty)
			})
		})

		Convey("When the file lacks the prediction column", func() {
			_, err := svc.Submit(ctx, types.SubmitRequest{UserID: "carol", Data: []byte("id,guess\n1,0\n")})

			Convey("Then it should fail with a schema error and record nothing", func() {
				So(errors.Is(err, evalerr.ErrSchema), ShouldBeTrue)
				recs, _ := svc.History(ctx)
				So(recs, ShouldBeEmpty)
			})
		})

		Convey("When leaderboard is limited", func() {
			for _, u := range []string{"u1", "u2", "u3"} {
				_, err := svc.Submit(ctx, types.SubmitRequest{UserID: u, Data: perfect})
				So(err, ShouldBeNil)
			}
			board, err := svc.Leaderboard(ctx, "", 2)
			So(err, ShouldBeNil)
			So(board, ShouldHaveLength, 2)
		})
	})

	Convey("Given a store without ground truth", t, func() {
		ctx := context.Background()
		svc := service.New(blobstore.NewMemory())
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		_, err := svc.Submit(ctx, types.SubmitRequest{UserID: "a", Data: []byte("id,prediction\n1,0\n")})
		So(errors.Is(err, evalerr.ErrNotFound), ShouldBeTrue)
	})
}

func TestNormalizeModes(t *testing.T) {
	Convey("Given raw mode lists", t, func() {
		So(service.NormalizeModes(nil, " main "), ShouldResemble, []string{"main"})
		So(service.NormalizeModes([]string{"", "  "}, ""), ShouldResemble, []string{""})
		So(service.NormalizeModes([]string{"A", "a", "b "}, "main"), ShouldResemble, []string{"A", "b"})
	})
}

func TestConfigOptions(t *testing.T) {
	Convey("Given a loaded configuration", t, func() {
		cfg := config.New(context.Background())
		cfg.DuplicatePolicy = "keep_first"
		cfg.HistoryKey = "runs/history.csv"
		cfg.DefaultMode = "final"
		cfg.AppendMaxAttempts = 9

		Convey("Then the service should pick up every mapped value", func() {
			stats := service.New(blobstore.NewMemory(), service.ConfigOptions(cfg, nil)...).Stats()
			So(stats["duplicatePolicy"], ShouldEqual, "keep_first")
			So(stats["historyKey"], ShouldEqual, "runs/history.csv")
			So(stats["defaultMode"], ShouldEqual, "final")
			So(stats["appendMaxAttempts"], ShouldEqual, 9)
			So(stats["average"], ShouldEqual, "macro")
		})
	})
}
