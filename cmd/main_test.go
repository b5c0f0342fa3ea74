package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/evalboard/internal/config"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New(context.Background())
	cfg.Addr = "127.0.0.1:0"
	cfg.GroundTruthFile = filepath.Join(t.TempDir(), "truth.csv")
	if err := os.WriteFile(cfg.GroundTruthFile, []byte("id,target\n1,0\n2,1\n3,1\n4,0\n"), 0o600); err != nil {
		t.Fatalf("write ground truth: %v", err)
	}
	return cfg
}

func uploadRequest(user, csv string) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("user", user)
	fw, _ := mw.CreateFormFile("file", "preds.csv")
	_, _ = fw.Write([]byte(csv))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/submissions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestWiring(t *testing.T) {
	convey.Convey("Given a config with a memory backend and a ground truth file", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		log := logger.NewNop()

		svc, err := newService(ctx, cfg, log)
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()
		mux := newMux(ctx, cfg, svc, log)

		convey.Convey("When a submission is posted", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, uploadRequest("alice", "id,prediction\n1,0\n2,1\n3,1\n4,0\n"))

			convey.Convey("Then it should be scored against the seeded labels", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var resp types.SubmitResponse
				convey.So(json.Unmarshal(w.Body.Bytes(), &resp), convey.ShouldBeNil)
				convey.So(resp.Evaluation.Score, convey.ShouldEqual, 100.0)
				convey.So(resp.Recorded, convey.ShouldBeTrue)
			})

			convey.Convey("And the leaderboard should list the user", func() {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboard", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"alice"`)
			})

			convey.Convey("And the service gauges should update without panicking", func() {
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When the API description is requested", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})
	})

	convey.Convey("Given a ground truth file that does not exist", t, func() {
		cfg := testConfig(t)
		cfg.GroundTruthFile = filepath.Join(t.TempDir(), "missing.csv")

		_, err := newService(context.Background(), cfg, logger.NewNop())
		convey.So(err, convey.ShouldNotBeNil)
	})

	convey.Convey("Given an unknown backend", t, func() {
		cfg := testConfig(t)
		cfg.BlobBackend = "s3"

		_, err := newService(context.Background(), cfg, logger.NewNop())
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a running server", t, func() {
		cfg := testConfig(t)
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		convey.Convey("Then it should stop cleanly when the context ends", func() {
			convey.So(run(ctx, cfg, logger.NewNop()), convey.ShouldBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("Then the system updater should return when the context ends", func() {
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
		})
	})
}
