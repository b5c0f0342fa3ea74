package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/evalboard/internal/config"
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/types"
)

const (
	truthCSV   = "id,target\n1,0\n2,1\n3,1\n4,0\n"
	perfectCSV = "id,prediction\n1,0\n2,1\n3,1\n4,0\n"
	halfCSV    = "id,prediccion\n1,0\n2,1\n3,0\n4,1\n"
)

// execute runs evalctl with args and returns what it printed.
func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestScoreCommand(t *testing.T) {
	Convey("Given local ground truth and prediction files", t, func() {
		t.Cleanup(func() { _ = os.Unsetenv(config.EnvConfigFile) })
		dir := t.TempDir()
		labels := writeFile(t, dir, "truth.csv", truthCSV)

		Convey("When a perfect file is scored", func() {
			out, err := execute("score", "--labels", labels, writeFile(t, dir, "p.csv", perfectCSV))
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "score:       100.0000%")
			So(out, ShouldContainSubstring, "matched ids: 4")
		})

		Convey("When JSON output is requested", func() {
			out, err := execute("score", "--json", "--labels", labels, writeFile(t, dir, "h.csv", halfCSV))
			So(err, ShouldBeNil)
			var ev map[string]any
			So(json.Unmarshal([]byte(out), &ev), ShouldBeNil)
			So(ev["score"], ShouldEqual, 50.0)
			So(ev["n_ids"], ShouldEqual, 4.0)
		})

		Convey("When the file shares no ids with the labels", func() {
			_, err := execute("score", "--labels", labels, writeFile(t, dir, "x.csv", "id,prediction\n9,1\n"))
			So(evalerr.KindOf(err), ShouldEqual, evalerr.ErrNoOverlap)
		})

		Convey("When --labels is missing", func() {
			_, err := execute("score", writeFile(t, dir, "p.csv", perfectCSV))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestShortFingerprint(t *testing.T) {
	Convey("Given fingerprints of different lengths", t, func() {
		So(shortFingerprint(" 0123456789abcdef "), ShouldEqual, "0123456789ab")
		So(shortFingerprint("abc"), ShouldEqual, "abc")
		So(shortFingerprint(""), ShouldBeEmpty)
	})
}

func TestStoreCommands(t *testing.T) {
	Convey("Given a sqlite-backed configuration", t, func() {
		t.Cleanup(func() { _ = os.Unsetenv(config.EnvConfigFile) })
		dir := t.TempDir()
		cfgPath := writeFile(t, dir, "evalboard.yaml",
			"blob_backend: sqlite\nsqlite_path: "+filepath.Join(dir, "board.db")+"\nhistory_cache_ttl_seconds: 0\n")
		run := func(args ...string) (string, error) {
			return execute(append([]string{"--config", cfgPath}, args...)...)
		}

		Convey("When submitting before any ground truth is stored", func() {
			_, err := run("submit", "--user", "alice", writeFile(t, dir, "p.csv", perfectCSV))
			So(evalerr.KindOf(err), ShouldEqual, evalerr.ErrNotFound)
		})

		Convey("When the ground truth is seeded", func() {
			out, err := run("seed", writeFile(t, dir, "truth.csv", truthCSV))
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "stored ground_truth.csv")

			Convey("And seeded again", func() {
				out, err := run("seed", filepath.Join(dir, "truth.csv"))
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "already exists")
			})

			Convey("And two users submit", func() {
				out, err := run("submit", "--user", "alice", "--mode", "final", writeFile(t, dir, "a.csv", halfCSV))
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `recorded under "final"`)
				_, err = run("submit", "--user", "bob", "--mode", "final", writeFile(t, dir, "b.csv", perfectCSV))
				So(err, ShouldBeNil)

				Convey("Then the leaderboard should rank them", func() {
					out, err := run("leaderboard", "--json", "--mode", "FINAL")
					So(err, ShouldBeNil)
					var entries []types.Entry
					So(json.Unmarshal([]byte(out), &entries), ShouldBeNil)
					So(entries, ShouldHaveLength, 2)
					So(entries[0].Name, ShouldEqual, "bob")
					So(entries[0].Score, ShouldEqual, 100.0)
					So(entries[1].Name, ShouldEqual, "alice")
				})

				Convey("Then the history should list both rows", func() {
					out, err := run("history")
					So(err, ShouldBeNil)
					So(out, ShouldContainSubstring, "alice")
					So(out, ShouldContainSubstring, "bob")
					So(out, ShouldContainSubstring, "FINGERPRINT")
					So(out, ShouldContainSubstring, model.Fingerprint([]byte(perfectCSV))[:12])
					So(out, ShouldNotContainSubstring, model.Fingerprint([]byte(perfectCSV))[:13])
				})
			})

			Convey("And a submission has no user", func() {
				out, err := run("submit", writeFile(t, dir, "anon.csv", perfectCSV))
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "warning:")

				history, err := run("history", "--json")
				So(err, ShouldBeNil)
				So(history, ShouldNotContainSubstring, "user_id")
			})
		})
	})

	Convey("Given a configuration that fails validation", t, func() {
		t.Cleanup(func() { _ = os.Unsetenv(config.EnvConfigFile) })
		cfgPath := writeFile(t, t.TempDir(), "bad.yaml", "threshold: 2\n")
		_, err := execute("--config", cfgPath, "history")
		So(err, ShouldNotBeNil)
	})
}
