package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/domain/types"
)

// prediction builds a file that gets k of the four ids right.
func prediction(k int) []byte {
	truth := []string{"0", "1", "1", "0"}
	var b strings.Builder
	b.WriteString("id,prediction\n")
	for i, v := range truth {
		if i >= k {
			if v == "0" {
				v = "1"
			} else {
				v = "0"
			}
		}
		fmt.Fprintf(&b, "%d,%s\n", i+1, v)
	}
	return []byte(b.String())
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given several service instances sharing one store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store := seededStore(ctx)
		const instances, users = 4, 20

		services := make([]*service.Service, instances)
		for i := range services {
			services[i] = service.New(store,
				service.WithHistory("", 0),
				service.WithAppendRetry(100, time.Millisecond, 5*time.Millisecond),
			)
			So(services[i].Start(ctx), ShouldBeNil)
		}

		Convey("When every user submits through some instance at once", func() {
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				errs []error
			)
			for u := range users {
				wg.Add(1)
				go func() {
					defer wg.Done()
					svc := services[u%instances]
					resp, err := svc.Submit(ctx, types.SubmitRequest{
						SessionID: fmt.Sprintf("session-%d", u),
						UserID:    fmt.Sprintf("student-%02d", u),
						Data:      prediction(u % 5),
					})
					if err == nil && !resp.Recorded {
						err = fmt.Errorf("student-%02d not recorded: %+v", u, resp.Records)
					}
					if err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then no record should be lost or duplicated", func() {
				So(errs, ShouldBeEmpty)
				recs, err := services[0].History(ctx)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, users)
			})

			Convey("And the leaderboard should rank every user once", func() {
				board, err := services[1].Leaderboard(ctx, "", 0)
				So(err, ShouldBeNil)
				So(board, ShouldHaveLength, users)
				for i := 1; i < len(board); i++ {
					So(board[i-1].Score, ShouldBeGreaterThanOrEqualTo, board[i].Score)
					So(board[i].Rank, ShouldEqual, i+1)
				}
			})
		})

		Reset(func() {
			for _, svc := range services {
				svc.Stop()
			}
		})
	})
}
