package service_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	service "github.com/okian/scorer/internal/app"
	"github.com/okian/scorer/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func job(id, user, sub string) model.Job {
	return model.Job{
		ID:            "job-" + id,
		SubmissionID:  id,
		CompetitionID: "house-prices",
		UserID:        user,
		Request: model.Request{
			SubmissionRef:  sub,
			GroundTruthRef: "/api/file/truth.csv",
			Metric:         "mae",
		},
		SubmittedAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service with full integration", t, func() {
		root := t.TempDir()
		writeFile(t, root, "truth.csv", "id,value\n1,10\n2,20\n3,30\n")
		writeFile(t, root, "exact.csv", "id,value\n3,30\n1,10\n2,20\n")
		writeFile(t, root, "off.csv", "id,value\n1,12\n2,18\n3,30\n")
		writeFile(t, root, "broken.csv", "")

		svc := service.New(
			service.WithLocalRoot(root),
			service.WithWorkerCount(2),
			service.WithQueueSize(16),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When scoring synchronously", func() {
			out := svc.Score(ctx, model.Request{
				SubmissionRef:  "off.csv",
				GroundTruthRef: "truth.csv",
				Metric:         "MAE",
			})

			Convey("Then the score is computed over the aligned rows", func() {
				So(out.Status(), ShouldEqual, model.StatusGraded)
				So(*out.Score, ShouldAlmostEqual, 4.0/3.0, 1e-6)
			})
		})

		Convey("When the submission has no data", func() {
			out := svc.Score(ctx, model.Request{SubmissionRef: "broken.csv", GroundTruthRef: "truth.csv", Metric: "mae"})
			So(out.Status(), ShouldEqual, model.StatusError)
			So(out.Error, ShouldStartWith, "ParseError: submission")
		})

		Convey("When a ref escapes the upload root", func() {
			out := svc.Score(ctx, model.Request{SubmissionRef: "../etc/passwd", GroundTruthRef: "truth.csv", Metric: "mae"})
			So(out.Error, ShouldStartWith, "ResolutionError: ")
		})

		Convey("When submissions are processed end-to-end", func() {
			So(svc.Enqueue(ctx, job("s-1", "ann", "/api/file/exact.csv")), ShouldBeNil)
			So(svc.Enqueue(ctx, job("s-2", "bob", "/api/file/off.csv")), ShouldBeNil)
			So(svc.Enqueue(ctx, job("s-3", "cat", "/api/file/missing.csv")), ShouldBeNil)

			graded := func(id string) bool {
				s, err := svc.Submission(ctx, id)
				return err == nil && s.Status != model.StatusPending
			}
			So(waitFor(5*time.Second, func() bool {
				return graded("s-1") && graded("s-2") && graded("s-3")
			}), ShouldBeTrue)

			Convey("Then outcomes are recorded", func() {
				s1, _ := svc.Submission(ctx, "s-1")
				So(s1.Status, ShouldEqual, model.StatusGraded)
				So(*s1.Score, ShouldEqual, 0.0)
				So(s1.ScoredAt.IsZero(), ShouldBeFalse)

				s3, _ := svc.Submission(ctx, "s-3")
				So(s3.Status, ShouldEqual, model.StatusError)
				So(s3.Error, ShouldStartWith, "ResolutionError: ")
			})

			Convey("And the leaderboard ranks the lowest error first", func() {
				board, err := svc.Leaderboard(ctx, "house-prices", 10)
				So(err, ShouldBeNil)
				So(board, ShouldHaveLength, 2)
				So(board[0].UserID, ShouldEqual, "ann")
				So(board[1].UserID, ShouldEqual, "bob")
			})

			Convey("And stats reflect the recorded submissions", func() {
				So(svc.GetStats()["totalSubmissions"], ShouldEqual, 3)
			})
		})

		Convey("When a submission has no ground truth yet", func() {
			j := job("s-4", "dan", "exact.csv")
			j.Request.GroundTruthRef = ""
			So(svc.Enqueue(ctx, j), ShouldBeNil)

			Convey("Then it stays pending", func() {
				time.Sleep(100 * time.Millisecond)
				s, err := svc.Submission(ctx, "s-4")
				So(err, ShouldBeNil)
				So(s.Status, ShouldEqual, model.StatusPending)
				So(s.ScoredAt.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When the same submission id is seen twice", func() {
			So(svc.SeenAndRecord(ctx, "dup"), ShouldBeFalse)
			So(svc.SeenAndRecord(ctx, "dup"), ShouldBeTrue)

			Convey("Then unrecording allows a retry", func() {
				svc.Unrecord(ctx, "dup")
				So(svc.SeenAndRecord(ctx, "dup"), ShouldBeFalse)
			})
		})
	})
}

func TestServiceIntegration_Remote(t *testing.T) {
	Convey("Given files served over HTTP", t, func() {
		files := map[string]string{
			"/gt.json":  `[{"id":"a","label":1},{"id":"b","label":0},{"id":"c","label":1},{"id":"d","label":0}]`,
			"/sub.json": `[{"id":"a","prediction":0.9},{"id":"b","prediction":0.1},{"id":"c","prediction":0.8},{"id":"d","prediction":0.3}]`,
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, ok := files[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = fmt.Fprint(w, body)
		}))
		defer srv.Close()

		svc := service.New(service.WithLocalRoot(t.TempDir()), service.WithMaxInFlight(2))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When many callers score concurrently", func() {
			req := model.Request{
				SubmissionRef:  srv.URL + "/sub.json",
				GroundTruthRef: srv.URL + "/gt.json",
				Metric:         "auc",
			}
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				outs []model.Outcome
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					out := svc.Score(ctx, req)
					mu.Lock()
					outs = append(outs, out)
					mu.Unlock()
				}()
			}
			wg.Wait()

			Convey("Then every caller gets the same perfect score", func() {
				So(outs, ShouldHaveLength, 8)
				for _, out := range outs {
					So(out.Error, ShouldEqual, "")
					So(*out.Score, ShouldEqual, 1.0)
				}
			})
		})

		Convey("When the ground truth is missing remotely", func() {
			out := svc.Score(ctx, model.Request{
				SubmissionRef:  srv.URL + "/sub.json",
				GroundTruthRef: srv.URL + "/nope.json",
				Metric:         "roc_auc",
			})
			So(out.Error, ShouldStartWith, "ResolutionError: ground_truth")
			So(out.Retryable(), ShouldBeTrue)
		})
	})
}
