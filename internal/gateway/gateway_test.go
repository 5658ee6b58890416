package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/scorer/internal/apperr"
	"github.com/okian/scorer/internal/domain/metric"
	"github.com/okian/scorer/internal/domain/model"
	"github.com/okian/scorer/internal/domain/scoring"
	"github.com/okian/scorer/internal/domain/table"
	gateway "github.com/okian/scorer/internal/gateway"
	. "github.com/smartystreets/goconvey/convey"
)

// mapSource serves refs from memory.
type mapSource struct {
	files map[string]string
	block chan struct{}
	reads sync.WaitGroup
}

func (m *mapSource) Read(ctx context.Context, ref string) ([]byte, error) {
	if m.block != nil {
		m.reads.Done()
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindTimeout, "test", ctx.Err())
		}
	}
	body, ok := m.files[ref]
	if !ok {
		return nil, apperr.New(apperr.KindResolution, "test", "file %q not found", ref)
	}
	return []byte(body), nil
}

type transitions struct {
	mu    sync.Mutex
	steps []gateway.State
}

func (t *transitions) hook(_ string, _, to gateway.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, to)
}

type panicEngine struct{ *scoring.Engine }

func (panicEngine) Evaluate(metric.Kind, *table.Table, *table.Table) (scoring.Result, error) {
	panic("boom")
}

var files = map[string]string{
	"truth.csv":     "id,label\n1,1\n2,0\n3,1\n",
	"sub.csv":       "id,prediction\n1,0.9\n2,0.1\n3,0.8\n",
	"partial.csv":   "id,prediction\n1,0.9\n2,0.1\n7,0.5\n",
	"broken.csv":    "id,prediction\n1,0\"9\n",
	"disjoint.json": `{"8": 1, "9": 0}`,
	"ones.csv":      "id,label\n1,1\n2,1\n",
}

func TestGateway_Score(t *testing.T) {
	Convey("Given a gateway over in-memory files", t, func() {
		steps := &transitions{}
		gw := gateway.New(&mapSource{files: files}, scoring.NewEngine(), gateway.WithTransitionHook(steps.hook))
		ctx := context.Background()

		Convey("When the submission separates the classes", func() {
			out := gw.Score(ctx, model.Request{SubmissionRef: "sub.csv", GroundTruthRef: "truth.csv", Metric: "roc_auc"})

			Convey("Then it is graded with a perfect score", func() {
				So(out.Status(), ShouldEqual, model.StatusGraded)
				So(*out.Score, ShouldEqual, 1.0)
				So(out.Error, ShouldBeEmpty)
			})

			Convey("Then every state was visited in order", func() {
				So(steps.steps, ShouldResemble, []gateway.State{
					gateway.StateResolving, gateway.StateParsing, gateway.StateEvaluating, gateway.StateGraded,
				})
			})
		})

		Convey("When keys only partially overlap", func() {
			out := gw.Score(ctx, model.Request{SubmissionRef: "partial.csv", GroundTruthRef: "truth.csv", Metric: "roc_auc"})

			Convey("Then only the shared rows are scored", func() {
				So(out.Status(), ShouldEqual, model.StatusGraded)
				So(*out.Score, ShouldEqual, 1.0)
			})
		})

		Convey("When the submission is malformed", func() {
			out := gw.Score(ctx, model.Request{SubmissionRef: "broken.csv", GroundTruthRef: "truth.csv", Metric: "roc_auc"})

			Convey("Then the outcome carries a parse error and no score", func() {
				So(out.Status(), ShouldEqual, model.StatusError)
				So(out.Score, ShouldBeNil)
				So(out.Kind, ShouldEqual, apperr.KindParse)
				So(out.Error, ShouldStartWith, "ParseError: submission")
				So(out.Retryable(), ShouldBeFalse)
				So(steps.steps[len(steps.steps)-1], ShouldEqual, gateway.StateErrored)
			})
		})

		Convey("When a file is missing", func() {
			out := gw.Score(ctx, model.Request{SubmissionRef: "nope.csv", GroundTruthRef: "truth.csv", Metric: "mae"})

			Convey("Then it is a retryable resolution error", func() {
				So(out.Kind, ShouldEqual, apperr.KindResolution)
				So(out.Error, ShouldStartWith, "ResolutionError: submission")
				So(out.Retryable(), ShouldBeTrue)
			})
		})

		Convey("When no ids overlap", func() {
			out := gw.Score(ctx, model.Request{SubmissionRef: "disjoint.json", GroundTruthRef: "truth.csv", Metric: "accuracy"})
			So(out.Kind, ShouldEqual, apperr.KindAlignment)
		})

		Convey("When the labels hold one class", func() {
			out := gw.Score(ctx, model.Request{SubmissionRef: "sub.csv", GroundTruthRef: "ones.csv", Metric: "roc_auc"})
			So(out.Kind, ShouldEqual, apperr.KindMetric)
			So(out.Error, ShouldContainSubstring, "single class")
		})

		Convey("When the metric is unknown", func() {
			out := gw.Score(ctx, model.Request{SubmissionRef: "sub.csv", GroundTruthRef: "truth.csv", Metric: "r2"})

			Convey("Then it fails before resolving anything", func() {
				So(out.Kind, ShouldEqual, apperr.KindMetric)
				So(steps.steps, ShouldResemble, []gateway.State{gateway.StateErrored})
			})
		})

		Convey("When there is no ground truth yet", func() {
			out := gw.Score(ctx, model.Request{SubmissionRef: "sub.csv", Metric: "mae"})

			Convey("Then the outcome is pending", func() {
				So(out.Status(), ShouldEqual, model.StatusPending)
				So(out.Score, ShouldBeNil)
				So(out.Error, ShouldBeEmpty)
			})
		})

		Convey("When the submission ref is empty", func() {
			out := gw.Score(ctx, model.Request{GroundTruthRef: "truth.csv", Metric: "mae"})
			So(out.Kind, ShouldEqual, apperr.KindResolution)
		})
	})

	Convey("Given an engine that panics", t, func() {
		gw := gateway.New(&mapSource{files: files}, panicEngine{scoring.NewEngine()})

		Convey("Then the panic becomes an error outcome", func() {
			var out model.Outcome
			So(func() {
				out = gw.Score(context.Background(), model.Request{SubmissionRef: "sub.csv", GroundTruthRef: "truth.csv", Metric: "mae"})
			}, ShouldNotPanic)
			So(out.Status(), ShouldEqual, model.StatusError)
			So(out.Error, ShouldContainSubstring, "boom")
		})
	})
}

func TestGateway_Concurrency(t *testing.T) {
	Convey("Given a gateway limited to one in-flight request", t, func() {
		src := &mapSource{files: files, block: make(chan struct{})}
		gw := gateway.New(src, scoring.NewEngine(), gateway.WithMaxInFlight(1))
		So(gw.MaxInFlight(), ShouldEqual, 1)
		req := model.Request{SubmissionRef: "sub.csv", GroundTruthRef: "truth.csv", Metric: "roc_auc"}

		src.reads.Add(2)
		first := make(chan model.Outcome, 1)
		go func() { first <- gw.Score(context.Background(), req) }()
		src.reads.Wait()

		Convey("When a second request waits past its deadline", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			out := gw.Score(ctx, req)

			Convey("Then it fails with a timeout instead of queuing forever", func() {
				So(out.Kind, ShouldEqual, apperr.KindTimeout)
				So(out.Retryable(), ShouldBeTrue)
			})

			close(src.block)
			So((<-first).Status(), ShouldEqual, model.StatusGraded)
		})
	})

	Convey("Given a fetch that outlives the caller deadline", t, func() {
		src := &mapSource{files: files, block: make(chan struct{})}
		gw := gateway.New(src, scoring.NewEngine())
		src.reads.Add(2)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		out := gw.Score(ctx, model.Request{SubmissionRef: "sub.csv", GroundTruthRef: "truth.csv", Metric: "mae"})
		close(src.block)

		So(out.Kind, ShouldEqual, apperr.KindTimeout)
	})
}

func TestState(t *testing.T) {
	Convey("Given states", t, func() {
		So(gateway.StateResolving.String(), ShouldEqual, "resolving")
		So(gateway.StateGraded.Terminal(), ShouldBeTrue)
		So(gateway.StateErrored.Terminal(), ShouldBeTrue)
		So(gateway.StateParsing.Terminal(), ShouldBeFalse)
		So(gateway.State(42).String(), ShouldEqual, "unknown")
	})
}
