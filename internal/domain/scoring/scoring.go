// Package scoring turns a submission and a ground truth into a single score:
// both files are parsed into tables, aligned on their keys and evaluated with
// the competition metric.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/scorer/internal/apperr"
	"github.com/okian/scorer/internal/domain/metric"
	"github.com/okian/scorer/internal/domain/table"
)

// Default scoring configuration constants.
const (
	defaultPrecision = 6
	defaultMaxBytes  = 100 << 20
	maxPrecision     = 15
)

// JoinPolicy decides what happens to keys present in only one table.
type JoinPolicy string

const (
	// JoinInner drops unmatched keys and fails only when nothing overlaps.
	JoinInner JoinPolicy = "inner"
	// JoinStrict fails when any key is unmatched.
	JoinStrict JoinPolicy = "strict"
)

// ParseJoinPolicy validates a policy name. An empty name means JoinInner.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch JoinPolicy(s) {
	case "", JoinInner:
		return JoinInner, nil
	case JoinStrict:
		return JoinStrict, nil
	default:
		return "", fmt.Errorf("unknown join policy %q", s)
	}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithJoinPolicy sets how unmatched keys are handled.
func WithJoinPolicy(p JoinPolicy) Option {
	return func(e *Engine) {
		if p == JoinInner || p == JoinStrict {
			e.join = p
		}
	}
}

// WithPrecision rounds scores to n decimal places. A negative n disables
// rounding.
func WithPrecision(n int) Option {
	return func(e *Engine) {
		if n > maxPrecision {
			n = maxPrecision
		}
		e.precision = n
	}
}

// WithMaxBytes bounds decompressed input size.
func WithMaxBytes(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// Input is one resolved file: the ref it came from and its bytes.
type Input struct {
	Ref  string
	Data []byte
}

// Result is a successful evaluation.
type Result struct {
	Metric metric.Kind
	Score  float64
	// Rows is the number of aligned rows that were scored.
	Rows int
	// Unmatched counts submission and ground-truth keys left out of the join.
	SubmissionOnly  int
	GroundTruthOnly int
	// Duplicates counts repeated keys across both inputs (last write wins).
	Duplicates int
}

// Scorer computes a score from a submission and a ground truth.
type Scorer interface {
	// Score parses, aligns and evaluates, honoring ctx for cancellation.
	Score(ctx context.Context, kind metric.Kind, submission, truth Input) (Result, error)
}

// Engine implements Scorer in-process. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	join      JoinPolicy
	precision int
	maxBytes  int64
}

// NewEngine creates a new scoring engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		join:      JoinInner,
		precision: defaultPrecision,
		maxBytes:  defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// JoinPolicy returns the configured join policy.
func (e *Engine) JoinPolicy() JoinPolicy { return e.join }

// Score runs Parse on both inputs and then Evaluate.
func (e *Engine) Score(ctx context.Context, kind metric.Kind, submission, truth Input) (Result, error) {
	pred, err := e.Parse(submission.Ref, submission.Data)
	if err != nil {
		return Result{}, apperr.WithOp("submission", apperr.KindParse, err)
	}
	labels, err := e.Parse(truth.Ref, truth.Data)
	if err != nil {
		return Result{}, apperr.WithOp("ground_truth", apperr.KindParse, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, apperr.Wrap(apperr.KindTimeout, "score", err)
	}
	return e.Evaluate(kind, pred, labels)
}

// Parse decodes one input into a table. Panics are converted to ParseError.
func (e *Engine) Parse(ref string, data []byte) (t *table.Table, err error) {
	defer recoverInto(&err, apperr.KindParse, "parse")
	return table.Parse(ref, data, table.WithMaxBytes(e.maxBytes))
}

// Evaluate aligns pred with truth and computes kind. Panics are converted to
// MetricError.
func (e *Engine) Evaluate(kind metric.Kind, pred, truth *table.Table) (res Result, err error) {
	defer recoverInto(&err, apperr.KindMetric, "evaluate")

	a, err := Align(pred, truth, e.join)
	if err != nil {
		return Result{}, err
	}
	score, err := metric.Evaluate(kind, a.Pairs)
	if err != nil {
		return Result{}, err
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Result{}, apperr.New(apperr.KindMetric, "evaluate", "%s is not finite", kind)
	}

	return Result{
		Metric:          kind,
		Score:           Round(score, e.precision),
		Rows:            len(a.Pairs),
		SubmissionOnly:  a.SubmissionOnly,
		GroundTruthOnly: a.GroundTruthOnly,
		Duplicates:      pred.Duplicates() + truth.Duplicates(),
	}, nil
}

// Round rounds x to n decimal places; n < 0 returns x unchanged.
func Round(x float64, n int) float64 {
	if n < 0 {
		return x
	}
	p := math.Pow10(n)
	r := math.Round(x*p) / p
	if r == 0 {
		return 0
	}
	return r
}

func recoverInto(err *error, kind apperr.Kind, op string) {
	if r := recover(); r != nil {
		*err = apperr.New(kind, op, "internal failure: %v", r)
	}
}
