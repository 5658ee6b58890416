// Package apperr defines the failure taxonomy shared by the parser, the
// evaluator and the gateway. Every error that leaves the scoring core is an
// *Error carrying one Kind.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a scoring failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindResolution
	KindParse
	KindAlignment
	KindMetric
	KindTypeMismatch
	KindTimeout
)

// Sentinel kind errors. errors.Is(err, ErrParse) matches any *Error of that kind.
var (
	ErrResolution   = &Error{Kind: KindResolution}
	ErrParse        = &Error{Kind: KindParse}
	ErrAlignment    = &Error{Kind: KindAlignment}
	ErrMetric       = &Error{Kind: KindMetric}
	ErrTypeMismatch = &Error{Kind: KindTypeMismatch}
	ErrTimeout      = &Error{Kind: KindTimeout}
)

var kindNames = map[Kind]string{
	KindUnknown:      "UnknownError",
	KindResolution:   "ResolutionError",
	KindParse:        "ParseError",
	KindAlignment:    "AlignmentError",
	KindMetric:       "MetricError",
	KindTypeMismatch: "TypeMismatchError",
	KindTimeout:      "TimeoutError",
}

// String returns the kind name used as the message prefix.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return kindNames[KindUnknown]
}

// Retryable reports whether a failure of this kind may succeed on a fresh call.
func (k Kind) Retryable() bool {
	return k == KindResolution || k == KindTimeout
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "parse.csv".
	Op  string
	Msg string
	Err error
}

// Error renders "<Kind>: <op>: <msg>: <cause>", omitting empty parts.
func (e *Error) Error() string {
	parts := []string{e.Kind.String()}
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel kind errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New builds an *Error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithOp prefixes an already classified error with an outer operation and
// classifies anything else as fallback.
func WithOp(op string, fallback Kind, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		out := *ae
		if out.Op == "" {
			out.Op = op
		} else {
			out.Op = op + ": " + out.Op
		}
		return &out
	}
	return &Error{Kind: fallback, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is a transient failure.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}
