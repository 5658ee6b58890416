package gateway

// State is a step of one scoring request. Requests move forward only:
// Pending, Resolving, Parsing, Evaluating, then Graded or Errored.
type State int

const (
	StatePending State = iota
	StateResolving
	StateParsing
	StateEvaluating
	StateGraded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolving:
		return "resolving"
	case StateParsing:
		return "parsing"
	case StateEvaluating:
		return "evaluating"
	case StateGraded:
		return "graded"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateGraded || s == StateErrored
}
