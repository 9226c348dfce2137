package domain

import "fmt"

// QueryType describes where a retrieval query came from.
type QueryType string

// Query types.
const (
	QueryUser            QueryType = "user_query"
	QueryFailureAnalysis QueryType = "failure_analysis"
)

// Mode selects how much of each hit is rendered.
type Mode string

// Render modes.
const (
	ModeOverview Mode = "overview"
	ModeDetailed Mode = "detailed"
)

// ParseQueryType parses a query type, defaulting to QueryUser for "".
func ParseQueryType(s string) (QueryType, error) {
	switch QueryType(s) {
	case "":
		return QueryUser, nil
	case QueryUser, QueryFailureAnalysis:
		return QueryType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown query type %q", ErrInvalidArgument, s)
	}
}

// ParseMode parses a render mode, defaulting to ModeOverview for "".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeOverview, nil
	case ModeOverview, ModeDetailed:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, s)
	}
}

// RetrievalRequest is a single documentation lookup.
type RetrievalRequest struct {
	Query          string
	Type           QueryType
	FailureContext string // optional
	Mode           Mode
}
