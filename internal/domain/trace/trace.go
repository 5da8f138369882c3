package trace

import "time"

// Entry records how one incoming request was matched and what its action did.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`

	MatchedID string `json:"matched_id,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Action    string `json:"action,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	// StatusCode is the status the action answered with, if any.
	StatusCode int `json:"status_code,omitempty"`
	// Exhausted is set when the request took the last use of MatchedID.
	Exhausted bool   `json:"exhausted,omitempty"`
	Error     string `json:"error,omitempty"`

	// ClosestID and FailedField name the highest ranked candidate that was
	// rejected by a field check, when nothing matched.
	ClosestID   string `json:"closest_id,omitempty"`
	FailedField string `json:"failed_field,omitempty"`

	Candidates []CandidateResult `json:"candidates"`
}

// Matched reports whether an expectation was selected.
func (e Entry) Matched() bool {
	return e.MatchedID != ""
}

// CandidateResult records the evaluation result for a single candidate expectation.
type CandidateResult struct {
	ExpectationID string `json:"expectation_id"`
	Priority      int    `json:"priority"`
	Matched       bool   `json:"matched"`
	FailedField   string `json:"failed_field,omitempty"`
	FailedReason  string `json:"failed_reason,omitempty"`
}

// Closest returns the first candidate rejected by a field check. Candidates
// skipped for their lifetime carry no failed field and are passed over.
func Closest(candidates []CandidateResult) (CandidateResult, bool) {
	for _, c := range candidates {
		if !c.Matched && c.FailedField != "" {
			return c, true
		}
	}
	return CandidateResult{}, false
}

// Filter selects trace entries. Zero fields select everything.
type Filter struct {
	ExpectationID string
	Outcome       string
	UnmatchedOnly bool
}

// Keep reports whether e passes f.
func (f Filter) Keep(e Entry) bool {
	switch {
	case f.UnmatchedOnly && e.Matched():
		return false
	case f.ExpectationID != "" && e.MatchedID != f.ExpectationID:
		return false
	case f.Outcome != "" && e.Outcome != f.Outcome:
		return false
	}
	return true
}
