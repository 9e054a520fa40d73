// Package status derives the review status of a contract from its
// extraction confidence and bookkeeping flags. Everything here is pure.
package status

import "math"

// Status is a derived, read-only review state.
type Status string

const (
	Pending        Status = "pending"
	Error          Status = "error"
	NeedsReview    Status = "needs_review"
	Parsed         Status = "parsed"
	Pushed         Status = "pushed"
	ManuallyEdited Status = "manually_edited"
)

// All lists every status in display order.
var All = []Status{Pending, Error, NeedsReview, Parsed, Pushed, ManuallyEdited}

// Valid reports whether s is one of the known statuses.
func Valid(s Status) bool {
	for _, v := range All {
		if v == s {
			return true
		}
	}
	return false
}

// Thresholds are the confidence cut-offs between error, needs_review and parsed.
type Thresholds struct {
	Ready  float64 // confidence >= Ready is parsed
	Review float64 // Review <= confidence < Ready is needs_review
}

// Default holds the standard cut-offs.
var Default = Thresholds{Ready: 95, Review: 60}

// Classify applies the default thresholds.
func Classify(confidence *float64, manuallyEdited, pushed bool) Status {
	return Default.Classify(confidence, manuallyEdited, pushed)
}

// Classify derives a status. The first matching rule wins:
// pushed, manually edited, missing/zero confidence, then the confidence bands.
func (t Thresholds) Classify(confidence *float64, manuallyEdited, pushed bool) Status {
	switch {
	case pushed:
		return Pushed
	case manuallyEdited:
		return ManuallyEdited
	case confidence == nil || *confidence == 0 || math.IsNaN(*confidence):
		return Pending
	}
	c := *confidence
	switch {
	case c >= t.Ready:
		return Parsed
	case c >= t.Review:
		return NeedsReview
	case c > 0:
		return Error
	default:
		return Pending
	}
}

// Rank orders statuses by severity for group rollups; higher is worse.
// Parsed and pushed share the lowest rank.
func Rank(s Status) int {
	switch s {
	case Error:
		return 5
	case NeedsReview:
		return 4
	case Pending:
		return 3
	case ManuallyEdited:
		return 2
	case Parsed, Pushed:
		return 1
	default:
		return 3
	}
}

// Aggregate returns the worst status of a group. A group is only reported
// as pushed when every member is pushed; an empty group is pending.
func Aggregate(members []Status) Status {
	if len(members) == 0 {
		return Pending
	}
	worst := members[0]
	for _, s := range members[1:] {
		r, w := Rank(s), Rank(worst)
		if r > w || (r == w && s == Parsed) {
			worst = s
		}
	}
	if !Valid(worst) {
		return Pending
	}
	return worst
}
