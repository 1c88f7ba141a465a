package explorer

import "github.com/kadirpekel/upchain/pkg/scoring"

// StopReason explains why a branch of the exploration stopped recursing.
// The empty value means "continue".
type StopReason string

const (
	// Continue is the zero reason: the branch keeps recursing.
	Continue StopReason = ""

	// StopBoundary: the selected process is a raw-material extraction
	// point, there is nothing further upstream.
	StopBoundary StopReason = "boundary"

	// StopNoCandidates: the data source yielded no candidate pool, so no
	// process could be selected.
	StopNoCandidates StopReason = "no_candidates"

	// StopNoFlows: relevance merging produced an empty result.
	StopNoFlows StopReason = "no_flows"

	// StopAllElementary: every shortlisted flow exchanges directly with
	// the environment.
	StopAllElementary StopReason = "all_elementary"

	// StopLimit: a depth or iteration cap was reached. Logged distinctly
	// because it is a resource bound, not a natural end of the chain.
	StopLimit StopReason = "limit"

	// StopStageFailure: the run selected nothing because one or more
	// stages failed, not because the candidate pool was empty.
	StopStageFailure StopReason = "stage_failure"
)

// Natural reports whether the stop is a property of the chain itself rather
// than of the configured resource bounds.
func (r StopReason) Natural() bool {
	switch r {
	case StopBoundary, StopNoCandidates, StopNoFlows, StopAllElementary:
		return true
	default:
		return false
	}
}

// Decide evaluates the termination policy on a finished run. It is pure:
// the same outcome always yields the same reason. Caps are the controller's
// concern and never decided here.
func Decide(o *Outcome) StopReason {
	switch {
	case o.Selected == nil && len(o.StageErrors) > 0:
		// An oracle outage and a genuinely empty pool must stay
		// distinguishable for whoever reads the report.
		return StopStageFailure
	case o.Selected == nil:
		return StopNoCandidates
	case o.Boundary:
		return StopBoundary
	case o.MergedEmpty:
		return StopNoFlows
	case len(o.Shortlist) > 0 && scoring.AllElementary(o.Shortlist):
		return StopAllElementary
	case len(o.SubRequirements) == 0:
		return StopNoFlows
	default:
		return Continue
	}
}
