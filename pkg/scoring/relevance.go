package scoring

import (
	"errors"
	"sort"

	"github.com/kadirpekel/upchain/pkg/chain"
)

// ErrNoRelevantFlows signals that merging produced zero entries. Downstream
// termination logic checks for this condition explicitly rather than
// inspecting slice length.
var ErrNoRelevantFlows = errors.New("no relevant flows after merging")

// MergeRelevance unions several independently produced candidate-relevance
// lists, keyed by flow identifier. When the same identifier appears with
// different labels the highest relevance wins (high > medium > low).
//
// The result is sorted by flow identifier, so the merge is insensitive to
// input list order and idempotent under re-merging its own output.
func MergeRelevance(lists ...[]chain.FlowCandidate) ([]chain.FlowCandidate, error) {
	merged := make(map[string]chain.FlowCandidate)
	for _, list := range lists {
		for _, candidate := range list {
			existing, ok := merged[candidate.ID]
			if !ok || candidate.Relevance.Rank() > existing.Relevance.Rank() {
				merged[candidate.ID] = candidate
			}
		}
	}

	if len(merged) == 0 {
		return nil, ErrNoRelevantFlows
	}

	result := make([]chain.FlowCandidate, 0, len(merged))
	for _, candidate := range merged {
		result = append(result, candidate)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// Shortlist keeps the most relevant flows up to max entries. Candidates are
// ordered by relevance (high first), then by identifier for determinism.
func Shortlist(candidates []chain.FlowCandidate, max int) []chain.FlowCandidate {
	if max <= 0 || len(candidates) == 0 {
		return nil
	}

	ordered := make([]chain.FlowCandidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Relevance.Rank() != ordered[j].Relevance.Rank() {
			return ordered[i].Relevance.Rank() > ordered[j].Relevance.Rank()
		}
		return ordered[i].ID < ordered[j].ID
	})

	if len(ordered) > max {
		ordered = ordered[:max]
	}
	return ordered
}

// AllElementary reports whether every shortlisted flow is a direct
// environmental exchange, i.e. there is nothing further upstream to trace.
func AllElementary(candidates []chain.FlowCandidate) bool {
	if len(candidates) == 0 {
		return false
	}
	for _, candidate := range candidates {
		if !candidate.Elementary {
			return false
		}
	}
	return true
}
