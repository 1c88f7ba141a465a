package scoring

import "github.com/kadirpekel/upchain/pkg/chain"

// ============================================================================
// TOURNAMENT SELECTION
// ============================================================================

// Direction tells the tournament which end of a criterion is better.
type Direction int

const (
	// Min means lower values win (axis grades).
	Min Direction = iota
	// Max means higher values win (flow count).
	Max
)

// Criterion is one ranking dimension of the tournament.
type Criterion struct {
	Field     string
	Direction Direction
	value     func(chain.ScoreSheet) int
}

// The two fixed criteria orderings. Which one applies is decided by a prior
// heterogeneity classification of the requirement, not by the tournament.

// HomogeneousCriteria orders temporal fit before spatial fit. Used when the
// requirement's technology is produced largely the same way everywhere.
func HomogeneousCriteria() []Criterion {
	return []Criterion{
		{Field: "technical", Direction: Min, value: func(s chain.ScoreSheet) int { return int(s.Technical) }},
		{Field: "temporal", Direction: Min, value: func(s chain.ScoreSheet) int { return int(s.Temporal) }},
		{Field: "spatial", Direction: Min, value: func(s chain.ScoreSheet) int { return int(s.Spatial) }},
		{Field: "flow_count", Direction: Max, value: func(s chain.ScoreSheet) int { return s.FlowCount }},
	}
}

// HeterogeneousCriteria orders spatial fit before temporal fit. Used when
// production differs strongly by region.
func HeterogeneousCriteria() []Criterion {
	return []Criterion{
		{Field: "technical", Direction: Min, value: func(s chain.ScoreSheet) int { return int(s.Technical) }},
		{Field: "spatial", Direction: Min, value: func(s chain.ScoreSheet) int { return int(s.Spatial) }},
		{Field: "temporal", Direction: Min, value: func(s chain.ScoreSheet) int { return int(s.Temporal) }},
		{Field: "flow_count", Direction: Max, value: func(s chain.ScoreSheet) int { return s.FlowCount }},
	}
}

// SelectTournament picks the best candidate by filtering to the subset tied
// for the best value of each criterion, in strict priority order.
//
// If more than one candidate survives all criteria, the first in input order
// wins. This is a deliberate, documented tie-break, not an error. Returns
// false only when the candidate set is empty.
func SelectTournament(candidates []chain.ScoreSheet, criteria []Criterion) (chain.SelectedProcess, bool) {
	if len(candidates) == 0 {
		return chain.SelectedProcess{}, false
	}

	pool := make([]chain.ScoreSheet, len(candidates))
	copy(pool, candidates)

	for _, criterion := range criteria {
		if len(pool) == 1 {
			break
		}
		pool = filterBest(pool, criterion)
	}

	winner := pool[0]
	return chain.SelectedProcess{
		CandidateID: winner.CandidateID,
		Name:        winner.Name,
		Location:    winner.Location,
		FlowCount:   winner.FlowCount,
	}, true
}

// filterBest returns exactly the subset of pool achieving the best value on
// the criterion, preserving input order.
func filterBest(pool []chain.ScoreSheet, criterion Criterion) []chain.ScoreSheet {
	best := criterion.value(pool[0])
	for _, sheet := range pool[1:] {
		v := criterion.value(sheet)
		if (criterion.Direction == Min && v < best) || (criterion.Direction == Max && v > best) {
			best = v
		}
	}

	filtered := pool[:0]
	for _, sheet := range pool {
		if criterion.value(sheet) == best {
			filtered = append(filtered, sheet)
		}
	}
	return filtered
}
