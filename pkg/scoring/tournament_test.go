package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/upchain/pkg/chain"
)

func TestSelectTournamentEmptyPool(t *testing.T) {
	_, ok := SelectTournament(nil, HeterogeneousCriteria())
	assert.False(t, ok, "empty pool must select nothing")
}

func TestSelectTournamentTieBrokenByLaterCriterion(t *testing.T) {
	candidates := []chain.ScoreSheet{
		{CandidateID: "A", Technical: 1, Spatial: 2, Temporal: 3, FlowCount: 5},
		{CandidateID: "B", Technical: 1, Spatial: 1, Temporal: 4, FlowCount: 2},
	}

	// Both tie at technical=1; spatial then decides in B's favor.
	selected, ok := SelectTournament(candidates, HeterogeneousCriteria())
	require.True(t, ok)
	assert.Equal(t, "B", selected.CandidateID)
}

func TestSelectTournamentOrderingMatters(t *testing.T) {
	candidates := []chain.ScoreSheet{
		{CandidateID: "A", Technical: 1, Spatial: 2, Temporal: 1, FlowCount: 5},
		{CandidateID: "B", Technical: 1, Spatial: 1, Temporal: 2, FlowCount: 2},
	}

	spatialFirst, ok := SelectTournament(candidates, HeterogeneousCriteria())
	require.True(t, ok)
	assert.Equal(t, "B", spatialFirst.CandidateID)

	temporalFirst, ok := SelectTournament(candidates, HomogeneousCriteria())
	require.True(t, ok)
	assert.Equal(t, "A", temporalFirst.CandidateID)
}

func TestSelectTournamentFlowCountMaximized(t *testing.T) {
	candidates := []chain.ScoreSheet{
		{CandidateID: "A", Technical: 2, Spatial: 2, Temporal: 2, FlowCount: 3},
		{CandidateID: "B", Technical: 2, Spatial: 2, Temporal: 2, FlowCount: 9},
	}

	selected, ok := SelectTournament(candidates, HeterogeneousCriteria())
	require.True(t, ok)
	assert.Equal(t, "B", selected.CandidateID, "flow count uses MAX direction")
}

func TestSelectTournamentExhaustedCriteriaPicksFirst(t *testing.T) {
	candidates := []chain.ScoreSheet{
		{CandidateID: "first", Technical: 2, Spatial: 2, Temporal: 2, FlowCount: 4},
		{CandidateID: "second", Technical: 2, Spatial: 2, Temporal: 2, FlowCount: 4},
	}

	selected, ok := SelectTournament(candidates, HeterogeneousCriteria())
	require.True(t, ok)
	assert.Equal(t, "first", selected.CandidateID, "full tie falls back to input order")
}

func TestSelectTournamentWinnerProperties(t *testing.T) {
	candidates := []chain.ScoreSheet{
		{CandidateID: "A", Technical: 3, Spatial: 1, Temporal: 2, FlowCount: 1},
		{CandidateID: "B", Technical: 2, Spatial: 4, Temporal: 1, FlowCount: 7},
		{CandidateID: "C", Technical: 2, Spatial: 5, Temporal: 5, FlowCount: 2},
	}

	criteria := HeterogeneousCriteria()
	selected, ok := SelectTournament(candidates, criteria)
	require.True(t, ok)

	// The winner must come from the input pool.
	var winner *chain.ScoreSheet
	for i := range candidates {
		if candidates[i].CandidateID == selected.CandidateID {
			winner = &candidates[i]
		}
	}
	require.NotNil(t, winner, "selected candidate not in input pool")

	// And must achieve the best value on the first criterion.
	best := criteria[0].value(candidates[0])
	for _, sheet := range candidates {
		if v := criteria[0].value(sheet); v < best {
			best = v
		}
	}
	assert.Equal(t, best, criteria[0].value(*winner))
}

func TestSelectTournamentDoesNotMutateInput(t *testing.T) {
	candidates := []chain.ScoreSheet{
		{CandidateID: "A", Technical: 2, Spatial: 1, Temporal: 1, FlowCount: 1},
		{CandidateID: "B", Technical: 1, Spatial: 2, Temporal: 2, FlowCount: 2},
	}

	_, ok := SelectTournament(candidates, HeterogeneousCriteria())
	require.True(t, ok)
	assert.Equal(t, "A", candidates[0].CandidateID)
	assert.Equal(t, "B", candidates[1].CandidateID)
}
