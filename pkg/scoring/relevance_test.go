package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/upchain/pkg/chain"
)

func TestMergeRelevanceKeepsHighestLabel(t *testing.T) {
	listA := []chain.FlowCandidate{
		{ID: "flowX", Name: "steel", Relevance: chain.RelevanceHigh},
	}
	listB := []chain.FlowCandidate{
		{ID: "flowX", Name: "steel", Relevance: chain.RelevanceLow},
		{ID: "flowY", Name: "electricity", Relevance: chain.RelevanceMedium},
	}

	merged, err := MergeRelevance(listA, listB)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	byID := make(map[string]chain.FlowCandidate)
	for _, c := range merged {
		byID[c.ID] = c
	}
	assert.Equal(t, chain.RelevanceHigh, byID["flowX"].Relevance)
	assert.Equal(t, chain.RelevanceMedium, byID["flowY"].Relevance)
}

func TestMergeRelevanceCommutative(t *testing.T) {
	listA := []chain.FlowCandidate{
		{ID: "a", Relevance: chain.RelevanceLow},
		{ID: "b", Relevance: chain.RelevanceHigh},
	}
	listB := []chain.FlowCandidate{
		{ID: "a", Relevance: chain.RelevanceMedium},
		{ID: "c", Relevance: chain.RelevanceLow},
	}

	forward, err := MergeRelevance(listA, listB)
	require.NoError(t, err)
	backward, err := MergeRelevance(listB, listA)
	require.NoError(t, err)

	assert.Equal(t, forward, backward)
}

func TestMergeRelevanceIdempotent(t *testing.T) {
	lists := [][]chain.FlowCandidate{
		{{ID: "a", Relevance: chain.RelevanceMedium}},
		{{ID: "a", Relevance: chain.RelevanceHigh}, {ID: "b", Relevance: chain.RelevanceLow}},
	}

	once, err := MergeRelevance(lists...)
	require.NoError(t, err)
	twice, err := MergeRelevance(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestMergeRelevanceEmptySignal(t *testing.T) {
	_, err := MergeRelevance(nil, []chain.FlowCandidate{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRelevantFlows))
}

func TestShortlist(t *testing.T) {
	candidates := []chain.FlowCandidate{
		{ID: "low1", Relevance: chain.RelevanceLow},
		{ID: "high1", Relevance: chain.RelevanceHigh},
		{ID: "med1", Relevance: chain.RelevanceMedium},
		{ID: "high2", Relevance: chain.RelevanceHigh},
	}

	short := Shortlist(candidates, 3)
	require.Len(t, short, 3)
	assert.Equal(t, "high1", short[0].ID)
	assert.Equal(t, "high2", short[1].ID)
	assert.Equal(t, "med1", short[2].ID)
}

func TestShortlistZeroMax(t *testing.T) {
	candidates := []chain.FlowCandidate{{ID: "a", Relevance: chain.RelevanceHigh}}
	assert.Nil(t, Shortlist(candidates, 0))
}

func TestAllElementary(t *testing.T) {
	assert.False(t, AllElementary(nil), "empty shortlist is not an elementary boundary")
	assert.True(t, AllElementary([]chain.FlowCandidate{
		{ID: "co2", Elementary: true},
		{ID: "water", Elementary: true},
	}))
	assert.False(t, AllElementary([]chain.FlowCandidate{
		{ID: "co2", Elementary: true},
		{ID: "steel", Elementary: false},
	}))
}
