// Package scoring implements the pure ranking and aggregation primitives of
// the exploration pipeline: redundant-sample consensus, relevance-list
// merging, and the lexicographic selection tournament.
package scoring

import (
	"fmt"

	"github.com/kadirpekel/upchain/pkg/chain"
)

// Consensus collapses independent oracle samples for one (candidate, axis)
// pair into a single grade.
//
// If all samples agree the shared value is returned. Otherwise the modal
// value wins; when several values tie for mode, the numerically lower
// (better) grade is preferred. Total for any non-empty sample list,
// including a single sample.
func Consensus(samples []chain.Grade) (chain.Grade, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("consensus requires at least one sample")
	}

	counts := make(map[chain.Grade]int, len(samples))
	for _, s := range samples {
		counts[s]++
	}

	best := samples[0]
	bestCount := counts[best]
	for grade, count := range counts {
		if count > bestCount || (count == bestCount && grade < best) {
			best = grade
			bestCount = count
		}
	}

	return best, nil
}
