package scoring

import (
	"testing"

	"github.com/kadirpekel/upchain/pkg/chain"
)

func TestConsensus(t *testing.T) {
	tests := []struct {
		name    string
		samples []chain.Grade
		want    chain.Grade
	}{
		{
			name:    "unanimous",
			samples: []chain.Grade{3, 3, 3},
			want:    3,
		},
		{
			name:    "majority wins",
			samples: []chain.Grade{2, 2, 3},
			want:    2,
		},
		{
			name:    "tie prefers lower grade",
			samples: []chain.Grade{1, 3},
			want:    1,
		},
		{
			name:    "tie prefers lower grade regardless of order",
			samples: []chain.Grade{3, 1},
			want:    1,
		},
		{
			name:    "single sample",
			samples: []chain.Grade{4},
			want:    4,
		},
		{
			name:    "three way tie",
			samples: []chain.Grade{5, 2, 4},
			want:    2,
		},
		{
			name:    "even count with clear mode",
			samples: []chain.Grade{2, 4, 4, 4},
			want:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Consensus(tt.samples)
			if err != nil {
				t.Fatalf("Consensus returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Consensus(%v) = %d, want %d", tt.samples, got, tt.want)
			}
		})
	}
}

func TestConsensusEmptyInput(t *testing.T) {
	if _, err := Consensus(nil); err == nil {
		t.Error("expected error for empty sample list")
	}
}

func TestConsensusDeterministic(t *testing.T) {
	samples := []chain.Grade{1, 2, 2, 3, 3, 5}
	first, err := Consensus(samples)
	if err != nil {
		t.Fatalf("Consensus returned error: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Consensus(samples)
		if err != nil {
			t.Fatalf("Consensus returned error: %v", err)
		}
		if again != first {
			t.Fatalf("Consensus not deterministic: got %d then %d", first, again)
		}
	}
}
