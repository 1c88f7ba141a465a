package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSequentialEdges(t *testing.T) {
	g := New(Schema{})
	g.AddStage("first", func(ctx context.Context, s State) (State, error) {
		return State{"trail": "first"}, nil
	})
	g.AddStage("second", func(ctx context.Context, s State) (State, error) {
		return State{"trail": s["trail"].(string) + ",second"}, nil
	})
	g.AddEdge("first", "second")
	g.SetStart("first")

	result, err := g.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, "first,second", result.Final["trail"])
	assert.Equal(t, 2, result.Steps)
	assert.False(t, result.Failed())
}

func TestRunConditionalRouting(t *testing.T) {
	g := New(Schema{})
	g.AddStage("decide", func(ctx context.Context, s State) (State, error) {
		return State{"verdict": s["verdict"]}, nil
	})
	g.AddStage("left", func(ctx context.Context, s State) (State, error) {
		return State{"took": "left"}, nil
	})
	g.AddStage("right", func(ctx context.Context, s State) (State, error) {
		return State{"took": "right"}, nil
	})
	g.AddConditionalEdge("decide", func(s State) string {
		if s["verdict"] == "go-left" {
			return "left"
		}
		return "right"
	}, "left", "right")
	g.SetStart("decide")

	result, err := g.Run(context.Background(), State{"verdict": "go-left"})
	require.NoError(t, err)
	assert.Equal(t, "left", result.Final["took"])

	result, err = g.Run(context.Background(), State{"verdict": "anything-else"})
	require.NoError(t, err)
	assert.Equal(t, "right", result.Final["took"])
}

func TestRunConditionalEndSentinel(t *testing.T) {
	var afterRan atomic.Bool

	g := New(Schema{})
	g.AddStage("gate", func(ctx context.Context, s State) (State, error) {
		return nil, nil
	})
	g.AddStage("after", func(ctx context.Context, s State) (State, error) {
		afterRan.Store(true)
		return nil, nil
	})
	g.AddConditionalEdge("gate", func(s State) string { return End }, "after")
	g.SetStart("gate")

	result, err := g.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Steps)
	assert.False(t, afterRan.Load(), "End must stop the branch")
}

func TestRunRouteOutsideAllowedSetFails(t *testing.T) {
	g := New(Schema{})
	g.AddStage("gate", func(ctx context.Context, s State) (State, error) { return nil, nil })
	g.AddStage("ok", func(ctx context.Context, s State) (State, error) { return nil, nil })
	g.AddStage("rogue", func(ctx context.Context, s State) (State, error) { return nil, nil })
	g.AddConditionalEdge("gate", func(s State) string { return "rogue" }, "ok")
	g.SetStart("gate")

	_, err := g.Run(context.Background(), State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not among allowed destinations")
}

func TestRunStaticFanOutInstances(t *testing.T) {
	var calls atomic.Int32

	g := New(Schema{
		"votes": {Reduce: Append},
	})
	g.AddStage("start", func(ctx context.Context, s State) (State, error) { return nil, nil })
	g.AddStage("vote", func(ctx context.Context, s State) (State, error) {
		calls.Add(1)
		return State{"votes": []string{"ballot"}}, nil
	})
	g.AddStage("tally", func(ctx context.Context, s State) (State, error) {
		return State{"total": len(s["votes"].([]string))}, nil
	})
	// Three unconditional edges to the same stage: three instances.
	g.AddEdge("start", "vote")
	g.AddEdge("start", "vote")
	g.AddEdge("start", "vote")
	g.AddEdge("vote", "tally")
	g.SetStart("start")

	result, err := g.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, result.Final["total"], "join must see all three appends")
}

func TestRunDynamicFanOutWithPayloads(t *testing.T) {
	g := New(Schema{
		"squared": {Reduce: Append},
	})
	g.AddStage("seed", func(ctx context.Context, s State) (State, error) {
		return State{"inputs": []int{2, 3, 4}}, nil
	})
	g.AddStage("square", func(ctx context.Context, s State) (State, error) {
		n := s[PayloadKey].(int)
		return State{"squared": []int{n * n}}, nil
	})
	g.AddFanOutEdge("seed", "square", func(s State) []any {
		var payloads []any
		for _, n := range s["inputs"].([]int) {
			payloads = append(payloads, n)
		}
		return payloads
	})
	g.SetStart("seed")

	result, err := g.Run(context.Background(), State{})
	require.NoError(t, err)

	squared := result.Final["squared"].([]int)
	sort.Ints(squared)
	assert.Equal(t, []int{4, 9, 16}, squared)
	_, leaked := result.Final[PayloadKey]
	assert.False(t, leaked, "payload key must not leak into final state")
}

func TestRunMergeSetDeduplicates(t *testing.T) {
	type flow struct{ ID string }

	g := New(Schema{
		"flows": {Reduce: MergeSet, Key: func(item any) string { return item.(flow).ID }},
	})
	g.AddStage("start", func(ctx context.Context, s State) (State, error) { return nil, nil })
	g.AddStage("produce", func(ctx context.Context, s State) (State, error) {
		return State{"flows": []flow{{ID: "a"}, {ID: "b"}}}, nil
	})
	g.AddEdge("start", "produce")
	g.AddEdge("start", "produce")
	g.SetStart("start")

	result, err := g.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.Len(t, result.Final["flows"].([]flow), 2, "duplicate keys must merge")
}

func TestRunBranchFailureIsolation(t *testing.T) {
	var healthyRan, downstreamRan atomic.Bool

	g := New(Schema{
		"outputs": {Reduce: Append},
	})
	g.AddStage("start", func(ctx context.Context, s State) (State, error) { return nil, nil })
	g.AddStage("faulty", func(ctx context.Context, s State) (State, error) {
		return nil, fmt.Errorf("boom")
	})
	g.AddStage("healthy", func(ctx context.Context, s State) (State, error) {
		healthyRan.Store(true)
		return State{"outputs": []string{"ok"}}, nil
	})
	g.AddStage("afterFaulty", func(ctx context.Context, s State) (State, error) {
		downstreamRan.Store(true)
		return nil, nil
	})
	g.AddEdge("start", "faulty")
	g.AddEdge("start", "healthy")
	g.AddEdge("faulty", "afterFaulty")
	g.SetStart("start")

	result, err := g.Run(context.Background(), State{})
	require.NoError(t, err, "stage failure is recorded, not returned")
	assert.True(t, result.Failed())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "faulty", result.Errors[0].Stage)
	assert.True(t, healthyRan.Load(), "sibling branch must not be aborted")
	assert.False(t, downstreamRan.Load(), "failed branch must not fan out")
}

func TestRunMaxStepsGuardsCycles(t *testing.T) {
	g := New(Schema{})
	g.AddStage("loop", func(ctx context.Context, s State) (State, error) { return nil, nil })
	g.AddConditionalEdge("loop", func(s State) string { return "loop" }, "loop")
	g.SetStart("loop")

	_, err := g.Run(context.Background(), State{}, WithMaxSteps(7))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxStepsExceeded))
}

func TestRunWaveConcurrencyBound(t *testing.T) {
	const bound = 2
	var inFlight, peak atomic.Int32

	g := New(Schema{})
	g.AddStage("start", func(ctx context.Context, s State) (State, error) {
		return State{"items": []int{1, 2, 3, 4, 5, 6, 7, 8}}, nil
	})
	g.AddStage("work", func(ctx context.Context, s State) (State, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		return nil, nil
	})
	g.AddFanOutEdge("start", "work", func(s State) []any {
		var payloads []any
		for _, n := range s["items"].([]int) {
			payloads = append(payloads, n)
		}
		return payloads
	})
	g.SetStart("start")

	_, err := g.Run(context.Background(), State{}, WithMaxConcurrency(bound))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(bound))
}

func TestCompileErrors(t *testing.T) {
	noop := func(ctx context.Context, s State) (State, error) { return nil, nil }

	tests := []struct {
		name    string
		build   func() *Graph
		wantErr string
	}{
		{
			name:    "missing start",
			build:   func() *Graph { return New(Schema{}).AddStage("a", noop) },
			wantErr: "no start stage",
		},
		{
			name: "unknown edge target",
			build: func() *Graph {
				return New(Schema{}).AddStage("a", noop).AddEdge("a", "ghost").SetStart("a")
			},
			wantErr: "unknown stage",
		},
		{
			name: "conditional and unconditional on same stage",
			build: func() *Graph {
				g := New(Schema{}).AddStage("a", noop).AddStage("b", noop)
				g.AddEdge("a", "b")
				g.AddConditionalEdge("a", func(s State) string { return End }, "b")
				return g.SetStart("a")
			},
			wantErr: "both unconditional and conditional",
		},
		{
			name: "conditional without destinations",
			build: func() *Graph {
				g := New(Schema{}).AddStage("a", noop)
				g.AddConditionalEdge("a", func(s State) string { return End })
				return g.SetStart("a")
			},
			wantErr: "no destinations",
		},
		{
			name: "edge to End",
			build: func() *Graph {
				g := New(Schema{}).AddStage("a", noop)
				g.AddEdge("a", End)
				return g.SetStart("a")
			},
			wantErr: "redundant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Compile()
			require.Error(t, err)
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunDoesNotMutateInitialState(t *testing.T) {
	g := New(Schema{})
	g.AddStage("write", func(ctx context.Context, s State) (State, error) {
		return State{"written": true}, nil
	})
	g.SetStart("write")

	initial := State{"seed": 1}
	_, err := g.Run(context.Background(), initial)
	require.NoError(t, err)
	assert.Len(t, initial, 1, "initial state must stay untouched")
}
