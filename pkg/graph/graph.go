package graph

import (
	"context"
	"fmt"
)

// End is the terminal sentinel. Routing functions return it to finish a
// branch; it is not a stage.
const End = "__end__"

// PayloadKey is the reserved state key under which a fan-out instance
// receives its per-instance payload.
const PayloadKey = "__payload__"

// StageFunc is a single named stage: a function from the accumulated state
// snapshot to a partial state update. Stages run asynchronously and must not
// mutate the snapshot.
type StageFunc func(ctx context.Context, state State) (State, error)

// RouteFunc inspects the post-stage state and names the next stage, chosen
// from the edge's enumerated destinations, or End.
type RouteFunc func(state State) string

// SplitFunc produces one payload per fan-out instance of the target stage.
// Returning an empty slice schedules nothing.
type SplitFunc func(state State) []any

type conditionalEdge struct {
	route   RouteFunc
	allowed []string
}

type fanOutEdge struct {
	target string
	split  SplitFunc
}

// Graph is a fixed set of named stages connected by edges. Build it with the
// Add methods, then call Compile before Run.
type Graph struct {
	schema       Schema
	stages       map[string]StageFunc
	edges        map[string][]string
	conditionals map[string]conditionalEdge
	fanOuts      map[string]fanOutEdge
	start        string
	compiled     bool
}

// New creates an empty graph over the given state schema.
func New(schema Schema) *Graph {
	return &Graph{
		schema:       schema,
		stages:       make(map[string]StageFunc),
		edges:        make(map[string][]string),
		conditionals: make(map[string]conditionalEdge),
		fanOuts:      make(map[string]fanOutEdge),
	}
}

// AddStage registers a named stage.
func (g *Graph) AddStage(name string, fn StageFunc) *Graph {
	g.stages[name] = fn
	return g
}

// AddEdge adds an unconditional edge. Adding several edges from the same
// stage fans out: each target runs as its own concurrent instance, and the
// engine joins them all before any downstream stage runs. Listing the same
// target twice yields two instances.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a runtime-routed edge. The routing function must
// return one of the allowed destinations or End.
func (g *Graph) AddConditionalEdge(from string, route RouteFunc, allowed ...string) *Graph {
	g.conditionals[from] = conditionalEdge{route: route, allowed: allowed}
	return g
}

// AddFanOutEdge adds a dynamic fan-out edge: at runtime the split function
// derives one payload per instance of the target stage, and the instances
// run concurrently under the engine's concurrency bound.
func (g *Graph) AddFanOutEdge(from, to string, split SplitFunc) *Graph {
	g.fanOuts[from] = fanOutEdge{target: to, split: split}
	return g
}

// SetStart designates the entry stage.
func (g *Graph) SetStart(name string) *Graph {
	g.start = name
	return g
}

// Compile validates the graph wiring. It is idempotent and called
// automatically by Run.
func (g *Graph) Compile() error {
	if g.compiled {
		return nil
	}

	if g.start == "" {
		return fmt.Errorf("graph: no start stage designated")
	}
	if _, ok := g.stages[g.start]; !ok {
		return fmt.Errorf("graph: start stage %q is not registered", g.start)
	}

	for from, targets := range g.edges {
		if _, ok := g.stages[from]; !ok {
			return fmt.Errorf("graph: edge from unknown stage %q", from)
		}
		if _, dup := g.conditionals[from]; dup {
			return fmt.Errorf("graph: stage %q has both unconditional and conditional edges", from)
		}
		if _, dup := g.fanOuts[from]; dup {
			return fmt.Errorf("graph: stage %q has both unconditional and fan-out edges", from)
		}
		for _, to := range targets {
			if to == End {
				return fmt.Errorf("graph: unconditional edge %q->End is redundant, omit it", from)
			}
			if _, ok := g.stages[to]; !ok {
				return fmt.Errorf("graph: edge %q->%q targets unknown stage", from, to)
			}
		}
	}

	for from, edge := range g.conditionals {
		if _, ok := g.stages[from]; !ok {
			return fmt.Errorf("graph: conditional edge from unknown stage %q", from)
		}
		if _, dup := g.fanOuts[from]; dup {
			return fmt.Errorf("graph: stage %q has both conditional and fan-out edges", from)
		}
		if len(edge.allowed) == 0 {
			return fmt.Errorf("graph: conditional edge from %q enumerates no destinations", from)
		}
		for _, to := range edge.allowed {
			if to == End {
				continue
			}
			if _, ok := g.stages[to]; !ok {
				return fmt.Errorf("graph: conditional edge %q allows unknown stage %q", from, to)
			}
		}
	}

	for from, edge := range g.fanOuts {
		if _, ok := g.stages[from]; !ok {
			return fmt.Errorf("graph: fan-out edge from unknown stage %q", from)
		}
		if _, ok := g.stages[edge.target]; !ok {
			return fmt.Errorf("graph: fan-out edge %q->%q targets unknown stage", from, edge.target)
		}
		if edge.split == nil {
			return fmt.Errorf("graph: fan-out edge from %q has no split function", from)
		}
	}

	g.compiled = true
	return nil
}
