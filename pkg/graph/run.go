package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrMaxStepsExceeded guards against routing cycles that never reach End.
var ErrMaxStepsExceeded = errors.New("graph: maximum step count exceeded")

const (
	defaultMaxSteps       = 100
	defaultMaxConcurrency = 5
)

// StageError records a failure inside one stage instance. Failures are
// caught at the engine boundary: the failed branch stops fanning out while
// sibling branches already in flight keep running.
type StageError struct {
	Stage    string
	Instance int
	Err      error
}

func (e *StageError) Error() string {
	if e.Instance > 0 {
		return fmt.Sprintf("stage %s[%d]: %v", e.Stage, e.Instance, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the outcome of one graph run.
type Result struct {
	Final    State
	Errors   []*StageError
	Steps    int
	Duration time.Duration
}

// Failed reports whether any stage instance failed during the run.
func (r *Result) Failed() bool { return len(r.Errors) > 0 }

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	maxSteps       int
	maxConcurrency int
	logger         *slog.Logger
}

// WithMaxSteps bounds the number of execution steps (frontier barriers).
func WithMaxSteps(n int) RunOption {
	return func(o *runOptions) { o.maxSteps = n }
}

// WithMaxConcurrency bounds how many stage instances run at once within a
// step. One step is one wave: the barrier between steps guarantees all
// results of wave n are merged before wave n+1 starts.
func WithMaxConcurrency(n int) RunOption {
	return func(o *runOptions) { o.maxConcurrency = n }
}

// WithLogger sets the run logger.
func WithLogger(l *slog.Logger) RunOption {
	return func(o *runOptions) { o.logger = l }
}

// task is one scheduled stage instance within a step.
type task struct {
	stage      string
	instance   int
	payload    any
	hasPayload bool
}

// taskResult pairs a task with its delta or error, in arrival order.
type taskResult struct {
	task  task
	delta State
	err   error
}

// Run executes the graph from the start stage until the terminal sentinel is
// reached on every live branch. The initial state is not mutated.
func (g *Graph) Run(ctx context.Context, initial State, opts ...RunOption) (*Result, error) {
	if err := g.Compile(); err != nil {
		return nil, err
	}

	options := runOptions{
		maxSteps:       defaultMaxSteps,
		maxConcurrency: defaultMaxConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.maxConcurrency < 1 {
		options.maxConcurrency = 1
	}

	state := initial.Clone()
	result := &Result{}
	started := time.Now()

	frontier := []task{{stage: g.start}}

	for len(frontier) > 0 {
		if result.Steps >= options.maxSteps {
			result.Final = state
			result.Duration = time.Since(started)
			return result, fmt.Errorf("%w (%d steps)", ErrMaxStepsExceeded, result.Steps)
		}
		result.Steps++

		results := g.executeWave(ctx, state, frontier, options)

		// Merge deltas in arrival order, then collect which stages
		// succeeded at least once. A failed instance contributes no
		// further fan-out.
		succeeded := make(map[string]bool)
		var order []string
		for _, res := range results {
			if res.err != nil {
				stageErr := &StageError{Stage: res.task.stage, Instance: res.task.instance, Err: res.err}
				result.Errors = append(result.Errors, stageErr)
				options.logger.Warn("stage failed",
					"stage", res.task.stage,
					"instance", res.task.instance,
					"error", res.err)
				continue
			}
			if res.delta != nil {
				delete(res.delta, PayloadKey)
				if err := g.schema.merge(state, res.delta); err != nil {
					result.Final = state
					result.Duration = time.Since(started)
					return result, err
				}
			}
			if !succeeded[res.task.stage] {
				succeeded[res.task.stage] = true
				order = append(order, res.task.stage)
			}
		}

		next, err := g.schedule(order, state, result, options)
		if err != nil {
			result.Final = state
			result.Duration = time.Since(started)
			return result, err
		}
		frontier = next
	}

	result.Final = state
	result.Duration = time.Since(started)
	return result, nil
}

// executeWave runs every task of the frontier, bounded by maxConcurrency,
// and returns results in arrival order. The wave barrier is the return: all
// instances have finished before the caller merges anything.
func (g *Graph) executeWave(ctx context.Context, state State, frontier []task, options runOptions) []taskResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]taskResult, 0, len(frontier))
		slots   = make(chan struct{}, options.maxConcurrency)
	)

	snapshot := state.Clone()

	for _, t := range frontier {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()

			input := snapshot
			if t.hasPayload {
				input = snapshot.Clone()
				input[PayloadKey] = t.payload
			}

			delta, err := g.stages[t.stage](ctx, input)

			mu.Lock()
			results = append(results, taskResult{task: t, delta: delta, err: err})
			mu.Unlock()
		}(t)
	}

	wg.Wait()
	return results
}

// schedule computes the next frontier from the stages that succeeded in the
// current step. Instances of the same stage contribute their successors once
// (fan-in); a single stage fanning out contributes one task per target
// listing or per split payload.
func (g *Graph) schedule(succeeded []string, state State, result *Result, options runOptions) ([]task, error) {
	var next []task
	scheduled := make(map[string]bool)

	for _, stage := range succeeded {
		if edge, ok := g.conditionals[stage]; ok {
			dest := edge.route(state)
			if dest == End {
				continue
			}
			if !contains(edge.allowed, dest) {
				return nil, fmt.Errorf("graph: route from %q returned %q, not among allowed destinations", stage, dest)
			}
			if !scheduled[dest] {
				scheduled[dest] = true
				next = append(next, task{stage: dest})
			}
			continue
		}

		if edge, ok := g.fanOuts[stage]; ok {
			payloads := edge.split(state)
			if len(payloads) == 0 {
				options.logger.Debug("fan-out produced no instances", "stage", stage, "target", edge.target)
				continue
			}
			for i, payload := range payloads {
				next = append(next, task{stage: edge.target, instance: i, payload: payload, hasPayload: true})
			}
			continue
		}

		for _, dest := range g.edges[stage] {
			// Multiple listings from one source are deliberate
			// fan-out instances; the same destination reached from
			// two different sources runs once.
			if scheduled[dest] && !multiListed(g.edges[stage], dest) {
				continue
			}
			scheduled[dest] = true
			next = append(next, task{stage: dest, instance: countTasks(next, dest)})
		}
	}

	return next, nil
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

func multiListed(targets []string, want string) bool {
	n := 0
	for _, t := range targets {
		if t == want {
			n++
		}
	}
	return n > 1
}

func countTasks(tasks []task, stage string) int {
	n := 0
	for _, t := range tasks {
		if t.stage == stage {
			n++
		}
	}
	return n
}
