package explorer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/upchain/pkg/config"
	"github.com/kadirpekel/upchain/pkg/observability"
)

// ============================================================================
// REPORT
// ============================================================================

// Node is one admitted requirement and what its run produced.
type Node struct {
	Requirement    string     `json:"requirement"`
	OriginFlowName string     `json:"origin_flow_name,omitempty"`
	OriginFlowID   string     `json:"origin_flow_id,omitempty"`
	Depth          int        `json:"depth"`
	Outcome        *Outcome   `json:"outcome,omitempty"`
	Stop           StopReason `json:"stop,omitempty"`
	RunError       string     `json:"run_error,omitempty"`
}

// Report is the result of one full exploration.
type Report struct {
	RunID    string  `json:"run_id"`
	Mode     string  `json:"mode"`
	Nodes    []*Node `json:"nodes"`
	Admitted int     `json:"admitted"`

	// Pending is set by the queue controller when the iteration cap was
	// reached with items still waiting.
	Pending  bool          `json:"pending"`
	Duration time.Duration `json:"duration"`
}

// Selected collects every process selection across the exploration.
func (r *Report) Selected() []*Node {
	var out []*Node
	for _, node := range r.Nodes {
		if node.Outcome != nil && node.Outcome.Selected != nil {
			out = append(out, node)
		}
	}
	return out
}

// ============================================================================
// CONTROLLER
// ============================================================================

// Controller drives the repeated expansion of a requirement into
// sub-requirements, bounding the recursion and suppressing duplicates.
type Controller interface {
	Explore(ctx context.Context, rawText string) (*Report, error)
}

// NewController selects the recursion variant from config. Both variants
// share the same admission discipline; only the expansion order differs.
func NewController(runner Runner, cfg *config.ExplorerConfig) (Controller, error) {
	switch cfg.Mode {
	case "tree":
		return NewTreeController(runner, cfg), nil
	case "queue":
		return NewQueueController(runner, cfg), nil
	default:
		return nil, fmt.Errorf("unknown explorer mode: %q", cfg.Mode)
	}
}

// pending is one sub-requirement waiting to be expanded.
type pending struct {
	text     string
	flowName string
	flowID   string
	depth    int
}

// runNode admits and runs one requirement, returning nil when the admission
// was rejected. Shared by both controller variants.
func runNode(ctx context.Context, runner Runner, rc *RunContext, logger *slog.Logger, item pending) *Node {
	decision := rc.Admit(item.text, item.depth)
	observability.GetGlobalMetrics().RecordAdmission(ctx, string(decision.Outcome))
	if !decision.Accepted {
		logger.Debug("requirement rejected",
			"outcome", decision.Outcome,
			"depth", item.depth,
			"key", decision.Key)
		if decision.Outcome == RejectedDepth || decision.Outcome == RejectedIterations {
			observability.GetGlobalMetrics().RecordStop(ctx, string(StopLimit))
		}
		return nil
	}

	node := &Node{
		Requirement:    item.text,
		OriginFlowName: item.flowName,
		OriginFlowID:   item.flowID,
		Depth:          item.depth,
	}

	outcome, err := runner.Run(ctx, item.text, item.depth)
	if err != nil {
		node.RunError = err.Error()
		logger.Warn("requirement run failed", "depth", item.depth, "error", err)
		return node
	}

	node.Outcome = outcome
	node.Stop = Decide(outcome)
	if node.Stop != Continue {
		observability.GetGlobalMetrics().RecordStop(ctx, string(node.Stop))
		logger.Info("branch stopped", "reason", node.Stop, "depth", item.depth)
	}
	return node
}

func children(node *Node, depth int) []pending {
	if node == nil || node.Outcome == nil || node.Stop != Continue {
		return nil
	}
	out := make([]pending, 0, len(node.Outcome.SubRequirements))
	for _, sub := range node.Outcome.SubRequirements {
		out = append(out, pending{
			text:     sub.Content,
			flowName: sub.OriginFlowName,
			flowID:   sub.OriginFlowID,
			depth:    depth,
		})
	}
	return out
}

// ============================================================================
// TREE CONTROLLER
// ============================================================================

// TreeController spawns an independent recursive expansion per
// sub-requirement, bounded by depth. Each level's children are processed in
// fixed-size waves: a wave's runs launch together and the whole wave joins
// before the next launches.
type TreeController struct {
	runner Runner
	cfg    config.ExplorerConfig
	logger *slog.Logger
}

func NewTreeController(runner Runner, cfg *config.ExplorerConfig) *TreeController {
	return &TreeController{
		runner: runner,
		cfg:    *cfg,
		logger: slog.Default().With("component", "tree-controller"),
	}
}

func (c *TreeController) Explore(ctx context.Context, rawText string) (*Report, error) {
	started := time.Now()
	rc := NewRunContext(c.cfg.CanonicalPrefixLen, c.cfg.MaxDepth, 0)
	report := &Report{RunID: uuid.NewString(), Mode: "tree"}

	var (
		mu     sync.Mutex
		expand func(ctx context.Context, item pending)
	)

	expand = func(ctx context.Context, item pending) {
		node := runNode(ctx, c.runner, rc, c.logger, item)
		if node == nil {
			return
		}
		mu.Lock()
		report.Nodes = append(report.Nodes, node)
		mu.Unlock()

		// Children are expanded in fixed-size waves: one wave launches
		// together and joins fully before the next starts.
		next := children(node, item.depth+1)
		for wave := 0; wave < len(next); wave += c.cfg.MaxConcurrency {
			end := wave + c.cfg.MaxConcurrency
			if end > len(next) {
				end = len(next)
			}

			var g errgroup.Group
			for _, child := range next[wave:end] {
				g.Go(func() error {
					expand(ctx, child)
					return nil
				})
			}
			_ = g.Wait()
		}
	}

	// The root sits at depth 0; MaxDepth bounds how many child levels
	// may be admitted below it.
	expand(ctx, pending{text: rawText, depth: 0})

	report.Admitted = rc.Admissions()
	report.Duration = time.Since(started)
	return report, nil
}

// ============================================================================
// QUEUE CONTROLLER
// ============================================================================

// QueueController flattens all pending sub-requirements into one queue
// processed sequentially, bounded by iteration count. When the cap is hit
// with items still queued, the report's Pending flag is set.
type QueueController struct {
	runner Runner
	cfg    config.ExplorerConfig
	logger *slog.Logger
}

func NewQueueController(runner Runner, cfg *config.ExplorerConfig) *QueueController {
	return &QueueController{
		runner: runner,
		cfg:    *cfg,
		logger: slog.Default().With("component", "queue-controller"),
	}
}

func (c *QueueController) Explore(ctx context.Context, rawText string) (*Report, error) {
	started := time.Now()
	rc := NewRunContext(c.cfg.CanonicalPrefixLen, 0, c.cfg.MaxIterations)
	report := &Report{RunID: uuid.NewString(), Mode: "queue"}

	queue := []pending{{text: rawText, depth: 0}}

	for len(queue) > 0 {
		if rc.Admissions() >= c.cfg.MaxIterations {
			report.Pending = true
			observability.GetGlobalMetrics().RecordStop(ctx, string(StopLimit))
			c.logger.Info("iteration cap reached with items pending",
				"cap", c.cfg.MaxIterations,
				"pending", len(queue))
			break
		}

		item := queue[0]
		queue = queue[1:]

		node := runNode(ctx, c.runner, rc, c.logger, item)
		if node == nil {
			continue
		}
		report.Nodes = append(report.Nodes, node)
		queue = append(queue, children(node, item.depth+1)...)
	}

	report.Admitted = rc.Admissions()
	report.Duration = time.Since(started)
	return report, nil
}

var (
	_ Controller = (*TreeController)(nil)
	_ Controller = (*QueueController)(nil)
)
