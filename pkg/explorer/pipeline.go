package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/upchain/pkg/chain"
	"github.com/kadirpekel/upchain/pkg/config"
	"github.com/kadirpekel/upchain/pkg/datasource"
	"github.com/kadirpekel/upchain/pkg/graph"
	"github.com/kadirpekel/upchain/pkg/observability"
	"github.com/kadirpekel/upchain/pkg/oracle"
	"github.com/kadirpekel/upchain/pkg/scoring"
)

// ============================================================================
// STATE LAYOUT
// ============================================================================

const (
	keyRawText       = "raw_text"
	keyRequirement   = "requirement"
	keyCandidates    = "candidates"
	keyScores        = "scores"
	keyGrades        = "grades"
	keyHeterogeneous = "heterogeneous"
	keySelected      = "selected"
	keyBoundary      = "boundary"
	keyFlows         = "flows"
	keyLabeled       = "labeled"
	keyMerged        = "merged"
	keyMergedEmpty   = "merged_empty"
	keyShortlist     = "shortlist"
	keySubs          = "subs"
)

const (
	stageExtract    = "extract"
	stageCandidates = "fetch_candidates"
	stageGrade      = "grade"
	stageClassify   = "classify"
	stageSelect     = "select"
	stageFlows      = "fetch_flows"
	stageAnalyze    = "analyze"
	stageMerge      = "merge_relevance"
	stageDecide     = "decide"
)

// relevanceAnalyses is how many independent relevance judgments are merged
// per run.
const relevanceAnalyses = 3

// Data source column layout.
const (
	colID            = "ID"
	colName          = "Name"
	colLocation      = "Location"
	colValidFrom     = "ValidFrom"
	colTechnicalType = "TechnicalType"
	colProcessID     = "ProcessID"
	colFlowName      = "FlowName"
	colFlowID        = "FlowID"
)

// ============================================================================
// ORACLE RESULT SHAPES
// ============================================================================

type extractResult struct {
	ProcessSpec    string `json:"process_spec" jsonschema:"required,description=The product or process being sourced"`
	TechnologySpec string `json:"technology_spec" jsonschema:"description=Required production technology or route"`
	LocationSpec   string `json:"location_spec" jsonschema:"description=Geographic scope of the requirement"`
	TimeSpec       string `json:"time_spec" jsonschema:"description=Temporal scope of the requirement"`
}

type gradeResult struct {
	Grade     int    `json:"grade" jsonschema:"required,minimum=1,maximum=5,description=Fit grade where 1 is best and 5 is worst"`
	Rationale string `json:"rationale,omitempty"`
}

type classifyResult struct {
	Heterogeneous bool `json:"heterogeneous" jsonschema:"required,description=Whether the requirement spans multiple distinct regions or markets"`
}

type boundaryResult struct {
	RawMaterialExtraction bool `json:"raw_material_extraction" jsonschema:"required,description=Whether the process extracts a raw material directly from the environment"`
}

type flowJudgment struct {
	FlowID     string `json:"flow_id" jsonschema:"required"`
	Relevance  string `json:"relevance" jsonschema:"required,enum=high|medium|low"`
	Elementary bool   `json:"elementary" jsonschema:"required,description=Whether the flow is a direct exchange with the environment"`
}

type relevanceResult struct {
	Flows []flowJudgment `json:"flows" jsonschema:"required"`
}

// ============================================================================
// OUTCOME
// ============================================================================

// Outcome is everything one requirement run produced.
type Outcome struct {
	Requirement     chain.Requirement      `json:"requirement"`
	Candidates      int                    `json:"candidates"`
	Scores          []chain.ScoreSheet     `json:"scores,omitempty"`
	Grades          []chain.AxisGrade      `json:"grades,omitempty"`
	Heterogeneous   bool                   `json:"heterogeneous"`
	Selected        *chain.SelectedProcess `json:"selected,omitempty"`
	Boundary        bool                   `json:"boundary"`
	MergedEmpty     bool                   `json:"merged_empty"`
	Merged          []chain.FlowCandidate  `json:"merged,omitempty"`
	Shortlist       []chain.FlowCandidate  `json:"shortlist,omitempty"`
	SubRequirements []chain.SubRequirement `json:"sub_requirements,omitempty"`
	StageErrors     []string               `json:"stage_errors,omitempty"`
	Duration        time.Duration          `json:"duration"`
}

// Runner executes one requirement through the workflow. Controllers depend on
// this rather than on Pipeline so recursion policy can be tested without an
// oracle or a data source.
type Runner interface {
	Run(ctx context.Context, rawText string, depth int) (*Outcome, error)
}

// ============================================================================
// PIPELINE
// ============================================================================

// Pipeline wires the staged workflow for one requirement: extraction,
// candidate fetch, per-candidate axis grading with sampled consensus,
// heterogeneity classification, tournament selection, parallel relevance
// analyses, merging, and sub-requirement derivation.
type Pipeline struct {
	oracle oracle.Provider
	source datasource.Source
	cfg    config.ExplorerConfig
	tables config.DataSourceConfig
	graph  *graph.Graph
	logger *slog.Logger
}

// NewPipeline builds the workflow graph once; Run executes it per
// requirement.
func NewPipeline(provider oracle.Provider, source datasource.Source, cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{
		oracle: provider,
		source: source,
		cfg:    cfg.Explorer,
		tables: cfg.DataSource,
		logger: slog.Default().With("component", "pipeline"),
	}

	schema := graph.Schema{
		keyScores:  {Reduce: graph.Append},
		keyGrades:  {Reduce: graph.Append},
		keyLabeled: {Reduce: graph.Append},
	}

	g := graph.New(schema).
		AddStage(stageExtract, traced(stageExtract, p.extract)).
		AddStage(stageCandidates, traced(stageCandidates, p.fetchCandidates)).
		AddStage(stageGrade, traced(stageGrade, p.grade)).
		AddStage(stageClassify, traced(stageClassify, p.classify)).
		AddStage(stageSelect, traced(stageSelect, p.selectProcess)).
		AddStage(stageFlows, traced(stageFlows, p.fetchFlows)).
		AddStage(stageAnalyze, traced(stageAnalyze, p.analyze)).
		AddStage(stageMerge, traced(stageMerge, p.mergeRelevance)).
		AddStage(stageDecide, traced(stageDecide, p.decide)).
		SetStart(stageExtract).
		AddEdge(stageExtract, stageCandidates).
		AddFanOutEdge(stageCandidates, stageGrade, p.splitCandidates).
		AddEdge(stageGrade, stageClassify).
		AddEdge(stageClassify, stageSelect).
		AddConditionalEdge(stageSelect, p.routeAfterSelect, stageFlows).
		AddEdge(stageMerge, stageDecide)

	// Three independent relevance analyses joined by the merge stage.
	for i := 0; i < relevanceAnalyses; i++ {
		g.AddEdge(stageFlows, stageAnalyze)
	}
	g.AddEdge(stageAnalyze, stageMerge)

	if err := g.Compile(); err != nil {
		return nil, err
	}
	p.graph = g
	return p, nil
}

// Run executes the workflow for one requirement text.
func (p *Pipeline) Run(ctx context.Context, rawText string, depth int) (*Outcome, error) {
	started := time.Now()
	ctx, span := observability.GetGlobalTracer().StartRun(ctx, depth)

	result, err := p.graph.Run(ctx, graph.State{keyRawText: rawText},
		graph.WithMaxConcurrency(p.cfg.MaxConcurrency),
		graph.WithLogger(p.logger))

	duration := time.Since(started)
	observability.GetGlobalMetrics().RecordRun(ctx, duration, err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	outcome := p.buildOutcome(result)
	outcome.Duration = duration

	p.logger.Info("requirement run finished",
		"depth", depth,
		"candidates", outcome.Candidates,
		"selected", outcome.Selected != nil,
		"sub_requirements", len(outcome.SubRequirements),
		"duration", duration)

	return outcome, nil
}

func (p *Pipeline) buildOutcome(result *graph.Result) *Outcome {
	outcome := &Outcome{}
	final := result.Final

	if req, ok := fromState[chain.Requirement](final, keyRequirement); ok {
		outcome.Requirement = req
	}
	if candidates, ok := fromState[[]chain.CandidateProcess](final, keyCandidates); ok {
		outcome.Candidates = len(candidates)
	}
	if scores, ok := fromState[[]chain.ScoreSheet](final, keyScores); ok {
		outcome.Scores = scores
	}
	if grades, ok := fromState[[]chain.AxisGrade](final, keyGrades); ok {
		outcome.Grades = grades
	}
	if het, ok := fromState[bool](final, keyHeterogeneous); ok {
		outcome.Heterogeneous = het
	}
	if selected, ok := fromState[chain.SelectedProcess](final, keySelected); ok {
		outcome.Selected = &selected
	}
	if boundary, ok := fromState[bool](final, keyBoundary); ok {
		outcome.Boundary = boundary
	}
	if empty, ok := fromState[bool](final, keyMergedEmpty); ok {
		outcome.MergedEmpty = empty
	}
	if merged, ok := fromState[[]chain.FlowCandidate](final, keyMerged); ok {
		outcome.Merged = merged
	}
	if shortlist, ok := fromState[[]chain.FlowCandidate](final, keyShortlist); ok {
		outcome.Shortlist = shortlist
	}
	if subs, ok := fromState[[]chain.SubRequirement](final, keySubs); ok {
		outcome.SubRequirements = subs
	}
	for _, stageErr := range result.Errors {
		outcome.StageErrors = append(outcome.StageErrors, stageErr.Error())
	}

	return outcome
}

// ============================================================================
// STAGES
// ============================================================================

func (p *Pipeline) extract(ctx context.Context, state graph.State) (graph.State, error) {
	rawText, _ := fromState[string](state, keyRawText)

	extracted, err := askOracle[extractResult](ctx, p, oracle.Request{
		Task:       "Decompose the sourcing requirement into its process, technology, location, and time facets.",
		Context:    map[string]string{"requirement": rawText},
		SchemaName: "requirement_facets",
	})
	if err != nil {
		return nil, err
	}

	return graph.State{keyRequirement: chain.Requirement{
		RawText:        rawText,
		ProcessSpec:    extracted.ProcessSpec,
		TechnologySpec: extracted.TechnologySpec,
		LocationSpec:   extracted.LocationSpec,
		TimeSpec:       extracted.TimeSpec,
	}}, nil
}

func (p *Pipeline) fetchCandidates(ctx context.Context, state graph.State) (graph.State, error) {
	req, _ := fromState[chain.Requirement](state, keyRequirement)

	rows, err := p.source.Select(ctx, p.tables.ProcessTable, datasource.Query{
		Filters: map[string]string{colName: req.ProcessSpec},
	})
	if err != nil {
		if errors.Is(err, datasource.ErrTableNotFound) || errors.Is(err, datasource.ErrColumnNotFound) {
			// A broken or missing table yields an explicit empty pool
			// rather than aborting the run.
			p.logger.Warn("candidate lookup failed, continuing with empty pool", "error", err)
			return graph.State{keyCandidates: []chain.CandidateProcess{}}, nil
		}
		return nil, err
	}

	candidates := make([]chain.CandidateProcess, 0, len(rows))
	for _, row := range rows {
		candidate := chain.CandidateProcess{
			ID:            row[colID].String(),
			Name:          row[colName].String(),
			Location:      row[colLocation].String(),
			ValidityStart: row[colValidFrom].String(),
			TechnicalType: row[colTechnicalType].String(),
		}
		candidate.FlowCount = p.countFlows(ctx, candidate.ID)
		candidates = append(candidates, candidate)
	}

	return graph.State{keyCandidates: candidates}, nil
}

func (p *Pipeline) countFlows(ctx context.Context, processID string) int {
	rows, err := p.source.Select(ctx, p.tables.FlowTable, datasource.Query{
		Filters: map[string]string{colProcessID: processID},
		Columns: []string{colFlowID},
	})
	if err != nil {
		p.logger.Warn("flow count lookup failed", "process_id", processID, "error", err)
		return 0
	}
	return len(rows)
}

func (p *Pipeline) splitCandidates(state graph.State) []any {
	candidates, _ := fromState[[]chain.CandidateProcess](state, keyCandidates)
	payloads := make([]any, 0, len(candidates))
	for _, c := range candidates {
		payloads = append(payloads, c)
	}
	return payloads
}

// grade judges one candidate on every axis, reducing the sampled grades to a
// consensus per axis. A candidate whose samples all fail on any axis is
// excluded from the score sheets; the error surfaces as a run-level warning
// while sibling candidates keep grading.
func (p *Pipeline) grade(ctx context.Context, state graph.State) (graph.State, error) {
	candidate, ok := fromState[chain.CandidateProcess](state, graph.PayloadKey)
	if !ok {
		return nil, fmt.Errorf("grade: no candidate payload")
	}
	req, _ := fromState[chain.Requirement](state, keyRequirement)

	sheet := chain.ScoreSheet{
		CandidateID: candidate.ID,
		Name:        candidate.Name,
		Location:    candidate.Location,
		FlowCount:   candidate.FlowCount,
	}

	grades := make([]chain.AxisGrade, 0, len(chain.Axes()))
	for _, axis := range chain.Axes() {
		grade, err := p.gradeAxis(ctx, req, candidate, axis)
		if err != nil {
			return nil, fmt.Errorf("candidate %s axis %s: %w", candidate.ID, axis, err)
		}
		grades = append(grades, grade)
		switch axis {
		case chain.AxisTechnical:
			sheet.Technical = grade.Value
		case chain.AxisSpatial:
			sheet.Spatial = grade.Value
		case chain.AxisTemporal:
			sheet.Temporal = grade.Value
		}
	}

	return graph.State{
		keyScores: []chain.ScoreSheet{sheet},
		keyGrades: grades,
	}, nil
}

// gradeAxis reduces the sampled grades for one (candidate, axis) pair to a
// consensus, keeping the surviving samples alongside the reduced value.
func (p *Pipeline) gradeAxis(ctx context.Context, req chain.Requirement, candidate chain.CandidateProcess, axis chain.Axis) (chain.AxisGrade, error) {
	samples, err := sampleOracle[gradeResult](ctx, p, oracle.Request{
		Task: fmt.Sprintf("Grade how well the candidate process fits the requirement on the %s axis, 1 (best) to 5 (worst).", axis),
		Context: map[string]string{
			"process_spec":    req.ProcessSpec,
			"technology_spec": req.TechnologySpec,
			"location_spec":   req.LocationSpec,
			"time_spec":       req.TimeSpec,
			"candidate_name":  candidate.Name,
			"candidate_loc":   candidate.Location,
			"candidate_tech":  candidate.TechnicalType,
			"candidate_valid": candidate.ValidityStart,
		},
		SchemaName: "axis_grade",
	}, p.cfg.SamplesPerAxis)
	if err != nil {
		return chain.AxisGrade{}, err
	}

	grades := make([]chain.Grade, 0, len(samples))
	for _, s := range samples {
		grade := chain.Grade(s.Grade)
		if !grade.Valid() {
			// Out-of-scale value is a schema-level failure of that one
			// sample; drop it like any other failed sample.
			p.logger.Warn("dropping out-of-scale grade sample", "grade", s.Grade, "axis", axis)
			continue
		}
		grades = append(grades, grade)
	}
	if len(grades) == 0 {
		return chain.AxisGrade{}, fmt.Errorf("%w: no usable grade samples", oracle.ErrAllSamplesFailed)
	}

	value, err := scoring.Consensus(grades)
	if err != nil {
		return chain.AxisGrade{}, err
	}

	return chain.AxisGrade{
		CandidateID: candidate.ID,
		Axis:        axis,
		Value:       value,
		Samples:     grades,
	}, nil
}

func (p *Pipeline) classify(ctx context.Context, state graph.State) (graph.State, error) {
	req, _ := fromState[chain.Requirement](state, keyRequirement)

	classified, err := askOracle[classifyResult](ctx, p, oracle.Request{
		Task: "Classify whether the requirement is heterogeneous: does it span multiple distinct regions or markets?",
		Context: map[string]string{
			"process_spec":  req.ProcessSpec,
			"location_spec": req.LocationSpec,
			"time_spec":     req.TimeSpec,
		},
		SchemaName: "heterogeneity",
	})
	if err != nil {
		return nil, err
	}

	return graph.State{keyHeterogeneous: classified.Heterogeneous}, nil
}

func (p *Pipeline) selectProcess(ctx context.Context, state graph.State) (graph.State, error) {
	scores, _ := fromState[[]chain.ScoreSheet](state, keyScores)
	heterogeneous, _ := fromState[bool](state, keyHeterogeneous)

	criteria := scoring.HomogeneousCriteria()
	if heterogeneous {
		criteria = scoring.HeterogeneousCriteria()
	}

	winner, ok := scoring.SelectTournament(scores, criteria)
	if !ok {
		p.logger.Info("empty candidate pool, nothing to select")
		return graph.State{}, nil
	}

	boundary, err := askOracle[boundaryResult](ctx, p, oracle.Request{
		Task:       "Judge whether the selected process is a raw-material extraction point with nothing further upstream.",
		Context:    map[string]string{"process_name": winner.Name, "location": winner.Location},
		SchemaName: "boundary",
	})
	if err != nil {
		return nil, err
	}

	return graph.State{
		keySelected: winner,
		keyBoundary: boundary.RawMaterialExtraction,
	}, nil
}

func (p *Pipeline) routeAfterSelect(state graph.State) string {
	if _, ok := fromState[chain.SelectedProcess](state, keySelected); !ok {
		return graph.End
	}
	if boundary, _ := fromState[bool](state, keyBoundary); boundary {
		return graph.End
	}
	return stageFlows
}

func (p *Pipeline) fetchFlows(ctx context.Context, state graph.State) (graph.State, error) {
	selected, _ := fromState[chain.SelectedProcess](state, keySelected)

	rows, err := p.source.Select(ctx, p.tables.FlowTable, datasource.Query{
		Filters: map[string]string{colProcessID: selected.CandidateID},
		Columns: []string{colFlowName, colFlowID},
	})
	if err != nil {
		if errors.Is(err, datasource.ErrTableNotFound) || errors.Is(err, datasource.ErrColumnNotFound) {
			p.logger.Warn("flow lookup failed, continuing with no flows", "error", err)
			return graph.State{keyFlows: []chain.FlowCandidate{}}, nil
		}
		return nil, err
	}

	flows := make([]chain.FlowCandidate, 0, len(rows))
	for _, row := range rows {
		flows = append(flows, chain.FlowCandidate{
			Name: row[colFlowName].String(),
			ID:   row[colFlowID].String(),
		})
	}

	return graph.State{keyFlows: flows}, nil
}

// analyze runs as three concurrent instances; each labels every input flow
// independently and the merge stage unions the lists.
func (p *Pipeline) analyze(ctx context.Context, state graph.State) (graph.State, error) {
	flows, _ := fromState[[]chain.FlowCandidate](state, keyFlows)
	if len(flows) == 0 {
		return graph.State{}, nil
	}
	req, _ := fromState[chain.Requirement](state, keyRequirement)

	byID := make(map[string]chain.FlowCandidate, len(flows))
	flowList := ""
	for _, f := range flows {
		byID[f.ID] = f
		flowList += fmt.Sprintf("%s: %s\n", f.ID, f.Name)
	}

	analyzed, err := askOracle[relevanceResult](ctx, p, oracle.Request{
		Task: "Label each input flow with its industry relevance for tracing the production chain further upstream, and flag elementary flows.",
		Context: map[string]string{
			"process_spec": req.ProcessSpec,
			"flows":        flowList,
		},
		SchemaName: "flow_relevance",
	})
	if err != nil {
		return nil, err
	}

	labeled := make([]chain.FlowCandidate, 0, len(analyzed.Flows))
	for _, judgment := range analyzed.Flows {
		flow, known := byID[judgment.FlowID]
		if !known {
			p.logger.Warn("dropping judgment for unknown flow", "flow_id", judgment.FlowID)
			continue
		}
		relevance, err := chain.ParseRelevance(judgment.Relevance)
		if err != nil {
			p.logger.Warn("dropping judgment with invalid relevance", "flow_id", judgment.FlowID, "error", err)
			continue
		}
		flow.Relevance = relevance
		flow.Elementary = judgment.Elementary
		labeled = append(labeled, flow)
	}

	return graph.State{keyLabeled: labeled}, nil
}

func (p *Pipeline) mergeRelevance(_ context.Context, state graph.State) (graph.State, error) {
	labeled, _ := fromState[[]chain.FlowCandidate](state, keyLabeled)

	merged, err := scoring.MergeRelevance(labeled)
	if err != nil {
		if errors.Is(err, scoring.ErrNoRelevantFlows) {
			return graph.State{keyMergedEmpty: true}, nil
		}
		return nil, err
	}

	return graph.State{keyMerged: merged, keyMergedEmpty: false}, nil
}

func (p *Pipeline) decide(_ context.Context, state graph.State) (graph.State, error) {
	if empty, _ := fromState[bool](state, keyMergedEmpty); empty {
		return graph.State{}, nil
	}

	merged, _ := fromState[[]chain.FlowCandidate](state, keyMerged)
	req, _ := fromState[chain.Requirement](state, keyRequirement)
	selected, _ := fromState[chain.SelectedProcess](state, keySelected)

	shortlist := scoring.Shortlist(merged, p.cfg.ShortlistSize)

	var subs []chain.SubRequirement
	for _, flow := range shortlist {
		if flow.Elementary {
			continue
		}
		subs = append(subs, chain.SubRequirement{
			Content:        subRequirementText(flow, selected, req),
			OriginFlowName: flow.Name,
			OriginFlowID:   flow.ID,
		})
	}

	return graph.State{keyShortlist: shortlist, keySubs: subs}, nil
}

// subRequirementText phrases the upstream sourcing requirement for one input
// flow, carrying the parent's location and time facets forward.
func subRequirementText(flow chain.FlowCandidate, selected chain.SelectedProcess, req chain.Requirement) string {
	text := fmt.Sprintf("Source %s as an input for %s", flow.Name, selected.Name)
	if req.LocationSpec != "" {
		text += " in " + req.LocationSpec
	}
	if req.TimeSpec != "" {
		text += " around " + req.TimeSpec
	}
	return text
}

// ============================================================================
// HELPERS
// ============================================================================

func fromState[T any](state graph.State, key string) (T, bool) {
	value, ok := state[key].(T)
	return value, ok
}

// traced wraps a stage with a span covering its execution.
func traced(name string, fn graph.StageFunc) graph.StageFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		ctx, span := observability.GetGlobalTracer().StartStage(ctx, name)
		delta, err := fn(ctx, state)
		observability.EndSpan(span, err)
		return delta, err
	}
}

func askOracle[T any](ctx context.Context, p *Pipeline, req oracle.Request) (T, error) {
	started := time.Now()
	ctx, span := observability.GetGlobalTracer().StartOracleCall(ctx, p.oracle.Name(), req.SchemaName)
	result, err := oracle.Ask[T](ctx, p.oracle, req)
	observability.GetGlobalMetrics().RecordOracleCall(ctx, p.oracle.Name(), time.Since(started), err)
	observability.EndSpan(span, err)
	return result, err
}

func sampleOracle[T any](ctx context.Context, p *Pipeline, req oracle.Request, n int) ([]T, error) {
	started := time.Now()
	ctx, span := observability.GetGlobalTracer().StartOracleCall(ctx, p.oracle.Name(), req.SchemaName)
	results, err := oracle.Samples[T](ctx, p.oracle, req, n, p.cfg.MaxConcurrency)
	observability.GetGlobalMetrics().RecordOracleCall(ctx, p.oracle.Name(), time.Since(started), err)
	observability.EndSpan(span, err)
	return results, err
}
