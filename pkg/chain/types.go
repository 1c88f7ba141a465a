// Package chain defines the core data model for upstream production-chain
// exploration: sourcing requirements, candidate processes, axis grades,
// score sheets, and the flow candidates that drive recursion.
package chain

import "fmt"

// ============================================================================
// REQUIREMENT
// ============================================================================

// Requirement is a sourcing request decomposed into its assessment facets.
// Immutable once created; every downstream stage of a run reads the same
// Requirement value.
type Requirement struct {
	RawText        string `json:"raw_text"`
	ProcessSpec    string `json:"process_spec"`
	TechnologySpec string `json:"technology_spec"`
	LocationSpec   string `json:"location_spec"`
	TimeSpec       string `json:"time_spec"`
}

// SubRequirement is a new sourcing requirement spawned from one shortlisted
// input flow of a selected process. It becomes the Requirement of a child run.
type SubRequirement struct {
	Content        string `json:"content"`
	OriginFlowName string `json:"origin_flow_name"`
	OriginFlowID   string `json:"origin_flow_id"`
}

// ============================================================================
// CANDIDATES AND GRADES
// ============================================================================

// CandidateProcess is one process record fetched from the data source.
// Read-only within a run.
type CandidateProcess struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Location      string `json:"location"`
	ValidityStart string `json:"validity_start"`
	FlowCount     int    `json:"flow_count"`
	TechnicalType string `json:"technical_type"`
}

// Axis is one of the independent quality dimensions a candidate is graded on.
type Axis string

const (
	AxisTechnical Axis = "technical"
	AxisSpatial   Axis = "spatial"
	AxisTemporal  Axis = "temporal"
)

// Axes lists all grading axes in their canonical order.
func Axes() []Axis {
	return []Axis{AxisTechnical, AxisSpatial, AxisTemporal}
}

// Grade is an ordinal fit judgment from 1 (best) to 5 (worst).
type Grade int

const (
	GradeBest  Grade = 1
	GradeWorst Grade = 5
)

// Valid reports whether g is within the ordinal scale.
func (g Grade) Valid() bool {
	return g >= GradeBest && g <= GradeWorst
}

// AxisGrade is the consensus judgment for one candidate on one axis,
// together with the raw samples it was reduced from.
type AxisGrade struct {
	CandidateID string  `json:"candidate_id"`
	Axis        Axis    `json:"axis"`
	Value       Grade   `json:"value"`
	Samples     []Grade `json:"samples"`
}

// ScoreSheet joins the three axis grades of one candidate. It is only
// materialized once all three grades exist, and lives just long enough to
// feed the tournament.
type ScoreSheet struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	FlowCount   int    `json:"flow_count"`
	Technical   Grade  `json:"technical"`
	Spatial     Grade  `json:"spatial"`
	Temporal    Grade  `json:"temporal"`
}

// SelectedProcess is the tournament winner of one run.
type SelectedProcess struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	FlowCount   int    `json:"flow_count"`
}

// ============================================================================
// FLOW CANDIDATES
// ============================================================================

// Relevance labels how important an input flow is for tracing further
// upstream.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// Rank returns an ordinal for comparison; higher means more relevant.
func (r Relevance) Rank() int {
	switch r {
	case RelevanceHigh:
		return 3
	case RelevanceMedium:
		return 2
	case RelevanceLow:
		return 1
	default:
		return 0
	}
}

// ParseRelevance converts a string label to a Relevance.
func ParseRelevance(s string) (Relevance, error) {
	switch Relevance(s) {
	case RelevanceHigh, RelevanceMedium, RelevanceLow:
		return Relevance(s), nil
	default:
		return "", fmt.Errorf("unknown relevance label: %q", s)
	}
}

// FlowCandidate is one input flow of a selected process, labeled by the
// industry-relevance analysis. Elementary flows exchange directly with the
// environment and mark the recursion boundary.
type FlowCandidate struct {
	Name       string    `json:"name"`
	ID         string    `json:"id"`
	Relevance  Relevance `json:"relevance"`
	Elementary bool      `json:"elementary"`
}
