package explorer

import "sync"

// AdmitOutcome labels an admission decision.
type AdmitOutcome string

const (
	Accepted           AdmitOutcome = "accepted"
	RejectedDuplicate  AdmitOutcome = "rejected_duplicate"
	RejectedDepth      AdmitOutcome = "rejected_depth"
	RejectedIterations AdmitOutcome = "rejected_iterations"
)

// Decision is the result of one Admit call.
type Decision struct {
	Accepted bool
	Outcome  AdmitOutcome
	Key      string
}

// RunContext holds the state shared by concurrently expanded branches of one
// exploration: the visited canonical keys and the admission counter. It is
// scoped to a single controller lifetime and passed by pointer only.
type RunContext struct {
	prefixLen     int
	maxDepth      int
	maxIterations int

	mu         sync.Mutex
	visited    map[string]struct{}
	admissions int
}

// NewRunContext creates a fresh context. A non-positive bound disables that
// bound.
func NewRunContext(prefixLen, maxDepth, maxIterations int) *RunContext {
	return &RunContext{
		prefixLen:     prefixLen,
		maxDepth:      maxDepth,
		maxIterations: maxIterations,
		visited:       make(map[string]struct{}),
	}
}

// Admit decides whether a requirement at the given depth may be processed.
// The duplicate check, the cap checks, the key insertion, and the counter
// increment happen under one lock, so two concurrent branches can never both
// admit the same canonical requirement.
func (rc *RunContext) Admit(text string, depth int) Decision {
	key := Canonicalize(text, rc.prefixLen)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.maxDepth > 0 && depth > rc.maxDepth {
		return Decision{Outcome: RejectedDepth, Key: key}
	}
	if rc.maxIterations > 0 && rc.admissions >= rc.maxIterations {
		return Decision{Outcome: RejectedIterations, Key: key}
	}
	if _, seen := rc.visited[key]; seen {
		return Decision{Outcome: RejectedDuplicate, Key: key}
	}

	rc.visited[key] = struct{}{}
	rc.admissions++
	return Decision{Accepted: true, Outcome: Accepted, Key: key}
}

// Admissions returns how many requirements have been accepted so far.
func (rc *RunContext) Admissions() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.admissions
}
