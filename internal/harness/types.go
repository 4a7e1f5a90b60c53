package harness

import (
	"slices"

	"github.com/roach88/lemma/internal/engine"
	"github.com/roach88/lemma/internal/ir"
)

// StepTrace records what the reasoner changed for one step.
type StepTrace struct {
	Index     int      `json:"index"`
	Op        string   `json:"op"`
	Inferred  []string `json:"inferred"`
	Retracted []string `json:"retracted"`
	Rounds    int      `json:"rounds"`
}

func newStepTrace(index int, op string, d engine.Delta) StepTrace {
	return StepTrace{
		Index:     index,
		Op:        op,
		Inferred:  formatFacts(d.Inferred),
		Retracted: formatFacts(d.Retracted),
		Rounds:    d.Rounds,
	}
}

// formatFacts renders facts as sorted N-Quads lines without the dot.
func formatFacts(facts []ir.Fact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.String()
	}
	slices.Sort(out)
	return out
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Steps holds one trace per scenario step.
	Steps []StepTrace `json:"steps"`

	// Facts is the final live fact base, sorted. Inferred facts are marked
	// with a trailing " (inferred)".
	Facts []string `json:"facts"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepTrace{},
		Facts:  []string{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
