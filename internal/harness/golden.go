package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/lemma/internal/ir"
)

// Snapshot is the golden form of a scenario run: per-step deltas and the
// final fact base. Row ids and timestamps are left out so it is stable.
type Snapshot struct {
	ScenarioName string      `json:"scenario_name"`
	Steps        []StepTrace `json:"steps"`
	Facts        []string    `json:"facts"`
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{ScenarioName: name, Steps: result.Steps, Facts: result.Facts}
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which only
// handles maps, slices and primitives.
func (s Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		steps[i] = map[string]any{
			"index":     st.Index,
			"op":        st.Op,
			"inferred":  st.Inferred,
			"retracted": st.Retracted,
			"rounds":    st.Rounds,
		}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"facts":         s.Facts,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares result's snapshot against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
