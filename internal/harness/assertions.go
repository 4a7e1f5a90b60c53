package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/lemma/internal/engine"
	"github.com/roach88/lemma/internal/ir"
	"github.com/roach88/lemma/internal/store"
)

// AssertionContext provides what assertions read from.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Reasoner *engine.Reasoner
	Scenario *Scenario
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
// A failing assertion does not stop the rest.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %s", i, err))
		}
	}
	return errs
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertContains:
		return assertContains(a, actx)
	case AssertAbsent:
		return assertAbsent(a, actx)
	case AssertInferred:
		return assertInferred(a, actx)
	case AssertJustifications:
		return assertJustifications(a, actx)
	case AssertExplain:
		return assertExplain(a, actx)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// findLive returns the live facts matching k. A nil context matches any
// graph.
func findLive(actx *AssertionContext, k ir.FactKey) ([]ir.Fact, error) {
	var facts []ir.Fact
	err := actx.Store.Read(actx.Ctx, func(tx *store.Tx) error {
		var err error
		facts, err = tx.ListFacts(actx.Ctx, ir.ExactLookup(k))
		return err
	})
	return facts, err
}

func assertContains(a Assertion, actx *AssertionContext) error {
	keys, err := actx.Scenario.parseFacts(a.Facts)
	if err != nil {
		return err
	}
	var missing []string
	for _, k := range keys {
		facts, err := findLive(actx, k)
		if err != nil {
			return err
		}
		if len(facts) == 0 {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		return &AssertionError{
			Type:     AssertContains,
			Expected: fmt.Sprintf("%d facts present", len(keys)),
			Actual:   "missing " + strings.Join(missing, "; "),
		}
	}
	return nil
}

func assertAbsent(a Assertion, actx *AssertionContext) error {
	keys, err := actx.Scenario.parseFacts(a.Facts)
	if err != nil {
		return err
	}
	var present []string
	for _, k := range keys {
		facts, err := findLive(actx, k)
		if err != nil {
			return err
		}
		for _, f := range facts {
			present = append(present, f.String())
		}
	}
	if len(present) > 0 {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("%d facts absent", len(keys)),
			Actual:   "present " + strings.Join(present, "; "),
		}
	}
	return nil
}

// assertInferred checks that the live inferred facts are exactly a.Facts.
func assertInferred(a Assertion, actx *AssertionContext) error {
	want, err := actx.Scenario.parseFacts(a.Facts)
	if err != nil {
		return err
	}
	var inferred []ir.Fact
	err = actx.Store.Read(actx.Ctx, func(tx *store.Tx) error {
		var err error
		inferred, err = tx.ListInferredFacts(actx.Ctx)
		return err
	})
	if err != nil {
		return err
	}

	var missing, unexpected []string
	for _, k := range want {
		if !slices.ContainsFunc(inferred, func(f ir.Fact) bool { return keyMatches(k, f.Key()) }) {
			missing = append(missing, k.String())
		}
	}
	for _, f := range inferred {
		if !slices.ContainsFunc(want, func(k ir.FactKey) bool { return keyMatches(k, f.Key()) }) {
			unexpected = append(unexpected, f.String())
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertInferred,
		Expected: fmt.Sprintf("%d inferred facts", len(want)),
		Actual:   fmt.Sprintf("missing [%s], unexpected [%s]", strings.Join(missing, "; "), strings.Join(unexpected, "; ")),
	}
}

func assertJustifications(a Assertion, actx *AssertionContext) error {
	k, err := actx.Scenario.parseFact(a.Fact)
	if err != nil {
		return err
	}
	var count int
	err = actx.Store.Read(actx.Ctx, func(tx *store.Tx) error {
		facts, err := tx.ListFacts(actx.Ctx, ir.ExactLookup(k))
		if err != nil {
			return err
		}
		if len(facts) == 0 {
			return fmt.Errorf("fact %s is not live", k)
		}
		js, err := tx.ListJustificationsForTriple(actx.Ctx, facts[0])
		count = len(js)
		return err
	})
	if err != nil {
		return err
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertJustifications,
			Expected: fmt.Sprintf("%d justifications for %s", a.Count, k),
			Actual:   fmt.Sprintf("%d justifications", count),
		}
	}
	return nil
}

// assertExplain compares the resolved base support sets of a fact with
// a.Supports, ignoring order.
func assertExplain(a Assertion, actx *AssertionContext) error {
	k, err := actx.Scenario.parseFact(a.Fact)
	if err != nil {
		return err
	}
	_, js, err := actx.Reasoner.Explain(actx.Ctx, k)
	if err != nil {
		if errors.Is(err, engine.ErrFactNotFound) {
			return &AssertionError{Type: AssertExplain, Expected: "live fact " + k.String(), Actual: "not found"}
		}
		return err
	}

	got := make([]string, len(js))
	for i, j := range js {
		got[i] = formatSupportSet(j.SupportKeys())
	}
	want := make([]string, len(a.Supports))
	for i, set := range a.Supports {
		keys, err := actx.Scenario.parseFacts(set)
		if err != nil {
			return err
		}
		want[i] = formatSupportSet(stripContexts(keys, js))
	}
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertExplain,
			Expected: strings.Join(want, " | "),
			Actual:   strings.Join(got, " | "),
		}
	}
	return nil
}

// keyMatches reports whether got matches the expected key; a nil expected
// context matches any graph.
func keyMatches(want, got ir.FactKey) bool {
	if want.Context == nil {
		return want.SameTriple(got)
	}
	return want == got
}

// stripContexts fills a nil expected context from the support with the same
// triple, so three-term supports compare equal to stored keys.
func stripContexts(keys []ir.FactKey, js []ir.Justification) []ir.FactKey {
	out := make([]ir.FactKey, len(keys))
	for i, k := range keys {
		out[i] = k
		if k.Context != nil {
			continue
		}
		for _, j := range js {
			for _, s := range j.SupportKeys() {
				if k.SameTriple(s) {
					out[i] = s
				}
			}
		}
	}
	slices.SortFunc(out, ir.CompareFactKeys)
	return out
}

func formatSupportSet(keys []ir.FactKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
