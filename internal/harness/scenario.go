package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lemma/internal/compiler"
	"github.com/roach88/lemma/internal/ir"
)

// Scenario is a reasoning conformance test: a rule program, a sequence of
// changes to the fact base, and assertions on the resulting closure.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is an optional CUE file with the rule program, relative to the
	// scenario file. Inline Rules are added after it.
	Program string `yaml:"program,omitempty"`

	// ProgramName selects a program when the CUE file defines several.
	ProgramName string `yaml:"program_name,omitempty"`

	// Namespaces are the prefixes used by inline rules, steps and assertions.
	Namespaces map[string]string `yaml:"namespaces,omitempty"`

	Rules []RuleSpec `yaml:"rules,omitempty"`

	// InferredContext overrides the inferred graph. "none" keeps inferred
	// facts in the default graph.
	InferredContext string `yaml:"inferred_context,omitempty"`

	// Steps are applied in order; each one waits for reasoning to finish.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the final store.
	Assertions []Assertion `yaml:"assertions"`
}

// RuleSpec is a named rule in text syntax:
//
//	(?a ex:p ?b), (?b ex:p ?c) -> (?a ex:p ?c)
type RuleSpec struct {
	Name string `yaml:"name"`
	Rule string `yaml:"rule"`
}

// Term is a fact written as three or four terms.
type Term []string

// Step is one change to the store or program. Add and Remove together form a
// single transaction; the other kinds stand alone.
type Step struct {
	Add         []Term    `yaml:"add,omitempty"`
	Remove      []Term    `yaml:"remove,omitempty"`
	AddRule     *RuleSpec `yaml:"add_rule,omitempty"`
	RemoveRules []string  `yaml:"remove_rules,omitempty"`
	ReRun       bool      `yaml:"rerun,omitempty"`
}

// Step kinds.
const (
	OpTransaction = "transaction"
	OpAddRule     = "add_rule"
	OpRemoveRules = "remove_rules"
	OpReRun       = "rerun"
)

// Op returns the step kind, or "" when the step is empty or mixes kinds.
func (s Step) Op() string {
	var ops []string
	if len(s.Add) > 0 || len(s.Remove) > 0 {
		ops = append(ops, OpTransaction)
	}
	if s.AddRule != nil {
		ops = append(ops, OpAddRule)
	}
	if len(s.RemoveRules) > 0 {
		ops = append(ops, OpRemoveRules)
	}
	if s.ReRun {
		ops = append(ops, OpReRun)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Assertion checks the final store.
type Assertion struct {
	// Type is one of AssertContains, AssertAbsent, AssertInferred,
	// AssertJustifications, AssertExplain.
	Type string `yaml:"type"`

	// Facts are checked by contains, absent and inferred. A three-term fact
	// matches any graph.
	Facts []Term `yaml:"facts,omitempty"`

	// Fact is the subject of justifications and explain.
	Fact Term `yaml:"fact,omitempty"`

	// Count is the expected number of stored justifications.
	Count int `yaml:"count,omitempty"`

	// Supports are the expected base support sets, in any order.
	Supports [][]Term `yaml:"supports,omitempty"`
}

// Assertion type constants.
const (
	AssertContains       = "contains"
	AssertAbsent         = "absent"
	AssertInferred       = "inferred"
	AssertJustifications = "justifications"
	AssertExplain        = "explain"
)

// LoadScenario reads and parses a scenario YAML file. A relative Program
// path is resolved against the scenario's directory.
//
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	// Steps and assertions may use the program's prefixes.
	if scenario.Program != "" && len(scenario.Namespaces) == 0 {
		p, err := compiler.LoadProgram(scenario.Program, scenario.ProgramName)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: %w", err)
		}
		scenario.Namespaces = p.Namespaces
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" && len(s.Rules) == 0 {
		return fmt.Errorf("program or rules is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Program != "" {
		if _, err := os.Stat(s.Program); os.IsNotExist(err) {
			return fmt.Errorf("program file not found: %s", s.Program)
		}
	}

	for i, r := range s.Rules {
		if _, err := compiler.ParseRule(r.Name, r.Rule, s.Namespaces); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if step.Op() == "" {
			return fmt.Errorf("steps[%d]: exactly one of add/remove, add_rule, remove_rules or rerun is required", i)
		}
		for j, t := range append(append([]Term{}, step.Add...), step.Remove...) {
			if _, err := s.parseFact(t); err != nil {
				return fmt.Errorf("steps[%d] fact %d: %w", i, j, err)
			}
		}
		if step.AddRule != nil {
			if _, err := compiler.ParseRule(step.AddRule.Name, step.AddRule.Rule, s.Namespaces); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := s.validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) validateAssertion(index int, a Assertion) error {
	facts := a.Facts
	switch a.Type {
	case AssertContains, AssertAbsent:
		if len(a.Facts) == 0 {
			return fmt.Errorf("assertions[%d]: facts are required for %s", index, a.Type)
		}
	case AssertInferred:
		// An empty list asserts that nothing was inferred.
	case AssertJustifications, AssertExplain:
		if len(a.Fact) == 0 {
			return fmt.Errorf("assertions[%d]: fact is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
		facts = []Term{a.Fact}
		for _, set := range a.Supports {
			facts = append(facts, set...)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	for _, t := range facts {
		if _, err := s.parseFact(t); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}
	return nil
}

func (s *Scenario) parseFact(t Term) (ir.FactKey, error) {
	return compiler.ParseFact(t, s.Namespaces)
}

func (s *Scenario) parseFacts(ts []Term) ([]ir.FactKey, error) {
	keys := make([]ir.FactKey, len(ts))
	for i, t := range ts {
		k, err := s.parseFact(t)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}
