package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
namespaces:
  ex: "http://example.org/"
rules:
  - name: lift
    rule: "(?a ex:p ?b) -> (?a ex:q ?b)"
steps:
  - add:
      - [ex:a, ex:p, ex:b]
  - rerun: true
assertions:
  - type: inferred
    facts:
      - [ex:a, ex:q, ex:b]
`

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, validScenario))
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, map[string]string{"ex": "http://example.org/"}, scenario.Namespaces)
	require.Len(t, scenario.Rules, 1)
	assert.Equal(t, "lift", scenario.Rules[0].Name)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, OpTransaction, scenario.Steps[0].Op())
	assert.Equal(t, OpReRun, scenario.Steps[1].Op())
	assert.Equal(t, Term{"ex:a", "ex:p", "ex:b"}, scenario.Steps[0].Add[0])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, validScenario+"assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_ProgramNamespaces(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte(`
program: p: {
	namespaces: ex: "http://example.org/"
	rules: lift: "(?a ex:p ?b) -> (?a ex:q ?b)"
}
`), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: from_program
description: "uses the program's prefixes"
program: rules.cue
steps:
  - add: [[ex:a, ex:p, ex:b]]
assertions:
  - type: inferred
    facts: [[ex:a, ex:q, ex:b]]
`), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rules.cue"), scenario.Program)
	assert.Equal(t, "http://example.org/", scenario.Namespaces["ex"])
}

func TestLoadScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nrules: [{name: r, rule: \"(?a <p> ?b) -> (?b <p> ?a)\"}]\nsteps: [{rerun: true}]\nassertions: [{type: inferred}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nrules: [{name: r, rule: \"(?a <p> ?b) -> (?b <p> ?a)\"}]\nsteps: [{rerun: true}]\nassertions: [{type: inferred}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no rules",
			content: "name: n\ndescription: d\nsteps: [{rerun: true}]\nassertions: [{type: inferred}]\n",
			wantErr: "program or rules is required",
		},
		{
			name:    "bad rule",
			content: "name: n\ndescription: d\nrules: [{name: r, rule: \"(?a <p> ?b)\"}]\nsteps: [{rerun: true}]\nassertions: [{type: inferred}]\n",
			wantErr: "rules[0]",
		},
		{
			name:    "no steps",
			content: "name: n\ndescription: d\nrules: [{name: r, rule: \"(?a <p> ?b) -> (?b <p> ?a)\"}]\nassertions: [{type: inferred}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "mixed step",
			content: "name: n\ndescription: d\nrules: [{name: r, rule: \"(?a <p> ?b) -> (?b <p> ?a)\"}]\nsteps: [{rerun: true, remove_rules: [r]}]\nassertions: [{type: inferred}]\n",
			wantErr: "steps[0]: exactly one of",
		},
		{
			name:    "unknown prefix",
			content: "name: n\ndescription: d\nrules: [{name: r, rule: \"(?a <p> ?b) -> (?b <p> ?a)\"}]\nsteps: [{add: [[ex:a, <p>, ex:b]]}]\nassertions: [{type: inferred}]\n",
			wantErr: "steps[0] fact 0",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nrules: [{name: r, rule: \"(?a <p> ?b) -> (?b <p> ?a)\"}]\nsteps: [{rerun: true}]\nassertions: [{type: closure}]\n",
			wantErr: `unknown assertion type "closure"`,
		},
		{
			name:    "explain without fact",
			content: "name: n\ndescription: d\nrules: [{name: r, rule: \"(?a <p> ?b) -> (?b <p> ?a)\"}]\nsteps: [{rerun: true}]\nassertions: [{type: explain}]\n",
			wantErr: "fact is required for explain",
		},
		{
			name:    "missing program file",
			content: "name: n\ndescription: d\nprogram: absent.cue\nnamespaces: {ex: \"http://example.org/\"}\nsteps: [{rerun: true}]\nassertions: [{type: inferred}]\n",
			wantErr: "program file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStepOp(t *testing.T) {
	assert.Equal(t, OpTransaction, Step{Remove: []Term{{"<a>", "<p>", "<b>"}}}.Op())
	assert.Equal(t, OpAddRule, Step{AddRule: &RuleSpec{Name: "r"}}.Op())
	assert.Equal(t, OpRemoveRules, Step{RemoveRules: []string{"r"}}.Op())
	assert.Equal(t, "", Step{}.Op())
	assert.Equal(t, "", Step{ReRun: true, AddRule: &RuleSpec{}}.Op())
}
