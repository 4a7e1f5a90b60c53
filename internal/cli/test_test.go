package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repoScenarios = "../../testdata/scenarios"

// copyScenario copies a repository scenario with inline rules into dir.
func copyScenario(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(repoScenarios, name))
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No scenarios found.")
}

func TestTestCommandEmptyDirJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	require.NoError(t, cmd.Execute())
	result := decode[TestResult](t, buf.Bytes())
	assert.Empty(t, result.Scenarios)
	assert.Zero(t, result.Total)
}

func TestTestCommandRepositoryScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{repoScenarios})

	require.NoError(t, cmd.Execute(), buf.String())

	result := decode[TestResult](t, buf.Bytes())
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, result.Passed)
	assert.Zero(t, result.Failed)
	for _, s := range result.Scenarios {
		assert.True(t, s.Pass, "%s: %v", s.Name, s.Errors)
	}
}

func TestTestCommandFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{repoScenarios, "--filter", "family*"})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "✓ family")
	assert.NotContains(t, output, "transitive_chain")
	assert.Contains(t, output, "1 passed, 0 failed, 1 total")
}

func TestTestCommandUpdateAndCompareGolden(t *testing.T) {
	dir := t.TempDir()
	scenario := copyScenario(t, dir, "transitive_chain.yaml")

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, "--update"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "golden updated")

	golden := goldenFilePath(scenario)
	require.FileExists(t, golden)

	// Matches the freshly written golden file.
	buf.Reset()
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ transitive_chain")

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))

	buf.Reset()
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Golden file mismatch")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`name: wrong
namespaces:
  ex: "http://example.org/"
rules:
  - name: sym
    rule: "(?a ex:knows ?b) -> (?b ex:knows ?a)"
steps:
  - add:
      - [ex:a, ex:knows, ex:b]
assertions:
  - type: absent
    facts:
      - [ex:b, ex:knows, ex:a]
`), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result TestResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Scenarios, 1)
	assert.False(t, result.Scenarios[0].Pass)
	assert.NotEmpty(t, result.Scenarios[0].Errors)
}

func TestTestCommandBadScenarioFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unclosed\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "failed to load scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("testdata", "scenarios", "golden", "family.golden"),
		goldenFilePath(filepath.Join("testdata", "scenarios", "family.yaml")))
}

func TestFindScenarioFilesFilter(t *testing.T) {
	files, err := findScenarioFiles(repoScenarios, "")
	require.NoError(t, err)
	assert.Len(t, files, 4)

	files, err = findScenarioFiles(repoScenarios, "*chain")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "transitive_chain.yaml", filepath.Base(files[0]))

	_, err = findScenarioFiles(repoScenarios, "[")
	require.Error(t, err)
}
