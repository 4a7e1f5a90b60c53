package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../../testdata/scenarios"

// TestExampleScenarios runs every scenario shipped in testdata. They double
// as documentation of the reasoner's observable behavior.
func TestExampleScenarios(t *testing.T) {
	paths, err := FindScenarios(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRunSuite(t *testing.T) {
	paths, err := FindScenarios(scenarioDir)
	require.NoError(t, err)

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0644))

	result, err := RunSuite(context.Background(), append(paths, broken), 4)
	require.NoError(t, err)

	assert.Equal(t, len(paths)+1, result.Total)
	assert.Equal(t, len(paths), result.Passed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, broken, result.Failures[0].Path)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Len(t, result.Results, len(paths))
}

func TestFindScenarios_SkipsGolden(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "c.yaml"), nil, 0644))

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, paths)
}
