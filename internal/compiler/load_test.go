package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoPrograms = `
program: family: {
	namespaces: ex: "http://example.org/"
	rules: spouse: "(?a ex:spouse ?b) -> (?b ex:spouse ?a)"
}
program: places: {
	namespaces: ex: "http://example.org/"
	rules: within: "(?a ex:within ?b), (?b ex:within ?c) -> (?a ex:within ?c)"
}
`

func writeCUE(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadProgramByName(t *testing.T) {
	path := writeCUE(t, t.TempDir(), "rules.cue", twoPrograms)

	prog, err := LoadProgram(path, "places")
	require.NoError(t, err)
	assert.Equal(t, "places", prog.Name)
	assert.Equal(t, []string{"within"}, prog.RuleNames())
}

func TestLoadProgramSingle(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "rules.cue", `
package rules

program: family: {
	namespaces: ex: "http://example.org/"
	rules: spouse: "(?a ex:spouse ?b) -> (?b ex:spouse ?a)"
}
`)

	// Directories load as one package.
	prog, err := LoadProgram(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "family", prog.Name)
}

func TestLoadProgramErrors(t *testing.T) {
	dir := t.TempDir()
	multi := writeCUE(t, dir, "multi.cue", twoPrograms)
	empty := writeCUE(t, t.TempDir(), "empty.cue", `other: 1`)

	_, err := LoadProgram(multi, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly one program, found 2")

	_, err = LoadProgram(multi, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `program "missing" not found`)

	_, err = LoadProgram(empty, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no programs defined")

	_, err = LoadProgram(filepath.Join(dir, "absent.cue"), "")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadValueSyntaxError(t *testing.T) {
	path := writeCUE(t, t.TempDir(), "bad.cue", `program: family: {`)

	_, err := LoadValue(path)
	require.Error(t, err)
}
