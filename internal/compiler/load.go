package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/lemma/internal/ir"
)

// LoadValue builds the CUE value at path, which is either a .cue file or a
// directory holding one package.
func LoadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, err
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances in %s", path)
	}
	if err := instances[0].Err; err != nil {
		return cue.Value{}, formatCUEError(err)
	}

	v := cuecontext.New().BuildInstance(instances[0])
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// LoadProgram loads path and compiles the program called name. An empty name
// selects the only program in the file.
func LoadProgram(path, name string) (*ir.Program, error) {
	v, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	programs := v.LookupPath(cue.ParsePath("program"))
	if !programs.Exists() {
		return nil, &CompileError{Field: "program", Message: "no programs defined", Pos: v.Pos()}
	}

	if name != "" {
		pv := programs.LookupPath(cue.MakePath(cue.Str(name)))
		if !pv.Exists() {
			return nil, &CompileError{Field: "program", Message: fmt.Sprintf("program %q not found", name), Pos: programs.Pos()}
		}
		return CompileProgram(pv)
	}

	iter, err := programs.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var found []cue.Value
	for iter.Next() {
		found = append(found, iter.Value())
	}
	if len(found) != 1 {
		return nil, &CompileError{
			Field:   "program",
			Message: fmt.Sprintf("expected exactly one program, found %d; pass a name", len(found)),
			Pos:     programs.Pos(),
		}
	}
	return CompileProgram(found[0])
}
