package harness

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SuiteResult summarizes a run of several scenario files.
type SuiteResult struct {
	Total    int                `json:"total"`
	Passed   int                `json:"passed"`
	Failed   int                `json:"failed"`
	Failures []ScenarioFailure  `json:"failures,omitempty"`
	Results  map[string]*Result `json:"-"`
}

// ScenarioFailure is a scenario that could not be loaded, could not run, or
// failed an assertion.
type ScenarioFailure struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Golden snapshots live next to scenarios.
			if d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	slices.Sort(paths)
	return paths, err
}

// RunSuite loads and runs every scenario in paths, at most parallel at a
// time (parallel < 1 means one). Each scenario gets its own store.
//
// Failures are collected, never returned: the error is only ctx's.
func RunSuite(ctx context.Context, paths []string, parallel int, opts ...Option) (*SuiteResult, error) {
	if parallel < 1 {
		parallel = 1
	}
	result := &SuiteResult{Results: make(map[string]*Result, len(paths))}
	var mu sync.Mutex

	fail := func(path, name, msg string) {
		mu.Lock()
		defer mu.Unlock()
		result.Failed++
		result.Failures = append(result.Failures, ScenarioFailure{Path: path, Name: name, Error: msg})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scenario, err := LoadScenario(path)
			if err != nil {
				fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
				return nil
			}
			run, err := Run(gctx, scenario, opts...)
			if err != nil {
				fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
				return nil
			}

			mu.Lock()
			result.Results[path] = run
			mu.Unlock()
			if !run.Pass {
				fail(path, scenario.Name, fmt.Sprintf("scenario assertions failed: %v", run.Errors))
				return nil
			}
			mu.Lock()
			result.Passed++
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	result.Total = len(paths)
	slices.SortFunc(result.Failures, func(a, b ScenarioFailure) int {
		return strings.Compare(a.Path, b.Path)
	})
	return result, err
}
