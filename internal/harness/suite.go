package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioResult is the outcome of one scenario file in a suite.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
}

// FindScenarios lists the *.yaml and *.yml files in dir, sorted. A
// non-empty filter is a glob matched against the base name.
func FindScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			base := strings.TrimSuffix(name, ext)
			ok, err := filepath.Match(filter, base)
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in paths. A scenario that fails to
// load or run is reported as failed; RunSuite itself only fails on ctx.
func RunSuite(ctx context.Context, paths []string) (*SuiteResult, error) {
	result := &SuiteResult{
		Scenarios: make([]ScenarioResult, 0, len(paths)),
		Total:     len(paths),
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sr := ScenarioResult{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), Path: path}
		scenario, err := LoadScenario(path)
		if err != nil {
			sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		} else {
			sr.Name = scenario.Name
			run, err := Run(ctx, scenario)
			switch {
			case err != nil:
				sr.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
			default:
				sr.Pass = run.Pass
				sr.Errors = run.Errors
			}
		}

		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	return result, nil
}
