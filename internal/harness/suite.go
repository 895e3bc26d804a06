package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Path   string   `json:"path"`
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	// Result is nil when the scenario could not be loaded or run.
	Result *Result `json:"-"`
}

// FindScenarios walks dir and returns every .yaml or .yml file whose base
// name (without extension) matches filter. An empty filter matches all.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(path), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// RunSuite loads and runs every scenario file in order. Load and run
// errors count as failures; only a cancelled context stops the suite.
func RunSuite(ctx context.Context, paths []string, opts ...Option) (*SuiteResult, error) {
	suite := &SuiteResult{Scenarios: make([]ScenarioResult, 0, len(paths))}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return suite, err
		}
		suite.Total++
		sr := ScenarioResult{Path: path, Name: filepath.Base(path)}

		scenario, err := LoadScenario(path)
		if err != nil {
			sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		} else {
			sr.Name = scenario.Name
			result, err := Run(ctx, scenario, opts...)
			switch {
			case err != nil:
				sr.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
			default:
				sr.Result = result
				sr.Pass = result.Pass
				sr.Errors = result.Errors
			}
		}

		if sr.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Scenarios = append(suite.Scenarios, sr)
	}
	return suite, nil
}
