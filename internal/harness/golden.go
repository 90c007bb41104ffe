package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/synccore/internal/ir"
)

// Snapshot renders the golden trace of a run as canonical JSON: the step
// outcomes, the completion order and the final task and object state.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"step":   int64(ev.Step),
			"do":     ev.Do,
			"status": ev.Status,
		}
		if ev.Task != "" {
			m["task"] = ev.Task
		}
		if ev.Object != "" {
			m["object"] = ev.Object
		}
		if len(ev.Values) > 0 {
			m["values"] = ev.Values
		}
		trace[i] = m
	}

	completions := make([]any, len(result.Completions))
	for i, name := range result.Completions {
		completions[i] = name
	}

	tasks := make(map[string]any, len(result.Tasks))
	for name, ts := range result.Tasks {
		tasks[name] = map[string]any{
			"current": ts.Current,
			"real":    ts.Real,
			"blocked": ts.Blocked,
		}
	}

	objects := make(map[string]any, len(result.Objects))
	for name, st := range result.Objects {
		m := map[string]any{"kind": st.Kind, "count": st.Count}
		if st.Kind == KindSemaphore {
			m["waiters"] = st.Waiters
		}
		objects[name] = m
	}

	runID := scenario.RunID
	if runID == "" {
		runID = "test-run-default"
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario_name": scenario.Name,
		"run_id":        runID,
		"trace":         trace,
		"completions":   completions,
		"tasks":         tasks,
		"objects":       objects,
	})
}

// RunWithGolden runs a scenario, fails t on any failed expectation, and
// compares the trace with testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		for _, msg := range result.Errors {
			t.Error(msg)
		}
	}
	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an already computed result with its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}

// WriteGolden writes the golden file of a run to dir.
func WriteGolden(dir string, scenario *Scenario, result *Result) error {
	data, err := Snapshot(scenario, result)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(GoldenPath(dir, scenario), data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// CompareGolden reports whether a run matches the golden file in dir.
// A missing golden file returns os.ErrNotExist.
func CompareGolden(dir string, scenario *Scenario, result *Result) (bool, error) {
	want, err := os.ReadFile(GoldenPath(dir, scenario))
	if err != nil {
		return false, err
	}
	got, err := Snapshot(scenario, result)
	if err != nil {
		return false, fmt.Errorf("failed to marshal trace: %w", err)
	}
	return bytes.Equal(want, got), nil
}

// GoldenPath returns the golden file of a scenario in dir.
func GoldenPath(dir string, scenario *Scenario) string {
	return filepath.Join(dir, scenario.Name+".golden")
}

// FindScenarios returns the .yaml and .yml files under dir whose base
// name matches filter, a filepath.Match pattern, in file name order.
func FindScenarios(dir, filter string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
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
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadScenarios loads every scenario FindScenarios returns.
func LoadScenarios(dir, filter string) ([]*Scenario, error) {
	paths, err := FindScenarios(dir, filter)
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
