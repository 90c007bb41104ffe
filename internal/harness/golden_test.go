package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "priority_order")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s, first)
	require.NoError(t, err)
	b, err := Snapshot(s, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_Shape(t *testing.T) {
	s := &Scenario{Name: "shape"}
	result := NewResult()
	result.Trace = append(result.Trace,
		TraceEvent{Step: 1, Do: OpTick, Status: "SUCCESSFUL", Values: map[string]any{"fired": int64(0)}},
		TraceEvent{Step: 2, Do: OpObtain, Task: "T1", Object: "SEM", Status: Blocked},
	)
	result.Completions = []string{"T1"}
	result.Tasks["T1"] = TaskState{Current: 3, Real: 7, Blocked: true}
	result.Objects["SEM"] = ObjectState{Kind: KindSemaphore, Count: 0, Waiters: 1}
	result.Objects["mq"] = ObjectState{Kind: KindMessageQueue, Count: 2}

	data, err := Snapshot(s, result)
	require.NoError(t, err)
	want := `{"completions":["T1"],` +
		`"objects":{"SEM":{"count":0,"kind":"semaphore","waiters":1},"mq":{"count":2,"kind":"message_queue"}},` +
		`"run_id":"test-run-default","scenario_name":"shape",` +
		`"tasks":{"T1":{"blocked":true,"current":3,"real":7}},` +
		`"trace":[{"do":"tick","status":"SUCCESSFUL","step":1,"values":{"fired":0}},` +
		`{"do":"obtain","object":"SEM","status":"BLOCKED","step":2,"task":"T1"}]}`
	assert.Equal(t, want, string(data))
}

func TestWriteCompareGolden(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "golden")
	s := loadTestScenario(t, "timeout")
	result, err := Run(s)
	require.NoError(t, err)

	_, err = CompareGolden(dir, s, result)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, WriteGolden(dir, s, result))
	assert.FileExists(t, GoldenPath(dir, s))

	match, err := CompareGolden(dir, s, result)
	require.NoError(t, err)
	assert.True(t, match)

	result.Completions = append(result.Completions, "T1")
	match, err = CompareGolden(dir, s, result)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestCheckedInGoldenMatchesWriteGolden(t *testing.T) {
	s := loadTestScenario(t, "mq_priority")
	result, err := Run(s)
	require.NoError(t, err)

	match, err := CompareGolden("testdata/golden", s, result)
	require.NoError(t, err)
	assert.True(t, match)
}

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios(scenarioDir, "")
	require.NoError(t, err)
	assert.Contains(t, paths, filepath.Join(scenarioDir, "inherit_boost.yaml"))

	paths, err = FindScenarios(scenarioDir, "mp_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(scenarioDir, "mp_set_priority.yaml")}, paths)

	_, err = FindScenarios(scenarioDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestLoadScenarios_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))

	_, err := LoadScenarios(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}
