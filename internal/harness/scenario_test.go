package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: one obtain
tasks:
  - name: T1
    priority: 10
objects:
  - kind: semaphore
    name: SEM
    count: 1
    attributes: [counting]
steps:
  - task: T1
    do: obtain
    object: SEM
    expect: SUCCESSFUL
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, TaskDef{Name: "T1", Priority: 10}, s.Tasks[0])
	require.Len(t, s.Objects, 1)
	assert.Equal(t, []string{"counting"}, s.Objects[0].Attributes)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, OpObtain, s.Steps[0].Do)
	assert.Nil(t, s.Steps[0].ExpectValue)
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "    expect_prio: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Config(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario + "config:\n  nodes: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Config["nodes"])
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does_not_exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	base := func() *Scenario {
		s, err := ParseScenario([]byte(minimalScenario))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"long task name", func(s *Scenario) { s.Tasks[0].Name = "TOOLONG" }, "tasks[0]"},
		{"duplicate task", func(s *Scenario) { s.Tasks = append(s.Tasks, s.Tasks[0]) }, "duplicate task"},
		{"priority zero", func(s *Scenario) { s.Tasks[0].Priority = 0 }, "priority must be at least"},
		{"unknown kind", func(s *Scenario) { s.Objects[0].Kind = "barrier" }, `unknown kind "barrier"`},
		{"unknown attribute", func(s *Scenario) { s.Objects[0].Attributes = []string{"sticky"} }, "unknown attribute"},
		{"posix attributes", func(s *Scenario) {
			s.Objects[0].Kind = KindPOSIXSemaphore
		}, "takes no attributes"},
		{"unknown creator", func(s *Scenario) { s.Objects[0].Creator = "T9" }, `unknown creator "T9"`},
		{"creator elsewhere", func(s *Scenario) {
			s.Objects[0].Creator = "T1"
			s.Objects[0].Node = 2
		}, "is not on node 2"},
		{"unknown op", func(s *Scenario) { s.Steps[0].Do = "lock" }, `unknown operation "lock"`},
		{"unknown step task", func(s *Scenario) { s.Steps[0].Task = "T9" }, `unknown task "T9"`},
		{"missing task", func(s *Scenario) { s.Steps[0].Task = "" }, "obtain needs a task"},
		{"unknown object", func(s *Scenario) { s.Steps[0].Object = "NONE" }, `unknown object "NONE"`},
		{"wrong kind", func(s *Scenario) { s.Steps[0].Do = OpSemPost }, "sem_post needs a posix_semaphore"},
		{"missing target", func(s *Scenario) {
			s.Steps[0] = Step{Task: "T1", Do: OpSetPriority, Target: "T9"}
		}, "needs a known target"},
		{"tick without ticks", func(s *Scenario) { s.Steps[0] = Step{Do: OpTick} }, "tick needs ticks > 0"},
		{"empty check", func(s *Scenario) { s.Steps[0] = Step{Do: OpCheck} }, "check needs a task or an object"},
		{"negative timeout", func(s *Scenario) { s.Steps[0].Timeout = -1 }, "timeout must not be negative"},
		{"unknown outcome", func(s *Scenario) { s.Steps[0].Expect = "MAYBE" }, `unknown expected outcome "MAYBE"`},
		{"unknown assertion", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: "latency"}}
		}, `unknown assertion type "latency"`},
		{"event count without kind", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertEventCount, Count: 1}}
		}, "event_count needs a kind"},
		{"bad direction", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertPacketCount, Operation: "obtain_request", Direction: "sideways"}}
		}, "direction must be send or receive"},
		{"order of unknown task", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertCompletionOrder, Tasks: []string{"T1", "T9"}}}
		}, `unknown task "T9"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateScenario_POSIXNodeLocal(t *testing.T) {
	s := &Scenario{
		Name:        "remote_posix",
		Description: "POSIX objects are not reachable from other nodes",
		Tasks:       []TaskDef{{Name: "T1", Node: 2, Priority: 10}},
		Objects:     []ObjectDef{{Kind: KindPOSIXSemaphore, Name: "psem", Count: 1}},
		Steps:       []Step{{Task: "T1", Do: OpSemWait, Object: "psem"}},
	}
	err := validateScenario(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"psem" is not on the node of task "T1"`)
}

func TestValidateExpect(t *testing.T) {
	for _, ok := range []string{"", Blocked, "SUCCESSFUL", "OBJECT_WAS_DELETED", "ETIMEDOUT", "EAGAIN"} {
		assert.NoError(t, validateExpect(ok), ok)
	}
	assert.Error(t, validateExpect("successful"))
}

func TestNodeOf(t *testing.T) {
	assert.Equal(t, uint32(1), nodeOf(0))
	assert.Equal(t, uint32(3), nodeOf(3))
}
