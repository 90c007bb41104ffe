package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/posix"
	"github.com/roach88/synccore/internal/semaphore"
)

// Scenario is one kernel test: a cluster configuration, the tasks and
// objects to create, and the directives to run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// RunID names the journal run. Empty selects "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Config is a configuration document as accepted by config.FromMap.
	// Empty selects a single node with default tables.
	Config map[string]any `yaml:"config,omitempty"`

	Tasks      []TaskDef   `yaml:"tasks"`
	Objects    []ObjectDef `yaml:"objects,omitempty"`
	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// TaskDef creates a task before the first step.
type TaskDef struct {
	Name      string `yaml:"name"`
	Node      uint32 `yaml:"node,omitempty"`
	Priority  int    `yaml:"priority"`
	Processor int    `yaml:"processor,omitempty"`
	Global    bool   `yaml:"global,omitempty"`

	// CatchSignals installs a handler so the task accepts signals.
	CatchSignals bool `yaml:"catch_signals,omitempty"`
}

// ObjectDef creates an object before the first step.
type ObjectDef struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
	Node uint32 `yaml:"node,omitempty"`

	// Creator is the task that creates the object. A binary semaphore
	// created with count 0 is owned by it.
	Creator string `yaml:"creator,omitempty"`

	Count      uint32   `yaml:"count,omitempty"`
	Attributes []string `yaml:"attributes,omitempty"`
	Ceiling    int      `yaml:"ceiling,omitempty"`

	// Message queue sizing. Zero selects the defaults.
	MaxMsg  int `yaml:"max_msg,omitempty"`
	MsgSize int `yaml:"msg_size,omitempty"`
}

// Step runs one directive, advances a clock, collects a blocked directive
// or checks state.
type Step struct {
	Task   string `yaml:"task,omitempty"`
	Do     string `yaml:"do"`
	Object string `yaml:"object,omitempty"`
	Target string `yaml:"target,omitempty"`

	Priority int    `yaml:"priority,omitempty"`
	Timeout  int    `yaml:"timeout,omitempty"`
	NoWait   bool   `yaml:"no_wait,omitempty"`
	Data     string `yaml:"data,omitempty"`
	Set      uint32 `yaml:"set,omitempty"`

	// Node and Ticks are used by tick.
	Node  uint32 `yaml:"node,omitempty"`
	Ticks int    `yaml:"ticks,omitempty"`

	// Expect is a status name, an errno name or BLOCKED. Empty skips the
	// check.
	Expect string `yaml:"expect,omitempty"`

	ExpectPriority *int    `yaml:"expect_priority,omitempty"`
	ExpectReal     *int    `yaml:"expect_real,omitempty"`
	ExpectValue    *int    `yaml:"expect_value,omitempty"`
	ExpectWaiters  *int    `yaml:"expect_waiters,omitempty"`
	ExpectData     *string `yaml:"expect_data,omitempty"`
}

// Assertion checks the whole run.
type Assertion struct {
	// Type is event_count, packet_count or completion_order.
	Type string `yaml:"type"`

	// Kind and Status filter events (event_count).
	Kind   string `yaml:"kind,omitempty"`
	Status string `yaml:"status,omitempty"`

	// Operation and Direction filter packets (packet_count).
	Operation string `yaml:"operation,omitempty"`
	Direction string `yaml:"direction,omitempty"`

	Count int `yaml:"count"`

	// Tasks lists tasks in the order their directives must complete
	// (completion_order). Other completions may come in between.
	Tasks []string `yaml:"tasks,omitempty"`
}

// Object kinds.
const (
	KindSemaphore      = "semaphore"
	KindPOSIXSemaphore = "posix_semaphore"
	KindMessageQueue   = "message_queue"
)

// Step operations.
const (
	OpObtain         = "obtain"
	OpRelease        = "release"
	OpFlush          = "flush"
	OpDelete         = "delete"
	OpSetPriority    = "set_priority"
	OpSuspend        = "suspend"
	OpResume         = "resume"
	OpSignal         = "signal"
	OpProcessSignals = "process_signals"
	OpSemWait        = "sem_wait"
	OpSemTryWait     = "sem_trywait"
	OpSemPost        = "sem_post"
	OpSemGetValue    = "sem_getvalue"
	OpMqSend         = "mq_send"
	OpMqReceive      = "mq_receive"
	OpTick           = "tick"
	OpAwait          = "await"
	OpCheck          = "check"
)

// Assertion types.
const (
	AssertEventCount      = "event_count"
	AssertPacketCount     = "packet_count"
	AssertCompletionOrder = "completion_order"
)

// Blocked is the outcome of a directive that did not return within its
// step.
const Blocked = "BLOCKED"

// opSpec describes what an operation needs.
type opSpec struct {
	task   bool   // runs on behalf of a task
	object string // required object kind, "" for none
	target bool   // names a target task
}

var ops = map[string]opSpec{
	OpObtain:         {task: true, object: KindSemaphore},
	OpRelease:        {task: true, object: KindSemaphore},
	OpFlush:          {object: KindSemaphore},
	OpDelete:         {object: KindSemaphore},
	OpSetPriority:    {task: true, target: true},
	OpSuspend:        {task: true, target: true},
	OpResume:         {task: true, target: true},
	OpSignal:         {task: true, target: true},
	OpProcessSignals: {task: true},
	OpSemWait:        {task: true, object: KindPOSIXSemaphore},
	OpSemTryWait:     {task: true, object: KindPOSIXSemaphore},
	OpSemPost:        {task: true, object: KindPOSIXSemaphore},
	OpSemGetValue:    {task: true, object: KindPOSIXSemaphore},
	OpMqSend:         {task: true, object: KindMessageQueue},
	OpMqReceive:      {task: true, object: KindMessageQueue},
	OpTick:           {},
	OpAwait:          {task: true},
	OpCheck:          {},
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos do not silently disable a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks references between tasks, objects and steps.
// Kernel limits are left to the kernel.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	tasks := make(map[string]TaskDef, len(s.Tasks))
	for i, t := range s.Tasks {
		if t.Name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if _, err := ir.ParseName(t.Name); err != nil {
			return fmt.Errorf("tasks[%d]: %w", i, err)
		}
		if _, dup := tasks[t.Name]; dup {
			return fmt.Errorf("tasks[%d]: duplicate task %q", i, t.Name)
		}
		if t.Priority < int(ir.MinimumPriority) {
			return fmt.Errorf("tasks[%d]: priority must be at least %d", i, ir.MinimumPriority)
		}
		tasks[t.Name] = t
	}

	objects := make(map[string]ObjectDef, len(s.Objects))
	for i, o := range s.Objects {
		if err := validateObject(o, tasks); err != nil {
			return fmt.Errorf("objects[%d]: %w", i, err)
		}
		if _, dup := objects[o.Name]; dup {
			return fmt.Errorf("objects[%d]: duplicate object %q", i, o.Name)
		}
		objects[o.Name] = o
	}

	for i, step := range s.Steps {
		if err := validateStep(step, tasks, objects); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, tasks); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateObject(o ObjectDef, tasks map[string]TaskDef) error {
	if o.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch o.Kind {
	case KindSemaphore:
		if _, err := ir.ParseName(o.Name); err != nil {
			return err
		}
		if _, status := semaphore.ParseAttributes(o.Attributes); status != ir.StatusSuccessful {
			return fmt.Errorf("unknown attribute in %v", o.Attributes)
		}
	case KindPOSIXSemaphore, KindMessageQueue:
		if len(o.Attributes) > 0 || o.Ceiling != 0 {
			return fmt.Errorf("%s takes no attributes", o.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", o.Kind)
	}
	if o.Creator != "" {
		t, ok := tasks[o.Creator]
		if !ok {
			return fmt.Errorf("unknown creator %q", o.Creator)
		}
		if nodeOf(t.Node) != nodeOf(o.Node) {
			return fmt.Errorf("creator %q is not on node %d", o.Creator, nodeOf(o.Node))
		}
	}
	return nil
}

func validateStep(step Step, tasks map[string]TaskDef, objects map[string]ObjectDef) error {
	spec, ok := ops[step.Do]
	if !ok {
		return fmt.Errorf("unknown operation %q", step.Do)
	}

	task, hasTask := tasks[step.Task]
	if step.Task != "" && !hasTask {
		return fmt.Errorf("unknown task %q", step.Task)
	}
	if spec.task && !hasTask {
		return fmt.Errorf("%s needs a task", step.Do)
	}

	if spec.target {
		if _, ok := tasks[step.Target]; !ok {
			return fmt.Errorf("%s needs a known target, got %q", step.Do, step.Target)
		}
	}

	if spec.object != "" {
		obj, ok := objects[step.Object]
		if !ok {
			return fmt.Errorf("unknown object %q", step.Object)
		}
		if obj.Kind != spec.object {
			return fmt.Errorf("%s needs a %s, %q is a %s", step.Do, spec.object, step.Object, obj.Kind)
		}
		// POSIX objects are node local
		if obj.Kind != KindSemaphore && hasTask && nodeOf(task.Node) != nodeOf(obj.Node) {
			return fmt.Errorf("%q is not on the node of task %q", step.Object, step.Task)
		}
	}

	switch step.Do {
	case OpTick:
		if step.Ticks <= 0 {
			return fmt.Errorf("tick needs ticks > 0")
		}
	case OpCheck:
		if step.Task == "" && step.Object == "" {
			return fmt.Errorf("check needs a task or an object")
		}
		if step.Object != "" {
			if _, ok := objects[step.Object]; !ok {
				return fmt.Errorf("unknown object %q", step.Object)
			}
		}
	case OpSetPriority:
		if step.Priority < 0 {
			return fmt.Errorf("priority must not be negative")
		}
	}

	if step.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return validateExpect(step.Expect)
}

func validateExpect(expect string) error {
	if expect == "" || expect == Blocked {
		return nil
	}
	if _, ok := ir.ParseStatus(expect); ok {
		return nil
	}
	if _, ok := posix.ParseErrno(expect); ok {
		return nil
	}
	return fmt.Errorf("unknown expected outcome %q", expect)
}

func validateAssertion(a Assertion, tasks map[string]TaskDef) error {
	switch a.Type {
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("event_count needs a kind")
		}
	case AssertPacketCount:
		if a.Operation == "" {
			return fmt.Errorf("packet_count needs an operation")
		}
		if a.Direction != "" && a.Direction != "send" && a.Direction != "receive" {
			return fmt.Errorf("direction must be send or receive, got %q", a.Direction)
		}
	case AssertCompletionOrder:
		if len(a.Tasks) == 0 {
			return fmt.Errorf("completion_order needs tasks")
		}
		for _, name := range a.Tasks {
			if _, ok := tasks[name]; !ok {
				return fmt.Errorf("unknown task %q", name)
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	return nil
}

// nodeOf maps the zero node of a definition to node 1.
func nodeOf(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}
