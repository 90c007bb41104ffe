package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/synccore/internal/config"
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/kernel"
	"github.com/roach88/synccore/internal/posix"
	"github.com/roach88/synccore/internal/semaphore"
	"github.com/roach88/synccore/internal/store"
	"github.com/roach88/synccore/internal/task"
	"github.com/roach88/synccore/internal/testutil"
	"github.com/roach88/synccore/internal/threadq"
)

// settleTimeout bounds how long one step may take to settle.
const settleTimeout = 5 * time.Second

// outcome is what a directive returned.
type outcome struct {
	err    error
	values map[string]any
}

// call is a directive running on its own goroutine.
type call struct {
	step   int
	do     string
	done   chan outcome
	queued chan struct{}

	// parked is set once the thread sat on a wait queue.
	parked   bool
	finished bool
	outcome  outcome
}

type taskRef struct {
	def  TaskDef
	node *kernel.Node
	task *task.Task
	call *call
}

type objectRef struct {
	def     ObjectDef
	node    *kernel.Node
	id      ir.ObjectID
	sem     *posix.Sem
	mqd     posix.MQD
	deleted bool
}

// Harness executes one scenario on a fresh cluster.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	journal  *store.Journal
	cluster  *kernel.Cluster
	logger   *slog.Logger

	tasks   map[string]*taskRef
	order   []*taskRef
	objects map[string]*objectRef
	result  *Result
}

// Run executes a scenario and returns its result.
//
// Each scenario runs on its own cluster with an in-memory journal, a fixed
// run id and a deterministic sequencer. An error means the scenario could
// not be executed; failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := config.FromMap(scenario.Config)
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	journal, err := st.Begin(ctx, 0, kernel.ConfigJSON(cfg), store.JournalOptions{
		IDs:    testutil.NewFixedRunIDGenerator(scenario.RunID),
		Seq:    testutil.NewDeterministicClock(),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("begin journal: %w", err)
	}

	cluster, err := kernel.NewCluster(cfg, kernel.Options{
		Journal:     journal,
		ManualClock: true,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	defer cluster.Close()

	h := &Harness{
		scenario: scenario,
		store:    st,
		journal:  journal,
		cluster:  cluster,
		logger:   logger,
		tasks:    make(map[string]*taskRef),
		objects:  make(map[string]*objectRef),
		result:   NewResult(),
	}
	defer h.release()

	if err := h.setup(); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	for i, step := range scenario.Steps {
		if err := h.execute(i, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Do, err)
		}
	}

	h.snapshot()
	for _, msg := range EvaluateAssertions(ctx, h.result, scenario.Assertions, &AssertionContext{
		Store: st,
		RunID: journal.RunID(),
	}) {
		h.result.AddError(msg)
	}
	if err := journal.Err(); err != nil {
		h.result.AddError(err.Error())
	}
	return h.result, nil
}

// setup creates the tasks, then the objects, and lets announcements reach
// every node.
func (h *Harness) setup() error {
	for _, def := range h.scenario.Tasks {
		node := h.cluster.Node(nodeOf(def.Node))
		if node == nil {
			return fmt.Errorf("task %s: no node %d", def.Name, nodeOf(def.Node))
		}
		attrs := task.Local
		if def.Global {
			attrs = task.Global
		}
		id, err := node.Tasks.Create(ir.MustName(def.Name), ir.Priority(def.Priority), def.Processor, attrs)
		if err != nil {
			return fmt.Errorf("create task %s: %w", def.Name, err)
		}
		tk, err := node.Tasks.Get(id)
		if err != nil {
			return fmt.Errorf("create task %s: %w", def.Name, err)
		}
		if def.CatchSignals {
			if err := node.Tasks.SignalCatch(tk.Thread(), id, func(ir.SignalSet) {}); err != nil {
				return fmt.Errorf("catch signals of %s: %w", def.Name, err)
			}
		}
		ref := &taskRef{def: def, node: node, task: tk}
		h.tasks[def.Name] = ref
		h.order = append(h.order, ref)
	}

	for _, def := range h.scenario.Objects {
		node := h.cluster.Node(nodeOf(def.Node))
		if node == nil {
			return fmt.Errorf("object %s: no node %d", def.Name, nodeOf(def.Node))
		}
		ref := &objectRef{def: def, node: node}
		if err := h.create(ref); err != nil {
			return fmt.Errorf("create %s %s: %w", def.Kind, def.Name, err)
		}
		h.objects[def.Name] = ref
	}
	return h.settle()
}

func (h *Harness) create(ref *objectRef) error {
	def := ref.def
	switch def.Kind {
	case KindSemaphore:
		attrs, status := semaphore.ParseAttributes(def.Attributes)
		if status != ir.StatusSuccessful {
			return status
		}
		var creator *threadq.Thread
		if def.Creator != "" {
			creator = h.tasks[def.Creator].task.Thread()
		}
		id, err := ref.node.Semaphores.Create(creator, ir.MustName(def.Name), def.Count, attrs, ir.Priority(def.Ceiling))
		if err != nil {
			return err
		}
		ref.id = id

	case KindPOSIXSemaphore:
		s, err := ref.node.POSIX.SemOpen(posixName(def.Name), posix.O_CREAT|posix.O_EXCL, 0o600, def.Count)
		if err != nil {
			return err
		}
		ref.sem = s
		ref.id = s.ID

	case KindMessageQueue:
		var attr *posix.MQAttr
		if def.MaxMsg > 0 || def.MsgSize > 0 {
			attr = &posix.MQAttr{MaxMsg: posix.DefaultMaxMsg, MsgSize: posix.DefaultMsgSize}
			if def.MaxMsg > 0 {
				attr.MaxMsg = def.MaxMsg
			}
			if def.MsgSize > 0 {
				attr.MsgSize = def.MsgSize
			}
		}
		mqd, err := ref.node.POSIX.MqOpen(posixName(def.Name), posix.O_CREAT|posix.O_EXCL|posix.O_RDWR, 0o600, attr)
		if err != nil {
			return err
		}
		ref.mqd = mqd
	}
	return nil
}

// execute runs one step and records its outcome.
func (h *Harness) execute(i int, step Step) error {
	ev := TraceEvent{Step: i + 1, Do: step.Do, Task: step.Task, Object: step.Object}
	key := primaryValue[step.Do]

	switch step.Do {
	case OpTick:
		fired := 0
		if step.Node == 0 {
			fired = h.cluster.Advance(uint64(step.Ticks))
		} else {
			node := h.cluster.Node(step.Node)
			if node == nil {
				return fmt.Errorf("no node %d", step.Node)
			}
			fired = node.Clock.Advance(uint64(step.Ticks))
		}
		if err := h.settle(); err != nil {
			return err
		}
		ev.Status = statusName(nil)
		ev.Values = map[string]any{"fired": int64(fired)}

	case OpAwait:
		ref := h.tasks[step.Task]
		c := ref.call
		if c == nil {
			h.result.AddError(fmt.Sprintf("step %d: await %s: no directive in flight", i+1, step.Task))
			return nil
		}
		if err := h.settle(); err != nil {
			return err
		}
		key = primaryValue[c.do]
		if !c.finished {
			ev.Status = Blocked
			break
		}
		ref.call = nil
		ev.Status = statusName(c.outcome.err)
		ev.Values = c.outcome.values

	case OpCheck:
		ev.Status = statusName(nil)
		ev.Values = h.check(step)
		if ref, ok := h.tasks[step.Task]; ok && ref.call != nil && !ref.call.finished {
			ev.Status = Blocked
		}

	case OpFlush, OpDelete:
		obj := h.objects[step.Object]
		var err error
		if step.Do == OpFlush {
			err = obj.node.Semaphores.Flush(obj.id)
		} else if err = obj.node.Semaphores.Delete(obj.id); err == nil {
			obj.deleted = true
		}
		if err := h.settle(); err != nil {
			return err
		}
		ev.Status = statusName(err)

	default:
		ref := h.tasks[step.Task]
		if ref.call != nil {
			h.result.AddError(fmt.Sprintf("step %d: %s has not awaited its directive from step %d", i+1, step.Task, ref.call.step))
			return nil
		}
		c, err := h.start(ref, i+1, step.Do, h.directive(ref, step))
		if err != nil {
			return err
		}
		if c.finished {
			ref.call = nil
			ev.Status = statusName(c.outcome.err)
			ev.Values = c.outcome.values
		} else {
			ev.Status = Blocked
		}
	}

	h.result.Trace = append(h.result.Trace, ev)
	h.expect(step, ev, key)
	return nil
}

// directive binds a step to the manager call it runs.
func (h *Harness) directive(ref *taskRef, step Step) func() outcome {
	th := ref.task.Thread()
	node := ref.node
	obj := h.objects[step.Object]
	var target ir.ObjectID
	if t, ok := h.tasks[step.Target]; ok {
		target = t.task.ID()
	}
	timeout := ir.Interval(step.Timeout)

	switch step.Do {
	case OpObtain:
		option := ir.Wait
		if step.NoWait {
			option = ir.NoWait
		}
		return func() outcome {
			return outcome{err: node.Semaphores.Obtain(th, obj.id, option, timeout)}
		}
	case OpRelease:
		return func() outcome {
			return outcome{err: node.Semaphores.Release(th, obj.id)}
		}
	case OpSetPriority:
		return func() outcome {
			old, err := node.Tasks.SetPriority(th, target, ir.Priority(step.Priority))
			if err != nil {
				return outcome{err: err}
			}
			return outcome{values: map[string]any{"old": int64(old)}}
		}
	case OpSuspend:
		return func() outcome {
			return outcome{err: node.Tasks.Suspend(th, target)}
		}
	case OpResume:
		return func() outcome {
			return outcome{err: node.Tasks.Resume(th, target)}
		}
	case OpSignal:
		return func() outcome {
			return outcome{err: node.Tasks.SignalSend(th, target, ir.SignalSet(step.Set))}
		}
	case OpProcessSignals:
		return func() outcome {
			set, err := node.Tasks.ProcessSignals(ref.task.ID())
			if err != nil {
				return outcome{err: err}
			}
			return outcome{values: map[string]any{"set": int64(set)}}
		}
	case OpSemWait:
		return func() outcome {
			switch {
			case step.NoWait:
				return outcome{err: node.POSIX.SemTryWait(th, obj.sem)}
			case step.Timeout > 0:
				return outcome{err: node.POSIX.SemTimedWait(th, obj.sem, timeout)}
			default:
				return outcome{err: node.POSIX.SemWait(th, obj.sem)}
			}
		}
	case OpSemTryWait:
		return func() outcome {
			return outcome{err: node.POSIX.SemTryWait(th, obj.sem)}
		}
	case OpSemPost:
		return func() outcome {
			return outcome{err: node.POSIX.SemPost(th, obj.sem)}
		}
	case OpSemGetValue:
		return func() outcome {
			v, err := node.POSIX.SemGetValue(obj.sem)
			if err != nil {
				return outcome{err: err}
			}
			return outcome{values: map[string]any{"value": int64(v)}}
		}
	case OpMqSend:
		msg := []byte(step.Data)
		prio := uint32(step.Priority)
		return func() outcome {
			if step.Timeout > 0 {
				return outcome{err: node.POSIX.MqTimedSend(th, obj.mqd, msg, prio, timeout)}
			}
			return outcome{err: node.POSIX.MqSend(th, obj.mqd, msg, prio)}
		}
	case OpMqReceive:
		return func() outcome {
			attr, err := node.POSIX.MqGetAttr(obj.mqd)
			if err != nil {
				return outcome{err: err}
			}
			buf := make([]byte, attr.MsgSize)
			var n int
			var prio uint32
			if step.Timeout > 0 {
				n, prio, err = node.POSIX.MqTimedReceive(th, obj.mqd, buf, timeout)
			} else {
				n, prio, err = node.POSIX.MqReceive(th, obj.mqd, buf)
			}
			if err != nil {
				return outcome{err: err}
			}
			return outcome{values: map[string]any{"data": string(buf[:n]), "priority": int64(prio)}}
		}
	}
	panic(fmt.Sprintf("harness: no directive for %q", step.Do))
}

// start runs fn for ref and drives the cluster until fn has returned or
// its task is parked with nothing else in flight.
func (h *Harness) start(ref *taskRef, step int, do string, fn func() outcome) (*call, error) {
	c := &call{
		step:   step,
		do:     do,
		done:   make(chan outcome, 1),
		queued: make(chan struct{}, 1),
	}
	th := ref.task.Thread()
	th.Wait.Queued = func() {
		select {
		case c.queued <- struct{}{}:
		default:
		}
	}
	ref.call = c
	go func() { c.done <- fn() }()

	deadline := time.Now().Add(settleTimeout)
	for !c.finished && !(c.parked && h.quiet()) {
		h.poll()
		select {
		case o := <-c.done:
			h.finish(ref, o)
			continue
		default:
		}
		select {
		case <-c.queued:
			c.parked = true
		default:
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: directive neither returned nor blocked within %s", ref.def.Name, settleTimeout)
		}
		time.Sleep(50 * time.Microsecond)
	}
	return c, h.settle()
}

// settle drives the cluster until nothing is in flight: every inbox is
// drained, every proxy is parked or answered, and every directive that was
// woken has returned. Woken directives are collected in task order.
func (h *Harness) settle() error {
	deadline := time.Now().Add(settleTimeout)
	for {
		progress := h.poll() > 0
		for _, ref := range h.order {
			c := ref.call
			if c == nil || c.finished {
				continue
			}
			if !c.parked {
				select {
				case <-c.queued:
					c.parked = true
				case o := <-c.done:
					h.finish(ref, o)
				default:
				}
				progress = true
				continue
			}
			if ref.task.Thread().IsBlocked() {
				continue
			}
			select {
			case o := <-c.done:
				h.finish(ref, o)
			case <-time.After(settleTimeout):
				return fmt.Errorf("%s woke but its directive did not return", ref.def.Name)
			}
			progress = true
		}
		if !progress && h.quiet() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("cluster did not settle within %s", settleTimeout)
		}
		time.Sleep(50 * time.Microsecond)
	}
}

func (h *Harness) finish(ref *taskRef, o outcome) {
	c := ref.call
	c.finished = true
	c.outcome = o
	h.result.Completions = append(h.result.Completions, ref.def.Name)
}

// poll hands every queued frame to its node's receive path.
func (h *Harness) poll() int {
	n := 0
	for _, node := range h.cluster.Nodes() {
		if node.MPCI != nil {
			n += node.MPCI.Poll()
		}
	}
	return n
}

// quiet reports whether no frame and no proxy is in flight.
func (h *Harness) quiet() bool {
	for _, node := range h.cluster.Nodes() {
		if node.MPCI != nil && !node.MPCI.Settled() {
			return false
		}
	}
	return true
}

// check observes a task or an object without running a directive.
func (h *Harness) check(step Step) map[string]any {
	values := map[string]any{}
	if ref, ok := h.tasks[step.Task]; ok {
		th := ref.task.Thread()
		values["current"] = int64(th.CurrentPriority())
		values["real"] = int64(th.RealPriority())
	}
	if obj, ok := h.objects[step.Object]; ok {
		for k, v := range h.objectState(obj) {
			values[k] = v
		}
	}
	return values
}

func (h *Harness) objectState(obj *objectRef) map[string]any {
	if obj.deleted {
		return map[string]any{"deleted": true}
	}
	switch obj.def.Kind {
	case KindSemaphore:
		ctrl, err := obj.node.Semaphores.Control(obj.id)
		if err != nil {
			return map[string]any{"error": statusName(err)}
		}
		return map[string]any{"count": int64(ctrl.Count()), "waiters": int64(ctrl.Waiters())}
	case KindPOSIXSemaphore:
		v, err := obj.node.POSIX.SemGetValue(obj.sem)
		if err != nil {
			return map[string]any{"error": statusName(err)}
		}
		return map[string]any{"count": int64(v)}
	case KindMessageQueue:
		attr, err := obj.node.POSIX.MqGetAttr(obj.mqd)
		if err != nil {
			return map[string]any{"error": statusName(err)}
		}
		return map[string]any{"count": int64(attr.CurMsgs)}
	}
	return nil
}

// snapshot records the final task and object state.
func (h *Harness) snapshot() {
	for _, ref := range h.order {
		th := ref.task.Thread()
		h.result.Tasks[ref.def.Name] = TaskState{
			Current: int64(th.CurrentPriority()),
			Real:    int64(th.RealPriority()),
			Blocked: ref.call != nil && !ref.call.finished,
		}
	}
	for name, obj := range h.objects {
		if obj.deleted {
			continue
		}
		state := h.objectState(obj)
		count, _ := state["count"].(int64)
		waiters, _ := state["waiters"].(int64)
		h.result.Objects[name] = ObjectState{Kind: obj.def.Kind, Count: count, Waiters: waiters}
	}
}

// release wakes every directive still blocked so no goroutine outlives the
// run.
func (h *Harness) release() {
	for _, ref := range h.order {
		c := ref.call
		if c == nil || c.finished {
			continue
		}
		threadq.ExtractThread(ref.task.Thread(), ir.StatusObjectWasDeleted)
		h.poll()
		select {
		case o := <-c.done:
			c.finished = true
			c.outcome = o
		case <-time.After(time.Second):
			h.logger.Warn("directive still blocked after the run", "task", ref.def.Name)
		}
	}
}

// primaryValue names the value expect_value compares for each operation.
var primaryValue = map[string]string{
	OpSetPriority:    "old",
	OpProcessSignals: "set",
	OpSemGetValue:    "value",
	OpMqReceive:      "priority",
	OpCheck:          "count",
	OpTick:           "fired",
}

// expect compares a step outcome with the step's expectations. key names
// the value expect_value compares.
func (h *Harness) expect(step Step, ev TraceEvent, key string) {
	fail := func(format string, args ...any) {
		prefix := fmt.Sprintf("step %d (%s %s): ", ev.Step, strings.TrimSpace(step.Task), step.Do)
		h.result.AddError(prefix + fmt.Sprintf(format, args...))
	}
	if step.Expect != "" && ev.Status != step.Expect {
		fail("expected %s, got %s", step.Expect, ev.Status)
	}

	checks := []struct {
		name string
		key  string
		want *int
	}{
		{"expect_value", key, step.ExpectValue},
		{"expect_priority", "current", step.ExpectPriority},
		{"expect_real", "real", step.ExpectReal},
		{"expect_waiters", "waiters", step.ExpectWaiters},
	}
	for _, c := range checks {
		if c.want == nil {
			continue
		}
		got, ok := ev.Values[c.key].(int64)
		if c.key == "" || !ok {
			fail("%s: no %q value", c.name, c.key)
			continue
		}
		if got != int64(*c.want) {
			fail("%s: expected %d, got %d", c.name, *c.want, got)
		}
	}
	if step.ExpectData != nil {
		got, ok := ev.Values["data"].(string)
		if !ok {
			fail("expect_data: no data")
		} else if got != *step.ExpectData {
			fail("expect_data: expected %q, got %q", *step.ExpectData, got)
		}
	}
}

// statusName names the outcome of a directive: SUCCESSFUL, a directive
// status, or an errno for POSIX calls.
func statusName(err error) string {
	if err == nil {
		return ir.StatusSuccessful.String()
	}
	var errno posix.Errno
	if errors.As(err, &errno) {
		return errno.Error()
	}
	return ir.StatusOf(err).String()
}

// posixName turns a scenario object name into a POSIX object name.
func posixName(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}
