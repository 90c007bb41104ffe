package task

import (
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
)

// SignalCatch installs the signal handler of a local task. A nil handler
// discards pending signals and makes further sends fail with
// ir.StatusNotDefined.
func (m *Manager) SignalCatch(executing *threadq.Thread, id ir.ObjectID, handler SignalHandler) error {
	id = self(executing, id)
	if m.remote(id) {
		return ir.StatusIllegalOnRemoteObject
	}
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	t.catch(handler)
	return nil
}

// SignalSend posts set to a task. The signals are delivered when the task
// calls ProcessSignals.
func (m *Manager) SignalSend(executing *threadq.Thread, id ir.ObjectID, set ir.SignalSet) error {
	if set == 0 {
		return ir.StatusInvalidNumber
	}
	id = self(executing, id)
	if m.remote(id) {
		return m.sendSignal(executing, id, set)
	}
	status := m.signalSend(id, set)
	m.record(ir.Event{Kind: ir.EventSignal, Object: id, Thread: threadID(executing), Status: status,
		Detail: map[string]any{"set": int64(set)}})
	return status.Err()
}

func (m *Manager) signalSend(id ir.ObjectID, set ir.SignalSet) ir.Status {
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	return t.post(set)
}

// ProcessSignals runs the handler of a local task with every pending
// signal and returns the set it delivered. Called by the task itself.
func (m *Manager) ProcessSignals(id ir.ObjectID) (ir.SignalSet, error) {
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return 0, status
	}
	set, h := t.take()
	if set != 0 && h != nil {
		h(set)
	}
	return set, nil
}
