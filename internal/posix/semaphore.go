package posix

import (
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/sem"
	"github.com/roach88/synccore/internal/threadq"
)

// Sem is an open named semaphore. A nil *Sem stands for SEM_FAILED.
type Sem struct {
	ID   ir.ObjectID
	Name string

	ctrl *sem.Control

	// Guarded by Manager.mu.
	openCount int
	linked    bool
}

// SemOpen opens or creates the semaphore called name. value is the
// initial count of a new semaphore; mode is accepted and ignored.
func (m *Manager) SemOpen(name string, oflag int, mode uint32, value uint32) (*Sem, error) {
	key, err := lookupName(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sems[key]; ok {
		if oflag&(O_CREAT|O_EXCL) == O_CREAT|O_EXCL {
			return nil, EEXIST
		}
		s.openCount++
		return s, nil
	}
	if oflag&O_CREAT == 0 {
		return nil, ENOENT
	}
	if value > SemValueMax {
		return nil, EINVAL
	}

	id, status := m.semTable.Reserve(0)
	if status != ir.StatusSuccessful {
		return nil, ENOSPC
	}
	ctrl, status := sem.New(id, 0, sem.Config{
		Variant:    sem.Counting,
		Discipline: threadq.Priority,
		Count:      value,
		Maximum:    SemValueMax,
		Clock:      m.cfg.Clock,
	})
	if status != ir.StatusSuccessful {
		m.semTable.Free(id)
		return nil, errnoOf(callWait, status)
	}
	s := &Sem{ID: id, Name: key, ctrl: ctrl, openCount: 1, linked: true}
	m.semTable.Install(id, s)
	m.sems[key] = s

	m.record(ir.Event{Kind: ir.EventOpen, Object: id, Detail: map[string]any{
		"name": key, "value": int64(value),
	}})
	return s, nil
}

// SemClose drops one open reference. An unlinked semaphore is destroyed
// with its last reference.
func (m *Manager) SemClose(s *Sem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.semLive(s) || s.openCount == 0 {
		return EINVAL
	}
	s.openCount--
	m.record(ir.Event{Kind: ir.EventClose, Object: s.ID})
	if s.openCount == 0 && !s.linked {
		m.destroySem(s)
	}
	return nil
}

// SemUnlink removes name. The semaphore lives on until its last close.
func (m *Manager) SemUnlink(name string) error {
	key, err := lookupName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sems[key]
	if !ok {
		return ENOENT
	}
	delete(m.sems, key)
	s.linked = false
	m.record(ir.Event{Kind: ir.EventUnlink, Object: s.ID})
	if s.openCount == 0 {
		m.destroySem(s)
	}
	return nil
}

// destroySem removes s from the table. m.mu is held.
func (m *Manager) destroySem(s *Sem) {
	m.semTable.Remove(s.ID)
	s.ctrl.Delete()
}

func (m *Manager) semLive(s *Sem) bool {
	if s == nil {
		return false
	}
	got, ok := m.semTable.Get(s.ID)
	return ok && got == s
}

// SemWait decrements the semaphore, blocking while it is zero.
func (m *Manager) SemWait(executing *threadq.Thread, s *Sem) error {
	return m.semSeize(executing, s, true, ir.NoTimeout)
}

// SemTryWait decrements the semaphore or fails with EAGAIN.
func (m *Manager) SemTryWait(executing *threadq.Thread, s *Sem) error {
	return m.semSeize(executing, s, false, 0)
}

// SemTimedWait is SemWait bounded by timeout ticks. A zero timeout only
// tries once and fails with ETIMEDOUT.
func (m *Manager) SemTimedWait(executing *threadq.Thread, s *Sem, timeout ir.Interval) error {
	if timeout == 0 {
		err := m.semSeize(executing, s, false, 0)
		if err == EAGAIN {
			return ETIMEDOUT
		}
		return err
	}
	return m.semSeize(executing, s, true, timeout)
}

func (m *Manager) semSeize(executing *threadq.Thread, s *Sem, wait bool, timeout ir.Interval) error {
	if executing == nil {
		return EINVAL
	}
	m.mu.Lock()
	live := m.semLive(s)
	m.mu.Unlock()
	if !live {
		return EINVAL
	}
	status := s.ctrl.Seize(executing, wait, timeout)
	m.record(ir.Event{Kind: ir.EventObtain, Object: s.ID, Thread: executing.ID, Status: status})
	return errnoOf(callWait, status)
}

// SemPost increments the semaphore or wakes its most urgent waiter.
func (m *Manager) SemPost(executing *threadq.Thread, s *Sem) error {
	m.mu.Lock()
	live := m.semLive(s)
	m.mu.Unlock()
	if !live {
		return EINVAL
	}
	status := s.ctrl.Surrender(executing)
	var tid ir.ObjectID
	if executing != nil {
		tid = executing.ID
	}
	m.record(ir.Event{Kind: ir.EventRelease, Object: s.ID, Thread: tid, Status: status})
	return errnoOf(callPost, status)
}

// SemGetValue returns the current count.
func (m *Manager) SemGetValue(s *Sem) (int, error) {
	m.mu.Lock()
	live := m.semLive(s)
	m.mu.Unlock()
	if !live {
		return -1, EINVAL
	}
	return int(s.ctrl.Count()), nil
}
