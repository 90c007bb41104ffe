package semaphore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
	"github.com/roach88/synccore/internal/watchdog"
)

func newThread(index uint32, prio ir.Priority) *threadq.Thread {
	return threadq.NewThread(ir.BuildID(ir.APIClassic, ir.ClassTasks, 1, index), 0, prio, 0)
}

func obtainAsync(t *testing.T, m *Manager, th *threadq.Thread, id ir.ObjectID, timeout ir.Interval) <-chan error {
	t.Helper()
	ch := make(chan error, 1)
	go func() { ch <- m.Obtain(th, id, ir.Wait, timeout) }()
	require.Eventually(t, th.IsBlocked, time.Second, time.Millisecond)
	return ch
}

func wait(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("thread was not woken")
		return nil
	}
}

func TestCreate_Validation(t *testing.T) {
	m := NewManager(Config{Maximum: 1})
	owner := newThread(1, 10)

	_, err := m.Create(owner, 0, 1, Counting, 0)
	assert.ErrorIs(t, err, ir.StatusInvalidName)

	_, err = m.Create(owner, ir.MustName("S"), 1, Binary|Inherit, 0)
	assert.ErrorIs(t, err, ir.StatusNotDefined)

	_, err = m.Create(owner, ir.MustName("S"), 2, Binary, 0)
	assert.ErrorIs(t, err, ir.StatusInvalidNumber)

	_, err = m.Create(owner, ir.MustName("S"), 1, Binary|Priority|Ceiling, 0)
	assert.ErrorIs(t, err, ir.StatusInvalidPriority)

	_, err = m.Create(nil, ir.MustName("S"), 0, Binary, 0)
	assert.ErrorIs(t, err, ir.StatusInvalidAddress)

	_, err = m.Create(owner, ir.MustName("S"), 5, Counting, 0)
	require.NoError(t, err)
	_, err = m.Create(owner, ir.MustName("S2"), 5, Counting, 0)
	assert.ErrorIs(t, err, ir.StatusTooMany)
}

func TestObtainRelease_Counting(t *testing.T) {
	m := NewManager(Config{Maximum: 4})
	th := newThread(1, 10)

	id, err := m.Create(th, ir.MustName("CNT"), 1, Counting|Priority, 0)
	require.NoError(t, err)

	require.NoError(t, m.Obtain(th, id, ir.NoWait, 0))
	assert.ErrorIs(t, m.Obtain(th, id, ir.NoWait, 0), ir.StatusUnsatisfied)
	require.NoError(t, m.Release(th, id))

	_, err = m.Ident(ir.MustName("CNT"), ir.SearchLocalNode)
	assert.NoError(t, err)
	assert.ErrorIs(t, m.Obtain(th, ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 1, 3), ir.NoWait, 0), ir.StatusInvalidID)
}

func TestObtain_PriorityOrder(t *testing.T) {
	m := NewManager(Config{Maximum: 4})
	t1 := newThread(1, 20)
	t2 := newThread(2, 5)
	holder := newThread(3, 10)

	id, err := m.Create(holder, ir.MustName("ORD"), 0, Counting|Priority, 0)
	require.NoError(t, err)

	c1 := obtainAsync(t, m, t1, id, ir.NoTimeout)
	c2 := obtainAsync(t, m, t2, id, ir.NoTimeout)

	require.NoError(t, m.Release(holder, id))
	assert.NoError(t, wait(t, c2), "the more urgent thread is woken first")
	assert.True(t, t1.IsBlocked())

	require.NoError(t, m.Release(holder, id))
	assert.NoError(t, wait(t, c1))
}

func TestObtain_Timeout(t *testing.T) {
	clock := watchdog.New()
	m := NewManager(Config{Maximum: 4, Clock: clock})
	th := newThread(1, 10)

	id, err := m.Create(th, ir.MustName("TMO"), 0, Counting, 0)
	require.NoError(t, err)

	ch := obtainAsync(t, m, th, id, 5)
	clock.Advance(4)
	assert.True(t, th.IsBlocked())
	clock.Advance(1)
	assert.ErrorIs(t, wait(t, ch), ir.StatusTimeout)
}

func TestInherit_OwnerRaised(t *testing.T) {
	m := NewManager(Config{Maximum: 4})
	owner := newThread(1, 20)
	waiter := newThread(2, 5)

	id, err := m.Create(owner, ir.MustName("MTX"), 1, Binary|Priority|Inherit, 0)
	require.NoError(t, err)
	require.NoError(t, m.Obtain(owner, id, ir.Wait, 0))

	ch := obtainAsync(t, m, waiter, id, ir.NoTimeout)
	assert.Equal(t, ir.Priority(5), owner.CurrentPriority())

	assert.ErrorIs(t, m.Release(waiter, id), ir.StatusNotOwnerOfResource)
	require.NoError(t, m.Release(owner, id))
	assert.NoError(t, wait(t, ch))
	assert.Equal(t, ir.Priority(20), owner.CurrentPriority())

	ctrl, err := m.Control(id)
	require.NoError(t, err)
	assert.Same(t, waiter, ctrl.Owner())
}

func TestCreate_BinaryOwnedByCreator(t *testing.T) {
	m := NewManager(Config{Maximum: 4})
	creator := newThread(1, 10)

	id, err := m.Create(creator, ir.MustName("OWN"), 0, Binary, 0)
	require.NoError(t, err)
	ctrl, _ := m.Control(id)
	assert.Same(t, creator, ctrl.Owner())

	assert.ErrorIs(t, m.Delete(id), ir.StatusResourceInUse)
	require.NoError(t, m.Release(creator, id))
	require.NoError(t, m.Delete(id))
}

func TestDelete_WakesWaiters(t *testing.T) {
	m := NewManager(Config{Maximum: 4})
	th := newThread(1, 10)

	id, err := m.Create(th, ir.MustName("DEL"), 0, Counting, 0)
	require.NoError(t, err)
	ch := obtainAsync(t, m, th, id, ir.NoTimeout)

	require.NoError(t, m.Delete(id))
	assert.ErrorIs(t, wait(t, ch), ir.StatusObjectWasDeleted)
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, m.Delete(id), ir.StatusInvalidID)
}

func TestFlush(t *testing.T) {
	m := NewManager(Config{Maximum: 4})
	a, b := newThread(1, 10), newThread(2, 10)

	id, err := m.Create(a, ir.MustName("FLS"), 0, SimpleBinary, 0)
	require.NoError(t, err)
	ca := obtainAsync(t, m, a, id, ir.NoTimeout)
	cb := obtainAsync(t, m, b, id, ir.NoTimeout)

	require.NoError(t, m.Flush(id))
	assert.ErrorIs(t, wait(t, ca), ir.StatusUnsatisfied)
	assert.ErrorIs(t, wait(t, cb), ir.StatusUnsatisfied)

	mtx, err := m.Create(a, ir.MustName("MTX"), 1, Binary|Priority|Inherit, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Flush(mtx), ir.StatusNotDefined)
}

func TestSetPriority_Ceiling(t *testing.T) {
	m := NewManager(Config{Maximum: 4, Processors: 2})
	th := newThread(1, 10)

	id, err := m.Create(th, ir.MustName("CEI"), 1, Binary|Priority|MultiprocessorCeiling, 8)
	require.NoError(t, err)

	old, err := m.SetPriority(id, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, ir.Priority(8), old)

	old, err = m.SetPriority(id, 1, ir.CurrentPriority)
	require.NoError(t, err)
	assert.Equal(t, ir.Priority(4), old)

	old, err = m.SetPriority(id, 0, ir.CurrentPriority)
	require.NoError(t, err)
	assert.Equal(t, ir.Priority(8), old)

	_, err = m.SetPriority(id, 2, 4)
	assert.ErrorIs(t, err, ir.StatusInvalidNumber)
	_, err = m.SetPriority(id, 0, 999)
	assert.ErrorIs(t, err, ir.StatusInvalidPriority)

	cnt, err := m.Create(th, ir.MustName("CNT"), 1, Counting, 0)
	require.NoError(t, err)
	_, err = m.SetPriority(cnt, 0, 4)
	assert.ErrorIs(t, err, ir.StatusNotDefined)
}

func TestCeiling_ViolationNotAllowed(t *testing.T) {
	m := NewManager(Config{Maximum: 4})
	creator := newThread(1, 3)
	lowly := newThread(2, 50)

	id, err := m.Create(creator, ir.MustName("PCP"), 1, Binary|Priority|Ceiling, 10)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Obtain(lowly, id, ir.Wait, 0), ir.StatusNotAllowed)
	assert.False(t, lowly.IsBlocked())

	require.NoError(t, m.Obtain(creator, id, ir.Wait, 0))
	assert.Equal(t, ir.Priority(3), creator.CurrentPriority())
}
