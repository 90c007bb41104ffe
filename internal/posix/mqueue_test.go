package posix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synccore/internal/watchdog"
)

func TestMqOpen(t *testing.T) {
	m := NewManager(Config{MaximumMessageQueues: 1})

	d, err := m.MqOpen("/q", O_RDWR, 0, nil)
	assert.Equal(t, MQD(-1), d)
	assert.ErrorIs(t, err, ENOENT)

	_, err = m.MqOpen("/q", O_RDWR|O_CREAT, 0, &MQAttr{MaxMsg: 0, MsgSize: 8})
	assert.ErrorIs(t, err, EINVAL)

	d, err = m.MqOpen("/q", O_RDWR|O_CREAT, 0, nil)
	require.NoError(t, err)
	attr, err := m.MqGetAttr(d)
	require.NoError(t, err)
	assert.Equal(t, MQAttr{MaxMsg: DefaultMaxMsg, MsgSize: DefaultMsgSize}, attr)

	_, err = m.MqOpen("/q", O_RDWR|O_CREAT|O_EXCL, 0, nil)
	assert.ErrorIs(t, err, EEXIST)

	d2, err := m.MqOpen("/q", O_RDONLY, 0, nil)
	require.NoError(t, err)
	assert.NotEqual(t, d, d2)

	_, err = m.MqOpen("/r", O_RDWR|O_CREAT, 0, nil)
	assert.ErrorIs(t, err, ENFILE)
}

func TestMq_PriorityOrder(t *testing.T) {
	m := NewManager(Config{MaximumMessageQueues: 1})
	th := newThread(1, 10)

	d, err := m.MqOpen("/q", O_RDWR|O_CREAT, 0, &MQAttr{MaxMsg: 4, MsgSize: 8})
	require.NoError(t, err)

	for _, p := range []uint32{3, 7, 1} {
		require.NoError(t, m.MqSend(th, d, []byte{byte(p)}, p))
	}

	buf := make([]byte, 8)
	var got []uint32
	for i := 0; i < 3; i++ {
		n, prio, err := m.MqReceive(th, d, buf)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		assert.Equal(t, byte(prio), buf[0])
		got = append(got, prio)
	}
	assert.Equal(t, []uint32{7, 3, 1}, got)
}

func TestMqReceive_CheckOrder(t *testing.T) {
	m := NewManager(Config{MaximumMessageQueues: 1})
	th := newThread(1, 10)

	_, _, err := m.MqReceive(th, 42, make([]byte, 1))
	assert.ErrorIs(t, err, EBADF, "unknown descriptor")

	w, err := m.MqOpen("/q", O_WRONLY|O_CREAT, 0, &MQAttr{MaxMsg: 2, MsgSize: 8})
	require.NoError(t, err)
	_, _, err = m.MqReceive(th, w, make([]byte, 1))
	assert.ErrorIs(t, err, EBADF, "write-only descriptor wins over the short buffer")

	r, err := m.MqOpen("/q", O_RDONLY|O_NONBLOCK, 0, nil)
	require.NoError(t, err)
	n, _, err := m.MqReceive(th, r, make([]byte, 4))
	assert.Equal(t, -1, n)
	assert.ErrorIs(t, err, EMSGSIZE)

	_, _, err = m.MqReceive(th, r, make([]byte, 8))
	assert.ErrorIs(t, err, EAGAIN)

	assert.ErrorIs(t, m.MqSend(th, r, []byte{1}, 0), EBADF, "read-only descriptor")
	assert.ErrorIs(t, m.MqSend(th, w, make([]byte, 9), 0), EMSGSIZE)
	assert.ErrorIs(t, m.MqSend(th, w, []byte{1}, MQPrioMax), EINVAL)
}

func TestMq_BlockingReceive(t *testing.T) {
	m := NewManager(Config{MaximumMessageQueues: 1})
	rx, tx := newThread(1, 10), newThread(2, 10)

	d, err := m.MqOpen("/q", O_RDWR|O_CREAT, 0, &MQAttr{MaxMsg: 1, MsgSize: 4})
	require.NoError(t, err)

	type result struct {
		n    int
		prio uint32
		err  error
	}
	done := make(chan result, 1)
	buf := make([]byte, 4)
	go func() {
		n, prio, err := m.MqReceive(rx, d, buf)
		done <- result{n, prio, err}
	}()
	require.Eventually(t, rx.IsBlocked, time.Second, time.Millisecond)

	require.NoError(t, m.MqSend(tx, d, []byte("hi"), 5))
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, 2, r.n)
	assert.Equal(t, uint32(5), r.prio)
	assert.Equal(t, "hi", string(buf[:r.n]))
}

func TestMq_TimedOperations(t *testing.T) {
	clock := watchdog.New()
	m := NewManager(Config{MaximumMessageQueues: 1, Clock: clock})
	th := newThread(1, 10)

	d, err := m.MqOpen("/q", O_RDWR|O_CREAT, 0, &MQAttr{MaxMsg: 1, MsgSize: 4})
	require.NoError(t, err)

	_, _, err = m.MqTimedReceive(th, d, make([]byte, 4), 0)
	assert.ErrorIs(t, err, ETIMEDOUT)

	require.NoError(t, m.MqSend(th, d, []byte{1}, 0))

	done := make(chan error, 1)
	go func() { done <- m.MqTimedSend(th, d, []byte{2}, 0, 3) }()
	require.Eventually(t, th.IsBlocked, time.Second, time.Millisecond)
	clock.Advance(3)
	assert.ErrorIs(t, <-done, ETIMEDOUT)
}

func TestMq_SetAttrOnlyChangesNonblock(t *testing.T) {
	m := NewManager(Config{MaximumMessageQueues: 1})
	th := newThread(1, 10)

	d, err := m.MqOpen("/q", O_RDWR|O_CREAT, 0, &MQAttr{MaxMsg: 2, MsgSize: 4})
	require.NoError(t, err)

	old, err := m.MqSetAttr(d, MQAttr{Flags: O_NONBLOCK, MaxMsg: 99, MsgSize: 99})
	require.NoError(t, err)
	assert.Equal(t, 0, old.Flags)

	attr, err := m.MqGetAttr(d)
	require.NoError(t, err)
	assert.Equal(t, MQAttr{Flags: O_NONBLOCK, MaxMsg: 2, MsgSize: 4}, attr)

	_, _, err = m.MqReceive(th, d, make([]byte, 4))
	assert.ErrorIs(t, err, EAGAIN)

	_, err = m.MqSetAttr(77, MQAttr{})
	assert.ErrorIs(t, err, EBADF)
}

func TestMq_CloseUnlink(t *testing.T) {
	m := NewManager(Config{MaximumMessageQueues: 1})
	rx := newThread(1, 10)

	d, err := m.MqOpen("/q", O_RDWR|O_CREAT, 0, &MQAttr{MaxMsg: 1, MsgSize: 4})
	require.NoError(t, err)
	d2, err := m.MqOpen("/q", O_RDONLY, 0, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := m.MqReceive(rx, d2, make([]byte, 4))
		done <- err
	}()
	require.Eventually(t, rx.IsBlocked, time.Second, time.Millisecond)

	require.NoError(t, m.MqUnlink("/q"))
	require.NoError(t, m.MqClose(d))
	assert.True(t, rx.IsBlocked(), "one descriptor still open")

	require.NoError(t, m.MqClose(d2))
	assert.ErrorIs(t, <-done, EBADF)
	assert.ErrorIs(t, m.MqClose(d2), EBADF)

	_, err = m.MqOpen("/q", O_RDWR, 0, nil)
	assert.ErrorIs(t, err, ENOENT)
}
