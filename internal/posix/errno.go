package posix

import (
	"errors"
	"fmt"

	"github.com/roach88/synccore/internal/ir"
)

// Errno is a POSIX error number. Values follow Linux.
type Errno int

const (
	EPERM        Errno = 1
	ENOENT       Errno = 2
	EINTR        Errno = 4
	EBADF        Errno = 9
	EAGAIN       Errno = 11
	ENOMEM       Errno = 12
	EACCES       Errno = 13
	EBUSY        Errno = 16
	EEXIST       Errno = 17
	EINVAL       Errno = 22
	ENFILE       Errno = 23
	ENOSPC       Errno = 28
	EDEADLK      Errno = 35
	ENAMETOOLONG Errno = 36
	ENOSYS       Errno = 38
	EOVERFLOW    Errno = 75
	EMSGSIZE     Errno = 90
	ETIMEDOUT    Errno = 110
)

var errnoNames = map[Errno]string{
	EPERM:        "EPERM",
	ENOENT:       "ENOENT",
	EINTR:        "EINTR",
	EBADF:        "EBADF",
	EAGAIN:       "EAGAIN",
	ENOMEM:       "ENOMEM",
	EACCES:       "EACCES",
	EBUSY:        "EBUSY",
	EEXIST:       "EEXIST",
	EINVAL:       "EINVAL",
	ENFILE:       "ENFILE",
	ENOSPC:       "ENOSPC",
	EDEADLK:      "EDEADLK",
	ENAMETOOLONG: "ENAMETOOLONG",
	ENOSYS:       "ENOSYS",
	EOVERFLOW:    "EOVERFLOW",
	EMSGSIZE:     "EMSGSIZE",
	ETIMEDOUT:    "ETIMEDOUT",
}

// Error implements the error interface.
func (e Errno) Error() string {
	if n, ok := errnoNames[e]; ok {
		return n
	}
	return fmt.Sprintf("errno %d", int(e))
}

// ParseErrno looks up an errno by name, e.g. "ETIMEDOUT".
func ParseErrno(name string) (Errno, bool) {
	for e, n := range errnoNames {
		if n == name {
			return e, true
		}
	}
	return 0, false
}

// ErrnoOf extracts the errno carried by err. A nil error is 0; an error
// without an errno is EINVAL.
func ErrnoOf(err error) Errno {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return EINVAL
}

// call identifies the directive a status comes from, for the few statuses
// whose errno depends on it.
type call int

const (
	callWait call = iota
	callPost
	callSend
	callReceive
)

// errnoOf translates a core status. It is the only place that does.
func errnoOf(c call, s ir.Status) error {
	switch s {
	case ir.StatusSuccessful:
		return nil
	case ir.StatusUnsatisfied:
		if c == callPost {
			return EOVERFLOW
		}
		return EAGAIN
	case ir.StatusTimeout:
		return ETIMEDOUT
	case ir.StatusInvalidSize:
		return EMSGSIZE
	case ir.StatusObjectWasDeleted, ir.StatusInvalidID:
		if c == callSend || c == callReceive {
			return EBADF
		}
		return EINVAL
	case ir.StatusTooMany:
		return ENOSPC
	case ir.StatusNoMemory:
		return ENOMEM
	case ir.StatusDeadlock:
		return EDEADLK
	case ir.StatusNotOwnerOfResource:
		return EPERM
	case ir.StatusResourceInUse:
		return EBUSY
	case ir.StatusProxyBlocking:
		return EINTR
	case ir.StatusNotImplemented:
		return ENOSYS
	}
	return EINVAL
}
