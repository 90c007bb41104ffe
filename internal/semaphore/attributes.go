package semaphore

import (
	"strings"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/sem"
	"github.com/roach88/synccore/internal/threadq"
)

// Attributes select the semaphore class, locking protocol, wait discipline
// and scope at creation.
type Attributes uint32

const (
	// Counting is the default class.
	Counting     Attributes = 0
	Binary       Attributes = 1 << 4
	SimpleBinary Attributes = 1 << 5

	// FIFO is the default wait discipline.
	FIFO     Attributes = 0
	Priority Attributes = 1 << 2

	// NoProtocol is the default locking protocol.
	NoProtocol            Attributes = 0
	Inherit               Attributes = 1 << 6
	Ceiling               Attributes = 1 << 7
	MultiprocessorCeiling Attributes = 1 << 8

	// Local is the default scope.
	Local  Attributes = 0
	Global Attributes = 1 << 1
)

const (
	classMask    = Binary | SimpleBinary
	protocolMask = Inherit | Ceiling | MultiprocessorCeiling
)

// IsGlobal reports whether the semaphore is announced to every node.
func (a Attributes) IsGlobal() bool {
	return a&Global != 0
}

// Discipline returns the wait discipline the attributes select.
func (a Attributes) Discipline() threadq.Discipline {
	if a&Priority != 0 {
		return threadq.Priority
	}
	return threadq.FIFO
}

// Variant maps the attributes to a variant core. Invalid combinations
// return ir.StatusNotDefined: a locking protocol on a counting or simple
// binary semaphore, more than one protocol, inheritance or a ceiling
// without priority waiting, and any protocol on a global semaphore.
func (a Attributes) Variant() (sem.Variant, ir.Status) {
	protocol := a & protocolMask
	if protocol != 0 && protocol&(protocol-1) != 0 {
		return 0, ir.StatusNotDefined
	}

	switch a & classMask {
	case Counting:
		if protocol != 0 {
			return 0, ir.StatusNotDefined
		}
		return sem.Counting, ir.StatusSuccessful
	case SimpleBinary:
		if protocol != 0 {
			return 0, ir.StatusNotDefined
		}
		return sem.SimpleBinary, ir.StatusSuccessful
	case Binary:
	default:
		return 0, ir.StatusNotDefined
	}

	if protocol != 0 && a.IsGlobal() {
		return 0, ir.StatusNotDefined
	}
	if protocol != 0 && a.Discipline() != threadq.Priority {
		return 0, ir.StatusNotDefined
	}
	switch protocol {
	case Inherit:
		return sem.MutexInherit, ir.StatusSuccessful
	case Ceiling:
		return sem.MutexCeiling, ir.StatusSuccessful
	case MultiprocessorCeiling:
		return sem.MrsP, ir.StatusSuccessful
	}
	return sem.MutexNoProtocol, ir.StatusSuccessful
}

var attributeNames = map[string]Attributes{
	"counting":               Counting,
	"binary":                 Binary,
	"simple_binary":          SimpleBinary,
	"fifo":                   FIFO,
	"priority":               Priority,
	"no_protocol":            NoProtocol,
	"inherit":                Inherit,
	"ceiling":                Ceiling,
	"multiprocessor_ceiling": MultiprocessorCeiling,
	"mrsp":                   MultiprocessorCeiling,
	"local":                  Local,
	"global":                 Global,
}

// ParseAttributes combines attribute names such as "binary", "priority",
// "inherit" or "global". Unknown names return ir.StatusNotDefined.
func ParseAttributes(names []string) (Attributes, ir.Status) {
	var a Attributes
	for _, n := range names {
		v, ok := attributeNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, ir.StatusNotDefined
		}
		a |= v
	}
	return a, ir.StatusSuccessful
}
