package ir

import (
	"errors"
	"fmt"
)

// Status is the result of a kernel directive.
//
// Status implements error so directives can return it directly:
// StatusSuccessful is never returned as an error (see Err), every other
// value is. Callers compare with errors.Is:
//
//	if errors.Is(err, ir.StatusTimeout) { ... }
type Status uint32

const (
	StatusSuccessful Status = iota
	StatusTaskExited
	StatusMPNotConfigured
	StatusInvalidName
	StatusInvalidID
	StatusTooMany
	StatusTimeout
	StatusObjectWasDeleted
	StatusInvalidSize
	StatusInvalidAddress
	StatusInvalidNumber
	StatusNotDefined
	StatusResourceInUse
	StatusUnsatisfied
	StatusIncorrectState
	StatusAlreadySuspended
	StatusIllegalOnSelf
	StatusIllegalOnRemoteObject
	StatusCalledFromISR
	StatusInvalidPriority
	StatusInvalidClock
	StatusInvalidNode
	StatusNotConfigured
	StatusNotOwnerOfResource
	StatusNotImplemented
	StatusInternalError
	StatusNoMemory
	StatusIOError
	StatusProxyBlocking
	StatusNotAllowed
	StatusDeadlock

	statusCount
)

var statusNames = [...]string{
	StatusSuccessful:            "SUCCESSFUL",
	StatusTaskExited:            "TASK_EXITTED",
	StatusMPNotConfigured:       "MP_NOT_CONFIGURED",
	StatusInvalidName:           "INVALID_NAME",
	StatusInvalidID:             "INVALID_ID",
	StatusTooMany:               "TOO_MANY",
	StatusTimeout:               "TIMEOUT",
	StatusObjectWasDeleted:      "OBJECT_WAS_DELETED",
	StatusInvalidSize:           "INVALID_SIZE",
	StatusInvalidAddress:        "INVALID_ADDRESS",
	StatusInvalidNumber:         "INVALID_NUMBER",
	StatusNotDefined:            "NOT_DEFINED",
	StatusResourceInUse:         "RESOURCE_IN_USE",
	StatusUnsatisfied:           "UNSATISFIED",
	StatusIncorrectState:        "INCORRECT_STATE",
	StatusAlreadySuspended:      "ALREADY_SUSPENDED",
	StatusIllegalOnSelf:         "ILLEGAL_ON_SELF",
	StatusIllegalOnRemoteObject: "ILLEGAL_ON_REMOTE_OBJECT",
	StatusCalledFromISR:         "CALLED_FROM_ISR",
	StatusInvalidPriority:       "INVALID_PRIORITY",
	StatusInvalidClock:          "INVALID_CLOCK",
	StatusInvalidNode:           "INVALID_NODE",
	StatusNotConfigured:         "NOT_CONFIGURED",
	StatusNotOwnerOfResource:    "NOT_OWNER_OF_RESOURCE",
	StatusNotImplemented:        "NOT_IMPLEMENTED",
	StatusInternalError:         "INTERNAL_ERROR",
	StatusNoMemory:              "NO_MEMORY",
	StatusIOError:               "IO_ERROR",
	StatusProxyBlocking:         "PROXY_BLOCKING",
	StatusNotAllowed:            "NOT_ALLOWED",
	StatusDeadlock:              "DEADLOCK",
}

// String returns the directive status name, e.g. "TIMEOUT".
func (s Status) String() string {
	if s < statusCount {
		return statusNames[s]
	}
	return fmt.Sprintf("STATUS_%d", uint32(s))
}

// Error implements the error interface.
func (s Status) Error() string {
	return s.String()
}

// Err converts a status into an error value, mapping success to nil.
func (s Status) Err() error {
	if s == StatusSuccessful {
		return nil
	}
	return s
}

// Valid reports whether s is a known status code. Used when decoding
// return codes from the wire.
func (s Status) Valid() bool {
	return s < statusCount
}

// StatusOf recovers the status carried by err.
// A nil error is StatusSuccessful; an error without a Status is
// StatusInternalError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccessful
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusInternalError
}

// ParseStatus looks up a status by name. Used by scenario files.
func ParseStatus(name string) (Status, bool) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), true
		}
	}
	return 0, false
}
