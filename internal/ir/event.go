package ir

// Event kinds recorded by the managers.
const (
	EventCreate      = "create"
	EventDelete      = "delete"
	EventObtain      = "obtain"
	EventRelease     = "release"
	EventFlush       = "flush"
	EventSetPriority = "set_priority"
	EventSuspend     = "suspend"
	EventResume      = "resume"
	EventSignal      = "signal"
	EventSend        = "send"
	EventReceive     = "receive"
	EventOpen        = "open"
	EventClose       = "close"
	EventUnlink      = "unlink"
)

// Event is one directive outcome, as recorded in the journal.
type Event struct {
	Kind   string
	Node   uint32
	Object ObjectID
	Thread ObjectID
	Status Status
	Detail map[string]any
}

// Recorder receives events. Implementations must be safe for concurrent
// use; managers call Record after the object lock is released.
type Recorder interface {
	Record(Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Event)

// Record calls f(e).
func (f RecorderFunc) Record(e Event) {
	f(e)
}
