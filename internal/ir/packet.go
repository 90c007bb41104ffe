package ir

// PacketClass selects the processor a packet is routed to on arrival.
type PacketClass uint32

const (
	PacketMPCIInternal  PacketClass = 0
	PacketTasks         PacketClass = 1
	PacketMessageQueues PacketClass = 2
	PacketSemaphores    PacketClass = 3
	PacketSignal        PacketClass = 7
)

func (c PacketClass) String() string {
	switch c {
	case PacketMPCIInternal:
		return "mpci"
	case PacketTasks:
		return "tasks"
	case PacketMessageQueues:
		return "message_queues"
	case PacketSemaphores:
		return "semaphores"
	case PacketSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// Operation is a class specific packet operation tag.
type Operation uint32

// Task packet operations.
const (
	OpTaskAnnounceCreate Operation = iota
	OpTaskAnnounceDelete
	OpTaskSuspendRequest
	OpTaskSuspendResponse
	OpTaskResumeRequest
	OpTaskResumeResponse
	OpTaskSetPriorityRequest
	OpTaskSetPriorityResponse
)

// Signal packet operations.
const (
	OpSignalSendRequest Operation = iota
	OpSignalSendResponse
)

// Semaphore packet operations.
const (
	OpSemaphoreAnnounceCreate Operation = iota
	OpSemaphoreAnnounceDelete
	OpSemaphoreExtractProxy
	OpSemaphoreObtainRequest
	OpSemaphoreObtainResponse
	OpSemaphoreReleaseRequest
	OpSemaphoreReleaseResponse
)

// Packet is one MP record. The same value carries a request out and its
// response back: the responder overwrites ReturnCode and the output
// fields, switches Operation to the response tag and sets ID to
// SourceTID.
type Packet struct {
	Class          PacketClass
	Length         uint32
	ToConvert      uint32
	ID             ObjectID
	SourceTID      ObjectID
	SourcePriority Priority
	ReturnCode     Status
	Timeout        Interval

	Operation Operation
	Name      Name
	Priority  Priority
	SignalSet SignalSet
	Option    Option
	Count     uint32
}

// Reset clears every field. Called when a packet returns to its pool.
func (p *Packet) Reset() {
	*p = Packet{}
}
