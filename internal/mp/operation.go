package mp

import "github.com/roach88/synccore/internal/ir"

// requestResponse pairs each request operation with its response.
var requestResponse = map[ir.PacketClass]map[ir.Operation]ir.Operation{
	ir.PacketTasks: {
		ir.OpTaskSuspendRequest:     ir.OpTaskSuspendResponse,
		ir.OpTaskResumeRequest:      ir.OpTaskResumeResponse,
		ir.OpTaskSetPriorityRequest: ir.OpTaskSetPriorityResponse,
	},
	ir.PacketSignal: {
		ir.OpSignalSendRequest: ir.OpSignalSendResponse,
	},
	ir.PacketSemaphores: {
		ir.OpSemaphoreObtainRequest:  ir.OpSemaphoreObtainResponse,
		ir.OpSemaphoreReleaseRequest: ir.OpSemaphoreReleaseResponse,
	},
}

func responseOf(class ir.PacketClass, op ir.Operation) (ir.Operation, bool) {
	r, ok := requestResponse[class][op]
	return r, ok
}

func isRequest(class ir.PacketClass, op ir.Operation) bool {
	_, ok := requestResponse[class][op]
	return ok
}

func isResponse(class ir.PacketClass, op ir.Operation) bool {
	for _, r := range requestResponse[class] {
		if r == op {
			return true
		}
	}
	return false
}

// OperationName returns a readable name for a class specific operation.
func OperationName(class ir.PacketClass, op ir.Operation) string {
	if n, ok := operationNames[class][op]; ok {
		return n
	}
	return "unknown"
}

var operationNames = map[ir.PacketClass]map[ir.Operation]string{
	ir.PacketTasks: {
		ir.OpTaskAnnounceCreate:      "announce_create",
		ir.OpTaskAnnounceDelete:      "announce_delete",
		ir.OpTaskSuspendRequest:      "suspend_request",
		ir.OpTaskSuspendResponse:     "suspend_response",
		ir.OpTaskResumeRequest:       "resume_request",
		ir.OpTaskResumeResponse:      "resume_response",
		ir.OpTaskSetPriorityRequest:  "set_priority_request",
		ir.OpTaskSetPriorityResponse: "set_priority_response",
	},
	ir.PacketSignal: {
		ir.OpSignalSendRequest:  "send_request",
		ir.OpSignalSendResponse: "send_response",
	},
	ir.PacketSemaphores: {
		ir.OpSemaphoreAnnounceCreate:  "announce_create",
		ir.OpSemaphoreAnnounceDelete:  "announce_delete",
		ir.OpSemaphoreExtractProxy:    "extract_proxy",
		ir.OpSemaphoreObtainRequest:   "obtain_request",
		ir.OpSemaphoreObtainResponse:  "obtain_response",
		ir.OpSemaphoreReleaseRequest:  "release_request",
		ir.OpSemaphoreReleaseResponse: "release_response",
	},
}
