package ir

import "fmt"

// ObjectID identifies a kernel object across the cluster.
//
// Layout (32 bits):
//
//	31..27 class | 26..24 api | 23..16 node | 15..0 index
//
// The node field routes remote operations; index 0 is never allocated.
type ObjectID uint32

// API identifies the interface family that owns an object class.
type API uint32

const (
	APIInternal API = 1
	APIClassic  API = 2
	APIPOSIX    API = 3
)

// Class identifies an object class within an API.
type Class uint32

// Classic API classes.
const (
	ClassTasks         Class = 1
	ClassSemaphores    Class = 3
	ClassMessageQueues Class = 4
)

// POSIX API classes.
const (
	ClassPOSIXSemaphores    Class = 7
	ClassPOSIXMessageQueues Class = 5
)

// Internal API classes.
const (
	ClassInternalThreads Class = 1
)

const (
	indexBits = 16
	nodeBits  = 8
	apiBits   = 3
	classBits = 5

	indexShift = 0
	nodeShift  = indexShift + indexBits
	apiShift   = nodeShift + nodeBits
	classShift = apiShift + apiBits

	indexMask = 1<<indexBits - 1
	nodeMask  = 1<<nodeBits - 1
	apiMask   = 1<<apiBits - 1
	classMask = 1<<classBits - 1
)

const (
	// MaximumNodes is the largest node number an id can carry.
	MaximumNodes = nodeMask

	// MaximumIndex is the largest object index an id can carry.
	MaximumIndex = indexMask
)

// Node numbers with special meaning for Ident lookups.
const (
	// SearchAllNodes searches the local tables first, then the global table.
	SearchAllNodes uint32 = 0

	// SearchLocalNode restricts a lookup to the local node.
	SearchLocalNode uint32 = 0x7FFFFFFF
)

// WhoAmI stands for the calling thread in task directives.
const WhoAmI ObjectID = 0

// BuildID packs an object id.
func BuildID(api API, class Class, node uint32, index uint32) ObjectID {
	return ObjectID(
		(uint32(class)&classMask)<<classShift |
			(uint32(api)&apiMask)<<apiShift |
			(node&nodeMask)<<nodeShift |
			(index&indexMask)<<indexShift)
}

// API returns the interface family of the id.
func (id ObjectID) API() API {
	return API((uint32(id) >> apiShift) & apiMask)
}

// Class returns the object class of the id.
func (id ObjectID) Class() Class {
	return Class((uint32(id) >> classShift) & classMask)
}

// Node returns the node that owns the object.
func (id ObjectID) Node() uint32 {
	return (uint32(id) >> nodeShift) & nodeMask
}

// Index returns the object table index.
func (id ObjectID) Index() uint32 {
	return (uint32(id) >> indexShift) & indexMask
}

// IsLocal reports whether the id belongs to node.
func (id ObjectID) IsLocal(node uint32) bool {
	return id.Node() == node
}

// String formats the id the way object listings print it.
func (id ObjectID) String() string {
	return fmt.Sprintf("0x%08x", uint32(id))
}
