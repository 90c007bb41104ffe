package posix

// Open flags. Values follow Linux.
const (
	O_RDONLY   = 0x0
	O_WRONLY   = 0x1
	O_RDWR     = 0x2
	O_ACCMODE  = 0x3
	O_CREAT    = 0x40
	O_EXCL     = 0x80
	O_NONBLOCK = 0x800
)

const (
	// SemValueMax is the largest initial value of a semaphore.
	SemValueMax = 0x7FFFFFFF

	// MQPrioMax bounds message priorities: valid values are below it.
	MQPrioMax = 32
)

// Default attributes of a message queue created without attributes.
const (
	DefaultMaxMsg  = 10
	DefaultMsgSize = 16
)
