package ir

// Version constants for the journal schema and kernel.
const (
	// JournalVersion is the version of the journal record layout.
	JournalVersion = "1"

	// KernelVersion is the synccore kernel version.
	KernelVersion = "0.3.0"
)
