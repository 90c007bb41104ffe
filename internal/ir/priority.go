package ir

// Priority is a thread or ceiling priority. Lower values are more urgent.
type Priority uint32

const (
	// CurrentPriority queries a priority without changing it.
	CurrentPriority Priority = 0

	// DefaultMaximumPriority is the least urgent valid priority unless the
	// configuration says otherwise.
	DefaultMaximumPriority Priority = 255

	// MinimumPriority is the most urgent priority a task may hold.
	MinimumPriority Priority = 1
)

// MoreUrgent reports whether p is strictly more urgent than q.
func (p Priority) MoreUrgent(q Priority) bool {
	return p < q
}

// Highest returns the more urgent of p and q.
func Highest(p, q Priority) Priority {
	if q < p {
		return q
	}
	return p
}

// Interval is a duration in clock ticks.
type Interval uint32

// NoTimeout waits forever.
const NoTimeout Interval = 0

// MaxInterval is the longest finite interval.
const MaxInterval Interval = 1<<32 - 1

// Option selects blocking behaviour for seize style directives.
type Option uint32

const (
	// Wait blocks the caller until the directive can complete.
	Wait Option = 0

	// NoWait fails with StatusUnsatisfied instead of blocking.
	NoWait Option = 1
)

// Blocking reports whether the option allows the caller to block.
func (o Option) Blocking() bool {
	return o&NoWait == 0
}

// SignalSet is a bit set of asynchronous signals.
type SignalSet uint32
