// Package watchdog provides the tick based timeout facility of a node.
//
// A Clock counts ticks. Timers armed with Insert fire once their interval
// has elapsed, in deadline order; timers with the same deadline fire in
// the order they were armed. Timer callbacks run on the goroutine that
// advanced the clock, outside the clock's lock, so a callback may take any
// object lock and may arm or cancel other timers.
//
// Time is logical: nothing here reads the wall clock. Run converts a
// time.Ticker into ticks for live nodes; tests call Tick or Advance.
package watchdog
