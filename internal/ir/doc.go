// Package ir holds the data model shared by every synccore package: object
// ids, priorities, tick intervals, status codes, object names and the MP
// packet record.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key conventions:
//   - Lower numeric Priority values are more urgent
//   - Timeouts are Interval ticks, never wall-clock durations
//   - Status implements error; StatusSuccessful maps to a nil error
//   - Journal ordering uses logical seq numbers only
package ir
