package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/synccore/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s %s\n", ev.Step, ev.Task, ev.Do, ev.Object, ev.Status)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the run's journal.
type AssertionContext struct {
	Store *store.Store
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result and
// returns the failure messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventCount, AssertPacketCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires the journal", i, assertion.Type)
				break
			}
			if assertion.Type == AssertEventCount {
				err = assertEventCount(ctx, actx, result.Trace, assertion)
			} else {
				err = assertPacketCount(ctx, actx, result.Trace, assertion)
			}
		case AssertCompletionOrder:
			err = assertCompletionOrder(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// assertEventCount counts journal events of a kind, optionally with one
// status.
func assertEventCount(ctx context.Context, actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	events, err := actx.Store.ReadEvents(ctx, actx.RunID)
	if err != nil {
		return fmt.Errorf("event_count: %w", err)
	}
	count := 0
	for _, e := range events {
		if e.Kind == a.Kind && (a.Status == "" || e.Status == a.Status) {
			count++
		}
	}
	if count != a.Count {
		what := a.Kind
		if a.Status != "" {
			what += " " + a.Status
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, what),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertPacketCount counts journalled packets of an operation, optionally
// in one direction. Every packet is journalled once when sent and once
// when received.
func assertPacketCount(ctx context.Context, actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	packets, err := actx.Store.ReadPackets(ctx, actx.RunID)
	if err != nil {
		return fmt.Errorf("packet_count: %w", err)
	}
	count := 0
	for _, p := range packets {
		if p.Operation == a.Operation && (a.Direction == "" || p.Direction == a.Direction) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertPacketCount,
			Expected: fmt.Sprintf("%d %s packets", a.Count, strings.TrimSpace(a.Direction+" "+a.Operation)),
			Actual:   fmt.Sprintf("%d packets", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCompletionOrder checks that the listed tasks completed directives
// in order. Other completions may come in between.
func assertCompletionOrder(result *Result, a Assertion) error {
	next := 0
	for _, name := range result.Completions {
		if next < len(a.Tasks) && name == a.Tasks[next] {
			next++
		}
	}
	if next < len(a.Tasks) {
		return &AssertionError{
			Type:     AssertCompletionOrder,
			Expected: fmt.Sprintf("completions in order: %v", a.Tasks),
			Actual:   fmt.Sprintf("completions %v", result.Completions),
		}
	}
	return nil
}
