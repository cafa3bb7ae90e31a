package harness

import (
	"github.com/depman-io/depman/internal/trace"
)

// EvaluateAssertions checks each assertion against the result's trace
// and appends a message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) {
	for i, a := range assertions {
		switch a.Type {
		case AssertTraceContains:
			if countMatches(result.Trace, a.Kind, a.Object, a.Task) == 0 {
				result.addErrorf("assertions[%d]: trace does not contain kind=%s object=%q task=%q",
					i, a.Kind, a.Object, a.Task)
			}

		case AssertTraceCount:
			got := countMatches(result.Trace, a.Kind, a.Object, a.Task)
			if got != a.Count {
				result.addErrorf("assertions[%d]: kind=%s object=%q task=%q appears %d times, want %d",
					i, a.Kind, a.Object, a.Task, got, a.Count)
			}

		case AssertTraceOrder:
			if !containsSubsequence(result.Trace, a.Sequence) {
				result.addErrorf("assertions[%d]: trace does not contain the expected event sequence", i)
			}
		}
	}
}

// countMatches counts events matching the given fields; empty fields
// match any value.
func countMatches(events []trace.Event, kind, object, task string) int {
	n := 0
	for _, e := range events {
		if matches(e, kind, object, task) {
			n++
		}
	}
	return n
}

func matches(e trace.Event, kind, object, task string) bool {
	if kind != "" && string(e.Kind) != kind {
		return false
	}
	if object != "" && e.Object != object {
		return false
	}
	if task != "" && e.Task != task {
		return false
	}
	return true
}

// containsSubsequence reports whether the expected events appear in the
// trace in order, not necessarily adjacent.
func containsSubsequence(events []trace.Event, want []AssertionEvent) bool {
	next := 0
	for _, e := range events {
		if next == len(want) {
			break
		}
		w := want[next]
		if matches(e, w.Kind, w.Object, w.Task) {
			next++
		}
	}
	return next == len(want)
}
