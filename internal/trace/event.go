// Package trace models the observable side effects of the dependency
// manager — transport pulls, reconstruction listens, and the
// ready/waiting transitions of tasks — as a flat event stream. The
// stream feeds golden-file comparison in tests and the simulator CLI's
// SQLite trace store. The manager itself persists nothing; events are
// recorded by the harness around it.
package trace

// Kind classifies a trace event.
type Kind string

const (
	// KindPull is an ObjectTransport.Pull call.
	KindPull Kind = "pull"
	// KindCancelPull is an ObjectTransport.CancelPull call.
	KindCancelPull Kind = "cancel_pull"
	// KindListen is a ReconstructionPolicy.ListenAndMaybeReconstruct call.
	KindListen Kind = "listen"
	// KindCancelListen is a ReconstructionPolicy.Cancel call.
	KindCancelListen Kind = "cancel_listen"
	// KindReady marks a task returned in a ready list.
	KindReady Kind = "ready"
	// KindWaiting marks a task returned in a waiting list.
	KindWaiting Kind = "waiting"
)

// Valid reports whether the kind is one of the defined constants.
func (k Kind) Valid() bool {
	switch k {
	case KindPull, KindCancelPull, KindListen, KindCancelListen, KindReady, KindWaiting:
		return true
	}
	return false
}

// Event is one observable side effect. Seq is a monotonic per-run
// sequence number; the remaining fields are set per kind: Object and
// Owner for transport/policy calls, Task for ready/waiting transitions.
type Event struct {
	Seq    int64
	Kind   Kind
	Object string
	Owner  string
	Task   string
}

// canonicalMap renders the event for canonical JSON encoding. Empty
// fields are omitted so goldens stay compact.
func (e Event) canonicalMap() map[string]any {
	out := map[string]any{
		"seq":  e.Seq,
		"kind": string(e.Kind),
	}
	if e.Object != "" {
		out["object"] = e.Object
	}
	if e.Owner != "" {
		out["owner"] = e.Owner
	}
	if e.Task != "" {
		out["task"] = e.Task
	}
	return out
}

// Snapshot is the golden-file shape: the scenario name plus its full
// event stream.
type Snapshot struct {
	Scenario string
	Events   []Event
}

// MarshalSnapshot encodes the snapshot as canonical JSON.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	events := make([]any, len(s.Events))
	for i, e := range s.Events {
		events[i] = e.canonicalMap()
	}
	return MarshalCanonical(map[string]any{
		"scenario": s.Scenario,
		"events":   events,
	})
}
