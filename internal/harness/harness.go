// Package harness replays scenario files against a fresh dependency
// manager and records every outgoing side effect as a trace. Traces
// feed per-step expectations, final assertions, golden-file comparison,
// and the simulator CLI's trace store.
package harness

import (
	"fmt"

	"github.com/depman-io/depman/internal/deps"
	"github.com/depman-io/depman/internal/ids"
	"github.com/depman-io/depman/internal/testutil"
	"github.com/depman-io/depman/internal/trace"
)

// Result is the outcome of one scenario run.
type Result struct {
	// Trace is the ordered stream of observed side effects, including
	// ready/waiting transitions returned by the manager.
	Trace []trace.Event

	// Errors lists failed per-step expectations and assertions.
	Errors []string
}

// Passed reports whether every expectation and assertion held.
func (r *Result) Passed() bool { return len(r.Errors) == 0 }

func (r *Result) addErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// recorder captures manager side effects as trace events. It implements
// both collaborator interfaces; the shared clock interleaves transport
// and policy calls in their real order.
type recorder struct {
	clock  *testutil.DeterministicClock
	events []trace.Event
}

func newRecorder() *recorder {
	return &recorder{clock: testutil.NewDeterministicClock()}
}

func (r *recorder) record(kind trace.Kind, obj ids.ObjectID, owner string, task ids.TaskID) {
	r.events = append(r.events, trace.Event{
		Seq:    r.clock.Next(),
		Kind:   kind,
		Object: objectLabel(obj),
		Owner:  owner,
		Task:   string(task),
	})
}

func objectLabel(obj ids.ObjectID) string {
	if obj == (ids.ObjectID{}) {
		return ""
	}
	return obj.String()
}

// ownerLabel renders an owner address for the trace: the worker ID when
// present, otherwise host:port, otherwise empty.
func ownerLabel(owner ids.OwnerAddress) string {
	if owner.Present() {
		return string(owner.Worker)
	}
	if owner.Host != "" {
		return fmt.Sprintf("%s:%d", owner.Host, owner.Port)
	}
	return ""
}

func (r *recorder) Pull(obj ids.ObjectID, owner ids.OwnerAddress) error {
	r.record(trace.KindPull, obj, ownerLabel(owner), ids.NilTaskID)
	return nil
}

func (r *recorder) CancelPull(obj ids.ObjectID) {
	r.record(trace.KindCancelPull, obj, "", ids.NilTaskID)
}

func (r *recorder) ListenAndMaybeReconstruct(obj ids.ObjectID, owner ids.OwnerAddress) {
	r.record(trace.KindListen, obj, ownerLabel(owner), ids.NilTaskID)
}

func (r *recorder) Cancel(obj ids.ObjectID) {
	r.record(trace.KindCancelListen, obj, "", ids.NilTaskID)
}

// recordTasks appends one ready/waiting event per returned task.
func (r *recorder) recordTasks(kind trace.Kind, tasks []ids.TaskID) {
	for _, task := range tasks {
		r.record(kind, ids.ObjectID{}, "", task)
	}
}

// Run executes a scenario against a fresh manager and returns the
// trace plus any expectation/assertion failures. An error is returned
// only for malformed steps (bad object IDs); expectation mismatches go
// into Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	rec := newRecorder()
	manager := deps.New(rec, rec)
	result := &Result{}

	for i, step := range scenario.Steps {
		if err := applyStep(manager, rec, result, i, &step); err != nil {
			return nil, err
		}
	}

	result.Trace = rec.events
	EvaluateAssertions(result, scenario.Assertions)
	return result, nil
}

func applyStep(manager *deps.Manager, rec *recorder, result *Result, index int, step *Step) error {
	switch step.Op {
	case OpSubscribeGet:
		refs, err := parseRefs(step.Refs)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		ready := manager.SubscribeGetDependencies(ids.TaskID(step.Task), refs)
		if step.ExpectReady != nil && ready != *step.ExpectReady {
			result.addErrorf("steps[%d]: subscribe-get %s: ready = %t, want %t", index, step.Task, ready, *step.ExpectReady)
		}

	case OpSubscribeWait:
		refs, err := parseRefs(step.Refs)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		manager.SubscribeWaitDependencies(ids.WorkerID(step.Worker), refs)

	case OpUnsubscribeGet:
		found := manager.UnsubscribeGetDependencies(ids.TaskID(step.Task))
		if step.ExpectFound != nil && found != *step.ExpectFound {
			result.addErrorf("steps[%d]: unsubscribe-get %s: found = %t, want %t", index, step.Task, found, *step.ExpectFound)
		}

	case OpUnsubscribeWait:
		manager.UnsubscribeWaitDependencies(ids.WorkerID(step.Worker))

	case OpObjectLocal:
		obj, err := ids.ParseObjectID(step.Object)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		ready := manager.HandleObjectLocal(obj)
		rec.recordTasks(trace.KindReady, ready)
		checkExpectedTasks(result, index, step, "ready", ready)

	case OpObjectMissing:
		obj, err := ids.ParseObjectID(step.Object)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		waiting := manager.HandleObjectMissing(obj)
		rec.recordTasks(trace.KindWaiting, waiting)
		checkExpectedTasks(result, index, step, "waiting", waiting)

	case OpTaskPending:
		task := deps.Task{ID: ids.TaskID(step.Task), ActorCreation: step.ActorCreation}
		if !step.Restarting {
			// A freshly submitted task carries a live dispatch callback.
			task.OnDispatch = func() {}
		}
		manager.TaskPending(task)

	case OpTaskCanceled:
		manager.TaskCanceled(ids.TaskID(step.Task))

	case OpRemoveTasks:
		tasks := make([]ids.TaskID, len(step.Tasks))
		for j, t := range step.Tasks {
			tasks[j] = ids.TaskID(t)
		}
		manager.RemoveTasksAndRelatedObjects(tasks)

	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	return nil
}

func parseRefs(refs []Ref) ([]ids.ObjectReference, error) {
	out := make([]ids.ObjectReference, len(refs))
	for i, ref := range refs {
		obj, err := ids.ParseObjectID(ref.Object)
		if err != nil {
			return nil, err
		}
		out[i] = ids.ObjectReference{
			Object: obj,
			Owner: ids.OwnerAddress{
				Host:   ref.Owner.Host,
				Port:   ref.Owner.Port,
				Worker: ids.WorkerID(ref.Owner.Worker),
				Node:   ref.Owner.Node,
			},
		}
	}
	return out, nil
}

func checkExpectedTasks(result *Result, index int, step *Step, label string, got []ids.TaskID) {
	if step.ExpectTasks == nil {
		return
	}
	want := *step.ExpectTasks
	match := len(want) == len(got)
	if match {
		for i := range want {
			if ids.TaskID(want[i]) != got[i] {
				match = false
				break
			}
		}
	}
	if !match {
		result.addErrorf("steps[%d]: %s %s: %s tasks = %v, want %v", index, step.Op, step.Object, label, got, want)
	}
}
