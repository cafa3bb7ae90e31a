// Package deps implements the per-node task dependency manager.
//
// The manager tracks, for every locally-queued task and every
// locally-blocked worker, which remote objects that work is waiting on,
// and drives the node's object transport to fetch (or reconstruct)
// exactly the objects that are genuinely needed. The governing property:
// an object has an open pull if and only if at least one local
// subscriber needs it, it is not local, and it is not about to be
// produced by a locally-pending task.
//
// The manager is single-threaded cooperative: every public operation
// runs to completion and never suspends. Embedders in a multi-threaded
// environment must serialize calls (an outer mutex or a dedicated loop).
// Collaborators must not call back into the manager.
//
// INVARIANTS (hold after every public operation returns):
//   - An object appears in the required-objects index iff some
//     subscribed task or worker depends on it.
//   - The required-objects index has no empty inner or outer entries;
//     membership in it is the reference count.
//   - A task's missing counter equals the number of its declared
//     dependencies not in the local registry.
//   - The active-pull set holds exactly the objects for which
//     CheckObjectRequired is true, and is disjoint from the local
//     registry.
package deps

import "github.com/depman-io/depman/internal/ids"

// ObjectTransport is the object-manager surface the manager drives.
// Pull asks the transport to begin fetching an object from a peer;
// CancelPull closes an outstanding fetch. The manager guarantees
// at-most-one open per object and at most one cancel per open.
type ObjectTransport interface {
	Pull(obj ids.ObjectID, owner ids.OwnerAddress) error
	CancelPull(obj ids.ObjectID)
}

// ReconstructionPolicy monitors object owners so that loss events
// trigger lineage-based re-execution. Listens are opened and closed in
// lockstep with transport pulls.
type ReconstructionPolicy interface {
	ListenAndMaybeReconstruct(obj ids.ObjectID, owner ids.OwnerAddress)
	Cancel(obj ids.ObjectID)
}

// Task describes a task handed to TaskPending. Only actor-creation
// tasks with no dispatch callback are tracked: a nil OnDispatch means
// the task was resubmitted for an actor restart, so its outputs will
// materialize locally without a remote fetch. Everything else is
// ignored by TaskPending.
type Task struct {
	ID            ids.TaskID
	ActorCreation bool
	OnDispatch    func()
}

// tracked reports whether TaskPending should record this task.
func (t Task) tracked() bool {
	return t.ActorCreation && t.OnDispatch == nil
}

// taskDependencies records one subscribed task: the objects it declared
// and how many of them are still missing from the local registry.
type taskDependencies struct {
	getDependencies map[ids.ObjectID]struct{}
	numMissing      int
}

// objectDependencies is the inner record of the required-objects index:
// the subscribers of one object plus the owner address cached at first
// subscription. First owner wins; later subscriptions never overwrite.
type objectDependencies struct {
	owner            ids.OwnerAddress
	dependentTasks   map[ids.TaskID]struct{}
	dependentWorkers map[ids.WorkerID]struct{}
}

func newObjectDependencies(owner ids.OwnerAddress) *objectDependencies {
	return &objectDependencies{
		owner:            owner,
		dependentTasks:   make(map[ids.TaskID]struct{}),
		dependentWorkers: make(map[ids.WorkerID]struct{}),
	}
}

// empty reports whether no subscriber depends on the object anymore.
// Empty records must be deleted by the caller before returning.
func (d *objectDependencies) empty() bool {
	return len(d.dependentTasks) == 0 && len(d.dependentWorkers) == 0
}
