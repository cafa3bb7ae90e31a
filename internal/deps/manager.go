package deps

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/depman-io/depman/internal/ids"
)

// Manager is the dependency manager. All state is in memory; on restart
// the scheduler must resubscribe. Not safe for concurrent use.
type Manager struct {
	transport ObjectTransport
	policy    ReconstructionPolicy

	// localObjects is the set of objects materialized on this node.
	localObjects map[ids.ObjectID]struct{}
	// taskDeps maps each subscribed task to its declared dependencies.
	taskDeps map[ids.TaskID]*taskDependencies
	// workerDeps maps each waiting worker to the remote objects it
	// waits on. Entries drain as objects become local.
	workerDeps map[ids.WorkerID]map[ids.ObjectID]struct{}
	// requiredObjects is the reverse index, keyed by the creating task
	// so that pending/cancel transitions can enumerate a task's outputs
	// in O(|outputs|). Membership is the reference count: no empty
	// inner or outer entries survive an operation.
	requiredObjects map[ids.TaskID]map[ids.ObjectID]*objectDependencies
	// pendingTasks holds tasks whose outputs will appear locally
	// without a remote pull.
	pendingTasks map[ids.TaskID]struct{}
	// activePulls holds objects with an outstanding pull/listen pair.
	activePulls map[ids.ObjectID]struct{}
}

// New creates a Manager driving the given transport and policy.
// The manager holds both for its lifetime.
func New(transport ObjectTransport, policy ReconstructionPolicy) *Manager {
	return &Manager{
		transport:       transport,
		policy:          policy,
		localObjects:    make(map[ids.ObjectID]struct{}),
		taskDeps:        make(map[ids.TaskID]*taskDependencies),
		workerDeps:      make(map[ids.WorkerID]map[ids.ObjectID]struct{}),
		requiredObjects: make(map[ids.TaskID]map[ids.ObjectID]*objectDependencies),
		pendingTasks:    make(map[ids.TaskID]struct{}),
		activePulls:     make(map[ids.ObjectID]struct{}),
	}
}

// CheckObjectLocal reports whether the object is in the local registry.
func (m *Manager) CheckObjectLocal(obj ids.ObjectID) bool {
	_, ok := m.localObjects[obj]
	return ok
}

// CheckObjectRequired reports whether the object must be made local by
// a remote pull: some subscriber depends on it, it is not local, and
// its creating task is not pending. When required, the owner address
// cached at first subscription is returned.
func (m *Manager) CheckObjectRequired(obj ids.ObjectID) (ids.OwnerAddress, bool) {
	entry := m.requiredObjects[obj.CreatorTask()][obj]
	if entry == nil {
		return ids.OwnerAddress{}, false
	}
	if _, local := m.localObjects[obj]; local {
		return ids.OwnerAddress{}, false
	}
	if _, pending := m.pendingTasks[obj.CreatorTask()]; pending {
		return ids.OwnerAddress{}, false
	}
	return entry.owner, true
}

// pullIfRequired opens a pull and a reconstruction listen for the
// object if it is required and no pull is already outstanding. This and
// cancelPullIfNotRequired are the only call sites that touch the
// collaborators.
func (m *Manager) pullIfRequired(obj ids.ObjectID) {
	owner, required := m.CheckObjectRequired(obj)
	if !required {
		return
	}
	if _, open := m.activePulls[obj]; open {
		return
	}
	m.activePulls[obj] = struct{}{}
	if err := m.transport.Pull(obj, owner); err != nil {
		panic(fmt.Sprintf("deps: pull failed for object %s: %v", obj, err))
	}
	m.policy.ListenAndMaybeReconstruct(obj, owner)
}

// cancelPullIfNotRequired closes the outstanding pull and listen for
// the object if it is no longer required.
func (m *Manager) cancelPullIfNotRequired(obj ids.ObjectID) {
	if _, required := m.CheckObjectRequired(obj); required {
		return
	}
	if _, open := m.activePulls[obj]; !open {
		return
	}
	delete(m.activePulls, obj)
	m.transport.CancelPull(obj)
	m.policy.Cancel(obj)
}

// objectEntry returns the reverse-index record for the object, creating
// it with the given owner address if absent. The first subscription's
// address wins for the lifetime of the record.
func (m *Manager) objectEntry(obj ids.ObjectID, owner ids.OwnerAddress) *objectDependencies {
	creator := obj.CreatorTask()
	inner := m.requiredObjects[creator]
	if inner == nil {
		inner = make(map[ids.ObjectID]*objectDependencies)
		m.requiredObjects[creator] = inner
	}
	entry := inner[obj]
	if entry == nil {
		entry = newObjectDependencies(owner)
		inner[obj] = entry
	}
	return entry
}

// dropObjectEntry removes the record and, when the creator's inner map
// drains, the outer entry. Eager deletion keeps membership equal to the
// reference count.
func (m *Manager) dropObjectEntry(obj ids.ObjectID) {
	creator := obj.CreatorTask()
	inner := m.requiredObjects[creator]
	delete(inner, obj)
	if len(inner) == 0 {
		delete(m.requiredObjects, creator)
	}
}

// SubscribeGetDependencies records the task's fetch dependencies and
// opens pulls for those that are required. Duplicate objects within one
// call collapse silently; re-subscribing an existing task is additive.
// Returns true iff all dependencies are local and the task can run now.
func (m *Manager) SubscribeGetDependencies(task ids.TaskID, refs []ids.ObjectReference) bool {
	entry := m.taskDeps[task]
	if entry == nil {
		entry = &taskDependencies{getDependencies: make(map[ids.ObjectID]struct{})}
		m.taskDeps[task] = entry
	}

	for _, ref := range refs {
		if _, seen := entry.getDependencies[ref.Object]; seen {
			continue
		}
		entry.getDependencies[ref.Object] = struct{}{}
		slog.Debug("task blocked on object", "task", task, "object", ref.Object)
		if _, local := m.localObjects[ref.Object]; !local {
			entry.numMissing++
		}
		m.objectEntry(ref.Object, ref.Owner).dependentTasks[task] = struct{}{}
	}

	for _, ref := range refs {
		m.pullIfRequired(ref.Object)
	}

	return entry.numMissing == 0
}

// SubscribeWaitDependencies records the worker's wait on each object
// that is not already local (a local object satisfies the wait at call
// time) and opens pulls for those that are required.
func (m *Manager) SubscribeWaitDependencies(worker ids.WorkerID, refs []ids.ObjectReference) {
	entry := m.workerDeps[worker]
	if entry == nil {
		entry = make(map[ids.ObjectID]struct{})
		m.workerDeps[worker] = entry
	}

	for _, ref := range refs {
		if _, local := m.localObjects[ref.Object]; local {
			continue
		}
		if _, seen := entry[ref.Object]; seen {
			continue
		}
		slog.Debug("worker waiting on remote object", "worker", worker, "object", ref.Object)
		entry[ref.Object] = struct{}{}
		m.objectEntry(ref.Object, ref.Owner).dependentWorkers[worker] = struct{}{}
	}

	for _, ref := range refs {
		m.pullIfRequired(ref.Object)
	}
}

// UnsubscribeGetDependencies removes the task's subscription and closes
// pulls that no other subscriber holds open. Returns false if the task
// was not subscribed.
func (m *Manager) UnsubscribeGetDependencies(task ids.TaskID) bool {
	entry, ok := m.taskDeps[task]
	if !ok {
		return false
	}
	slog.Debug("task no longer blocked", "task", task)
	delete(m.taskDeps, task)

	objs := sortedObjects(entry.getDependencies)
	for _, obj := range objs {
		record := m.requiredObjects[obj.CreatorTask()][obj]
		if record == nil {
			panic(fmt.Sprintf("deps: no reverse-index entry for object %s held by task %s", obj, task))
		}
		if _, held := record.dependentTasks[task]; !held {
			panic(fmt.Sprintf("deps: task %s missing from dependents of object %s", task, obj))
		}
		delete(record.dependentTasks, task)
		if record.empty() {
			m.dropObjectEntry(obj)
		}
	}

	for _, obj := range objs {
		m.cancelPullIfNotRequired(obj)
	}
	return true
}

// UnsubscribeWaitDependencies removes the worker's remaining waits and
// closes pulls that no other subscriber holds open. No-op if the worker
// has no entry.
func (m *Manager) UnsubscribeWaitDependencies(worker ids.WorkerID) {
	entry, ok := m.workerDeps[worker]
	if !ok {
		return
	}
	slog.Debug("worker no longer blocked", "worker", worker)
	delete(m.workerDeps, worker)

	objs := sortedObjects(entry)
	for _, obj := range objs {
		record := m.requiredObjects[obj.CreatorTask()][obj]
		if record == nil {
			panic(fmt.Sprintf("deps: no reverse-index entry for object %s awaited by worker %s", obj, worker))
		}
		if _, held := record.dependentWorkers[worker]; !held {
			panic(fmt.Sprintf("deps: worker %s missing from dependents of object %s", worker, obj))
		}
		delete(record.dependentWorkers, worker)
		if record.empty() {
			m.dropObjectEntry(obj)
		}
	}

	for _, obj := range objs {
		m.cancelPullIfNotRequired(obj)
	}
}

// HandleObjectLocal records the object's arrival and returns the tasks
// whose last missing dependency it was, in sorted order. Worker waits
// on the object are satisfied and cleared in bulk; the caller notifies
// those workers out of band. A duplicate arrival is a caller bug and
// aborts.
func (m *Manager) HandleObjectLocal(obj ids.ObjectID) []ids.TaskID {
	if _, ok := m.localObjects[obj]; ok {
		panic(fmt.Sprintf("deps: object %s already local", obj))
	}
	m.localObjects[obj] = struct{}{}

	var ready []ids.TaskID
	if record := m.requiredObjects[obj.CreatorTask()][obj]; record != nil {
		for _, task := range sortedTasks(record.dependentTasks) {
			entry := m.taskDeps[task]
			entry.numMissing--
			if entry.numMissing == 0 {
				ready = append(ready, task)
			}
		}
		for worker := range record.dependentWorkers {
			if _, held := m.workerDeps[worker][obj]; !held {
				panic(fmt.Sprintf("deps: worker %s has no wait on object %s", worker, obj))
			}
			delete(m.workerDeps[worker], obj)
		}
		// The wait calls can now return this object as ready.
		record.dependentWorkers = make(map[ids.WorkerID]struct{})
		if record.empty() {
			m.dropObjectEntry(obj)
		}
	}

	m.cancelPullIfNotRequired(obj)
	return ready
}

// HandleObjectMissing records the object's eviction and returns the
// tasks that were ready and must re-queue as waiting, in sorted order.
// Worker waits do not re-arm once satisfied. An eviction of an object
// that is not local is a caller bug and aborts.
func (m *Manager) HandleObjectMissing(obj ids.ObjectID) []ids.TaskID {
	if _, ok := m.localObjects[obj]; !ok {
		panic(fmt.Sprintf("deps: object %s not local", obj))
	}
	delete(m.localObjects, obj)

	var waiting []ids.TaskID
	if record := m.requiredObjects[obj.CreatorTask()][obj]; record != nil {
		for _, task := range sortedTasks(record.dependentTasks) {
			entry := m.taskDeps[task]
			if entry.numMissing == 0 {
				waiting = append(waiting, task)
			}
			entry.numMissing++
		}
	}

	m.pullIfRequired(obj)
	return waiting
}

// TaskPending records that the task will execute locally, so its
// outputs need no remote fetch. Only restarted actor-creation tasks are
// tracked (see Task); all others are ignored. On a new transition,
// pulls for the task's outputs are closed.
func (m *Manager) TaskPending(task Task) {
	if !task.tracked() {
		return
	}
	slog.Debug("task execution pending", "task", task.ID)

	if _, ok := m.pendingTasks[task.ID]; ok {
		return
	}
	m.pendingTasks[task.ID] = struct{}{}

	for _, obj := range sortedObjects(m.requiredObjects[task.ID]) {
		// The object will appear locally once the task finishes.
		m.cancelPullIfNotRequired(obj)
	}
}

// TaskCanceled records that the task will no longer execute locally and
// reopens pulls for its outputs that subscribers still need. No-op if
// the task was not pending.
func (m *Manager) TaskCanceled(task ids.TaskID) {
	if _, ok := m.pendingTasks[task]; !ok {
		return
	}
	slog.Debug("task execution canceled", "task", task)
	delete(m.pendingTasks, task)

	for _, obj := range sortedObjects(m.requiredObjects[task]) {
		m.pullIfRequired(obj)
	}
}

// RemoveTasksAndRelatedObjects purges the given tasks and every
// subscription on the objects they depended on. The caller guarantees
// that all subscribers to those objects are among the purged tasks; a
// purged task that still has dependents afterwards is a contract
// violation and aborts.
func (m *Manager) RemoveTasksAndRelatedObjects(tasks []ids.TaskID) {
	required := make(map[ids.ObjectID]struct{})
	for _, task := range tasks {
		if entry, ok := m.taskDeps[task]; ok {
			for obj := range entry.getDependencies {
				required[obj] = struct{}{}
			}
		}
		delete(m.taskDeps, task)
		delete(m.pendingTasks, task)
	}

	for _, obj := range sortedObjects(required) {
		delete(m.requiredObjects, obj.CreatorTask())
		m.cancelPullIfNotRequired(obj)
	}

	for _, task := range tasks {
		if _, ok := m.requiredObjects[task]; ok {
			panic(fmt.Sprintf("deps: task %s was purged but another task still depends on its outputs", task))
		}
	}
}

// GetOwnerAddress returns the owner address cached at the object's
// first subscription and reports whether it is present (carries a
// worker identifier). The zero address is returned when the object has
// no subscribers.
func (m *Manager) GetOwnerAddress(obj ids.ObjectID) (ids.OwnerAddress, bool) {
	entry := m.requiredObjects[obj.CreatorTask()][obj]
	if entry == nil {
		return ids.OwnerAddress{}, false
	}
	return entry.owner, entry.owner.Present()
}

// DebugString returns a multi-line listing of the index sizes.
func (m *Manager) DebugString() string {
	var b strings.Builder
	b.WriteString("TaskDependencyManager:")
	fmt.Fprintf(&b, "\n- task dep map size: %d", len(m.taskDeps))
	fmt.Fprintf(&b, "\n- task req map size: %d", len(m.requiredObjects))
	fmt.Fprintf(&b, "\n- req objects map size: %d", len(m.activePulls))
	fmt.Fprintf(&b, "\n- local objects map size: %d", len(m.localObjects))
	fmt.Fprintf(&b, "\n- pending tasks map size: %d", len(m.pendingTasks))
	return b.String()
}

// sortedObjects returns the map's object keys ordered by creator, then
// index. Map iteration order is unspecified in Go; every path that
// issues per-object side effects sorts first so that one input sequence
// yields one observable output sequence.
func sortedObjects[V any](set map[ids.ObjectID]V) []ids.ObjectID {
	objs := make([]ids.ObjectID, 0, len(set))
	for obj := range set {
		objs = append(objs, obj)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Less(objs[j]) })
	return objs
}

// sortedTasks returns the set's task IDs in lexical order.
func sortedTasks(set map[ids.TaskID]struct{}) []ids.TaskID {
	tasks := make([]ids.TaskID, 0, len(set))
	for task := range set {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i] < tasks[j] })
	return tasks
}
