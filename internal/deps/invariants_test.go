package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/depman-io/depman/internal/ids"
)

// checkInvariants recomputes the universal invariants from first
// principles and compares them with the manager's indices.
func checkInvariants(t *testing.T, m *Manager) {
	t.Helper()

	// I1/I2: every reverse-index entry has at least one dependent, no
	// empty inner or outer maps, and every dependent's own record
	// points back at the object.
	for creator, inner := range m.requiredObjects {
		assert.NotEmpty(t, inner, "empty outer entry for creator %s", creator)
		for obj, record := range inner {
			assert.Equal(t, creator, obj.CreatorTask(), "object %s filed under wrong creator", obj)
			assert.False(t, record.empty(), "empty record for object %s", obj)
			for task := range record.dependentTasks {
				entry := m.taskDeps[task]
				if assert.NotNil(t, entry, "dependent task %s not subscribed", task) {
					_, ok := entry.getDependencies[obj]
					assert.True(t, ok, "task %s does not list object %s", task, obj)
				}
			}
			for worker := range record.dependentWorkers {
				_, ok := m.workerDeps[worker][obj]
				assert.True(t, ok, "worker %s does not wait on object %s", worker, obj)
			}
		}
	}

	// I1, other direction: every subscription appears in the reverse index.
	for task, entry := range m.taskDeps {
		for obj := range entry.getDependencies {
			record := m.requiredObjects[obj.CreatorTask()][obj]
			if assert.NotNil(t, record, "object %s of task %s not in reverse index", obj, task) {
				_, ok := record.dependentTasks[task]
				assert.True(t, ok)
			}
		}
	}
	for worker, waits := range m.workerDeps {
		for obj := range waits {
			record := m.requiredObjects[obj.CreatorTask()][obj]
			if assert.NotNil(t, record, "object %s awaited by worker %s not in reverse index", obj, worker) {
				_, ok := record.dependentWorkers[worker]
				assert.True(t, ok)
			}
		}
	}

	// I3: missing counters match the local registry.
	for task, entry := range m.taskDeps {
		missing := 0
		for obj := range entry.getDependencies {
			if _, local := m.localObjects[obj]; !local {
				missing++
			}
		}
		assert.Equal(t, missing, entry.numMissing, "missing counter of task %s", task)
	}

	// I4: the active-pull set equals the required predicate.
	for obj := range m.activePulls {
		_, required := m.CheckObjectRequired(obj)
		assert.True(t, required, "open pull for non-required object %s", obj)
	}
	for _, inner := range m.requiredObjects {
		for obj := range inner {
			_, required := m.CheckObjectRequired(obj)
			_, open := m.activePulls[obj]
			assert.Equal(t, required, open, "pull state of object %s", obj)
		}
	}

	// I5: no open pull for a local object.
	for obj := range m.activePulls {
		_, local := m.localObjects[obj]
		assert.False(t, local, "open pull for local object %s", obj)
	}
}

// Every mutating public operation is exercised in one scripted interleaving;
// the universal invariants must hold after each step.
func TestInvariants_HoldAcrossInterleavings(t *testing.T) {
	m, _ := newTestManager()
	creator := ids.TaskID("task-creator")
	objA := ids.ObjectForTask(creator, 1)
	objB := ids.ObjectForTask(creator, 2)
	objC := ids.ObjectForTask("task-other", 1)

	steps := []func(){
		func() { m.SubscribeGetDependencies("task-1", []ids.ObjectReference{ref(objA, "worker-a"), ref(objC, "worker-a")}) },
		func() { m.SubscribeGetDependencies("task-2", []ids.ObjectReference{ref(objA, "worker-b"), ref(objB, "worker-b")}) },
		func() { m.SubscribeWaitDependencies("worker-1", []ids.ObjectReference{ref(objB, "worker-b"), ref(objC, "worker-b")}) },
		func() { m.HandleObjectLocal(objA) },
		func() { m.TaskPending(restartedActorTask(creator)) },
		func() { m.HandleObjectLocal(objC) },
		func() { m.HandleObjectMissing(objA) },
		func() { m.TaskCanceled(creator) },
		func() { m.HandleObjectLocal(objA) },
		func() { m.UnsubscribeGetDependencies("task-1") },
		func() { m.SubscribeWaitDependencies("worker-2", []ids.ObjectReference{ref(objB, "worker-b")}) },
		func() { m.UnsubscribeWaitDependencies("worker-1") },
		func() { m.HandleObjectMissing(objC) },
		func() { m.UnsubscribeWaitDependencies("worker-2") },
		func() { m.RemoveTasksAndRelatedObjects([]ids.TaskID{"task-1", "task-2"}) },
	}

	for i, step := range steps {
		step()
		t.Logf("step %d", i)
		checkInvariants(t, m)
	}

	// Everything unwound: the indices must be empty again.
	assert.Empty(t, m.taskDeps)
	assert.Empty(t, m.requiredObjects)
	assert.Empty(t, m.activePulls)
	assert.Empty(t, m.pendingTasks)
}
