package deps

import (
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/depman-io/depman/internal/ids"
)

func TestRecordMetrics(t *testing.T) {
	m, _ := newTestManager()
	creator := ids.TaskID("task-creator")

	m.SubscribeGetDependencies("task-1", []ids.ObjectReference{
		ref(ids.ObjectForTask(creator, 1), "worker-a"),
		ref(ids.ObjectForTask("task-other", 1), "worker-a"),
	})
	m.TaskPending(restartedActorTask("task-restarting"))
	m.RecordMetrics()

	assert.Equal(t, 1.0, promtestutil.ToFloat64(subscribedTasksGauge))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(requiredTasksGauge))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(requiredObjectsGauge))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(pendingTasksGauge))

	// Gauges track the indices as they drain.
	m.UnsubscribeGetDependencies("task-1")
	m.TaskCanceled("task-restarting")
	m.RecordMetrics()

	assert.Equal(t, 0.0, promtestutil.ToFloat64(subscribedTasksGauge))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(requiredTasksGauge))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(requiredObjectsGauge))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(pendingTasksGauge))
}
