package trace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleEvents() []Event {
	return []Event{
		{Seq: 1, Kind: KindPull, Object: "task-c:1", Owner: "worker-a"},
		{Seq: 2, Kind: KindListen, Object: "task-c:1", Owner: "worker-a"},
		{Seq: 3, Kind: KindReady, Task: "task-1"},
		{Seq: 4, Kind: KindCancelPull, Object: "task-c:1"},
	}
}

func TestStore_WriteAndReadEvents(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WriteEvents(ctx, "run-1", sampleEvents()))

	events, err := st.ReadEvents(ctx, Filter{Run: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, sampleEvents(), events)
}

func TestStore_WriteEventsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WriteEvents(ctx, "run-1", sampleEvents()))
	require.NoError(t, st.WriteEvents(ctx, "run-1", sampleEvents()))

	events, err := st.ReadEvents(ctx, Filter{Run: "run-1"})
	require.NoError(t, err)
	assert.Len(t, events, len(sampleEvents()))
}

func TestStore_FilterByKindAndObject(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.WriteEvents(ctx, "run-1", sampleEvents()))

	pulls, err := st.ReadEvents(ctx, Filter{Run: "run-1", Kind: KindPull})
	require.NoError(t, err)
	require.Len(t, pulls, 1)
	assert.Equal(t, int64(1), pulls[0].Seq)

	byObject, err := st.ReadEvents(ctx, Filter{Object: "task-c:1"})
	require.NoError(t, err)
	assert.Len(t, byObject, 3)
}

func TestStore_Runs(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.WriteEvents(ctx, "run-b", sampleEvents()[:1]))
	require.NoError(t, st.WriteEvents(ctx, "run-a", sampleEvents()[:1]))

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, runs)
}

func TestStore_ReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	ctx := context.Background()

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.WriteEvents(ctx, "run-1", sampleEvents()))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	events, err := st.ReadEvents(ctx, Filter{Run: "run-1"})
	require.NoError(t, err)
	assert.Len(t, events, len(sampleEvents()))
}
