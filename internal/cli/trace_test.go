package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depman-io/depman/internal/trace"
)

func seedTraceDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.db")
	store, err := trace.Open(path)
	require.NoError(t, err)
	defer store.Close()

	events := []trace.Event{
		{Seq: 1, Kind: trace.KindPull, Object: "task-c:1", Owner: "worker-a"},
		{Seq: 2, Kind: trace.KindListen, Object: "task-c:1", Owner: "worker-a"},
		{Seq: 3, Kind: trace.KindCancelPull, Object: "task-c:1"},
	}
	require.NoError(t, store.WriteEvents(context.Background(), "run-1", events))
	return path
}

func TestTraceCommand_Text(t *testing.T) {
	path := seedTraceDB(t)

	stdout, _, err := executeCommand("trace", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "runs: 1, events: 3")
	assert.Contains(t, stdout, "pull")
}

func TestTraceCommand_KindFilter(t *testing.T) {
	path := seedTraceDB(t)

	stdout, _, err := executeCommand("--format", "json", "trace", path, "--kind", "pull")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Events, 1)
	assert.Equal(t, "pull", resp.Data.Events[0].Kind)
}

func TestTraceCommand_UnknownKind(t *testing.T) {
	path := seedTraceDB(t)

	_, _, err := executeCommand("trace", path, "--kind", "bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
