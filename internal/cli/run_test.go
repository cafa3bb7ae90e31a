package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depman-io/depman/internal/trace"
)

const passingScenarioYAML = `
name: cli-single-pull
description: exercises the run command
steps:
  - op: subscribe-get
    task: task-1
    refs:
      - object: "task-c:1"
        owner: {worker: worker-a}
    expect_ready: false
  - op: object-local
    object: "task-c:1"
    expect_tasks: [task-1]
assertions:
  - type: trace_count
    kind: pull
    object: "task-c:1"
    count: 1
`

const failingScenarioYAML = `
name: cli-failing
description: expectation that cannot hold
steps:
  - op: subscribe-get
    task: task-1
    refs:
      - object: "task-c:1"
        owner: {worker: worker-a}
    expect_ready: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCommand_Text(t *testing.T) {
	path := writeFile(t, "scenario.yaml", passingScenarioYAML)

	stdout, _, err := executeCommand("run", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "scenario: cli-single-pull")
	assert.Contains(t, stdout, "pull")
	assert.Contains(t, stdout, "✓ Scenario passed")
}

func TestRunCommand_JSON(t *testing.T) {
	path := writeFile(t, "scenario.yaml", passingScenarioYAML)

	stdout, _, err := executeCommand("--format", "json", "run", path)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRunCommand_FailingScenario(t *testing.T) {
	path := writeFile(t, "scenario.yaml", failingScenarioYAML)

	stdout, _, err := executeCommand("run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ Scenario failed")
}

func TestRunCommand_MissingFile(t *testing.T) {
	_, _, err := executeCommand("run", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_TraceDB(t *testing.T) {
	scenarioPath := writeFile(t, "scenario.yaml", passingScenarioYAML)
	dbPath := filepath.Join(t.TempDir(), "trace.db")

	_, _, err := executeCommand("run", scenarioPath, "--trace-db", dbPath)
	require.NoError(t, err)

	store, err := trace.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	events, err := store.ReadEvents(context.Background(), trace.Filter{Run: "cli-single-pull"})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
	assert.Equal(t, trace.KindPull, events[0].Kind)
}
