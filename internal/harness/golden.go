package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/depman-io/depman/internal/trace"
)

// RunWithGolden executes a scenario and compares its canonical-JSON
// trace snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot, err := trace.MarshalSnapshot(trace.Snapshot{
		Scenario: scenario.Name,
		Events:   result.Trace,
	})
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)

	return result, nil
}
