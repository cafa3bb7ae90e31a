package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a replayable sequence of dependency-manager
// operations plus assertions on the resulting trace. Scenarios back
// conformance tests (via golden traces) and the simulator CLI.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name and the run name in a trace database.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Steps are applied to a fresh manager in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace.
	// Supported types: trace_contains, trace_count, trace_order.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step operation names.
const (
	OpSubscribeGet    = "subscribe-get"
	OpSubscribeWait   = "subscribe-wait"
	OpUnsubscribeGet  = "unsubscribe-get"
	OpUnsubscribeWait = "unsubscribe-wait"
	OpObjectLocal     = "object-local"
	OpObjectMissing   = "object-missing"
	OpTaskPending     = "task-pending"
	OpTaskCanceled    = "task-canceled"
	OpRemoveTasks     = "remove-tasks"
)

// Step is one public operation of the manager. Which fields apply
// depends on Op; LoadScenario rejects steps missing required fields.
type Step struct {
	Op string `yaml:"op"`

	// Task names the subject of subscribe-get, unsubscribe-get,
	// task-pending, and task-canceled.
	Task string `yaml:"task,omitempty"`

	// Worker names the subject of subscribe-wait and unsubscribe-wait.
	Worker string `yaml:"worker,omitempty"`

	// Object names the subject of object-local and object-missing,
	// in creator:index form.
	Object string `yaml:"object,omitempty"`

	// Tasks lists the subjects of remove-tasks.
	Tasks []string `yaml:"tasks,omitempty"`

	// Refs are the object references of subscribe-get/subscribe-wait.
	Refs []Ref `yaml:"refs,omitempty"`

	// ActorCreation and Restarting shape the Task handed to
	// task-pending. A restarting actor-creation task is the tracked
	// case; everything else is ignored by the manager.
	ActorCreation bool `yaml:"actor_creation,omitempty"`
	Restarting    bool `yaml:"restarting,omitempty"`

	// ExpectReady asserts the return of subscribe-get.
	ExpectReady *bool `yaml:"expect_ready,omitempty"`

	// ExpectFound asserts the return of unsubscribe-get.
	ExpectFound *bool `yaml:"expect_found,omitempty"`

	// ExpectTasks asserts the ready (object-local) or waiting
	// (object-missing) list. Nil means no expectation; an empty list
	// asserts the returned list is empty.
	ExpectTasks *[]string `yaml:"expect_tasks,omitempty"`
}

// Ref is an object reference: the object plus the owner address to
// cache for later pulls.
type Ref struct {
	Object string `yaml:"object"`
	Owner  Owner  `yaml:"owner,omitempty"`
}

// Owner mirrors ids.OwnerAddress in scenario files.
type Owner struct {
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	Worker string `yaml:"worker,omitempty"`
	Node   string `yaml:"node,omitempty"`
}

// Assertion validates the final trace.
type Assertion struct {
	// Type is one of trace_contains, trace_count, trace_order.
	Type string `yaml:"type"`

	// Kind/Object/Task match event fields. Empty fields match any
	// value (used by trace_contains and trace_count).
	Kind   string `yaml:"kind,omitempty"`
	Object string `yaml:"object,omitempty"`
	Task   string `yaml:"task,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Sequence is the expected event subsequence (trace_order).
	Sequence []AssertionEvent `yaml:"sequence,omitempty"`
}

// AssertionEvent is one element of a trace_order sequence.
type AssertionEvent struct {
	Kind   string `yaml:"kind"`
	Object string `yaml:"object,omitempty"`
	Task   string `yaml:"task,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
)

// LoadScenario reads, parses, and validates a scenario YAML file.
// Unknown fields are rejected (catches typos), the document is checked
// against the CUE schema, and per-step required fields are enforced.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	// Schema validation first: CUE reports unknown ops and malformed
	// shapes with better positions than the struct decoder.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields the schema cannot express
// per-op (which fields each op needs).
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Op {
	case OpSubscribeGet:
		if s.Task == "" {
			return fmt.Errorf("steps[%d]: task is required for %s", index, s.Op)
		}
		if len(s.Refs) == 0 {
			return fmt.Errorf("steps[%d]: refs are required for %s", index, s.Op)
		}
	case OpSubscribeWait:
		if s.Worker == "" {
			return fmt.Errorf("steps[%d]: worker is required for %s", index, s.Op)
		}
		if len(s.Refs) == 0 {
			return fmt.Errorf("steps[%d]: refs are required for %s", index, s.Op)
		}
	case OpUnsubscribeGet, OpTaskPending, OpTaskCanceled:
		if s.Task == "" {
			return fmt.Errorf("steps[%d]: task is required for %s", index, s.Op)
		}
	case OpUnsubscribeWait:
		if s.Worker == "" {
			return fmt.Errorf("steps[%d]: worker is required for %s", index, s.Op)
		}
	case OpObjectLocal, OpObjectMissing:
		if s.Object == "" {
			return fmt.Errorf("steps[%d]: object is required for %s", index, s.Op)
		}
	case OpRemoveTasks:
		if len(s.Tasks) == 0 {
			return fmt.Errorf("steps[%d]: tasks are required for %s", index, s.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}

	for j, ref := range s.Refs {
		if ref.Object == "" {
			return fmt.Errorf("steps[%d].refs[%d]: object is required", index, j)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceOrder:
		if len(a.Sequence) == 0 {
			return fmt.Errorf("assertions[%d]: sequence is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
