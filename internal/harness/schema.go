package harness

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// scenarioSchema is the CUE schema scenario documents must satisfy.
// The struct decoder enforces field names; the schema additionally
// pins the op and assertion vocabularies and value shapes.
const scenarioSchema = `
#Owner: {
	host?:   string
	port?:   int
	worker?: string
	node?:   string
}

#Ref: {
	object: string & !=""
	owner?: #Owner
}

#Step: {
	op: "subscribe-get" | "subscribe-wait" | "unsubscribe-get" |
		"unsubscribe-wait" | "object-local" | "object-missing" |
		"task-pending" | "task-canceled" | "remove-tasks"
	task?:           string
	worker?:         string
	object?:         string
	tasks?: [...string]
	refs?: [...#Ref]
	actor_creation?: bool
	restarting?:     bool
	expect_ready?:   bool
	expect_found?:   bool
	expect_tasks?: [...string]
}

#AssertionEvent: {
	kind:    string & !=""
	object?: string
	task?:   string
}

#Assertion: {
	type:    "trace_contains" | "trace_count" | "trace_order"
	kind?:   string
	object?: string
	task?:   string
	count?:  int & >=0
	sequence?: [...#AssertionEvent]
}

#Scenario: {
	name:        string & !=""
	description: string & !=""
	steps: [#Step, ...#Step]
	assertions?: [...#Assertion]
}
`

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

// compiledSchema compiles the scenario schema once per process.
func compiledSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(scenarioSchema)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile scenario schema: %w", err)
			return
		}
		schemaValue = v.LookupPath(cue.ParsePath("#Scenario"))
		if err := schemaValue.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Scenario: %w", err)
		}
	})
	return schemaValue, schemaErr
}

// ValidateDocument checks a decoded YAML document against the scenario
// schema. The document is the generic form (map[string]any) produced by
// yaml.Unmarshal into any.
func ValidateDocument(doc any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	ctx := schema.Context()
	unified := schema.Unify(ctx.Encode(doc))
	if err := unified.Err(); err != nil {
		return err
	}
	return unified.Validate(cue.Concrete(true))
}
