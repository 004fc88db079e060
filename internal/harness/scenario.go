package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/guildbot/internal/action"
)

// DefaultClock is the start time of scenarios that do not set one.
const DefaultClock = "2024-01-01T00:00:00Z"

// DefaultOwner is the owner id of scenarios that do not set one.
const DefaultOwner = "owner"

// Scenario is a scripted conversation with the bot.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// OwnerID is the user allowed to run owner-only commands.
	OwnerID string `yaml:"owner_id,omitempty"`

	// Clock is the RFC 3339 start time of the fake clock.
	Clock string `yaml:"clock,omitempty"`

	// Seed documents are written before the first step. Command data blobs
	// are loaded after seeding, so seeding command/ping configures ping.
	Seed []SeedDoc `yaml:"seed,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and store.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedDoc is a document written before the scenario starts.
type SeedDoc struct {
	ID    string `yaml:"id"`
	Value any    `yaml:"value"`
}

// Step is one thing that happens in a scenario.
type Step struct {
	// Advance moves the clock forward (a Go duration) before the step runs.
	Advance string `yaml:"advance,omitempty"`

	Event *EventStep `yaml:"event,omitempty"`
	Post  *PostStep  `yaml:"post,omitempty"`
	Sweep bool       `yaml:"sweep,omitempty"`

	// Expect validates the step's outcome. If nil, nothing is checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// EventStep is an inbound interaction.
type EventStep struct {
	Kind    string            `yaml:"kind"`
	Name    string            `yaml:"name"`
	Guild   string            `yaml:"guild,omitempty"`
	Channel string            `yaml:"channel,omitempty"`
	User    string            `yaml:"user,omitempty"`
	Bot     bool              `yaml:"bot,omitempty"`
	Options map[string]string `yaml:"options,omitempty"`
}

// PostStep is a chat message posted in a channel, used to give tickets
// a history.
type PostStep struct {
	Guild   string `yaml:"guild"`
	Channel string `yaml:"channel"`
	User    string `yaml:"user"`
	Content string `yaml:"content"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Success is the expected Result.Success of an event.
	Success *bool `yaml:"success,omitempty"`

	// Unhandled expects the event to match no action.
	Unhandled bool `yaml:"unhandled,omitempty"`

	// Reason must be contained in the failure reason.
	Reason string `yaml:"reason,omitempty"`

	// Reply is the exact content of the last reply sent during the step.
	Reply string `yaml:"reply,omitempty"`

	// Closed is the number of tickets a sweep closed.
	Closed *int `yaml:"closed,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event for Action with Args was dispatched
	// - "trace_order": events for Actions were dispatched in order
	// - "trace_count": Action was dispatched exactly Count times
	// - "final_state": Document matches Expect, or is missing when Absent
	Type string `yaml:"type"`

	Action  string            `yaml:"action,omitempty"`
	Args    map[string]string `yaml:"args,omitempty"`
	Count   int               `yaml:"count,omitempty"`
	Actions []string          `yaml:"actions,omitempty"`

	Document string `yaml:"document,omitempty"`
	Expect   any    `yaml:"expect,omitempty"`
	Absent   bool   `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
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
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Clock != "" {
		if _, err := time.Parse(time.RFC3339, s.Clock); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
	}

	for i, doc := range s.Seed {
		if doc.ID == "" {
			return fmt.Errorf("seed[%d]: id is required", i)
		}
		if doc.Value == nil {
			return fmt.Errorf("seed[%d]: value is required", i)
		}
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

func validateStep(index int, st *Step) error {
	kinds := 0
	if st.Event != nil {
		kinds++
	}
	if st.Post != nil {
		kinds++
	}
	if st.Sweep {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of event, post or sweep is required", index)
	}

	if st.Advance != "" {
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	}

	if ev := st.Event; ev != nil {
		if _, err := action.ParseKind(ev.Kind); err != nil {
			return fmt.Errorf("steps[%d].event: %w", index, err)
		}
		if ev.Name == "" {
			return fmt.Errorf("steps[%d].event: name is required", index)
		}
	}
	if p := st.Post; p != nil && (p.Guild == "" || p.Channel == "") {
		return fmt.Errorf("steps[%d].post: guild and channel are required", index)
	}
	if st.Expect != nil && st.Expect.Closed != nil && !st.Sweep {
		return fmt.Errorf("steps[%d].expect: closed only applies to sweep steps", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Document == "" {
			return fmt.Errorf("assertions[%d]: document is required for final_state", index)
		}
		if a.Expect == nil && !a.Absent {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
		if a.Expect != nil && a.Absent {
			return fmt.Errorf("assertions[%d]: expect and absent are exclusive", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
