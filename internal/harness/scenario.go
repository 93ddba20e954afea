package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pagetree/internal/ir"
)

// Scenario defines one edit scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Page is the page id edited. Defaults to "page".
	Page string `yaml:"page,omitempty"`

	// Kinds lists extra CUE kind files loaded on top of the builtin kinds.
	// Paths are relative to the scenario file location.
	Kinds []string `yaml:"kinds,omitempty"`

	// OrderStep overrides the sibling order spacing.
	OrderStep int64 `yaml:"order_step,omitempty"`

	// Setup is a document (nested node form) saved as the initial page.
	// Setup must be valid; the scenario fails to run otherwise.
	Setup []map[string]any `yaml:"setup,omitempty"`

	// Steps are executed in order against the session.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one edit.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// ID is the node acted on (remove, move, update, rollback).
	ID string `yaml:"id,omitempty"`

	// Node is the inserted node in document form. Nodes without an id get
	// one from the session's generator.
	Node map[string]any `yaml:"node,omitempty"`

	// Target and Position place inserted or moved nodes. An empty target
	// means the page itself.
	Target   string `yaml:"target,omitempty"`
	Position string `yaml:"position,omitempty"`

	// Props is the update patch. A null value deletes the key.
	Props map[string]any `yaml:"props,omitempty"`

	// Expect overrides the default expectation of success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected error code (NOT_FOUND, CYCLE, VALIDATION, ...).
	Error string `yaml:"error,omitempty"`

	// Result is a subset of the step's result that must match.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// ID is the node checked (status, props, absent).
	ID string `yaml:"id,omitempty"`

	// Status is the expected dirty status (status).
	Status string `yaml:"status,omitempty"`

	// Parent and IDs give the expected child order (children). An empty
	// parent means the page roots.
	Parent string   `yaml:"parent,omitempty"`
	IDs    []string `yaml:"ids,omitempty"`

	// Props is the expected props subset (props).
	Props map[string]any `yaml:"props,omitempty"`

	// Count is the expected number of nodes (count).
	Count *int `yaml:"count,omitempty"`
}

// Step operations.
const (
	OpInsert   = "insert"
	OpRemove   = "remove"
	OpMove     = "move"
	OpUpdate   = "update"
	OpRollback = "rollback"
	OpCommit   = "commit"
	OpSave     = "save"
	OpDiscard  = "discard"
)

// Assertion types.
const (
	AssertStatus   = "status"
	AssertChildren = "children"
	AssertProps    = "props"
	AssertAbsent   = "absent"
	AssertCount    = "count"
)

// LoadScenario reads and parses a scenario YAML file. Kind paths are
// resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, k := range s.Kinds {
		if !filepath.IsAbs(k) {
			s.Kinds[i] = filepath.Join(base, k)
		}
	}
	for _, k := range s.Kinds {
		if _, err := os.Stat(k); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: kinds file not found: %s", k)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML. Unknown fields are rejected so
// typos like "assertion:" fail loudly.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if s.Page == "" {
		s.Page = "page"
	}
	return &s, nil
}

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
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	needID := func() error {
		if step.ID == "" {
			return fmt.Errorf("%s requires id", step.Op)
		}
		return nil
	}
	needPosition := func() error {
		if _, err := ir.ParsePosition(step.Position); err != nil {
			return fmt.Errorf("%s: %w", step.Op, err)
		}
		return nil
	}

	switch step.Op {
	case OpInsert:
		if step.Node == nil {
			return fmt.Errorf("insert requires node")
		}
		return needPosition()
	case OpMove:
		if err := needID(); err != nil {
			return err
		}
		return needPosition()
	case OpUpdate:
		if step.Props == nil {
			return fmt.Errorf("update requires props")
		}
		return needID()
	case OpRemove, OpRollback:
		return needID()
	case OpCommit, OpSave, OpDiscard:
		return nil
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertStatus:
		if a.ID == "" || a.Status == "" {
			return fmt.Errorf("status requires id and status")
		}
	case AssertProps:
		if a.ID == "" || a.Props == nil {
			return fmt.Errorf("props requires id and props")
		}
	case AssertAbsent:
		if a.ID == "" {
			return fmt.Errorf("absent requires id")
		}
	case AssertChildren:
		if a.IDs == nil {
			return fmt.Errorf("children requires ids (use [] for none)")
		}
	case AssertCount:
		if a.Count == nil {
			return fmt.Errorf("count requires count")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
