package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrDuplicateKind is returned when a type tag is registered twice.
var ErrDuplicateKind = errors.New("kind already registered")

// Field types understood by the validator.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeArray  = "array"
	TypeObject = "object"
	TypeAny    = "any"
)

var validFieldTypes = map[string]bool{
	TypeString: true,
	TypeInt:    true,
	TypeBool:   true,
	TypeArray:  true,
	TypeObject: true,
	TypeAny:    true,
}

// FieldSpec describes one prop of a kind.
type FieldSpec struct {
	Type     string   `json:"type"`
	Required bool     `json:"required,omitempty"`
	Enum     []string `json:"enum,omitempty"`
	Min      *int64   `json:"min,omitempty"`
	Max      *int64   `json:"max,omitempty"`
	Check    string   `json:"check,omitempty"` // expr-lang boolean expression

	program *vm.Program
}

// PropSchema describes the props payload of a kind.
// Unknown props are allowed unless Strict is set.
type PropSchema struct {
	Fields map[string]FieldSpec `json:"fields"`
	Strict bool                 `json:"strict,omitempty"`
}

// Kind is a registered node variant.
type Kind struct {
	Tag         string     `json:"tag"`
	Schema      PropSchema `json:"schema"`
	Container   bool       `json:"container"`
	Description string     `json:"description,omitempty"`
}

// Registry holds the closed set of kinds. Safe for concurrent use; kinds
// are normally registered once at startup and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// Register adds a kind. It fails if tag is empty or already registered,
// or if the schema is malformed (unknown field type, enum on a non-string,
// check expression that does not compile to a boolean).
func (r *Registry) Register(tag string, schema PropSchema, isContainer bool) error {
	return r.RegisterKind(Kind{Tag: tag, Schema: schema, Container: isContainer})
}

// RegisterKind is Register with a description attached.
func (r *Registry) RegisterKind(k Kind) error {
	if k.Tag == "" {
		return fmt.Errorf("register kind: tag is required")
	}

	fields := make(map[string]FieldSpec, len(k.Schema.Fields))
	for name, spec := range k.Schema.Fields {
		compiled, err := compileField(name, spec)
		if err != nil {
			return fmt.Errorf("register kind %q: %w", k.Tag, err)
		}
		fields[name] = compiled
	}
	k.Schema.Fields = fields

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[k.Tag]; exists {
		return fmt.Errorf("register kind %q: %w", k.Tag, ErrDuplicateKind)
	}
	r.kinds[k.Tag] = &k
	return nil
}

func compileField(name string, spec FieldSpec) (FieldSpec, error) {
	if spec.Type == "" {
		spec.Type = TypeAny
	}
	if !validFieldTypes[spec.Type] {
		return spec, fmt.Errorf("prop %q: unsupported type %q", name, spec.Type)
	}
	if len(spec.Enum) > 0 && spec.Type != TypeString {
		return spec, fmt.Errorf("prop %q: enum requires type string, got %q", name, spec.Type)
	}
	if (spec.Min != nil || spec.Max != nil) && spec.Type != TypeInt {
		return spec, fmt.Errorf("prop %q: min/max require type int, got %q", name, spec.Type)
	}
	if spec.Check != "" {
		program, err := expr.Compile(spec.Check, expr.AsBool())
		if err != nil {
			return spec, fmt.Errorf("prop %q: check %q: %w", name, spec.Check, err)
		}
		spec.program = program
	}
	return spec, nil
}

// Lookup returns the kind registered under tag.
func (r *Registry) Lookup(tag string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[tag]
	return k, ok
}

// IsContainer reports whether tag is a registered container kind.
// Unknown tags are not containers.
func (r *Registry) IsContainer(tag string) bool {
	k, ok := r.Lookup(tag)
	return ok && k.Container
}

// Tags returns all registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.kinds))
	for tag := range r.kinds {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Kinds returns all registered kinds in tag order.
func (r *Registry) Kinds() []Kind {
	tags := r.Tags()
	out := make([]Kind, 0, len(tags))
	for _, tag := range tags {
		if k, ok := r.Lookup(tag); ok {
			out = append(out, *k)
		}
	}
	return out
}
