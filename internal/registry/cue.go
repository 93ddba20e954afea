package registry

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed builtin.cue
var builtinCUE []byte

// Builtin returns a registry holding the standard component kinds
// (layout containers, form fields, buttons, tables, ...).
// Panics if the embedded definitions fail to compile.
func Builtin() *Registry {
	r := New()
	if err := r.LoadCUE(builtinCUE, "builtin.cue"); err != nil {
		panic(fmt.Sprintf("registry: builtin kinds: %v", err))
	}
	return r
}

// LoadFile compiles a CUE kinds file and registers every kind in it.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read kinds file: %w", err)
	}
	return r.LoadCUE(data, path)
}

// LoadCUE compiles CUE source and registers every kind under `kind:`.
// Registration is all-or-nothing: on error no kind from src is added.
func (r *Registry) LoadCUE(src []byte, filename string) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return formatCUEError(err)
	}

	kinds, err := CompileKinds(v)
	if err != nil {
		return err
	}

	for _, k := range kinds {
		if existing, ok := r.Lookup(k.Tag); ok {
			return fmt.Errorf("load kinds: %q: %w (container=%v)", k.Tag, ErrDuplicateKind, existing.Container)
		}
	}
	for _, k := range kinds {
		if err := r.RegisterKind(k); err != nil {
			return err
		}
	}
	return nil
}

// CompileKinds parses the `kind` struct of a CUE value into Kinds.
//
//	kind: <tag>: {
//		container?:   bool
//		description?: string
//		strict?:      bool
//		props?:       { <name>: <cue type> }
//		checks?:      { <name>: <expr> }
//		min?:         { <name>: int }
//		max?:         { <name>: int }
//	}
func CompileKinds(v cue.Value) ([]Kind, error) {
	kindsVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindsVal.Exists() {
		return nil, &CompileError{Field: "kind", Message: "no kind definitions found", Pos: v.Pos()}
	}

	iter, err := kindsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var kinds []Kind
	for iter.Next() {
		k, err := compileKind(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func compileKind(tag string, v cue.Value) (Kind, error) {
	k := Kind{
		Tag:    tag,
		Schema: PropSchema{Fields: make(map[string]FieldSpec)},
	}

	if c := v.LookupPath(cue.ParsePath("container")); c.Exists() {
		b, err := c.Bool()
		if err != nil {
			return k, formatCUEError(err)
		}
		k.Container = b
	}
	if d := v.LookupPath(cue.ParsePath("description")); d.Exists() {
		s, err := d.String()
		if err != nil {
			return k, formatCUEError(err)
		}
		k.Description = s
	}
	if s := v.LookupPath(cue.ParsePath("strict")); s.Exists() {
		b, err := s.Bool()
		if err != nil {
			return k, formatCUEError(err)
		}
		k.Schema.Strict = b
	}

	if propsVal := v.LookupPath(cue.ParsePath("props")); propsVal.Exists() {
		fieldIter, err := propsVal.Fields(cue.Optional(true))
		if err != nil {
			return k, formatCUEError(err)
		}
		for fieldIter.Next() {
			name := fieldIter.Selector().Unquoted()
			spec, err := compileFieldSpec(tag, name, fieldIter.Value())
			if err != nil {
				return k, err
			}
			spec.Required = !fieldIter.IsOptional()
			k.Schema.Fields[name] = spec
		}
	}

	if err := applyFieldStrings(v, "checks", k.Schema.Fields, tag, func(f *FieldSpec, s string) { f.Check = s }); err != nil {
		return k, err
	}
	if err := applyFieldInts(v, "min", k.Schema.Fields, tag, func(f *FieldSpec, n int64) { f.Min = &n }); err != nil {
		return k, err
	}
	if err := applyFieldInts(v, "max", k.Schema.Fields, tag, func(f *FieldSpec, n int64) { f.Max = &n }); err != nil {
		return k, err
	}

	return k, nil
}

// compileFieldSpec converts a CUE prop declaration to a FieldSpec.
// Floats are forbidden: props carry ints only.
func compileFieldSpec(tag, name string, v cue.Value) (FieldSpec, error) {
	var spec FieldSpec
	switch v.IncompleteKind() {
	case cue.StringKind:
		spec.Type = TypeString
		spec.Enum = stringDisjuncts(v)
	case cue.IntKind:
		spec.Type = TypeInt
	case cue.BoolKind:
		spec.Type = TypeBool
	case cue.ListKind:
		spec.Type = TypeArray
	case cue.StructKind:
		spec.Type = TypeObject
	case cue.TopKind:
		spec.Type = TypeAny
	case cue.FloatKind, cue.NumberKind:
		return spec, &CompileError{
			Field:   fmt.Sprintf("kind.%s.props.%s", tag, name),
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return spec, &CompileError{
			Field:   fmt.Sprintf("kind.%s.props.%s", tag, name),
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	return spec, nil
}

// stringDisjuncts returns the literals of a `"a" | "b"` declaration, or
// nil when the value is not a disjunction of concrete strings.
func stringDisjuncts(v cue.Value) []string {
	op, args := v.Expr()
	if op != cue.OrOp {
		if s, err := v.String(); err == nil && v.IsConcrete() {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(args))
	for _, a := range args {
		s, err := a.String()
		if err != nil || !a.IsConcrete() {
			return nil
		}
		out = append(out, s)
	}
	return out
}

func applyFieldStrings(v cue.Value, section string, fields map[string]FieldSpec, tag string, set func(*FieldSpec, string)) error {
	sec := v.LookupPath(cue.ParsePath(section))
	if !sec.Exists() {
		return nil
	}
	iter, err := sec.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		f, ok := fields[name]
		if !ok {
			return &CompileError{
				Field:   fmt.Sprintf("kind.%s.%s.%s", tag, section, name),
				Message: "refers to an undeclared prop",
				Pos:     iter.Value().Pos(),
			}
		}
		s, err := iter.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		set(&f, s)
		fields[name] = f
	}
	return nil
}

func applyFieldInts(v cue.Value, section string, fields map[string]FieldSpec, tag string, set func(*FieldSpec, int64)) error {
	sec := v.LookupPath(cue.ParsePath(section))
	if !sec.Exists() {
		return nil
	}
	iter, err := sec.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		f, ok := fields[name]
		if !ok {
			return &CompileError{
				Field:   fmt.Sprintf("kind.%s.%s.%s", tag, section, name),
				Message: "refers to an undeclared prop",
				Pos:     iter.Value().Pos(),
			}
		}
		n, err := iter.Value().Int64()
		if err != nil {
			return formatCUEError(err)
		}
		set(&f, n)
		fields[name] = f
	}
	return nil
}
