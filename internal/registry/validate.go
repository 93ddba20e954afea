package registry

import (
	"fmt"
	"slices"

	"github.com/expr-lang/expr"

	"github.com/roach88/pagetree/internal/ir"
)

// reservedProps are node fields that can never travel inside props.
var reservedProps = []string{"id", "type", "children"}

// IsReservedProp reports whether key names a structural node field.
func IsReservedProp(key string) bool {
	return slices.Contains(reservedProps, key)
}

// Validate checks a raw node and, recursively, all of its children against
// the registry. It returns the typed node on success; otherwise it returns
// every violation found anywhere in the subtree.
//
// Children of the returned node have ParentID set to their parent and
// Order set to their index. The root's ParentID and Order are left zero for
// the caller (typically the tree editor) to assign.
func (r *Registry) Validate(raw ir.RawNode) (*ir.Node, []ValidationError) {
	v := &validation{reg: r, seen: make(map[string]bool)}
	node := v.node(raw)
	if len(v.errs) > 0 {
		return nil, v.errs
	}
	return node, nil
}

// ValidateForest validates several top-level raw nodes with one shared id
// namespace, as a page import does.
func (r *Registry) ValidateForest(raws []ir.RawNode) ([]*ir.Node, []ValidationError) {
	v := &validation{reg: r, seen: make(map[string]bool)}
	nodes := make([]*ir.Node, 0, len(raws))
	for i, raw := range raws {
		n := v.node(raw)
		n.Order = int64(i)
		nodes = append(nodes, n)
	}
	if len(v.errs) > 0 {
		return nil, v.errs
	}
	return nodes, nil
}

type validation struct {
	reg  *Registry
	seen map[string]bool
	errs []ValidationError
}

func (v *validation) add(e ValidationError) {
	v.errs = append(v.errs, e)
}

func (v *validation) node(raw ir.RawNode) *ir.Node {
	if raw.ID == "" {
		v.add(ValidationError{Type: raw.Type, Field: "id", Reason: "id is required", Code: CodeRequired})
	} else if v.seen[raw.ID] {
		v.add(ValidationError{NodeID: raw.ID, Type: raw.Type, Field: "id", Reason: "id is used by more than one node", Code: CodeDuplicateID})
	}
	v.seen[raw.ID] = true

	kind, known := v.reg.Lookup(raw.Type)
	if !known {
		v.add(ValidationError{
			NodeID: raw.ID,
			Type:   raw.Type,
			Field:  "type",
			Reason: fmt.Sprintf("unknown component type %q", raw.Type),
			Code:   CodeUnknownType,
		})
	}

	props, convErrs := convertProps(raw)
	v.errs = append(v.errs, convErrs...)
	if known {
		v.errs = append(v.errs, checkProps(raw.ID, kind, props, rawKeys(raw.Props))...)
	}

	node := &ir.Node{ID: raw.ID, Type: raw.Type, Props: props}

	if known {
		switch {
		case !kind.Container && raw.HasChildren:
			v.add(ValidationError{
				NodeID: raw.ID,
				Type:   raw.Type,
				Field:  "children",
				Reason: fmt.Sprintf("%q is a leaf component and cannot have children", raw.Type),
				Code:   CodeLeafChildren,
			})
		case kind.Container && !raw.HasChildren:
			v.add(ValidationError{
				NodeID: raw.ID,
				Type:   raw.Type,
				Field:  "children",
				Reason: fmt.Sprintf("%q is a container component and requires a children list", raw.Type),
				Code:   CodeMissingChildren,
			})
		}
		if kind.Container {
			node.Children = make([]*ir.Node, 0, len(raw.Children))
		}
	}

	// Recurse regardless of this node's own problems so every violation
	// in the subtree is reported in one pass.
	for i, child := range raw.Children {
		c := v.node(child)
		c.ParentID = raw.ID
		c.Order = int64(i)
		if node.Children != nil {
			node.Children = append(node.Children, c)
		}
	}

	return node
}

func rawKeys(props map[string]any) map[string]bool {
	keys := make(map[string]bool, len(props))
	for k := range props {
		keys[k] = true
	}
	return keys
}

// convertProps turns decoded Go values into ir values, reporting values
// that have no prop representation (floats, nulls, unsupported types).
func convertProps(raw ir.RawNode) (ir.Object, []ValidationError) {
	var errs []ValidationError
	props := make(ir.Object, len(raw.Props))

	keys := make([]string, 0, len(raw.Props))
	for k := range raw.Props {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		val, err := ir.FromGo(raw.Props[k])
		if err != nil {
			errs = append(errs, ValidationError{
				NodeID: raw.ID,
				Type:   raw.Type,
				Field:  k,
				Reason: err.Error(),
				Code:   CodeType,
			})
			continue
		}
		props[k] = val
	}
	return props, errs
}

// ValidateProps checks already-typed props against the schema of tag.
// Used for updates and rebuilt rows where props are ir values already.
func (r *Registry) ValidateProps(nodeID, tag string, props ir.Object) []ValidationError {
	kind, ok := r.Lookup(tag)
	if !ok {
		return []ValidationError{{
			NodeID: nodeID,
			Type:   tag,
			Field:  "type",
			Reason: fmt.Sprintf("unknown component type %q", tag),
			Code:   CodeUnknownType,
		}}
	}
	present := make(map[string]bool, len(props))
	for k := range props {
		present[k] = true
	}
	return checkProps(nodeID, kind, props, present)
}

// checkProps validates props against a kind's schema. present lists the
// keys supplied by the caller, including ones whose values failed
// conversion, so a bad value is not also reported as missing.
func checkProps(nodeID string, kind *Kind, props ir.Object, present map[string]bool) []ValidationError {
	var errs []ValidationError
	fail := func(field, code, reason string) {
		errs = append(errs, ValidationError{NodeID: nodeID, Type: kind.Tag, Field: field, Reason: reason, Code: code})
	}

	for _, key := range reservedProps {
		if present[key] {
			fail(key, CodeReservedProp, fmt.Sprintf("%q is a node field and cannot be set through props", key))
		}
	}

	names := make([]string, 0, len(kind.Schema.Fields))
	for name := range kind.Schema.Fields {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		spec := kind.Schema.Fields[name]
		val, ok := props[name]
		if !ok {
			if spec.Required && !present[name] {
				fail(name, CodeRequired, fmt.Sprintf("prop %q is required", name))
			}
			continue
		}
		if reason, ok := checkType(spec.Type, val); !ok {
			fail(name, CodeType, reason)
			continue
		}
		if len(spec.Enum) > 0 {
			s := string(val.(ir.String))
			if !slices.Contains(spec.Enum, s) {
				fail(name, CodeEnum, fmt.Sprintf("prop %q must be one of %v, got %q", name, spec.Enum, s))
			}
		}
		if n, isInt := val.(ir.Int); isInt {
			if spec.Min != nil && int64(n) < *spec.Min {
				fail(name, CodeMin, fmt.Sprintf("prop %q must be >= %d, got %d", name, *spec.Min, n))
			}
			if spec.Max != nil && int64(n) > *spec.Max {
				fail(name, CodeMax, fmt.Sprintf("prop %q must be <= %d, got %d", name, *spec.Max, n))
			}
		}
		if spec.program != nil {
			env := map[string]any{"value": ir.ToGo(val), "props": ir.ToGo(props)}
			out, err := expr.Run(spec.program, env)
			if err != nil {
				fail(name, CodeCheck, fmt.Sprintf("check %q: %v", spec.Check, err))
			} else if ok, _ := out.(bool); !ok {
				fail(name, CodeCheck, fmt.Sprintf("prop %q fails check %q", name, spec.Check))
			}
		}
	}

	if kind.Schema.Strict {
		keys := props.SortedKeys()
		for _, k := range keys {
			if _, declared := kind.Schema.Fields[k]; !declared && !IsReservedProp(k) {
				fail(k, CodeUnknownProp, fmt.Sprintf("prop %q is not declared for %q", k, kind.Tag))
			}
		}
	}

	return errs
}

func checkType(want string, val ir.Value) (string, bool) {
	got := ir.TypeName(val)
	if got == "null" {
		return "null values are not allowed in props", false
	}
	if want == TypeAny || want == got {
		return "", true
	}
	return fmt.Sprintf("expected %s, got %s", want, got), false
}
