package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/pagetree/internal/flat"
	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
	"github.com/roach88/pagetree/internal/tree"
)

// Import decodes a document and validates every node in it against reg.
// A single top-level object is accepted as a one-node document. When pageID
// is set, no node may reuse it as an id.
//
// Validation is all-or-nothing: any problem anywhere, structural or from the
// registry, returns registry.ValidationErrors listing all of them, and no
// nodes. Sibling orders are spaced by tree.DefaultOrderStep and the result
// passes the same integrity checks as a stored page.
func Import(data []byte, pageID string, reg *registry.Registry) ([]*ir.Node, error) {
	raws, errs, err := decode(data)
	if err != nil {
		return nil, err
	}
	nodes, verrs := reg.ValidateForest(raws)
	errs = append(errs, verrs...)
	if pageID != "" {
		errs = append(errs, pageIDCollisions(raws, pageID)...)
	}
	if len(errs) > 0 {
		return nil, registry.ValidationErrors(errs)
	}

	space(nodes)
	roots, err := flat.Rebuild(flat.Flatten(nodes), reg)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return roots, nil
}

// Decode parses a document into raw nodes without validating kinds or
// props. Structural problems (a non-string id, children that is not an
// array, a node that is not an object) are reported as ValidationErrors.
func Decode(data []byte) ([]ir.RawNode, error) {
	raws, errs, err := decode(data)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, registry.ValidationErrors(errs)
	}
	return raws, nil
}

// decode returns the raw nodes it could read along with any structural
// problems. The error is set only when the input is not a document at all.
func decode(data []byte) ([]ir.RawNode, []registry.ValidationError, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, nil, fmt.Errorf("decode document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, fmt.Errorf("decode document: trailing data after top-level value")
	}

	var items []any
	switch v := top.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, nil, fmt.Errorf("decode document: expected an array or object, got %s", jsonKind(top))
	}

	d := &decoder{}
	raws := d.nodes(items, "")
	return raws, d.errs, nil
}

func pageIDCollisions(raws []ir.RawNode, pageID string) []registry.ValidationError {
	var errs []registry.ValidationError
	for _, raw := range raws {
		if raw.ID == pageID {
			errs = append(errs, registry.ValidationError{
				NodeID: raw.ID,
				Type:   raw.Type,
				Field:  "id",
				Reason: "id collides with the page id",
				Code:   registry.CodeDuplicateID,
			})
		}
		errs = append(errs, pageIDCollisions(raw.Children, pageID)...)
	}
	return errs
}

type decoder struct {
	errs []registry.ValidationError
}

func (d *decoder) fail(nodeID, typ, field, reason string) {
	d.errs = append(d.errs, registry.ValidationError{NodeID: nodeID, Type: typ, Field: field, Reason: reason, Code: registry.CodeType})
}

func (d *decoder) nodes(items []any, parentID string) []ir.RawNode {
	out := make([]ir.RawNode, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			d.fail("", "", "node", fmt.Sprintf("child %d of %q must be an object, got %s", i, parentID, jsonKind(item)))
			continue
		}
		out = append(out, d.node(obj))
	}
	return out
}

func (d *decoder) node(obj map[string]any) ir.RawNode {
	var raw ir.RawNode
	if v, ok := obj["id"]; ok {
		if s, ok := v.(string); ok {
			raw.ID = s
		} else {
			d.fail("", "", "id", fmt.Sprintf("id must be a string, got %s", jsonKind(v)))
		}
	}
	if v, ok := obj["type"]; ok {
		if s, ok := v.(string); ok {
			raw.Type = s
		} else {
			d.fail(raw.ID, "", "type", fmt.Sprintf("type must be a string, got %s", jsonKind(v)))
		}
	}

	raw.Props = make(map[string]any, len(obj))
	for k, v := range obj {
		if !isStructural(k) {
			raw.Props[k] = v
		}
	}

	if v, ok := obj["children"]; ok {
		raw.HasChildren = true
		list, ok := v.([]any)
		if !ok {
			d.fail(raw.ID, raw.Type, "children", fmt.Sprintf("children must be an array, got %s", jsonKind(v)))
		} else {
			raw.Children = d.nodes(list, raw.ID)
		}
	}
	return raw
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// space rewrites sibling orders as i*DefaultOrderStep so later inserts
// find gaps.
func space(nodes []*ir.Node) {
	for i, n := range nodes {
		n.Order = int64(i) * tree.DefaultOrderStep
		if n.Children != nil {
			space(n.Children)
		}
	}
}
