package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/pagetree/internal/ir"
)

// Export renders roots as an indented canonical document ending in a
// newline. Identical trees always export to identical bytes.
func Export(roots []*ir.Node) ([]byte, error) {
	arr := make(ir.Array, 0, len(roots))
	for _, n := range roots {
		obj, err := nodeObject(n)
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}

	compact, err := ir.MarshalCanonical(arr)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("export: indent: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func nodeObject(n *ir.Node) (ir.Object, error) {
	obj := make(ir.Object, len(n.Props)+3)
	for k, v := range n.Props {
		if isStructural(k) {
			return nil, fmt.Errorf("export %s: prop %q collides with a node field", n.ID, k)
		}
		obj[k] = v
	}
	obj["id"] = ir.String(n.ID)
	obj["type"] = ir.String(n.Type)
	if n.IsContainer() {
		children := make(ir.Array, 0, len(n.Children))
		for _, c := range n.Children {
			co, err := nodeObject(c)
			if err != nil {
				return nil, err
			}
			children = append(children, co)
		}
		obj["children"] = children
	}
	return obj, nil
}

func isStructural(key string) bool {
	return key == "id" || key == "type" || key == "children"
}
