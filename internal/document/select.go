package document

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Select evaluates a JSONPath expression against an exported document and
// returns the ids of the matched nodes in match order. Matches that are
// not node objects (a prop value, say) are skipped.
//
//	Select(doc, "$..[?(@.type == 'button')]")
func Select(data []byte, path string) ([]string, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("select: parse path %q: %w", path, err)
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("select: parse document: %w", err)
	}

	var ids []string
	seen := make(map[string]bool)
	for _, m := range x.Get(doc) {
		obj, ok := m.(map[string]any)
		if !ok {
			continue
		}
		id, ok := obj["id"].(string)
		if !ok || seen[id] {
			continue
		}
		if _, typed := obj["type"].(string); !typed {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
