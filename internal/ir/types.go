package ir

import "fmt"

// Node is one element of a page's component tree.
//
// Children is non-nil (possibly empty) only for container variants; a leaf
// always has nil Children. ParentID is empty for nodes owned directly by the
// page. Order is the sibling sort key; values are unique among siblings but
// need not be contiguous.
type Node struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	ParentID string  `json:"parent_id,omitempty"`
	Order    int64   `json:"order"`
	Props    Object  `json:"props"`
	Children []*Node `json:"children,omitempty"`
}

// IsContainer reports whether the node carries a children list.
func (n *Node) IsContainer() bool {
	return n.Children != nil
}

// Clone returns a deep copy of the subtree rooted at n.
// A nil-vs-empty Children distinction is preserved.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		ID:       n.ID,
		Type:     n.Type,
		ParentID: n.ParentID,
		Order:    n.Order,
		Props:    n.Props.Clone(),
	}
	if n.Children != nil {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn skips the node's children.
func Walk(nodes []*Node, fn func(n *Node) bool) {
	for _, n := range nodes {
		if fn(n) {
			Walk(n.Children, fn)
		}
	}
}

// CloneForest deep-copies a list of root nodes.
func CloneForest(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Row is the relational storage shape of a node: one row per node,
// children never stored inline. ParentID is nil for page-level nodes.
type Row struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`
	Type     string  `json:"type"`
	Order    int64   `json:"order"`
	Props    Object  `json:"props"`
}

// ParentKey returns the parent id, or "" for a root row.
func (r Row) ParentKey() string {
	if r.ParentID == nil {
		return ""
	}
	return *r.ParentID
}

// RawNode is an unvalidated node as supplied by an import, an API caller
// or an external generator. Props keep their decoded Go values so the
// validator can report wrong types instead of failing at decode time.
//
// HasChildren records whether a children field was supplied at all, so a
// leaf carrying an empty children list is still reported.
type RawNode struct {
	ID          string
	Type        string
	Props       map[string]any
	Children    []RawNode
	HasChildren bool
}

// Position says where an inserted or moved node lands relative to its target.
type Position string

// Valid positions. PositionInside appends to the target's children and
// PositionInsideFirst prepends; both require a container target.
const (
	PositionBefore      Position = "before"
	PositionAfter       Position = "after"
	PositionInside      Position = "inside"
	PositionInsideFirst Position = "inside_first"
)

// ParsePosition converts a string to a Position.
func ParsePosition(s string) (Position, error) {
	switch p := Position(s); p {
	case PositionBefore, PositionAfter, PositionInside, PositionInsideFirst:
		return p, nil
	default:
		return "", fmt.Errorf("invalid position %q: must be one of before, after, inside, inside_first", s)
	}
}

// IsInside reports whether the position places the node into the target.
func (p Position) IsInside() bool {
	return p == PositionInside || p == PositionInsideFirst
}

// PageMeta is page-level metadata stored next to the node rows.
// Route and variables belong to the page, not to the tree engine.
type PageMeta struct {
	ID        string `json:"id"`
	Route     string `json:"route"`
	Variables Object `json:"variables"`
	Revision  int64  `json:"revision"`
}
