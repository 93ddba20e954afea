// Package flat converts between the recursive component tree and the flat
// row set it is stored as.
//
// Structure lives only in each row's parent id and order; row emission
// order never matters. Rebuild refuses to guess: every row it cannot place
// is reported in one IntegrityError and nothing is dropped.
package flat

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
)

// Integrity problem codes.
const (
	CodeDuplicateID    = "duplicate_id"
	CodeUnknownType    = "unknown_type"
	CodeMissingParent  = "missing_parent"
	CodeLeafParent     = "leaf_parent"
	CodeDuplicateOrder = "duplicate_order"
	CodeNegativeOrder  = "negative_order"
	CodeUnreachable    = "unreachable"
)

// Problem is one row that cannot be rebuilt into the tree.
type Problem struct {
	RowID  string `json:"row_id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// IntegrityError reports every structural problem and props violation
// found in one Rebuild call.
type IntegrityError struct {
	Problems   []Problem                  `json:"problems,omitempty"`
	Validation []registry.ValidationError `json:"validation,omitempty"`
}

func (e *IntegrityError) Error() string {
	msgs := make([]string, 0, len(e.Problems)+len(e.Validation))
	for _, p := range e.Problems {
		msgs = append(msgs, fmt.Sprintf("row %s: %s: %s", p.RowID, p.Code, p.Reason))
	}
	for _, v := range e.Validation {
		msgs = append(msgs, v.Error())
	}
	return fmt.Sprintf("rebuild: %d integrity problems: %s", len(msgs), strings.Join(msgs, "; "))
}

// RowIDs returns the distinct ids of offending rows, sorted.
func (e *IntegrityError) RowIDs() []string {
	var ids []string
	for _, p := range e.Problems {
		ids = append(ids, p.RowID)
	}
	for _, v := range e.Validation {
		ids = append(ids, v.NodeID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Flatten emits one row per node, depth-first, parents before children.
// Parent ids come from the nesting itself. Props are copied.
func Flatten(roots []*ir.Node) []ir.Row {
	var rows []ir.Row
	var walk func(nodes []*ir.Node, parent *string)
	walk = func(nodes []*ir.Node, parent *string) {
		for _, n := range nodes {
			rows = append(rows, ir.Row{
				ID:       n.ID,
				ParentID: parent,
				Type:     n.Type,
				Order:    n.Order,
				Props:    n.Props.Clone(),
			})
			if len(n.Children) > 0 {
				id := n.ID
				walk(n.Children, &id)
			}
		}
	}
	walk(roots, nil)
	return rows
}

// RowOf returns the row for a single node using its ParentID field.
// Children are not included.
func RowOf(n *ir.Node) ir.Row {
	row := ir.Row{ID: n.ID, Type: n.Type, Order: n.Order, Props: n.Props.Clone()}
	if n.ParentID != "" {
		parent := n.ParentID
		row.ParentID = &parent
	}
	return row
}

// SortRows orders rows by parent (roots first), then order, then id.
// This is the order the store returns them in.
func SortRows(rows []ir.Row) {
	slices.SortFunc(rows, func(a, b ir.Row) int {
		if a.ParentID == nil && b.ParentID != nil {
			return -1
		}
		if a.ParentID != nil && b.ParentID == nil {
			return 1
		}
		if c := cmp.Compare(a.ParentKey(), b.ParentKey()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
