package flat

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
)

// Rebuild reconstructs the forest of root nodes from rows.
//
// Rows are grouped by parent and sorted by order. Children attach only
// under container parents. Any row that is a duplicate, has an unknown
// type, a missing or leaf parent, a sibling order clash, or cannot be
// reached from a root (a parent cycle) makes the whole call fail with an
// *IntegrityError listing every such row. Props are validated too.
func Rebuild(rows []ir.Row, reg *registry.Registry) ([]*ir.Node, error) {
	b := &builder{
		reg:      reg,
		byID:     make(map[string]ir.Row, len(rows)),
		children: make(map[string][]ir.Row),
		flagged:  make(map[string]bool),
	}
	b.index(rows)
	b.checkRows()
	b.checkSiblings()
	roots := b.attach()

	if len(b.problems) > 0 || len(b.invalid) > 0 {
		slices.SortStableFunc(b.problems, func(x, y Problem) int {
			if c := cmp.Compare(x.RowID, y.RowID); c != 0 {
				return c
			}
			return cmp.Compare(x.Code, y.Code)
		})
		return nil, &IntegrityError{Problems: b.problems, Validation: b.invalid}
	}
	return roots, nil
}

type builder struct {
	reg      *registry.Registry
	byID     map[string]ir.Row
	ids      []string // distinct ids, sorted
	roots    []ir.Row
	children map[string][]ir.Row
	problems []Problem
	invalid  []registry.ValidationError
	flagged  map[string]bool // rows with a parent problem already reported
}

func (b *builder) fail(id, code, format string, args ...any) {
	b.problems = append(b.problems, Problem{RowID: id, Code: code, Reason: fmt.Sprintf(format, args...)})
}

func (b *builder) index(rows []ir.Row) {
	for _, r := range rows {
		if _, dup := b.byID[r.ID]; dup {
			b.fail(r.ID, CodeDuplicateID, "id appears in more than one row")
			continue
		}
		b.byID[r.ID] = r
		b.ids = append(b.ids, r.ID)
	}
	slices.Sort(b.ids)
}

func (b *builder) checkRows() {
	for _, id := range b.ids {
		r := b.byID[id]

		if r.Order < 0 {
			b.fail(id, CodeNegativeOrder, "order %d is negative", r.Order)
		}
		if _, known := b.reg.Lookup(r.Type); !known {
			b.fail(id, CodeUnknownType, "unknown component type %q", r.Type)
		} else {
			b.invalid = append(b.invalid, b.reg.ValidateProps(id, r.Type, r.Props)...)
		}

		if r.ParentID == nil {
			b.roots = append(b.roots, r)
			continue
		}
		pid := *r.ParentID
		parent, ok := b.byID[pid]
		switch {
		case !ok:
			b.fail(id, CodeMissingParent, "parent %q does not exist", pid)
			b.flagged[id] = true
		case pid == id:
			b.fail(id, CodeUnreachable, "row is its own parent")
			b.flagged[id] = true
		default:
			if kind, known := b.reg.Lookup(parent.Type); known && !kind.Container {
				b.fail(id, CodeLeafParent, "parent %q is a %q, which cannot have children", pid, parent.Type)
				b.flagged[id] = true
				continue
			}
			b.children[pid] = append(b.children[pid], r)
		}
	}
}

func byOrder(a, b ir.Row) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (b *builder) checkSiblings() {
	groups := [][]ir.Row{b.roots}
	parents := make([]string, 0, len(b.children))
	for pid := range b.children {
		parents = append(parents, pid)
	}
	slices.Sort(parents)
	for _, pid := range parents {
		groups = append(groups, b.children[pid])
	}

	for _, g := range groups {
		slices.SortFunc(g, byOrder)
		for i := 1; i < len(g); i++ {
			if g[i].Order == g[i-1].Order {
				b.fail(g[i].ID, CodeDuplicateOrder, "order %d is also used by sibling %q", g[i].Order, g[i-1].ID)
			}
		}
	}
}

// attach builds nodes top-down from the roots. Rows never reached sit on a
// parent cycle.
func (b *builder) attach() []*ir.Node {
	reached := make(map[string]bool, len(b.byID))

	var build func(r ir.Row, parentID string) *ir.Node
	build = func(r ir.Row, parentID string) *ir.Node {
		reached[r.ID] = true
		props := r.Props.Clone()
		if props == nil {
			props = ir.Object{}
		}
		n := &ir.Node{ID: r.ID, Type: r.Type, ParentID: parentID, Order: r.Order, Props: props}
		if b.reg.IsContainer(r.Type) {
			kids := b.children[r.ID]
			n.Children = make([]*ir.Node, 0, len(kids))
			for _, k := range kids {
				n.Children = append(n.Children, build(k, r.ID))
			}
		}
		return n
	}

	roots := make([]*ir.Node, 0, len(b.roots))
	for _, r := range b.roots {
		roots = append(roots, build(r, ""))
	}

	for _, id := range b.ids {
		r := b.byID[id]
		if reached[id] || b.flagged[id] {
			continue
		}
		if b.onCycle(id) {
			b.fail(id, CodeUnreachable, "parent chain loops back on itself")
		} else {
			b.fail(id, CodeUnreachable, "ancestor %q is not attached to the page", *r.ParentID)
		}
	}
	return roots
}

// onCycle reports whether following parent links from id revisits a row.
func (b *builder) onCycle(id string) bool {
	seen := make(map[string]bool)
	for {
		if seen[id] {
			return true
		}
		seen[id] = true
		r, ok := b.byID[id]
		if !ok || r.ParentID == nil {
			return false
		}
		id = *r.ParentID
	}
}
