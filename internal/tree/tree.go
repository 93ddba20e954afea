package tree

import (
	"encoding/json"
	"fmt"
	"slices"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
)

// DefaultOrderStep is the spacing used when siblings must be renumbered.
const DefaultOrderStep int64 = 1024

// Option configures a Tree.
type Option func(*Tree)

// WithOrderStep sets the spacing between sibling orders after a renumber.
// Values below 1 are ignored.
func WithOrderStep(step int64) Option {
	return func(t *Tree) {
		if step > 0 {
			t.step = step
		}
	}
}

// Placement reports where an inserted or moved node landed.
type Placement struct {
	ParentID string // "" when the node is a root
	Order    int64

	// Renumbered lists siblings whose order changed because no gap was
	// left at the insertion point. Empty in the common case.
	Renumbered []string
}

// Tree is the in-memory component tree of one page.
type Tree struct {
	pageID string
	reg    *registry.Registry
	roots  []*ir.Node
	index  map[string]*ir.Node
	step   int64
}

// New builds a tree over roots, taking ownership of the nodes. Siblings are
// sorted by order and parent links are set from the nesting. It fails if an
// id appears more than once or two siblings share an order.
func New(pageID string, reg *registry.Registry, roots []*ir.Node, opts ...Option) (*Tree, error) {
	if pageID == "" {
		return nil, fmt.Errorf("new tree: page id is required")
	}
	t := &Tree{
		pageID: pageID,
		reg:    reg,
		roots:  roots,
		index:  make(map[string]*ir.Node),
		step:   DefaultOrderStep,
	}
	for _, opt := range opts {
		opt(t)
	}

	sortByOrder(t.roots)
	for _, r := range t.roots {
		r.ParentID = ""
	}
	var err error
	ir.Walk(t.roots, func(n *ir.Node) bool {
		if err != nil {
			return false
		}
		if n.ID == pageID {
			err = &EditError{Code: ErrCodeDuplicateID, Op: "load", NodeID: n.ID, Message: "node id collides with the page id"}
			return false
		}
		if _, dup := t.index[n.ID]; dup {
			err = &EditError{Code: ErrCodeDuplicateID, Op: "load", NodeID: n.ID, Message: "id appears more than once"}
			return false
		}
		t.index[n.ID] = n
		sortByOrder(n.Children)
		for _, c := range n.Children {
			c.ParentID = n.ID
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	err = checkOrders(t.roots)
	ir.Walk(t.roots, func(n *ir.Node) bool {
		if err == nil {
			err = checkOrders(n.Children)
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// checkOrders expects sibs sorted by order.
func checkOrders(sibs []*ir.Node) error {
	for i := 1; i < len(sibs); i++ {
		if sibs[i].Order == sibs[i-1].Order {
			return &EditError{
				Code:    ErrCodeDuplicateOrder,
				Op:      "load",
				NodeID:  sibs[i].ID,
				Message: fmt.Sprintf("order %d is also used by sibling %q", sibs[i].Order, sibs[i-1].ID),
			}
		}
	}
	return nil
}

func sortByOrder(nodes []*ir.Node) {
	slices.SortStableFunc(nodes, func(a, b *ir.Node) int {
		switch {
		case a.Order < b.Order:
			return -1
		case a.Order > b.Order:
			return 1
		}
		return 0
	})
}

// PageID returns the id that addresses the page as a parent.
func (t *Tree) PageID() string { return t.pageID }

// Roots returns the page's top-level nodes in order. The slice and nodes
// are owned by the tree; use Snapshot for a copy.
func (t *Tree) Roots() []*ir.Node { return t.roots }

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.index) }

// Get looks up a node by id.
func (t *Tree) Get(id string) (*ir.Node, bool) {
	n, ok := t.index[id]
	return n, ok
}

// Snapshot returns a deep copy of the forest. Later edits do not affect it.
func (t *Tree) Snapshot() []*ir.Node {
	return ir.CloneForest(t.roots)
}

// Insert places node, with its subtree, relative to targetID. The subtree is
// validated against the registry and its ids must be new to the page.
func (t *Tree) Insert(node *ir.Node, targetID string, pos ir.Position) (Placement, error) {
	if node == nil {
		return Placement{}, fmt.Errorf("insert: node is nil")
	}
	if err := t.checkNewIDs(node); err != nil {
		return Placement{}, err
	}
	if errs := t.validateSubtree(node); len(errs) > 0 {
		return Placement{}, fmt.Errorf("insert %s: %w", node.ID, registry.ValidationErrors(errs))
	}
	parentID, err := t.resolveTarget("insert", node.ID, targetID, pos)
	if err != nil {
		return Placement{}, err
	}

	t.adopt(node)
	return t.place(node, parentID, t.slot(parentID, targetID, pos)), nil
}

// Remove detaches the node and its whole subtree and returns it. The
// returned root keeps its former ParentID and Order.
func (t *Tree) Remove(id string) (*ir.Node, error) {
	if id == t.pageID {
		return nil, &EditError{Code: ErrCodeInvalidTarget, Op: "remove", NodeID: id, Message: "the page itself cannot be removed"}
	}
	n, ok := t.index[id]
	if !ok {
		return nil, &EditError{Code: ErrCodeNotFound, Op: "remove", NodeID: id, Message: "node not found"}
	}

	t.detach(n)
	ir.Walk([]*ir.Node{n}, func(d *ir.Node) bool {
		delete(t.index, d.ID)
		return true
	})
	return n, nil
}

// Move reparents or repositions the node sourceID relative to targetID.
// It is rejected, before anything is touched, when targetID is sourceID or
// lies inside sourceID's subtree.
func (t *Tree) Move(sourceID, targetID string, pos ir.Position) (Placement, error) {
	if sourceID == t.pageID {
		return Placement{}, &EditError{Code: ErrCodeInvalidTarget, Op: "move", NodeID: sourceID, Message: "the page itself cannot be moved"}
	}
	src, ok := t.index[sourceID]
	if !ok {
		return Placement{}, &EditError{Code: ErrCodeNotFound, Op: "move", NodeID: sourceID, Message: "node not found"}
	}
	if targetID == sourceID {
		return Placement{}, &EditError{Code: ErrCodeCycle, Op: "move", NodeID: sourceID, TargetID: targetID, Message: "a node cannot be moved relative to itself"}
	}
	if t.IsAncestor(sourceID, targetID) {
		return Placement{}, &EditError{Code: ErrCodeCycle, Op: "move", NodeID: sourceID, TargetID: targetID, Message: "target lies inside the moved subtree"}
	}
	parentID, err := t.resolveTarget("move", sourceID, targetID, pos)
	if err != nil {
		return Placement{}, err
	}

	t.detach(src)
	return t.place(src, parentID, t.slot(parentID, targetID, pos)), nil
}

// Update merges partial into the node's props as an RFC 7386 merge patch: a
// Null value deletes the key. The merged props must still satisfy the
// node's schema. It returns the props held before the update.
func (t *Tree) Update(id string, partial ir.Object) (ir.Object, error) {
	if id == t.pageID {
		return nil, &EditError{Code: ErrCodeInvalidTarget, Op: "update", NodeID: id, Message: "page metadata is not node props"}
	}
	n, ok := t.index[id]
	if !ok {
		return nil, &EditError{Code: ErrCodeNotFound, Op: "update", NodeID: id, Message: "node not found"}
	}
	for _, key := range partial.SortedKeys() {
		if registry.IsReservedProp(key) {
			return nil, &EditError{
				Code:    ErrCodeCapability,
				Op:      "update",
				NodeID:  id,
				Message: fmt.Sprintf("%q cannot be changed through props; remove and insert a new node instead", key),
			}
		}
	}

	merged, err := MergeProps(n.Props, partial)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	if errs := t.reg.ValidateProps(n.ID, n.Type, merged); len(errs) > 0 {
		return nil, fmt.Errorf("update %s: %w", id, registry.ValidationErrors(errs))
	}

	prev := n.Props
	n.Props = merged
	return prev, nil
}

// SetProps replaces a node's props wholesale, bypassing validation. It is
// used to restore previously valid props on rollback.
func (t *Tree) SetProps(id string, props ir.Object) error {
	n, ok := t.index[id]
	if !ok {
		return &EditError{Code: ErrCodeNotFound, Op: "set props", NodeID: id, Message: "node not found"}
	}
	n.Props = props
	return nil
}

// IsAncestor reports whether ancestorID is a proper ancestor of id.
func (t *Tree) IsAncestor(ancestorID, id string) bool {
	n, ok := t.index[id]
	for ok && n.ParentID != "" {
		if n.ParentID == ancestorID {
			return true
		}
		n, ok = t.index[n.ParentID]
	}
	return false
}

// MergeProps applies partial to current as an RFC 7386 merge patch and
// returns a fresh object. Neither input is modified.
func MergeProps(current, partial ir.Object) (ir.Object, error) {
	if current == nil {
		current = ir.Object{}
	}
	doc, err := current.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal props: %w", err)
	}
	patch, err := partial.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, fmt.Errorf("merge props: %w", err)
	}
	var out ir.Object
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("decode merged props: %w", err)
	}
	return out, nil
}

// resolveTarget checks that pos is acceptable for targetID and returns the
// id of the parent the node will land under.
func (t *Tree) resolveTarget(op, nodeID, targetID string, pos ir.Position) (string, error) {
	if _, err := ir.ParsePosition(string(pos)); err != nil {
		return "", &EditError{Code: ErrCodeInvalidTarget, Op: op, NodeID: nodeID, TargetID: targetID, Message: err.Error()}
	}
	if targetID == t.pageID {
		if !pos.IsInside() {
			return "", &EditError{Code: ErrCodeInvalidTarget, Op: op, NodeID: nodeID, TargetID: targetID, Message: "nodes cannot be placed before or after the page"}
		}
		return "", nil
	}
	target, ok := t.index[targetID]
	if !ok {
		return "", &EditError{Code: ErrCodeNotFound, Op: op, NodeID: nodeID, TargetID: targetID, Message: "target not found"}
	}
	if pos.IsInside() {
		if !t.reg.IsContainer(target.Type) || target.Children == nil {
			return "", &EditError{
				Code:     ErrCodeInvalidTarget,
				Op:       op,
				NodeID:   nodeID,
				TargetID: targetID,
				Message:  fmt.Sprintf("%q is not a container and cannot hold children", target.Type),
			}
		}
		return target.ID, nil
	}
	return target.ParentID, nil
}

// slot returns the index in the parent's child list where the node goes.
func (t *Tree) slot(parentID, targetID string, pos ir.Position) int {
	sibs := *t.siblings(parentID)
	switch pos {
	case ir.PositionInside:
		return len(sibs)
	case ir.PositionInsideFirst:
		return 0
	}
	i := slices.IndexFunc(sibs, func(n *ir.Node) bool { return n.ID == targetID })
	if pos == ir.PositionAfter {
		i++
	}
	return i
}

func (t *Tree) siblings(parentID string) *[]*ir.Node {
	if parentID == "" {
		return &t.roots
	}
	return &t.index[parentID].Children
}

func (t *Tree) detach(n *ir.Node) {
	sibs := t.siblings(n.ParentID)
	if i := slices.Index(*sibs, n); i >= 0 {
		*sibs = slices.Delete(*sibs, i, i+1)
	}
}

func (t *Tree) place(node *ir.Node, parentID string, slot int) Placement {
	sibs := t.siblings(parentID)
	order, renumber := t.orderAt(*sibs, slot)

	*sibs = slices.Insert(*sibs, slot, node)
	node.ParentID = parentID

	var renumbered []string
	if renumber {
		for i, s := range *sibs {
			o := int64(i) * t.step
			if s != node && s.Order != o {
				renumbered = append(renumbered, s.ID)
			}
			s.Order = o
		}
	} else {
		node.Order = order
	}

	ir.Walk([]*ir.Node{node}, func(d *ir.Node) bool {
		t.index[d.ID] = d
		return true
	})
	return Placement{ParentID: parentID, Order: node.Order, Renumbered: renumbered}
}

// orderAt picks an order key for a node inserted at slot in sibs. The
// second result is true when no gap exists and siblings must be renumbered.
func (t *Tree) orderAt(sibs []*ir.Node, slot int) (int64, bool) {
	switch {
	case len(sibs) == 0:
		return 0, false
	case slot >= len(sibs):
		return sibs[len(sibs)-1].Order + t.step, false
	case slot == 0:
		if first := sibs[0].Order; first > 0 {
			return first / 2, false
		}
		return 0, true
	}
	lo, hi := sibs[slot-1].Order, sibs[slot].Order
	if hi-lo >= 2 {
		return lo + (hi-lo)/2, false
	}
	return 0, true
}

func (t *Tree) checkNewIDs(node *ir.Node) error {
	seen := make(map[string]bool)
	var err error
	ir.Walk([]*ir.Node{node}, func(n *ir.Node) bool {
		if err != nil {
			return false
		}
		_, exists := t.index[n.ID]
		if exists || seen[n.ID] || n.ID == t.pageID {
			err = &EditError{Code: ErrCodeDuplicateID, Op: "insert", NodeID: n.ID, Message: "id already exists in the page"}
			return false
		}
		seen[n.ID] = true
		return true
	})
	return err
}

func (t *Tree) validateSubtree(node *ir.Node) []registry.ValidationError {
	var errs []registry.ValidationError
	ir.Walk([]*ir.Node{node}, func(n *ir.Node) bool {
		if n.ID == "" {
			errs = append(errs, registry.ValidationError{Type: n.Type, Field: "id", Reason: "id is required", Code: registry.CodeRequired})
		}
		errs = append(errs, t.reg.ValidateProps(n.ID, n.Type, n.Props)...)
		kind, known := t.reg.Lookup(n.Type)
		switch {
		case !known:
		case kind.Container && n.Children == nil:
			errs = append(errs, registry.ValidationError{
				NodeID: n.ID, Type: n.Type, Field: "children",
				Reason: fmt.Sprintf("%q is a container component and requires a children list", n.Type),
				Code:   registry.CodeMissingChildren,
			})
		case !kind.Container && n.Children != nil:
			errs = append(errs, registry.ValidationError{
				NodeID: n.ID, Type: n.Type, Field: "children",
				Reason: fmt.Sprintf("%q is a leaf component and cannot have children", n.Type),
				Code:   registry.CodeLeafChildren,
			})
		}
		return true
	})
	return errs
}

// adopt links an inserted subtree's children to their parents and spaces
// their orders by list position. The subtree root gets its order from place.
func (t *Tree) adopt(node *ir.Node) {
	ir.Walk([]*ir.Node{node}, func(n *ir.Node) bool {
		for i, c := range n.Children {
			c.ParentID = n.ID
			c.Order = int64(i) * t.step
		}
		return true
	})
}
