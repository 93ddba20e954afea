package tree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagetree/internal/flat"
	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
)

const page = "page-1"

func column(id string, children ...*ir.Node) *ir.Node {
	if children == nil {
		children = []*ir.Node{}
	}
	for i, c := range children {
		c.Order = int64(i)
	}
	return &ir.Node{ID: id, Type: "column", Props: ir.Object{}, Children: children}
}

func heading(id, text string) *ir.Node {
	return &ir.Node{ID: id, Type: "heading", Props: ir.Object{"text": ir.String(text)}}
}

func button(id, label string) *ir.Node {
	return &ir.Node{ID: id, Type: "button", Props: ir.Object{"label": ir.String(label)}}
}

// sampleTree builds Page{ c1: column[ h1: heading, b1: button ] }.
func sampleTree(t *testing.T, opts ...Option) *Tree {
	t.Helper()
	tr, err := New(page, registry.Builtin(), []*ir.Node{column("c1", heading("h1", "Title"), button("b1", "Go"))}, opts...)
	require.NoError(t, err)
	return tr
}

func childIDs(nodes []*ir.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestNewIndexesAllNodes(t *testing.T) {
	tr := sampleTree(t)
	assert.Equal(t, 3, tr.Len())

	h1, ok := tr.Get("h1")
	require.True(t, ok)
	assert.Equal(t, "c1", h1.ParentID)
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New(page, registry.Builtin(), []*ir.Node{
		column("c1", heading("x", "a")),
		heading("x", "b"),
	})
	require.Error(t, err)
	assert.True(t, IsDuplicateIDError(err))
}

func TestNewSortsSiblingsByOrder(t *testing.T) {
	a, b := heading("a", "A"), heading("b", "B")
	a.Order, b.Order = 10, 5
	tr, err := New(page, registry.Builtin(), []*ir.Node{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, childIDs(tr.Roots()))
}

func TestNewRejectsDuplicateSiblingOrders(t *testing.T) {
	a, b := heading("a", "A"), heading("b", "B")
	c := column("c1", a, b)
	b.Order = a.Order

	_, err := New(page, registry.Builtin(), []*ir.Node{c})
	require.Error(t, err)
	assert.True(t, IsDuplicateOrderError(err))

	r1, r2 := heading("r1", "One"), heading("r2", "Two")
	_, err = New(page, registry.Builtin(), []*ir.Node{r1, r2})
	assert.True(t, IsDuplicateOrderError(err))
}

func TestInsertSubtreeSpacesChildOrders(t *testing.T) {
	tr := sampleTree(t)

	c2 := column("c2", heading("h2", "Sub"), button("b2", "Sub"))
	for _, n := range c2.Children {
		n.Order = 0
	}
	_, err := tr.Insert(c2, page, ir.PositionInside)
	require.NoError(t, err)

	got, ok := tr.Get("c2")
	require.True(t, ok)
	assert.Equal(t, []int64{0, DefaultOrderStep}, orders(got.Children))
	for _, n := range got.Children {
		assert.Equal(t, "c2", n.ParentID)
	}

	rebuilt, err := flat.Rebuild(flat.Flatten(tr.Roots()), registry.Builtin())
	require.NoError(t, err)
	again, err := New(page, registry.Builtin(), rebuilt)
	require.NoError(t, err)
	assert.Equal(t, tr.Len(), again.Len())
	wantRows, gotRows := flat.Flatten(tr.Roots()), flat.Flatten(again.Roots())
	flat.SortRows(wantRows)
	flat.SortRows(gotRows)
	assert.Equal(t, wantRows, gotRows)
}

func TestInsertInsideAppendsAndPrepends(t *testing.T) {
	tr := sampleTree(t)

	p, err := tr.Insert(button("b2", "Last"), "c1", ir.PositionInside)
	require.NoError(t, err)
	assert.Equal(t, "c1", p.ParentID)

	_, err = tr.Insert(button("b0", "First"), "c1", ir.PositionInsideFirst)
	require.NoError(t, err)

	c1, _ := tr.Get("c1")
	assert.Equal(t, []string{"b0", "h1", "b1", "b2"}, childIDs(c1.Children))
	assertOrdersIncrease(t, c1.Children)
}

func TestInsertBeforeAndAfter(t *testing.T) {
	tr := sampleTree(t)

	_, err := tr.Insert(button("x", "X"), "b1", ir.PositionBefore)
	require.NoError(t, err)
	_, err = tr.Insert(button("y", "Y"), "h1", ir.PositionBefore)
	require.NoError(t, err)
	_, err = tr.Insert(button("z", "Z"), "b1", ir.PositionAfter)
	require.NoError(t, err)

	c1, _ := tr.Get("c1")
	assert.Equal(t, []string{"y", "h1", "x", "b1", "z"}, childIDs(c1.Children))
	assertOrdersIncrease(t, c1.Children)

	x, _ := tr.Get("x")
	assert.Equal(t, "c1", x.ParentID)
}

func TestInsertIntoPageAddsRoot(t *testing.T) {
	tr := sampleTree(t)

	p, err := tr.Insert(heading("top", "Top"), page, ir.PositionInsideFirst)
	require.NoError(t, err)
	assert.Equal(t, "", p.ParentID)
	assert.Equal(t, []string{"top", "c1"}, childIDs(tr.Roots()))
}

func TestInsertBeforePageIsInvalid(t *testing.T) {
	tr := sampleTree(t)
	_, err := tr.Insert(heading("top", "Top"), page, ir.PositionBefore)
	assert.True(t, IsInvalidTargetError(err))
}

func TestInsertInsideLeafFails(t *testing.T) {
	tr := sampleTree(t)
	before := tr.Snapshot()

	_, err := tr.Insert(heading("h2", "x"), "b1", ir.PositionInside)
	require.Error(t, err)
	assert.True(t, IsInvalidTargetError(err))
	assert.Empty(t, cmp.Diff(before, tr.Snapshot()))
	_, ok := tr.Get("h2")
	assert.False(t, ok)
}

func TestInsertUnknownTarget(t *testing.T) {
	_, err := sampleTree(t).Insert(heading("h2", "x"), "nope", ir.PositionAfter)
	assert.True(t, IsNotFound(err))
}

func TestInsertDuplicateID(t *testing.T) {
	_, err := sampleTree(t).Insert(heading("b1", "x"), "c1", ir.PositionInside)
	assert.True(t, IsDuplicateIDError(err))
}

func TestInsertValidatesSubtree(t *testing.T) {
	tr := sampleTree(t)

	bad := &ir.Node{ID: "b9", Type: "button", Props: ir.Object{}, Children: []*ir.Node{}}
	_, err := tr.Insert(bad, "c1", ir.PositionInside)
	require.Error(t, err)

	var verrs registry.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	codes := []string{}
	for _, e := range verrs {
		codes = append(codes, e.Code)
	}
	assert.ElementsMatch(t, []string{registry.CodeRequired, registry.CodeLeafChildren}, codes)
	assert.Equal(t, 3, tr.Len())
}

func TestInsertRemoveInverse(t *testing.T) {
	tr := sampleTree(t)
	before := tr.Snapshot()

	_, err := tr.Insert(button("n", "New"), "c1", ir.PositionInside)
	require.NoError(t, err)
	_, err = tr.Remove("n")
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(before, tr.Snapshot()))
}

func TestInsertRemoveInversePreservesRelativeOrder(t *testing.T) {
	tr := sampleTree(t)

	// No gap between h1 and b1, so siblings get renumbered on insert.
	_, err := tr.Insert(button("n", "New"), "h1", ir.PositionAfter)
	require.NoError(t, err)
	_, err = tr.Remove("n")
	require.NoError(t, err)

	c1, _ := tr.Get("c1")
	assert.Equal(t, []string{"h1", "b1"}, childIDs(c1.Children))
	assertOrdersIncrease(t, c1.Children)
	assert.Equal(t, ir.Object{"label": ir.String("Go")}, c1.Children[1].Props)
}

func TestInsertRenumbersWhenNoGap(t *testing.T) {
	tr := sampleTree(t, WithOrderStep(10))

	// h1 and b1 have orders 0 and 1: no gap between them.
	p, err := tr.Insert(button("mid", "Mid"), "b1", ir.PositionBefore)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Order)
	assert.Equal(t, []string{"b1"}, p.Renumbered, "h1 keeps order 0")

	c1, _ := tr.Get("c1")
	assert.Equal(t, []int64{0, 10, 20}, orders(c1.Children))

	// Now there is room: the next insert takes the midpoint and renumbers nothing.
	p, err = tr.Insert(button("q", "Q"), "b1", ir.PositionBefore)
	require.NoError(t, err)
	assert.Equal(t, int64(15), p.Order)
	assert.Empty(t, p.Renumbered)
}

func TestRemoveCascades(t *testing.T) {
	tr := sampleTree(t)

	removed, err := tr.Remove("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "b1"}, childIDs(removed.Children))

	for _, id := range []string{"c1", "h1", "b1"} {
		_, ok := tr.Get(id)
		assert.False(t, ok, id)
	}
	assert.Empty(t, tr.Roots())
	assert.Equal(t, 0, tr.Len())
}

func TestRemoveKeepsSiblingGaps(t *testing.T) {
	tr := sampleTree(t)
	_, err := tr.Insert(button("b2", "B2"), "c1", ir.PositionInside)
	require.NoError(t, err)

	_, err = tr.Remove("b1")
	require.NoError(t, err)

	c1, _ := tr.Get("c1")
	assert.Equal(t, []string{"h1", "b2"}, childIDs(c1.Children))
	assert.Equal(t, []int64{0, 1 + DefaultOrderStep}, orders(c1.Children))
}

func TestRemoveErrors(t *testing.T) {
	tr := sampleTree(t)
	_, err := tr.Remove("missing")
	assert.True(t, IsNotFound(err))

	_, err = tr.Remove(page)
	assert.True(t, IsInvalidTargetError(err))
}

func TestMoveCycleRejected(t *testing.T) {
	tr, err := New(page, registry.Builtin(), []*ir.Node{column("c1", heading("h1", "x"))})
	require.NoError(t, err)
	before := tr.Snapshot()

	_, err = tr.Move("c1", "h1", ir.PositionInside)
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
	assert.Empty(t, cmp.Diff(before, tr.Snapshot()))
}

func TestMoveIntoOwnDescendantContainer(t *testing.T) {
	inner := column("c2")
	tr, err := New(page, registry.Builtin(), []*ir.Node{column("c1", inner)})
	require.NoError(t, err)
	before := tr.Snapshot()

	for _, pos := range []ir.Position{ir.PositionInside, ir.PositionBefore, ir.PositionAfter} {
		_, err = tr.Move("c1", "c2", pos)
		assert.True(t, IsCycleError(err), pos)
	}
	_, err = tr.Move("c1", "c1", ir.PositionAfter)
	assert.True(t, IsCycleError(err))
	assert.Empty(t, cmp.Diff(before, tr.Snapshot()))
}

func TestMoveToRootBeforeContainer(t *testing.T) {
	tr := sampleTree(t)

	p, err := tr.Move("b1", "c1", ir.PositionBefore)
	require.NoError(t, err)
	assert.Equal(t, "", p.ParentID)

	assert.Equal(t, []string{"b1", "c1"}, childIDs(tr.Roots()))
	b1, _ := tr.Get("b1")
	c1, _ := tr.Get("c1")
	assert.Equal(t, "", b1.ParentID)
	assert.Less(t, b1.Order, c1.Order)
	assert.Equal(t, []string{"h1"}, childIDs(c1.Children))
}

func TestMoveWithinSameParent(t *testing.T) {
	tr := sampleTree(t)

	_, err := tr.Move("h1", "b1", ir.PositionAfter)
	require.NoError(t, err)

	c1, _ := tr.Get("c1")
	assert.Equal(t, []string{"b1", "h1"}, childIDs(c1.Children))
	assertOrdersIncrease(t, c1.Children)
}

func TestMoveCarriesSubtree(t *testing.T) {
	tr := sampleTree(t)
	_, err := tr.Insert(column("c2"), page, ir.PositionInside)
	require.NoError(t, err)

	_, err = tr.Move("c1", "c2", ir.PositionInside)
	require.NoError(t, err)

	assert.Equal(t, []string{"c2"}, childIDs(tr.Roots()))
	h1, ok := tr.Get("h1")
	require.True(t, ok)
	assert.Equal(t, "c1", h1.ParentID)
	assert.True(t, tr.IsAncestor("c2", "h1"))
}

func TestMoveInsideLeafLeavesTreeUnchanged(t *testing.T) {
	tr := sampleTree(t)
	before := tr.Snapshot()

	_, err := tr.Move("h1", "b1", ir.PositionInside)
	assert.True(t, IsInvalidTargetError(err))
	assert.Empty(t, cmp.Diff(before, tr.Snapshot()))
}

func TestUpdateMergesProps(t *testing.T) {
	tr := sampleTree(t)

	prev, err := tr.Update("b1", ir.Object{"variant": ir.String("primary")})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"label": ir.String("Go")}, prev)

	b1, _ := tr.Get("b1")
	assert.Equal(t, ir.Object{"label": ir.String("Go"), "variant": ir.String("primary")}, b1.Props)
}

func TestUpdateNullDeletesKey(t *testing.T) {
	tr := sampleTree(t)
	_, err := tr.Update("b1", ir.Object{"variant": ir.String("link")})
	require.NoError(t, err)

	_, err = tr.Update("b1", ir.Object{"variant": ir.Null{}})
	require.NoError(t, err)

	b1, _ := tr.Get("b1")
	assert.Equal(t, ir.Object{"label": ir.String("Go")}, b1.Props)
}

func TestUpdateRejectsReservedKeys(t *testing.T) {
	tr := sampleTree(t)
	for _, key := range []string{"type", "id", "children"} {
		_, err := tr.Update("b1", ir.Object{key: ir.String("column")})
		assert.True(t, IsCapabilityError(err), key)
	}
	b1, _ := tr.Get("b1")
	assert.Equal(t, "button", b1.Type)
}

func TestUpdateInvalidPropsLeavesNodeUnchanged(t *testing.T) {
	tr := sampleTree(t)

	_, err := tr.Update("h1", ir.Object{"level": ir.Int(9)})
	require.Error(t, err)
	var verrs registry.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, registry.CodeMax, verrs[0].Code)

	_, err = tr.Update("h1", ir.Object{"text": ir.Null{}})
	require.Error(t, err, "required prop cannot be deleted")

	h1, _ := tr.Get("h1")
	assert.Equal(t, ir.Object{"text": ir.String("Title")}, h1.Props)
}

func TestUpdateUnknownNode(t *testing.T) {
	_, err := sampleTree(t).Update("zz", ir.Object{})
	assert.True(t, IsNotFound(err))
}

func TestMergePropsNested(t *testing.T) {
	cur := ir.Object{"style": ir.Object{"color": ir.String("red"), "bold": ir.Bool(true)}}
	out, err := MergeProps(cur, ir.Object{"style": ir.Object{"bold": ir.Null{}, "size": ir.Int(3)}})
	require.NoError(t, err)

	assert.Equal(t, ir.Object{"style": ir.Object{"color": ir.String("red"), "size": ir.Int(3)}}, out)
	assert.Equal(t, ir.Bool(true), cur["style"].(ir.Object)["bold"], "input untouched")
}

func TestEditErrorMessage(t *testing.T) {
	_, err := sampleTree(t).Move("c1", "h1", ir.PositionInside)
	assert.Equal(t, "move c1: CYCLE: target lies inside the moved subtree (target=h1)", err.Error())
	assert.Equal(t, ErrCodeCycle, CodeOf(err))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7GeneratorUnique(t *testing.T) {
	var gen UUIDv7Generator
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func orders(nodes []*ir.Node) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.Order
	}
	return out
}

func assertOrdersIncrease(t *testing.T, nodes []*ir.Node) {
	t.Helper()
	for i := 1; i < len(nodes); i++ {
		assert.Less(t, nodes[i-1].Order, nodes[i].Order, "order of %s", nodes[i].ID)
		assert.GreaterOrEqual(t, nodes[i-1].Order, int64(0))
	}
}
