package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagetree/internal/ir"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.Register("column", PropSchema{Fields: map[string]FieldSpec{
		"gap": {Type: TypeInt, Min: ptr(int64(0))},
	}}, true))
	require.NoError(t, r.Register("heading", PropSchema{Fields: map[string]FieldSpec{
		"text":  {Type: TypeString, Required: true},
		"level": {Type: TypeInt, Min: ptr(int64(1)), Max: ptr(int64(6))},
	}}, false))
	require.NoError(t, r.Register("button", PropSchema{Fields: map[string]FieldSpec{
		"label":   {Type: TypeString, Required: true, Check: "len(value) <= 10"},
		"variant": {Type: TypeString, Enum: []string{"primary", "secondary"}},
	}}, false))
	require.NoError(t, r.Register("divider", PropSchema{Strict: true}, false))
	return r
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValidTree(t *testing.T) {
	r := testRegistry(t)
	raw := ir.RawNode{
		ID: "c1", Type: "column", Props: map[string]any{"gap": 2}, HasChildren: true,
		Children: []ir.RawNode{
			{ID: "h1", Type: "heading", Props: map[string]any{"text": "Hello", "level": 1}},
			{ID: "b1", Type: "button", Props: map[string]any{"label": "Go"}},
		},
	}

	node, errs := r.Validate(raw)
	require.Empty(t, errs)
	require.NotNil(t, node)

	assert.Equal(t, "c1", node.ID)
	assert.Equal(t, ir.Int(2), node.Props["gap"])
	require.Len(t, node.Children, 2)
	assert.Equal(t, "c1", node.Children[1].ParentID)
	assert.Equal(t, int64(1), node.Children[1].Order)
	assert.Nil(t, node.Children[0].Children, "leaf keeps nil children")
}

func TestValidateEmptyContainerHasNonNilChildren(t *testing.T) {
	node, errs := testRegistry(t).Validate(ir.RawNode{ID: "c1", Type: "column", HasChildren: true})
	require.Empty(t, errs)
	assert.NotNil(t, node.Children)
	assert.True(t, node.IsContainer())
}

func TestValidateLeafWithChildrenNamesNode(t *testing.T) {
	raw := ir.RawNode{
		ID: "b1", Type: "button", Props: map[string]any{"label": "Go"},
		HasChildren: true,
		Children:    []ir.RawNode{{ID: "h1", Type: "heading", Props: map[string]any{"text": "x"}}},
	}

	_, errs := testRegistry(t).Validate(raw)
	require.Len(t, errs, 1)
	assert.Equal(t, "b1", errs[0].NodeID)
	assert.Equal(t, "button", errs[0].Type)
	assert.Equal(t, "children", errs[0].Field)
	assert.Equal(t, CodeLeafChildren, errs[0].Code)
}

func TestValidateLeafWithEmptyChildrenList(t *testing.T) {
	raw := ir.RawNode{ID: "b1", Type: "button", Props: map[string]any{"label": "Go"}, HasChildren: true}

	_, errs := testRegistry(t).Validate(raw)
	assert.Equal(t, []string{CodeLeafChildren}, codes(errs))
}

func TestValidateContainerWithoutChildren(t *testing.T) {
	_, errs := testRegistry(t).Validate(ir.RawNode{ID: "c1", Type: "column"})
	assert.Equal(t, []string{CodeMissingChildren}, codes(errs))
}

func TestValidateAccumulatesAcrossSubtree(t *testing.T) {
	raw := ir.RawNode{
		ID: "c1", Type: "column", Props: map[string]any{"gap": -1}, HasChildren: true,
		Children: []ir.RawNode{
			{ID: "h1", Type: "heading", Props: map[string]any{"level": 9}},
			{ID: "x1", Type: "carousel"},
			{ID: "b1", Type: "button", Props: map[string]any{"label": 5, "variant": "huge"}},
			{ID: "h1", Type: "heading", Props: map[string]any{"text": "dup"}},
		},
	}

	_, errs := testRegistry(t).Validate(raw)

	assert.ElementsMatch(t, []string{
		CodeMin,         // c1.gap
		CodeRequired,    // h1.text
		CodeMax,         // h1.level
		CodeUnknownType, // x1
		CodeType,        // b1.label
		CodeEnum,        // b1.variant
		CodeDuplicateID, // second h1
	}, codes(errs))
}

func TestValidateMissingID(t *testing.T) {
	_, errs := testRegistry(t).Validate(ir.RawNode{Type: "divider"})
	require.Len(t, errs, 1)
	assert.Equal(t, "id", errs[0].Field)
	assert.Equal(t, CodeRequired, errs[0].Code)
}

func TestValidateRejectsFloatAndNullProps(t *testing.T) {
	raw := ir.RawNode{ID: "h1", Type: "heading", Props: map[string]any{"text": nil, "level": 1.5}}

	_, errs := testRegistry(t).Validate(raw)

	assert.Equal(t, []string{CodeType, CodeType}, codes(errs), "bad values are not also reported as missing")
}

func TestValidateCheckExpression(t *testing.T) {
	raw := ir.RawNode{ID: "b1", Type: "button", Props: map[string]any{"label": "far too long label"}}

	_, errs := testRegistry(t).Validate(raw)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeCheck, errs[0].Code)
	assert.Equal(t, "label", errs[0].Field)
}

func TestValidateStrictSchema(t *testing.T) {
	_, errs := testRegistry(t).Validate(ir.RawNode{ID: "d1", Type: "divider", Props: map[string]any{"color": "red"}})
	assert.Equal(t, []string{CodeUnknownProp}, codes(errs))
}

func TestValidateReservedProps(t *testing.T) {
	_, errs := testRegistry(t).Validate(ir.RawNode{ID: "d1", Type: "heading", Props: map[string]any{"text": "x", "type": "button"}})
	assert.Equal(t, []string{CodeReservedProp}, codes(errs))
}

func TestValidateProps(t *testing.T) {
	r := testRegistry(t)

	assert.Empty(t, r.ValidateProps("h1", "heading", ir.Object{"text": ir.String("ok")}))

	errs := r.ValidateProps("h1", "heading", ir.Object{"level": ir.Int(0)})
	assert.ElementsMatch(t, []string{CodeRequired, CodeMin}, codes(errs))

	errs = r.ValidateProps("z1", "zzz", ir.Object{})
	assert.Equal(t, []string{CodeUnknownType}, codes(errs))
}

func TestValidateForestSharesIDNamespace(t *testing.T) {
	r := testRegistry(t)
	_, errs := r.ValidateForest([]ir.RawNode{
		{ID: "d1", Type: "divider"},
		{ID: "d1", Type: "divider"},
	})
	assert.Equal(t, []string{CodeDuplicateID}, codes(errs))

	nodes, errs := r.ValidateForest([]ir.RawNode{{ID: "d1", Type: "divider"}, {ID: "d2", Type: "divider"}})
	require.Empty(t, errs)
	assert.Equal(t, int64(1), nodes[1].Order)
}

func TestValidationErrorsError(t *testing.T) {
	errs := ValidationErrors{
		{NodeID: "b1", Type: "button", Field: "children", Reason: "leaf", Code: CodeLeafChildren},
		{NodeID: "h1", Field: "text", Reason: "missing", Code: CodeRequired},
	}
	msg := errs.Error()
	assert.Contains(t, msg, "2 validation errors")
	assert.Contains(t, msg, "b1 (button)")
}
