package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/pagetree/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

// sampleRows is a column c1 holding heading h1 and button b1, plus a root
// divider d1.
func sampleRows() []ir.Row {
	return []ir.Row{
		{ID: "c1", Type: "column", Order: 0, Props: ir.Object{"gap": ir.Int(4)}},
		{ID: "h1", ParentID: strPtr("c1"), Type: "heading", Order: 0, Props: ir.Object{"text": ir.String("Welcome")}},
		{ID: "b1", ParentID: strPtr("c1"), Type: "button", Order: 1, Props: ir.Object{"label": ir.String("Go")}},
		{ID: "d1", Type: "divider", Order: 1, Props: ir.Object{}},
	}
}
