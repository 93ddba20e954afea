package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pagetree/internal/ir"
)

// rowQuery selects every node of a page in deterministic order:
// roots first, then by parent, ord and id.
const rowQuery = `
	SELECT id, parent_id, type, ord, props
	FROM nodes
	WHERE page_id = ?
	ORDER BY parent_id IS NOT NULL, parent_id COLLATE BINARY ASC, ord ASC, id COLLATE BINARY ASC
`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Load returns all node rows of a page and the page's current revision.
// A page that was never saved loads as no rows at revision 0.
//
// Returns an empty slice (not nil) when the page has no nodes.
func (s *Store) Load(ctx context.Context, pageID string) ([]ir.Row, int64, error) {
	rev, err := s.revision(ctx, s.db, pageID)
	if err != nil {
		return nil, 0, fmt.Errorf("load page %s: %w", pageID, err)
	}
	rows, err := readRows(ctx, s.db, pageID)
	if err != nil {
		return nil, 0, fmt.Errorf("load page %s: %w", pageID, err)
	}
	return rows, rev, nil
}

func readRows(ctx context.Context, q querier, pageID string) ([]ir.Row, error) {
	rows, err := q.QueryContext(ctx, rowQuery, pageID)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	out := []ir.Row{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return out, nil
}

func scanRow(rows *sql.Rows) (ir.Row, error) {
	var (
		r        ir.Row
		parentID sql.NullString
		props    string
	)
	if err := rows.Scan(&r.ID, &parentID, &r.Type, &r.Order, &props); err != nil {
		return ir.Row{}, fmt.Errorf("scan node: %w", err)
	}
	if parentID.Valid {
		p := parentID.String
		r.ParentID = &p
	}
	obj, err := unmarshalProps(props)
	if err != nil {
		return ir.Row{}, fmt.Errorf("scan node %s: %w", r.ID, err)
	}
	r.Props = obj
	return r, nil
}

// revision returns the stored revision of a page, or 0 if it does not exist.
func (s *Store) revision(ctx context.Context, q querier, pageID string) (int64, error) {
	var rev int64
	err := q.QueryRowContext(ctx, `SELECT revision FROM pages WHERE id = ?`, pageID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query revision: %w", err)
	}
	return rev, nil
}

// GetPage returns a page's metadata. Returns ErrNotFound if the page does
// not exist.
func (s *Store) GetPage(ctx context.Context, pageID string) (ir.PageMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, route, variables, revision FROM pages WHERE id = ?
	`, pageID)
	meta, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.PageMeta{}, fmt.Errorf("get page %s: %w", pageID, ErrNotFound)
	}
	if err != nil {
		return ir.PageMeta{}, fmt.Errorf("get page %s: %w", pageID, err)
	}
	return meta, nil
}

// ListPages returns metadata for every stored page ordered by id.
func (s *Store) ListPages(ctx context.Context) ([]ir.PageMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, route, variables, revision FROM pages ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := []ir.PageMeta{}
	for rows.Next() {
		meta, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		pages = append(pages, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pages: iterate: %w", err)
	}
	return pages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(sc scanner) (ir.PageMeta, error) {
	var (
		meta ir.PageMeta
		vars string
	)
	if err := sc.Scan(&meta.ID, &meta.Route, &vars, &meta.Revision); err != nil {
		return ir.PageMeta{}, err
	}
	obj, err := unmarshalProps(vars)
	if err != nil {
		return ir.PageMeta{}, fmt.Errorf("page %s variables: %w", meta.ID, err)
	}
	meta.Variables = obj
	return meta, nil
}
