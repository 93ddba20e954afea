package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pagetree/internal/ir"
)

// Ack confirms a successful write.
type Ack struct {
	PageID   string `json:"page_id"`
	Revision int64  `json:"revision"` // revision after the write
	Digest   string `json:"digest"`   // ir.PageDigest of all stored rows
	Nodes    int    `json:"nodes"`
}

// ChangeSet is a partial save: rows to insert or overwrite, and ids to
// delete. Deletes apply before upserts.
type ChangeSet struct {
	Upserts []ir.Row `json:"upserts"`
	Deletes []string `json:"deletes"`
}

// Empty reports whether the change set writes nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0
}

// Save replaces every node row of a page in one transaction.
// expectedRevision must equal the stored revision (0 for a page that does
// not exist yet), otherwise ErrConflict is returned and nothing changes.
func (s *Store) Save(ctx context.Context, pageID string, rows []ir.Row, expectedRevision int64) (Ack, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Ack{}, fmt.Errorf("save page %s: begin tx: %w", pageID, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := s.claimRevision(ctx, tx, pageID, expectedRevision); err != nil {
		return Ack{}, fmt.Errorf("save page %s: %w", pageID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE page_id = ?`, pageID); err != nil {
		return Ack{}, fmt.Errorf("save page %s: clear nodes: %w", pageID, err)
	}
	for _, r := range rows {
		if err := upsertRow(ctx, tx, pageID, r); err != nil {
			return Ack{}, fmt.Errorf("save page %s: %w", pageID, err)
		}
	}

	ack, err := s.finish(ctx, tx, pageID, expectedRevision+1, "full", len(rows), 0)
	if err != nil {
		return Ack{}, fmt.Errorf("save page %s: %w", pageID, err)
	}
	if err := tx.Commit(); err != nil {
		return Ack{}, fmt.Errorf("save page %s: commit: %w", pageID, err)
	}
	return ack, nil
}

// ApplyChanges writes only the rows in cs, under the same revision check
// as Save.
func (s *Store) ApplyChanges(ctx context.Context, pageID string, cs ChangeSet, expectedRevision int64) (Ack, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Ack{}, fmt.Errorf("apply changes %s: begin tx: %w", pageID, err)
	}
	defer tx.Rollback()

	if err := s.claimRevision(ctx, tx, pageID, expectedRevision); err != nil {
		return Ack{}, fmt.Errorf("apply changes %s: %w", pageID, err)
	}

	for _, id := range cs.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE page_id = ? AND id = ?`, pageID, id); err != nil {
			return Ack{}, fmt.Errorf("apply changes %s: delete %s: %w", pageID, id, err)
		}
	}
	for _, r := range cs.Upserts {
		if err := upsertRow(ctx, tx, pageID, r); err != nil {
			return Ack{}, fmt.Errorf("apply changes %s: %w", pageID, err)
		}
	}

	ack, err := s.finish(ctx, tx, pageID, expectedRevision+1, "partial", len(cs.Upserts), len(cs.Deletes))
	if err != nil {
		return Ack{}, fmt.Errorf("apply changes %s: %w", pageID, err)
	}
	if err := tx.Commit(); err != nil {
		return Ack{}, fmt.Errorf("apply changes %s: commit: %w", pageID, err)
	}
	return ack, nil
}

// claimRevision checks the optimistic-concurrency precondition and creates
// the page row on first save.
func (s *Store) claimRevision(ctx context.Context, tx *sql.Tx, pageID string, expected int64) error {
	stored, err := s.revision(ctx, tx, pageID)
	if err != nil {
		return err
	}
	if stored != expected {
		return fmt.Errorf("%w: stored revision %d, expected %d", ErrConflict, stored, expected)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pages (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, pageID)
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func upsertRow(ctx context.Context, tx *sql.Tx, pageID string, r ir.Row) error {
	props, err := marshalProps(r.Props)
	if err != nil {
		return fmt.Errorf("row %s: %w", r.ID, err)
	}
	var parent sql.NullString
	if r.ParentID != nil {
		parent = sql.NullString{String: *r.ParentID, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (page_id, id, parent_id, type, ord, props)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id, id) DO UPDATE SET
			parent_id = excluded.parent_id,
			type      = excluded.type,
			ord       = excluded.ord,
			props     = excluded.props
	`, pageID, r.ID, parent, r.Type, r.Order, props)
	if err != nil {
		return fmt.Errorf("write row %s: %w", r.ID, err)
	}
	return nil
}

// finish recomputes the page digest from the rows now in the table, bumps
// the revision and records the save in page_revisions.
func (s *Store) finish(ctx context.Context, tx *sql.Tx, pageID string, rev int64, kind string, upserts, deletes int) (Ack, error) {
	rows, err := readRows(ctx, tx, pageID)
	if err != nil {
		return Ack{}, err
	}
	digest, err := ir.PageDigest(rows)
	if err != nil {
		return Ack{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE pages SET revision = ?, digest = ? WHERE id = ?
	`, rev, digest, pageID); err != nil {
		return Ack{}, fmt.Errorf("bump revision: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO page_revisions (page_id, revision, digest, node_count, kind, upserts, deletes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pageID, rev, digest, len(rows), kind, upserts, deletes); err != nil {
		return Ack{}, fmt.Errorf("record revision: %w", err)
	}

	return Ack{PageID: pageID, Revision: rev, Digest: digest, Nodes: len(rows)}, nil
}

// PutPage creates or updates a page's route and variables without touching
// its nodes or revision.
func (s *Store) PutPage(ctx context.Context, meta ir.PageMeta) error {
	vars, err := marshalProps(meta.Variables)
	if err != nil {
		return fmt.Errorf("put page %s: %w", meta.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pages (id, route, variables) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET route = excluded.route, variables = excluded.variables
	`, meta.ID, meta.Route, vars)
	if err != nil {
		return fmt.Errorf("put page %s: %w", meta.ID, err)
	}
	return nil
}

// DeletePage removes a page with all its nodes and history.
// Returns ErrNotFound if the page does not exist.
func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, pageID)
	if err != nil {
		return fmt.Errorf("delete page %s: %w", pageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete page %s: rows affected: %w", pageID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete page %s: %w", pageID, ErrNotFound)
	}
	return nil
}
