package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RevisionRecord describes one successful save of a page.
type RevisionRecord struct {
	Revision int64  `json:"revision"`
	Digest   string `json:"digest"`
	Nodes    int    `json:"nodes"`
	Kind     string `json:"kind"` // "full" or "partial"
	Upserts  int    `json:"upserts"`
	Deletes  int    `json:"deletes"`
}

// History returns the save history of a page, oldest first.
// Returns an empty slice (not nil) for a page never saved.
func (s *Store) History(ctx context.Context, pageID string) ([]RevisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT revision, digest, node_count, kind, upserts, deletes
		FROM page_revisions
		WHERE page_id = ?
		ORDER BY revision ASC
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", pageID, err)
	}
	defer rows.Close()

	out := []RevisionRecord{}
	for rows.Next() {
		var r RevisionRecord
		if err := rows.Scan(&r.Revision, &r.Digest, &r.Nodes, &r.Kind, &r.Upserts, &r.Deletes); err != nil {
			return nil, fmt.Errorf("history %s: scan: %w", pageID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history %s: iterate: %w", pageID, err)
	}
	return out, nil
}

// Digest returns the stored digest of a page's rows. Returns ErrNotFound
// if the page does not exist.
func (s *Store) Digest(ctx context.Context, pageID string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM pages WHERE id = ?`, pageID).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("digest %s: %w", pageID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", pageID, err)
	}
	return d, nil
}
