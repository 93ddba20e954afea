package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/pagetree/internal/dirty"
	"github.com/roach88/pagetree/internal/flat"
	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/store"
)

// Snapshot is a deep copy of the state a save will write. It shares no
// memory with the live tree.
type Snapshot struct {
	PageID       string
	BaseRevision int64
	Mode         SaveMode
	Rows         []ir.Row        // full page
	Changes      store.ChangeSet // dirty subset

	checkpoint dirty.Checkpoint
	persisted  map[string]ir.Object
}

// Snapshot copies the current tree and dirty set for saving. Only one
// snapshot may be outstanding; complete it with Complete.
func (s *Session) Snapshot() (*Snapshot, error) {
	if s.inflight {
		return nil, fmt.Errorf("snapshot %s: %w", s.pageID, ErrSaveInProgress)
	}

	snap := &Snapshot{
		PageID:       s.pageID,
		BaseRevision: s.revision,
		Mode:         s.mode,
		Rows:         flat.Flatten(s.tree.Roots()),
		Changes:      store.ChangeSet{Upserts: []ir.Row{}, Deletes: []string{}},
		persisted:    make(map[string]ir.Object),
	}

	set := s.dirty.Dirty(s.tree)
	for _, n := range append(set.New, set.Modified...) {
		snap.Changes.Upserts = append(snap.Changes.Upserts, flat.RowOf(n))
	}
	snap.Changes.Deletes = append(snap.Changes.Deletes, set.Deleted...)

	written := snap.Changes.Upserts
	if snap.Mode == SaveFull {
		written = snap.Rows
	}
	for _, r := range written {
		snap.persisted[r.ID] = r.Props.Clone()
	}

	snap.checkpoint = s.dirty.Begin()
	s.inflight = true
	return snap, nil
}

// Persist writes snap through the session's persister. It reads no live
// session state and may run on any goroutine. Errors from the persister
// are returned unchanged.
func (s *Session) Persist(ctx context.Context, snap *Snapshot) (store.Ack, error) {
	if s.persist == nil {
		return store.Ack{}, fmt.Errorf("persist %s: session has no persister", snap.PageID)
	}
	if snap.Mode == SaveFull {
		return s.persist.Save(ctx, snap.PageID, snap.Rows, snap.BaseRevision)
	}
	if snap.Changes.Empty() {
		digest, err := ir.PageDigest(snap.Rows)
		if err != nil {
			return store.Ack{}, err
		}
		return store.Ack{PageID: snap.PageID, Revision: snap.BaseRevision, Digest: digest, Nodes: len(snap.Rows)}, nil
	}
	return s.persist.ApplyChanges(ctx, snap.PageID, snap.Changes, snap.BaseRevision)
}

// Complete settles a snapshot. On success the entries it captured become
// clean and the session adopts the new revision; on error every change
// stays dirty. err is returned as given.
func (s *Session) Complete(snap *Snapshot, ack store.Ack, err error) error {
	s.inflight = false
	if err != nil {
		s.dirty.Abort(snap.checkpoint)
		slog.Warn("save failed", "page", snap.PageID, "base_revision", snap.BaseRevision, "error", err)
		return err
	}
	s.dirty.CommitCheckpoint(snap.checkpoint, snap.persisted)
	s.revision = ack.Revision
	slog.Info("page saved",
		"page", snap.PageID,
		"mode", snap.Mode,
		"revision", ack.Revision,
		"upserts", len(snap.Changes.Upserts),
		"deletes", len(snap.Changes.Deletes),
		"digest", ack.Digest,
	)
	return nil
}

// Save snapshots, persists and completes in one call.
func (s *Session) Save(ctx context.Context) (store.Ack, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return store.Ack{}, err
	}
	ack, err := s.Persist(ctx, snap)
	if err := s.Complete(snap, ack, err); err != nil {
		return store.Ack{}, err
	}
	return ack, nil
}
