// Package dirty tracks which nodes changed since the last persisted state.
//
// Each tracked id is new, modified or deleted; untracked ids are clean.
// A modified entry keeps the props observed before its first edit so a
// single-step Rollback can restore them. The tracker does no I/O: a save
// collaborator reads Dirty, persists, and then commits.
//
// Saves may run while editing continues. Begin marks the entries a save is
// about to persist; CommitCheckpoint clears only those, so edits made after
// the checkpoint stay dirty for the next save.
package dirty

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/pagetree/internal/ir"
)

// ErrNotModified is returned by Rollback for ids that are not modified.
var ErrNotModified = errors.New("node is not modified")

// Status is the change status of one node.
type Status string

const (
	StatusClean    Status = "clean"
	StatusNew      Status = "new"
	StatusModified Status = "modified"
	StatusDeleted  Status = "deleted"
)

type entry struct {
	status   Status
	original ir.Object // props before the first edit; modified and deleted only
	moved    bool      // parent or order changed
	wasNew   bool      // deleted while its insert was being saved
	flushing bool      // included in an in-flight save
	gen      int64     // tracker seq of the last change
}

// Tracker is the per-session change ledger. Not safe for concurrent use.
type Tracker struct {
	entries map[string]*entry
	seq     int64
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[string]*entry)}
}

func (t *Tracker) touch(e *entry) {
	t.seq++
	e.gen = t.seq
}

// Status returns the status of id.
func (t *Tracker) Status(id string) Status {
	if e, ok := t.entries[id]; ok {
		return e.status
	}
	return StatusClean
}

// Len returns the number of tracked ids.
func (t *Tracker) Len() int { return len(t.entries) }

// MarkNew records the insert of a node. A node deleted earlier in the
// session and inserted again under the same id exists in storage, so it
// becomes modified instead.
func (t *Tracker) MarkNew(id string) {
	e, ok := t.entries[id]
	switch {
	case !ok:
		e = &entry{status: StatusNew}
		t.entries[id] = e
	case e.status == StatusDeleted && e.wasNew:
		e.status, e.wasNew = StatusNew, false
	case e.status == StatusDeleted:
		e.status, e.moved = StatusModified, true
	}
	t.touch(e)
}

// MarkModified records a props edit. before is the node's props prior to
// this edit; it is kept only on the first transition into modified. New
// nodes stay new.
func (t *Tracker) MarkModified(id string, before ir.Object) {
	e, ok := t.entries[id]
	if !ok {
		e = &entry{status: StatusModified, original: before.Clone()}
		t.entries[id] = e
	}
	t.touch(e)
}

// MarkMoved records a structural change (reparent or new order) that does
// not touch props. props are the node's current props.
func (t *Tracker) MarkMoved(id string, props ir.Object) {
	e, ok := t.entries[id]
	if !ok {
		e = &entry{status: StatusModified, original: props.Clone()}
		t.entries[id] = e
	}
	if e.status == StatusModified {
		e.moved = true
	}
	t.touch(e)
}

// MarkDeleted records the removal of a node. A new node that no save has
// picked up is purged entirely; anything else becomes deleted.
func (t *Tracker) MarkDeleted(id string, props ir.Object) {
	e, ok := t.entries[id]
	switch {
	case !ok:
		e = &entry{status: StatusDeleted, original: props.Clone()}
		t.entries[id] = e
	case e.status == StatusNew && !e.flushing:
		delete(t.entries, id)
		t.seq++
		return
	case e.status == StatusNew:
		e.status, e.wasNew = StatusDeleted, true
	default:
		e.status = StatusDeleted
	}
	t.touch(e)
}

// Rollback returns the props recorded before the first edit of a modified
// node and stops tracking it. If the node was also moved it stays modified,
// since the structural change is still unsaved. So does a node whose edit
// is part of an in-flight save: storage is about to hold the edited props,
// and the restored ones must reach it with the next save.
func (t *Tracker) Rollback(id string) (ir.Object, error) {
	e, ok := t.entries[id]
	if !ok || e.status != StatusModified {
		return nil, fmt.Errorf("rollback %s: %w (status %s)", id, ErrNotModified, t.Status(id))
	}
	original := e.original
	if e.moved || e.flushing {
		e.original = original.Clone()
		t.touch(e)
	} else {
		delete(t.entries, id)
		t.seq++
	}
	if original == nil {
		original = ir.Object{}
	}
	return original, nil
}

// Commit clears every tracked status. Everything is now clean.
func (t *Tracker) Commit() {
	clear(t.entries)
	t.seq++
}

// Checkpoint identifies the tracker state a save was taken from.
type Checkpoint struct {
	Seq int64
}

// Begin marks every current entry as part of a save and returns the
// checkpoint to commit or abort it with.
func (t *Tracker) Begin() Checkpoint {
	for _, e := range t.entries {
		e.flushing = true
	}
	return Checkpoint{Seq: t.seq}
}

// CommitCheckpoint clears entries unchanged since cp. Entries changed after
// cp stay dirty, rebased onto what was persisted: persisted maps ids to the
// props the save wrote.
func (t *Tracker) CommitCheckpoint(cp Checkpoint, persisted map[string]ir.Object) {
	for id, e := range t.entries {
		if e.gen <= cp.Seq {
			delete(t.entries, id)
			continue
		}
		props, saved := persisted[id]
		switch {
		case e.status == StatusNew && saved:
			e.status, e.original = StatusModified, props.Clone()
		case e.status == StatusModified && saved:
			e.original = props.Clone()
		case e.status == StatusDeleted && e.wasNew && saved:
			e.wasNew = false
		}
		e.flushing = false
	}
	t.seq++
}

// Abort undoes Begin after a failed or cancelled save. New nodes deleted
// during the save were never stored, so their entries are purged.
func (t *Tracker) Abort(cp Checkpoint) {
	for id, e := range t.entries {
		if e.status == StatusDeleted && e.wasNew {
			delete(t.entries, id)
			continue
		}
		e.flushing = false
	}
}

// Lookup resolves ids to live nodes. *tree.Tree satisfies it.
type Lookup interface {
	Get(id string) (*ir.Node, bool)
}

// Set is the dirty subset handed to a save collaborator.
type Set struct {
	New      []*ir.Node `json:"new"`
	Modified []*ir.Node `json:"modified"`
	Deleted  []string   `json:"deleted"`
}

// Empty reports whether nothing is dirty.
func (s Set) Empty() bool {
	return len(s.New) == 0 && len(s.Modified) == 0 && len(s.Deleted) == 0
}

// Dirty returns the tracked nodes, each list sorted by id. Nodes are the
// live ones from src; callers that hand them across a save boundary should
// copy them first.
func (t *Tracker) Dirty(src Lookup) Set {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	set := Set{New: []*ir.Node{}, Modified: []*ir.Node{}, Deleted: []string{}}
	for _, id := range ids {
		switch t.entries[id].status {
		case StatusDeleted:
			set.Deleted = append(set.Deleted, id)
		case StatusNew:
			if n, ok := src.Get(id); ok {
				set.New = append(set.New, n)
			}
		case StatusModified:
			if n, ok := src.Get(id); ok {
				set.Modified = append(set.Modified, n)
			}
		}
	}
	return set
}
