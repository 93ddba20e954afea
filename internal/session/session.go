// Package session ties the component tree engine together for one page.
//
// A Session loads rows through a Persister, rebuilds the tree, routes every
// edit through the tree editor and records it in the dirty tracker. Saving
// is split in three so edits can continue while rows are being written:
//
//	snap, _ := s.Snapshot()          // editor goroutine, no I/O
//	ack, err := s.Persist(ctx, snap) // any goroutine, touches no session state
//	s.Complete(snap, ack, err)       // editor goroutine
//
// Save runs the three in sequence. Edits made after Snapshot are not part
// of that save and stay dirty. A cancelled or failed Persist leaves the
// tree untouched and every change still dirty.
//
// Apart from Persist, a Session is single-writer: call its methods from
// one goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pagetree/internal/dirty"
	"github.com/roach88/pagetree/internal/flat"
	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
	"github.com/roach88/pagetree/internal/store"
	"github.com/roach88/pagetree/internal/tree"
)

// ErrSaveInProgress is returned by Snapshot while an earlier snapshot has
// not been completed.
var ErrSaveInProgress = errors.New("a save is already in progress")

// Persister is the storage collaborator. *store.Store implements it.
type Persister interface {
	Load(ctx context.Context, pageID string) ([]ir.Row, int64, error)
	Save(ctx context.Context, pageID string, rows []ir.Row, expectedRevision int64) (store.Ack, error)
	ApplyChanges(ctx context.Context, pageID string, cs store.ChangeSet, expectedRevision int64) (store.Ack, error)
}

// SaveMode selects how a snapshot is written.
type SaveMode string

const (
	// SaveChanges writes only dirty rows and deleted ids.
	SaveChanges SaveMode = "changes"
	// SaveFull replaces every row of the page.
	SaveFull SaveMode = "full"
)

// Session is one editing session over one page.
type Session struct {
	pageID  string
	reg     *registry.Registry
	persist Persister

	tree     *tree.Tree
	dirty    *dirty.Tracker
	ids      tree.IDGenerator
	clock    SeqClock
	step     int64
	mode     SaveMode
	revision int64
	inflight bool
}

// Option configures a Session.
type Option func(*Session)

// WithOrderStep sets the sibling order spacing used when renumbering.
func WithOrderStep(step int64) Option {
	return func(s *Session) { s.step = step }
}

// WithIDGenerator sets the generator NewNode uses for ids.
// Default: tree.UUIDv7Generator.
func WithIDGenerator(g tree.IDGenerator) Option {
	return func(s *Session) { s.ids = g }
}

// WithClock sets the clock that stamps accepted edits.
func WithClock(c SeqClock) Option {
	return func(s *Session) { s.clock = c }
}

// WithSaveMode selects full or partial saves. Default: SaveChanges.
func WithSaveMode(m SaveMode) Option {
	return func(s *Session) { s.mode = m }
}

// Open loads a page through p and starts a session on it. A page that was
// never saved opens empty at revision 0.
func Open(ctx context.Context, pageID string, reg *registry.Registry, p Persister, opts ...Option) (*Session, error) {
	rows, rev, err := p.Load(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	roots, err := flat.Rebuild(rows, reg)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", pageID, err)
	}
	s, err := New(pageID, reg, p, roots, rev, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("session opened", "page", pageID, "nodes", s.tree.Len(), "revision", rev)
	return s, nil
}

// New starts a session over an already built forest. p may be nil for a
// session that is never saved.
func New(pageID string, reg *registry.Registry, p Persister, roots []*ir.Node, revision int64, opts ...Option) (*Session, error) {
	s := &Session{
		pageID:   pageID,
		reg:      reg,
		persist:  p,
		dirty:    dirty.New(),
		ids:      tree.UUIDv7Generator{},
		clock:    NewClock(),
		step:     tree.DefaultOrderStep,
		mode:     SaveChanges,
		revision: revision,
	}
	for _, opt := range opts {
		opt(s)
	}

	t, err := tree.New(pageID, reg, roots, tree.WithOrderStep(s.step))
	if err != nil {
		return nil, fmt.Errorf("new session %s: %w", pageID, err)
	}
	s.tree = t
	return s, nil
}

// PageID returns the page this session edits.
func (s *Session) PageID() string { return s.pageID }

// Revision returns the stored revision the session's clean state matches.
func (s *Session) Revision() int64 { return s.revision }

// Seq returns the sequence number of the last accepted edit.
func (s *Session) Seq() int64 { return s.clock.Current() }

// Tree exposes the live tree for read access.
func (s *Session) Tree() *tree.Tree { return s.tree }

// Get returns a copy of one node without its children.
func (s *Session) Get(id string) (*ir.Node, bool) {
	n, ok := s.tree.Get(id)
	if !ok {
		return nil, false
	}
	return shallowCopy(n), true
}

// Nodes returns a deep copy of the current forest.
func (s *Session) Nodes() []*ir.Node { return s.tree.Snapshot() }

// Rows flattens the current tree.
func (s *Session) Rows() []ir.Row { return flat.Flatten(s.tree.Roots()) }

// Status returns the dirty status of id.
func (s *Session) Status(id string) dirty.Status { return s.dirty.Status(id) }

// NewID returns a fresh node id from the session's generator.
func (s *Session) NewID() string { return s.ids.Generate() }

// NewNode creates a node of kind tag with a fresh id. Containers start
// with an empty children list. Props are validated against the kind.
func (s *Session) NewNode(tag string, props ir.Object) (*ir.Node, error) {
	kind, ok := s.reg.Lookup(tag)
	if !ok {
		return nil, registry.ValidationErrors{{
			Type:   tag,
			Field:  "type",
			Reason: fmt.Sprintf("unknown component type %q", tag),
			Code:   registry.CodeUnknownType,
		}}
	}
	if props == nil {
		props = ir.Object{}
	}
	n := &ir.Node{ID: s.ids.Generate(), Type: tag, Props: props.Clone()}
	if kind.Container {
		n.Children = []*ir.Node{}
	}
	if errs := s.reg.ValidateProps(n.ID, tag, n.Props); len(errs) > 0 {
		return nil, registry.ValidationErrors(errs)
	}
	return n, nil
}

// Insert places node relative to targetID and marks its subtree new.
func (s *Session) Insert(node *ir.Node, targetID string, pos ir.Position) (tree.Placement, error) {
	p, err := s.tree.Insert(node, targetID, pos)
	if err != nil {
		return p, err
	}
	ir.Walk([]*ir.Node{node}, func(n *ir.Node) bool {
		s.dirty.MarkNew(n.ID)
		return true
	})
	s.markRenumbered(p)
	seq := s.clock.Next()
	slog.Debug("node inserted", "page", s.pageID, "id", node.ID, "target", targetID, "position", pos, "seq", seq)
	return p, nil
}

// Remove detaches a node with its subtree and returns it.
func (s *Session) Remove(id string) (*ir.Node, error) {
	removed, err := s.tree.Remove(id)
	if err != nil {
		return nil, err
	}
	count := 0
	ir.Walk([]*ir.Node{removed}, func(n *ir.Node) bool {
		s.dirty.MarkDeleted(n.ID, n.Props)
		count++
		return true
	})
	seq := s.clock.Next()
	slog.Debug("node removed", "page", s.pageID, "id", id, "subtree", count, "seq", seq)
	return removed, nil
}

// Move repositions sourceID relative to targetID.
func (s *Session) Move(sourceID, targetID string, pos ir.Position) (tree.Placement, error) {
	p, err := s.tree.Move(sourceID, targetID, pos)
	if err != nil {
		return p, err
	}
	if n, ok := s.tree.Get(sourceID); ok {
		s.dirty.MarkMoved(sourceID, n.Props)
	}
	s.markRenumbered(p)
	seq := s.clock.Next()
	slog.Debug("node moved", "page", s.pageID, "id", sourceID, "target", targetID, "position", pos, "seq", seq)
	return p, nil
}

// Update merges partial into a node's props and returns a copy of the
// resulting props.
func (s *Session) Update(id string, partial ir.Object) (ir.Object, error) {
	prev, err := s.tree.Update(id, partial)
	if err != nil {
		return nil, err
	}
	s.dirty.MarkModified(id, prev)
	n, _ := s.tree.Get(id)
	seq := s.clock.Next()
	slog.Debug("node updated", "page", s.pageID, "id", id, "keys", len(partial), "seq", seq)
	return n.Props.Clone(), nil
}

// Rollback restores the props a modified node had before its first edit
// since the last save, and returns them.
func (s *Session) Rollback(id string) (ir.Object, error) {
	props, err := s.dirty.Rollback(id)
	if err != nil {
		return nil, err
	}
	if err := s.tree.SetProps(id, props.Clone()); err != nil {
		return nil, fmt.Errorf("rollback %s: %w", id, err)
	}
	seq := s.clock.Next()
	slog.Debug("node rolled back", "page", s.pageID, "id", id, "seq", seq)
	return props, nil
}

// Dirty returns the dirty set with nodes copied (children omitted).
func (s *Session) Dirty() dirty.Set {
	set := s.dirty.Dirty(s.tree)
	for i, n := range set.New {
		set.New[i] = shallowCopy(n)
	}
	for i, n := range set.Modified {
		set.Modified[i] = shallowCopy(n)
	}
	return set
}

// Commit marks everything clean without writing. Used when the caller
// persisted the state some other way.
func (s *Session) Commit() {
	s.dirty.Commit()
}

// Discard drops every unsaved edit by reloading the page.
func (s *Session) Discard(ctx context.Context) error {
	if s.persist == nil {
		return fmt.Errorf("discard %s: session has no persister", s.pageID)
	}
	if s.inflight {
		return fmt.Errorf("discard %s: %w", s.pageID, ErrSaveInProgress)
	}
	rows, rev, err := s.persist.Load(ctx, s.pageID)
	if err != nil {
		return fmt.Errorf("discard %s: %w", s.pageID, err)
	}
	roots, err := flat.Rebuild(rows, s.reg)
	if err != nil {
		return fmt.Errorf("discard %s: %w", s.pageID, err)
	}
	t, err := tree.New(s.pageID, s.reg, roots, tree.WithOrderStep(s.step))
	if err != nil {
		return fmt.Errorf("discard %s: %w", s.pageID, err)
	}
	s.tree, s.dirty, s.revision = t, dirty.New(), rev
	slog.Info("session discarded", "page", s.pageID, "revision", rev)
	return nil
}

func (s *Session) markRenumbered(p tree.Placement) {
	for _, id := range p.Renumbered {
		if n, ok := s.tree.Get(id); ok {
			s.dirty.MarkMoved(id, n.Props)
		}
	}
}

func shallowCopy(n *ir.Node) *ir.Node {
	return &ir.Node{ID: n.ID, Type: n.Type, ParentID: n.ParentID, Order: n.Order, Props: n.Props.Clone()}
}
