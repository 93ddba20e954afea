package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagetree/internal/dirty"
	"github.com/roach88/pagetree/internal/flat"
	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
	"github.com/roach88/pagetree/internal/store"
)

func TestSave_PersistsChangesAndCleans(t *testing.T) {
	st := openStore(t)
	s := openSeeded(t, st)
	ctx := context.Background()

	btn, err := s.NewNode("button", ir.Object{"label": ir.String("Next")})
	require.NoError(t, err)
	_, err = s.Insert(btn, "c1", ir.PositionInside)
	require.NoError(t, err)
	_, err = s.Remove("h1")
	require.NoError(t, err)

	ack, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ack.Revision)
	assert.Equal(t, int64(2), s.Revision())
	assert.True(t, s.Dirty().Empty())

	rows, rev, err := st.Load(ctx, pageID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)
	assert.Equal(t, ir.MustPageDigest(s.Rows()), ir.MustPageDigest(rows))
	assert.Equal(t, ack.Digest, ir.MustPageDigest(rows))
}

func TestSave_FullMode(t *testing.T) {
	st := openStore(t)
	s := openSeeded(t, st, WithSaveMode(SaveFull))
	ctx := context.Background()

	_, err := s.Update("b1", ir.Object{"label": ir.String("Buy")})
	require.NoError(t, err)
	_, err = s.Save(ctx)
	require.NoError(t, err)

	reopened, err := Open(ctx, pageID, registry.Builtin(), st)
	require.NoError(t, err)
	n, ok := reopened.Get("b1")
	require.True(t, ok)
	assert.Equal(t, ir.String("Buy"), n.Props["label"])
}

func TestSave_NothingDirtyIsNoop(t *testing.T) {
	st := openStore(t)
	s := openSeeded(t, st)

	ack, err := s.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ack.Revision)
	assert.Equal(t, ir.MustPageDigest(seedRows()), ack.Digest)

	history, err := st.History(context.Background(), pageID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "an empty save writes no revision")
}

func TestSave_FailureKeepsEverythingDirty(t *testing.T) {
	boom := errors.New("disk full")
	p := &faultPersister{Store: openStore(t)}
	s := openSeeded(t, p)

	_, err := s.Update("b1", ir.Object{"label": ir.String("Buy")})
	require.NoError(t, err)

	p.fail = boom
	_, err = s.Save(context.Background())
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, dirty.StatusModified, s.Status("b1"))
	assert.Equal(t, int64(1), s.Revision())

	p.fail = nil
	_, err = s.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dirty.StatusClean, s.Status("b1"))
}

func TestSave_ConflictSurfacesStoreError(t *testing.T) {
	st := openStore(t)
	s := openSeeded(t, st)
	ctx := context.Background()

	// Someone else saves first.
	_, err := st.Save(ctx, pageID, seedRows(), 1)
	require.NoError(t, err)

	_, err = s.Update("b1", ir.Object{"label": ir.String("Buy")})
	require.NoError(t, err)
	_, err = s.Save(ctx)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, dirty.StatusModified, s.Status("b1"))
}

func TestSave_EditsDuringSaveStayDirty(t *testing.T) {
	p := &faultPersister{
		Store:   openStore(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := openSeeded(t, p)
	ctx := context.Background()

	_, err := s.Update("b1", ir.Object{"label": ir.String("One")})
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)

	type result struct {
		ack store.Ack
		err error
	}
	done := make(chan result)
	go func() {
		ack, err := s.Persist(ctx, snap)
		done <- result{ack, err}
	}()
	<-p.entered

	// Editing continues while the write is blocked.
	_, err = s.Update("b1", ir.Object{"label": ir.String("Two")})
	require.NoError(t, err)
	_, err = s.Update("h1", ir.Object{"level": ir.Int(3)})
	require.NoError(t, err)

	_, err = s.Snapshot()
	assert.ErrorIs(t, err, ErrSaveInProgress)

	close(p.release)
	res := <-done
	require.NoError(t, s.Complete(snap, res.ack, res.err))

	assert.Equal(t, dirty.StatusModified, s.Status("b1"), "edited after the snapshot")
	assert.Equal(t, dirty.StatusModified, s.Status("h1"))

	// Rolling b1 back lands on what the save wrote, not the original.
	restored, err := s.Rollback("b1")
	require.NoError(t, err)
	assert.Equal(t, ir.String("One"), restored["label"])
}

func TestSnapshot_IsIsolatedFromLaterEdits(t *testing.T) {
	s := openSeeded(t, openStore(t))

	_, err := s.Update("b1", ir.Object{"label": ir.String("One")})
	require.NoError(t, err)
	snap, err := s.Snapshot()
	require.NoError(t, err)
	before := ir.MustPageDigest(snap.Rows)

	_, err = s.Update("b1", ir.Object{"label": ir.String("Two")})
	require.NoError(t, err)

	assert.Equal(t, before, ir.MustPageDigest(snap.Rows))
	require.Len(t, snap.Changes.Upserts, 1)
	assert.Equal(t, ir.String("One"), snap.Changes.Upserts[0].Props["label"])
	require.NoError(t, s.Complete(snap, store.Ack{}, errors.New("abandoned")))
}

func TestDiscard_ReloadsStoredState(t *testing.T) {
	st := openStore(t)
	s := openSeeded(t, st)

	_, err := s.Remove("c1")
	require.NoError(t, err)
	require.NoError(t, s.Discard(context.Background()))

	assert.True(t, s.Dirty().Empty())
	assert.Equal(t, ir.MustPageDigest(seedRows()), ir.MustPageDigest(s.Rows()))
}

func TestSaveReopen_RoundTrip(t *testing.T) {
	st := openStore(t)
	s := openSeeded(t, st)
	ctx := context.Background()

	card, err := s.NewNode("card", ir.Object{"title": ir.String("Details")})
	require.NoError(t, err)
	_, err = s.Insert(card, "c1", ir.PositionBefore)
	require.NoError(t, err)
	_, err = s.Move("b1", card.ID, ir.PositionInside)
	require.NoError(t, err)
	_, err = s.Save(ctx)
	require.NoError(t, err)

	reopened, err := Open(ctx, pageID, registry.Builtin(), st)
	require.NoError(t, err)

	want := s.Rows()
	flat.SortRows(want)
	got := reopened.Rows()
	flat.SortRows(got)
	assert.Equal(t, want, got)
}

func TestSave_EditsBetweenSnapshotAndComplete(t *testing.T) {
	newButton := func(t *testing.T, s *Session) string {
		btn, err := s.NewNode("button", ir.Object{"label": ir.String("Later")})
		require.NoError(t, err)
		_, err = s.Insert(btn, "c1", ir.PositionInside)
		require.NoError(t, err)
		return btn.ID
	}
	relabel := func(t *testing.T, s *Session, label string) {
		_, err := s.Update("b1", ir.Object{"label": ir.String(label)})
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		before func(t *testing.T, s *Session) string // returns the id to check
		during func(t *testing.T, s *Session, id string)
		want   dirty.Status
	}{
		{
			name:   "rollback",
			before: func(t *testing.T, s *Session) string { relabel(t, s, "One"); return "b1" },
			during: func(t *testing.T, s *Session, id string) {
				restored, err := s.Rollback(id)
				require.NoError(t, err)
				assert.Equal(t, ir.String("Go"), restored["label"])
			},
			want: dirty.StatusModified,
		},
		{
			name:   "update",
			before: func(t *testing.T, s *Session) string { relabel(t, s, "One"); return "b1" },
			during: func(t *testing.T, s *Session, id string) { relabel(t, s, "Two") },
			want:   dirty.StatusModified,
		},
		{
			name:   "remove modified",
			before: func(t *testing.T, s *Session) string { relabel(t, s, "One"); return "b1" },
			during: func(t *testing.T, s *Session, id string) {
				_, err := s.Remove(id)
				require.NoError(t, err)
			},
			want: dirty.StatusDeleted,
		},
		{
			name:   "remove new",
			before: newButton,
			during: func(t *testing.T, s *Session, id string) {
				_, err := s.Remove(id)
				require.NoError(t, err)
			},
			want: dirty.StatusDeleted,
		},
		{
			name:   "update new",
			before: newButton,
			during: func(t *testing.T, s *Session, id string) {
				_, err := s.Update(id, ir.Object{"variant": ir.String("danger")})
				require.NoError(t, err)
			},
			want: dirty.StatusModified,
		},
		{
			name:   "move",
			before: func(t *testing.T, s *Session) string { relabel(t, s, "One"); return "b1" },
			during: func(t *testing.T, s *Session, id string) {
				_, err := s.Move(id, "c1", ir.PositionBefore)
				require.NoError(t, err)
			},
			want: dirty.StatusModified,
		},
		{
			name: "insert",
			before: func(t *testing.T, s *Session) string { relabel(t, s, "One"); return "" },
			during: func(t *testing.T, s *Session, id string) { newButton(t, s) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openStore(t)
			s := openSeeded(t, st)
			ctx := context.Background()

			id := tt.before(t, s)
			snap, err := s.Snapshot()
			require.NoError(t, err)

			tt.during(t, s, id)

			ack, err := s.Persist(ctx, snap)
			require.NoError(t, s.Complete(snap, ack, err))
			if id != "" {
				assert.Equal(t, tt.want, s.Status(id), "edit made during the save")
			}
			assert.False(t, s.Dirty().Empty())

			_, err = s.Save(ctx)
			require.NoError(t, err)
			assert.True(t, s.Dirty().Empty())

			reopened, err := Open(ctx, pageID, registry.Builtin(), st)
			require.NoError(t, err)
			want := s.Rows()
			flat.SortRows(want)
			got := reopened.Rows()
			flat.SortRows(got)
			assert.Equal(t, want, got, "stored page matches the live tree")
		})
	}
}
