package backend

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

func newTestBackend(t *testing.T) *SimpleBackend {
	t.Helper()
	b, err := NewSimpleBackend(t.TempDir())
	require.NoError(t, err)
	return b
}

func TestBlobContentAddressed(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	id1, err := b.WriteBlob(ctx, strings.NewReader("content\n"))
	require.NoError(t, err)
	id2, err := b.WriteBlob(ctx, strings.NewReader("content\n"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	data, err := object.ReadBlob(ctx, b, id1)
	require.NoError(t, err)
	assert.Equal(t, "content\n", string(data))
}

func TestCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	c := &object.Commit{
		Parents:     []plumbing.CommitID{b.RootCommitID()},
		RootTree:    merge.Resolved(b.EmptyTreeID()),
		ChangeID:    plumbing.NewChangeID(),
		Description: "initial\n",
	}
	oid, stored, err := b.WriteCommit(ctx, c, nil)
	require.NoError(t, err)
	assert.Equal(t, oid, stored.ID)

	got, err := b.Commit(ctx, oid)
	require.NoError(t, err)
	assert.Equal(t, c.Description, got.Description)
	assert.Equal(t, c.ChangeID, got.ChangeID)
}

func TestWriteCommitRejectsZeroParents(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	c := &object.Commit{
		RootTree: merge.Resolved(b.EmptyTreeID()),
		ChangeID: plumbing.NewChangeID(),
	}
	_, _, err := b.WriteCommit(ctx, c, nil)
	assert.Error(t, err)
}

func TestRootCommitFixed(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	root, err := b.Commit(ctx, b.RootCommitID())
	require.NoError(t, err)
	assert.Empty(t, root.Parents)
	assert.Equal(t, b.RootChangeID(), root.ChangeID)
}

func TestWriteCommitSigning(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	c := &object.Commit{
		Parents:  []plumbing.CommitID{b.RootCommitID()},
		RootTree: merge.Resolved(b.EmptyTreeID()),
		ChangeID: plumbing.NewChangeID(),
	}
	oid, stored, err := b.WriteCommit(ctx, c, func(data []byte) ([]byte, error) {
		return []byte("signed"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("signed"), stored.SecureSig)

	got, err := b.Commit(ctx, oid)
	require.NoError(t, err)
	assert.Equal(t, []byte("signed"), got.SecureSig)
}

func TestMissingObject(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	_, err := b.Commit(ctx, plumbing.HashOf([]byte("missing")))
	assert.True(t, plumbing.IsNoSuchObject(err))
}

func TestStoreCachesReads(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	s, err := NewStore(b)
	require.NoError(t, err)
	defer s.Close()

	c := &object.Commit{
		Parents:  []plumbing.CommitID{b.RootCommitID()},
		RootTree: merge.Resolved(b.EmptyTreeID()),
		ChangeID: plumbing.NewChangeID(),
	}
	oid, _, err := s.WriteCommit(ctx, c, nil)
	require.NoError(t, err)
	s.Wait()
	got, err := s.Commit(ctx, oid)
	require.NoError(t, err)
	s.Wait()
	again, err := s.Commit(ctx, oid)
	require.NoError(t, err)
	assert.Same(t, got, again)
}

func TestGCKeepsReachable(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	keep, err := b.WriteBlob(ctx, strings.NewReader("keep"))
	require.NoError(t, err)
	drop, err := b.WriteBlob(ctx, strings.NewReader("drop"))
	require.NoError(t, err)

	err = b.GC(ctx, func(h plumbing.Hash) bool { return h == keep }, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = object.ReadBlob(ctx, b, keep)
	assert.NoError(t, err)
	_, err = object.ReadBlob(ctx, b, drop)
	assert.True(t, plumbing.IsNoSuchObject(err))
}

func TestCopyRecordsUnsupported(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	_, err := b.GetCopyRecords(ctx, nil, plumbing.ZeroHash, plumbing.ZeroHash)
	var unsupported *plumbing.UnsupportedError
	assert.ErrorAs(t, err, &unsupported)
}
