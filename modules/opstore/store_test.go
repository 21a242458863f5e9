package opstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/plumbing"
)

func newTestOpStore(t *testing.T) *SimpleOpStore {
	t.Helper()
	s, err := NewSimpleOpStore(t.TempDir(), plumbing.ZeroHash)
	require.NoError(t, err)
	return s
}

func TestViewRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestOpStore(t)

	v := NewView()
	c1 := plumbing.HashOf([]byte("c1"))
	v.AddHead(c1)
	v.SetLocalBookmark("main", NormalRefTarget(c1))
	v.WcCommitIDs["default"] = c1
	rv := NewRemoteView()
	rv.Bookmarks["main"] = RemoteRef{Target: NormalRefTarget(c1), State: RemoteRefTracked}
	v.RemoteViews["origin"] = rv

	id, err := s.WriteView(ctx, v)
	require.NoError(t, err)
	got, err := s.ReadView(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.HeadIDs[c1])
	assert.Equal(t, NormalRefTarget(c1).Terms(), got.LocalBookmarks["main"].Terms())
	assert.Equal(t, RemoteRefTracked, got.RemoteViews["origin"].Bookmarks["main"].State)
	assert.Equal(t, c1, got.WcCommitIDs["default"])

	// Identical content, identical id.
	id2, err := s.WriteView(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}

func TestOperationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestOpStore(t)

	viewID, err := s.WriteView(ctx, NewView())
	require.NoError(t, err)
	oldID := plumbing.HashOf([]byte("old"))
	newID := plumbing.HashOf([]byte("new"))
	op := &Operation{
		ViewID:  viewID,
		Parents: []plumbing.OperationID{s.RootOperationID()},
		Metadata: OperationMetadata{
			Description: "describe commit",
			Hostname:    "host",
			Username:    "user",
		},
		CommitPredecessors:   map[plumbing.CommitID][]plumbing.CommitID{newID: {oldID}},
		PredecessorsRecorded: true,
	}
	id, err := s.WriteOperation(ctx, op)
	require.NoError(t, err)

	got, err := s.ReadOperation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "describe commit", got.Metadata.Description)
	assert.Equal(t, []plumbing.CommitID{oldID}, got.CommitPredecessors[newID])
	require.Len(t, got.Parents, 1)
	assert.True(t, got.PredecessorsRecorded)

	// The view an operation references is always readable.
	_, err = s.ReadView(ctx, got.ViewID)
	assert.NoError(t, err)
}

func TestRootOperation(t *testing.T) {
	ctx := context.Background()
	s := newTestOpStore(t)
	root, err := s.ReadOperation(ctx, s.RootOperationID())
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	v, err := s.ReadView(ctx, root.ViewID)
	require.NoError(t, err)
	assert.True(t, v.HeadIDs[plumbing.ZeroHash])
}

func TestResolveOperationIDPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestOpStore(t)
	viewID, err := s.WriteView(ctx, NewView())
	require.NoError(t, err)
	op := &Operation{ViewID: viewID, Parents: []plumbing.OperationID{s.RootOperationID()}}
	id, err := s.WriteOperation(ctx, op)
	require.NoError(t, err)

	prefix, ok := plumbing.ParseHexPrefix(id.String()[:8])
	require.True(t, ok)
	matches, err := s.ResolveOperationIDPrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.OperationID{id}, matches)
}

func TestOpHeadsUpdate(t *testing.T) {
	dir := t.TempDir()
	root := plumbing.ZeroHash
	heads, err := InitOpHeads(dir, root)
	require.NoError(t, err)

	got, err := heads.Heads()
	require.NoError(t, err)
	assert.Equal(t, []plumbing.OperationID{root}, got)

	op1 := plumbing.HashOf([]byte("op1"))
	require.NoError(t, heads.Update(op1, root))
	got, err = heads.Heads()
	require.NoError(t, err)
	assert.Equal(t, []plumbing.OperationID{op1}, got)

	// A concurrent writer's head survives until someone merges.
	op2 := plumbing.HashOf([]byte("op2"))
	require.NoError(t, heads.Update(op2, root))
	got, err = heads.Heads()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestViewClone(t *testing.T) {
	v := NewView()
	c := plumbing.HashOf([]byte("c"))
	v.AddHead(c)
	v.SetLocalBookmark("main", NormalRefTarget(c))

	cp := v.Clone()
	cp.RemoveHead(c)
	cp.SetLocalBookmark("main", AbsentRefTarget())
	assert.True(t, v.HeadIDs[c])
	_, ok := v.LocalBookmarks["main"]
	assert.True(t, ok)
}
