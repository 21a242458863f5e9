package annotate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/backend"
	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/revset"
)

type chain struct {
	t       *testing.T
	ctx     context.Context
	backend *backend.SimpleBackend
	mutable *index.MutableSegment
	idx     *index.CompositeIndex
}

func newChain(t *testing.T) *chain {
	b, err := backend.NewSimpleBackend(t.TempDir())
	require.NoError(t, err)
	m := index.NewMutableSegment(nil)
	return &chain{
		t:       t,
		ctx:     context.Background(),
		backend: b,
		mutable: m,
		idx:     index.NewCompositeIndex(nil, m),
	}
}

func (c *chain) commit(content string, parents ...plumbing.CommitID) plumbing.CommitID {
	c.t.Helper()
	fileID, err := c.backend.WriteBlob(c.ctx, strings.NewReader(content))
	require.NoError(c.t, err)
	tree := &object.Tree{}
	tree.Set("file", object.FileValue(fileID, false))
	treeID, err := c.backend.WriteTree(c.ctx, tree)
	require.NoError(c.t, err)
	if len(parents) == 0 {
		parents = []plumbing.CommitID{c.backend.RootCommitID()}
	}
	commit := &object.Commit{
		Parents:  parents,
		RootTree: merge.Resolved(treeID),
		ChangeID: plumbing.NewChangeID(),
	}
	id, _, err := c.backend.WriteCommit(c.ctx, commit, nil)
	require.NoError(c.t, err)
	positions := make([]index.GlobalCommitPosition, 0, len(parents))
	for _, p := range parents {
		if pos, ok := c.idx.PositionByCommitID(p); ok {
			positions = append(positions, pos)
		}
	}
	c.mutable.Add(id, commit.ChangeID, positions, c.idx.Generation)
	return id
}

func (c *chain) domain(heads ...plumbing.CommitID) *revset.Revset {
	r, err := revset.Evaluate(c.ctx, c.idx, revset.AncestorsExpr{Heads: revset.CommitsExpr{IDs: heads}}, heads)
	require.NoError(c.t, err)
	return r
}

func TestAnnotateLinearHistory(t *testing.T) {
	c := newChain(t)
	root := c.commit("1\n2\n")
	mid := c.commit("1\n2\n3\n", root)
	tip := c.commit("one\n2\n3\n", mid)

	ann, err := File(c.ctx, c.backend, c.idx, c.domain(tip), tip, "file")
	require.NoError(t, err)
	require.Len(t, ann.Lines, 3)
	assert.Equal(t, tip, ann.Lines[0].Commit)
	assert.Equal(t, root, ann.Lines[1].Commit)
	assert.Equal(t, mid, ann.Lines[2].Commit)
	for _, line := range ann.Lines {
		assert.True(t, line.Known)
	}
}

func TestAnnotateOutsideDomain(t *testing.T) {
	c := newChain(t)
	old := c.commit("ancient\n")
	tip := c.commit("ancient\nnew\n", old)

	// The domain stops at tip: the first line's true origin is
	// unreachable.
	domain, err := revset.Evaluate(c.ctx, c.idx, revset.CommitsExpr{IDs: []plumbing.CommitID{tip}}, []plumbing.CommitID{tip})
	require.NoError(t, err)
	ann, err := File(c.ctx, c.backend, c.idx, domain, tip, "file")
	require.NoError(t, err)
	require.Len(t, ann.Lines, 2)
	assert.False(t, ann.Lines[0].Known)
	assert.Equal(t, old, ann.Lines[0].Commit)
	assert.True(t, ann.Lines[1].Known)
	assert.Equal(t, tip, ann.Lines[1].Commit)
}

func TestAnnotateMergePrefersEitherParent(t *testing.T) {
	c := newChain(t)
	base := c.commit("x\n")
	left := c.commit("l\nx\n", base)
	right := c.commit("x\nr\n", base)
	merged := c.commit("l\nx\nr\n", left, right)

	ann, err := File(c.ctx, c.backend, c.idx, c.domain(merged), merged, "file")
	require.NoError(t, err)
	require.Len(t, ann.Lines, 3)
	assert.Equal(t, left, ann.Lines[0].Commit)
	assert.Equal(t, base, ann.Lines[1].Commit)
	assert.Equal(t, right, ann.Lines[2].Commit)
}
