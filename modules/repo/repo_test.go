package repo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
)

type testEnv struct {
	t    *testing.T
	ctx  context.Context
	repo *ReadonlyRepo
	tick int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{t: t, ctx: context.Background()}
	settings := &Settings{
		Name:     "Test User",
		Email:    "test@example.com",
		Hostname: "host.example.com",
		Username: "testuser",
		Now: func() time.Time {
			e.tick++
			return time.Unix(1700000000+e.tick, 0).UTC()
		},
	}
	repo, err := Init(e.ctx, t.TempDir(), settings)
	require.NoError(t, err)
	e.repo = repo
	return e
}

func (e *testEnv) writeTree(m *MutableRepo, files map[string]string) merge.Merge[plumbing.TreeID] {
	e.t.Helper()
	flat := make(map[string]object.TreeValue, len(files))
	for path, content := range files {
		id, err := m.Store().WriteBlob(e.ctx, strings.NewReader(content))
		require.NoError(e.t, err)
		flat[path] = object.FileValue(id, false)
	}
	treeID, err := object.WriteTreeFromPaths(e.ctx, m.Store(), flat)
	require.NoError(e.t, err)
	return merge.Resolved(treeID)
}

// commit writes a child of parents in its own transaction.
func (e *testEnv) commit(desc string, files map[string]string, parents ...*object.Commit) *object.Commit {
	e.t.Helper()
	tx := e.repo.StartTransaction()
	m := tx.Mutable()
	parentIDs := make([]plumbing.CommitID, 0, len(parents))
	for _, p := range parents {
		parentIDs = append(parentIDs, p.ID)
	}
	if len(parentIDs) == 0 {
		parentIDs = []plumbing.CommitID{m.Store().RootCommitID()}
	}
	c, err := m.NewCommit(parentIDs, e.writeTree(m, files)).SetDescription(desc).Write(e.ctx)
	require.NoError(e.t, err)
	repo, err := tx.Commit(e.ctx, "commit "+desc)
	require.NoError(e.t, err)
	e.repo = repo
	return c
}

func (e *testEnv) fileContent(c *object.Commit, path string) string {
	e.t.Helper()
	tid, ok := c.RootTree.AsResolved()
	require.True(e.t, ok, "conflicted tree")
	v, err := object.FindPath(e.ctx, e.repo.Repo.Store, tid, path)
	require.NoError(e.t, err)
	require.False(e.t, v.IsAbsent(), "missing %s", path)
	data, err := object.ReadBlob(e.ctx, e.repo.Repo.Store, v.ID)
	require.NoError(e.t, err)
	return string(data)
}

// currentCommitFor finds the newest indexed commit carrying old's change
// id that is reachable from a visible head.
func (e *testEnv) currentCommitFor(old *object.Commit) *object.Commit {
	e.t.Helper()
	positions := e.repo.Index.PositionsByChangeID(old.ChangeID)
	require.NotEmpty(e.t, positions, "change disappeared")
	visibleHeads := e.repo.View.Heads()
	for i := len(positions) - 1; i >= 0; i-- {
		id := e.repo.Index.CommitIDByPos(positions[i])
		for _, h := range visibleHeads {
			if e.repo.Index.IsAncestor(id, h) {
				return e.repo.Repo.Store.MustCommit(e.ctx, id)
			}
		}
	}
	e.t.Fatalf("no visible commit for change %s", old.ChangeID)
	return nil
}

func TestInitHasRootHead(t *testing.T) {
	e := newTestEnv(t)
	heads := e.repo.View.Heads()
	require.Len(t, heads, 1)
	assert.Equal(t, e.repo.Repo.Store.RootCommitID(), heads[0])
	assert.True(t, e.repo.Operation.IsRoot())
}

func TestCommitTransaction(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "a\n"})
	heads := e.repo.View.Heads()
	require.Len(t, heads, 1)
	assert.Equal(t, a.ID, heads[0])
	assert.Equal(t, "commit a", e.repo.Operation.Metadata.Description)
	// Fresh commits record an empty predecessor list.
	preds, ok := e.repo.Operation.CommitPredecessors[a.ID]
	require.True(t, ok)
	assert.Empty(t, preds)
}

func TestDroppedTransactionLeavesNoTrace(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "a\n"})
	tx := e.repo.StartTransaction()
	_, err := tx.Mutable().NewCommit([]plumbing.CommitID{a.ID}, e.writeTree(tx.Mutable(), map[string]string{"file": "b\n"})).Write(e.ctx)
	require.NoError(t, err)
	// The transaction is dropped, not committed.
	reloaded, err := Load(e.ctx, e.repo.Repo.Path, e.repo.Repo.Settings)
	require.NoError(t, err)
	assert.Equal(t, e.repo.Operation.ID, reloaded.Operation.ID)
	assert.Equal(t, []plumbing.CommitID{a.ID}, reloaded.View.Heads())
}

func TestRebasePreservesDiff(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "1\n2\n3\n4\n5\n"})
	b := e.commit("b", map[string]string{"file": "one\n2\n3\n4\n5\n"}, a)
	c := e.commit("c", map[string]string{"file": "one\n2\nthree\n4\n5\n"}, b)
	d := e.commit("d", map[string]string{"file": "1\n2\n3\n4\nfive\n"}, a)

	tx := e.repo.StartTransaction()
	m := tx.Mutable()
	err := m.MoveCommits(e.ctx, []plumbing.CommitID{d.ID}, nil, MoveTarget{Roots: []plumbing.CommitID{b.ID}}, nil)
	require.NoError(t, err)
	repo, err := tx.Commit(e.ctx, "rebase")
	require.NoError(t, err)
	e.repo = repo

	b2 := e.currentCommitFor(b)
	c2 := e.currentCommitFor(c)
	assert.Equal(t, []plumbing.CommitID{d.ID}, b2.Parents)
	assert.Equal(t, []plumbing.CommitID{b2.ID}, c2.Parents)
	// The rebased commits carry their own change on top of d's.
	assert.Equal(t, "one\n2\n3\n4\nfive\n", e.fileContent(b2, "file"))
	assert.Equal(t, "one\n2\nthree\n4\nfive\n", e.fileContent(c2, "file"))
	// Change identity survives the rewrite.
	assert.Equal(t, b.ChangeID, b2.ChangeID)
	assert.Equal(t, c.ChangeID, c2.ChangeID)
}

func TestAbandonKeepsDescendantContent(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "a\n"})
	b := e.commit("b", map[string]string{"file": "a\nb\n"}, a)
	c := e.commit("c", map[string]string{"file": "a\nb\nc\n"}, b)

	tx := e.repo.StartTransaction()
	require.NoError(t, tx.Mutable().AbandonCommit(e.ctx, b.ID))
	repo, err := tx.Commit(e.ctx, "abandon commit "+b.ID.Short(12))
	require.NoError(t, err)
	e.repo = repo

	c2 := e.currentCommitFor(c)
	assert.Equal(t, []plumbing.CommitID{a.ID}, c2.Parents)
	// The abandoned commit's content folds into its descendant.
	assert.Equal(t, c.RootTree.Terms(), c2.RootTree.Terms())
	assert.False(t, e.repo.View.HeadIDs[b.ID])
	assert.Contains(t, e.repo.Operation.Metadata.Description, "abandon commit")
}

func TestConcurrentOperationsMerge(t *testing.T) {
	e := newTestEnv(t)
	c1 := e.commit("c1", map[string]string{"f1": "1\n"})
	base := e.repo
	c2 := e.commit("c2", map[string]string{"f2": "2\n"}, c1)

	// Two writers start from the same operation.
	tx1 := base.StartTransaction()
	tx1.Mutable().View().SetLocalBookmark("main", opstore.NormalRefTarget(c1.ID))
	_, err := tx1.Commit(e.ctx, "set main")
	require.NoError(t, err)

	tx2 := base.StartTransaction()
	tx2.Mutable().View().SetLocalBookmark("feature", opstore.NormalRefTarget(c2.ID))
	merged, err := tx2.Commit(e.ctx, "set feature")
	require.NoError(t, err)

	// The second commit found the concurrent head and wrote a merge op.
	require.Len(t, merged.Operation.Parents, 2)
	mainTarget, ok := merged.View.LocalBookmarks["main"]
	require.True(t, ok)
	id, resolved := mainTarget.AsResolved()
	require.True(t, resolved)
	assert.Equal(t, c1.ID, id)
	featureTarget, ok := merged.View.LocalBookmarks["feature"]
	require.True(t, ok)
	id, resolved = featureTarget.AsResolved()
	require.True(t, resolved)
	assert.Equal(t, c2.ID, id)
}

func TestEvologAcrossOperations(t *testing.T) {
	e := newTestEnv(t)
	a1 := e.commit("v1", map[string]string{"file": "1\n"})

	rewrite := func(c *object.Commit, desc string) *object.Commit {
		tx := e.repo.StartTransaction()
		newC, err := tx.Mutable().RewriteCommit(c).SetDescription(desc).Write(e.ctx)
		require.NoError(t, err)
		repo, err := tx.Commit(e.ctx, "describe")
		require.NoError(t, err)
		e.repo = repo
		return newC
	}
	a2 := rewrite(a1, "v2")
	a3 := rewrite(a2, "v3")

	entries, err := e.repo.Repo.WalkPredecessors(e.ctx, a3.ID, e.repo.Operation)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, a3.ID, entries[0].Commit.ID)
	assert.Equal(t, []plumbing.CommitID{a2.ID}, entries[0].Predecessors)
	assert.Equal(t, a2.ID, entries[1].Commit.ID)
	assert.Equal(t, []plumbing.CommitID{a1.ID}, entries[1].Predecessors)
	assert.Equal(t, a1.ID, entries[2].Commit.ID)
	assert.Empty(t, entries[2].Predecessors)
	// Newest rewrites come from newest operations.
	require.NotNil(t, entries[0].Operation)
	require.NotNil(t, entries[1].Operation)
	assert.NotEqual(t, entries[0].Operation.ID, entries[1].Operation.ID)
}

func TestShortestPrefixAvoidsRefClash(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "a\n"})
	b := e.commit("b", map[string]string{"file": "b\n"}, a)

	// Bookmark named exactly like the commit id's first hex digit.
	clash := a.ID.String()[:1]
	tx := e.repo.StartTransaction()
	tx.Mutable().View().SetLocalBookmark(clash, opstore.NormalRefTarget(b.ID))
	repo, err := tx.Commit(e.ctx, "bookmark")
	require.NoError(t, err)
	e.repo = repo

	idCtx := NewIDPrefixContext(e.repo, nil)
	n := idCtx.ShortestCommitPrefixLen(a.ID)
	assert.GreaterOrEqual(t, n, 2)

	// The symbol resolves to the bookmark, not the commit prefix.
	ids, err := idCtx.ResolveSymbol(clash)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.CommitID{b.ID}, ids)
}

func TestSquashIntoParent(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "a\n"})
	b := e.commit("b", map[string]string{"file": "a\n", "extra": "x\n"}, a)
	c := e.commit("c", map[string]string{"file": "a\n", "extra": "x\n", "more": "m\n"}, b)

	tx := e.repo.StartTransaction()
	newDestID, err := tx.Mutable().SquashCommits(e.ctx, []plumbing.CommitID{b.ID}, a.ID, false, nil)
	require.NoError(t, err)
	repo, err := tx.Commit(e.ctx, "squash")
	require.NoError(t, err)
	e.repo = repo

	newDest := e.repo.Repo.Store.MustCommit(e.ctx, newDestID)
	assert.Equal(t, "x\n", e.fileContent(newDest, "extra"))
	// b dissolved; its change id no longer resolves to a visible commit.
	assert.False(t, e.repo.View.HeadIDs[b.ID])
	c2 := e.currentCommitFor(c)
	assert.Equal(t, []plumbing.CommitID{newDestID}, c2.Parents)
	assert.Equal(t, "m\n", e.fileContent(c2, "more"))
	// The squash records both predecessors on the destination.
	preds := e.repo.Operation.CommitPredecessors[newDestID]
	assert.ElementsMatch(t, []plumbing.CommitID{a.ID, b.ID}, preds)
}

func TestParallelize(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"a": "a\n"})
	b := e.commit("b", map[string]string{"a": "a\n", "b": "b\n"}, a)
	c := e.commit("c", map[string]string{"a": "a\n", "b": "b\n", "c": "c\n"}, b)
	d := e.commit("d", map[string]string{"a": "a\n", "b": "b\n", "c": "c\n", "d": "d\n"}, c)

	tx := e.repo.StartTransaction()
	require.NoError(t, tx.Mutable().Parallelize(e.ctx, []plumbing.CommitID{b.ID, c.ID}))
	repo, err := tx.Commit(e.ctx, "parallelize")
	require.NoError(t, err)
	e.repo = repo

	b2 := e.currentCommitFor(b)
	c2 := e.currentCommitFor(c)
	d2 := e.currentCommitFor(d)
	assert.Equal(t, []plumbing.CommitID{a.ID}, b2.Parents)
	assert.Equal(t, []plumbing.CommitID{a.ID}, c2.Parents)
	assert.ElementsMatch(t, []plumbing.CommitID{b2.ID, c2.ID}, d2.Parents)
}

func TestEmptiedCommitAbandoned(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "a\n"})
	b := e.commit("b", map[string]string{"file": "a\nb\n"}, a)
	// d makes the same change as b.
	d := e.commit("d", map[string]string{"file": "a\nb\n"}, a)

	tx := e.repo.StartTransaction()
	m := tx.Mutable()
	opts := &RebaseOptions{Empty: EmptyAbandonNewly, SimplifyAncestorMerge: true}
	err := m.MoveCommits(e.ctx, []plumbing.CommitID{d.ID}, nil, MoveTarget{Roots: []plumbing.CommitID{b.ID}}, opts)
	require.NoError(t, err)
	repo, err := tx.Commit(e.ctx, "rebase")
	require.NoError(t, err)
	e.repo = repo

	// b became empty on top of d and was abandoned: its change id is
	// gone from the visible set.
	for _, pos := range e.repo.Index.PositionsByChangeID(b.ChangeID) {
		id := e.repo.Index.CommitIDByPos(pos)
		for _, h := range e.repo.View.Heads() {
			if e.repo.Index.IsAncestor(id, h) {
				assert.Equal(t, b.ID, id, "only the hidden original should remain")
			}
		}
	}
	assert.Equal(t, []plumbing.CommitID{d.ID}, e.repo.View.Heads())
}

func TestRebaseDescendantsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "a\n"})
	b := e.commit("b", map[string]string{"file": "a\nb\n"}, a)

	tx := e.repo.StartTransaction()
	m := tx.Mutable()
	n, err := m.RebaseDescendants(e.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = m.RewriteCommit(e.repo.Repo.Store.MustCommit(e.ctx, b.ID)).SetDescription("b2").Write(e.ctx)
	require.NoError(t, err)
	_, err = m.RebaseDescendants(e.ctx, nil)
	require.NoError(t, err)
	n, err = m.RebaseDescendants(e.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestImmutableCommitRejected(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"file": "a\n"})
	e.repo.Repo.Settings.Immutable = func(id plumbing.CommitID) bool { return id == a.ID }

	tx := e.repo.StartTransaction()
	err := tx.Mutable().AbandonCommit(e.ctx, a.ID)
	var immutable *RebaseImmutableError
	require.ErrorAs(t, err, &immutable)
	assert.Equal(t, a.ID, immutable.ID)
}

func TestRewriteRootRejected(t *testing.T) {
	e := newTestEnv(t)
	tx := e.repo.StartTransaction()
	err := tx.Mutable().AbandonCommit(e.ctx, e.repo.Repo.Store.RootCommitID())
	var immutable *RebaseImmutableError
	assert.ErrorAs(t, err, &immutable)
}

func TestRestorePaths(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"f1": "old1\n", "f2": "old2\n"})
	b := e.commit("b", map[string]string{"f1": "new1\n", "f2": "new2\n"}, a)

	tx := e.repo.StartTransaction()
	newID, err := tx.Mutable().RestorePaths(e.ctx, a.ID, b.ID, func(p string) bool { return p == "f1" })
	require.NoError(t, err)
	repo, err := tx.Commit(e.ctx, "restore")
	require.NoError(t, err)
	e.repo = repo

	restored := e.repo.Repo.Store.MustCommit(e.ctx, newID)
	assert.Equal(t, "old1\n", e.fileContent(restored, "f1"))
	assert.Equal(t, "new2\n", e.fileContent(restored, "f2"))
}

func TestFixFiles(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"src.txt": "hello\n"})
	b := e.commit("b", map[string]string{"src.txt": "hello\nworld\n"}, a)

	fixer := &ParallelFileFixer{
		Fn: func(ctx context.Context, path string, content []byte) ([]byte, bool, error) {
			return []byte(strings.ToUpper(string(content))), true, nil
		},
	}
	tx := e.repo.StartTransaction()
	n, err := tx.Mutable().FixFiles(e.ctx, []plumbing.CommitID{a.ID}, nil, false, fixer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	repo, err := tx.Commit(e.ctx, "fix")
	require.NoError(t, err)
	e.repo = repo

	a2 := e.currentCommitFor(a)
	b2 := e.currentCommitFor(b)
	assert.Equal(t, "HELLO\n", e.fileContent(a2, "src.txt"))
	assert.Equal(t, "HELLO\nWORLD\n", e.fileContent(b2, "src.txt"))
	// Change ids survive the fix.
	assert.Equal(t, a.ChangeID, a2.ChangeID)
	assert.Equal(t, b.ChangeID, b2.ChangeID)
}

func TestOpDiffAndRevert(t *testing.T) {
	e := newTestEnv(t)
	c1 := e.commit("c1", map[string]string{"f": "1\n"})
	beforeBookmark := e.repo

	tx := e.repo.StartTransaction()
	tx.Mutable().View().SetLocalBookmark("main", opstore.NormalRefTarget(c1.ID))
	repo, err := tx.Commit(e.ctx, "set bookmark")
	require.NoError(t, err)
	e.repo = repo

	diff, err := e.repo.Repo.DiffOperations(e.ctx, beforeBookmark.Operation, e.repo.Operation)
	require.NoError(t, err)
	require.Len(t, diff.Bookmarks, 1)
	assert.Equal(t, "main", diff.Bookmarks[0].Name)

	// Revert the bookmark operation.
	revertView, err := e.repo.Repo.ViewAtOperationRevert(e.ctx, e.repo.Operation, e.repo.Index)
	require.NoError(t, err)
	tx = e.repo.StartTransaction()
	require.NoError(t, tx.Mutable().SetView(e.ctx, revertView))
	repo, err = tx.Commit(e.ctx, "revert operation")
	require.NoError(t, err)
	_, ok := repo.View.LocalBookmarks["main"]
	assert.False(t, ok)
}

func TestFixerErrorAbortsTransaction(t *testing.T) {
	e := newTestEnv(t)
	a := e.commit("a", map[string]string{"src.txt": "hello\n"})
	fixer := &ParallelFileFixer{
		Fn: func(ctx context.Context, path string, content []byte) ([]byte, bool, error) {
			return nil, false, assert.AnError
		},
	}
	tx := e.repo.StartTransaction()
	_, err := tx.Mutable().FixFiles(e.ctx, []plumbing.CommitID{a.ID}, nil, true, fixer)
	var fixErr *FixContentError
	require.ErrorAs(t, err, &fixErr)
	// The transaction is dropped; nothing changed.
	reloaded, err := Load(e.ctx, e.repo.Repo.Path, e.repo.Repo.Settings)
	require.NoError(t, err)
	assert.Equal(t, e.repo.Operation.ID, reloaded.Operation.ID)
}
