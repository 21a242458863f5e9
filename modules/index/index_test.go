package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/plumbing"
)

// graphBuilder grows an index commit by commit for tests.
type graphBuilder struct {
	t       *testing.T
	mutable *MutableSegment
	index   *CompositeIndex
	ids     map[string]plumbing.CommitID
	changes map[string]plumbing.ChangeID
}

func newGraphBuilder(t *testing.T) *graphBuilder {
	m := NewMutableSegment(nil)
	return &graphBuilder{
		t:       t,
		mutable: m,
		index:   NewCompositeIndex(nil, m),
		ids:     make(map[string]plumbing.CommitID),
		changes: make(map[string]plumbing.ChangeID),
	}
}

func (g *graphBuilder) add(name string, parents ...string) plumbing.CommitID {
	id := plumbing.HashOf([]byte(name))
	chid := plumbing.NewChangeID()
	g.addWithChange(name, id, chid, parents...)
	return id
}

func (g *graphBuilder) addWithChange(name string, id plumbing.CommitID, chid plumbing.ChangeID, parents ...string) {
	positions := make([]GlobalCommitPosition, 0, len(parents))
	for _, p := range parents {
		pos, ok := g.index.PositionByCommitID(g.ids[p])
		require.True(g.t, ok, "parent %s not indexed", p)
		positions = append(positions, pos)
	}
	g.mutable.Add(id, chid, positions, g.index.Generation)
	g.ids[name] = id
	g.changes[name] = chid
}

// Linear chain with a side branch:
//
//	root - a - b - c
//	        \
//	         d
func buildBranchy(t *testing.T) *graphBuilder {
	g := newGraphBuilder(t)
	g.add("root")
	g.add("a", "root")
	g.add("b", "a")
	g.add("c", "b")
	g.add("d", "a")
	return g
}

func TestGenerationNumbers(t *testing.T) {
	g := buildBranchy(t)
	for name, want := range map[string]uint32{"root": 0, "a": 1, "b": 2, "c": 3, "d": 2} {
		pos, ok := g.index.PositionByCommitID(g.ids[name])
		require.True(t, ok)
		assert.Equal(t, want, g.index.Generation(pos), name)
	}
}

func TestParentsAtSmallerPositions(t *testing.T) {
	g := buildBranchy(t)
	for name := range g.ids {
		pos, _ := g.index.PositionByCommitID(g.ids[name])
		for _, p := range g.index.ParentPositions(pos) {
			assert.Less(t, p, pos)
		}
	}
}

func TestIsAncestor(t *testing.T) {
	g := buildBranchy(t)
	assert.True(t, g.index.IsAncestor(g.ids["root"], g.ids["c"]))
	assert.True(t, g.index.IsAncestor(g.ids["a"], g.ids["d"]))
	assert.False(t, g.index.IsAncestor(g.ids["b"], g.ids["d"]))
	assert.False(t, g.index.IsAncestor(g.ids["c"], g.ids["a"]))
	assert.True(t, g.index.IsAncestor(g.ids["b"], g.ids["b"]))
}

func TestHeads(t *testing.T) {
	g := buildBranchy(t)
	heads := g.index.Heads([]plumbing.CommitID{g.ids["root"], g.ids["b"], g.ids["c"], g.ids["d"]})
	assert.ElementsMatch(t, []plumbing.CommitID{g.ids["c"], g.ids["d"]}, heads)
}

func TestHeadsAgreesWithIsAncestor(t *testing.T) {
	g := buildBranchy(t)
	all := []plumbing.CommitID{g.ids["root"], g.ids["a"], g.ids["b"], g.ids["c"], g.ids["d"]}
	heads := g.index.Heads(all)
	for _, x := range all {
		isHead := true
		for _, y := range all {
			if x != y && g.index.IsAncestor(x, y) {
				isHead = false
			}
		}
		assert.Equal(t, isHead, contains(heads, x))
	}
}

func contains(ids []plumbing.CommitID, id plumbing.CommitID) bool {
	for _, c := range ids {
		if c == id {
			return true
		}
	}
	return false
}

func TestCommonAncestors(t *testing.T) {
	g := buildBranchy(t)
	got := g.index.CommonAncestors(
		[]plumbing.CommitID{g.ids["c"]},
		[]plumbing.CommitID{g.ids["d"]},
	)
	assert.Equal(t, []plumbing.CommitID{g.ids["a"]}, got)
}

func TestPrefixResolution(t *testing.T) {
	g := buildBranchy(t)
	id := g.ids["c"]
	p, ok := plumbing.ParseHexPrefix(id.String()[:16])
	require.True(t, ok)
	res, got := g.index.ResolveCommitIDPrefix(p)
	assert.Equal(t, PrefixSingleMatch, res)
	assert.Equal(t, id, got)

	none, ok := plumbing.ParseHexPrefix("ffffffffffffffffffffffffffffffff")
	require.True(t, ok)
	res, _ = g.index.ResolveCommitIDPrefix(none)
	// The odds of a test hash starting with 16 f's are negligible.
	assert.Equal(t, PrefixNoMatch, res)
}

func TestChangeIDPrefixResolvesToAllPositions(t *testing.T) {
	g := newGraphBuilder(t)
	g.add("root")
	chid := plumbing.NewChangeID()
	g.addWithChange("v1", plumbing.HashOf([]byte("v1")), chid, "root")
	g.addWithChange("v2", plumbing.HashOf([]byte("v2")), chid, "root")

	p, ok := plumbing.ParseReverseHexPrefix(chid.String())
	require.True(t, ok)
	res, positions := g.index.ResolveChangeIDPrefix(p)
	assert.Equal(t, PrefixSingleMatch, res)
	assert.Len(t, positions, 2)
}

func TestSerializeRoundTrip(t *testing.T) {
	g := buildBranchy(t)
	seg, _, err := g.mutable.Freeze()
	require.NoError(t, err)

	frozen := NewCompositeIndex(seg, nil)
	assert.Equal(t, g.index.NumCommits(), frozen.NumCommits())
	for name, id := range g.ids {
		pos, ok := frozen.PositionByCommitID(id)
		require.True(t, ok, name)
		e := frozen.Entry(pos)
		assert.Equal(t, id, e.CommitID)
		assert.Equal(t, g.changes[name], e.ChangeID)
	}
	assert.True(t, frozen.IsAncestor(g.ids["root"], g.ids["c"]))

	// Identical content serializes to the identical name.
	name1, data1 := g.mutable.Serialize()
	name2, data2 := g.mutable.Serialize()
	assert.Equal(t, name1, name2)
	assert.Equal(t, data1, data2)
}

func TestManyParentsOverflow(t *testing.T) {
	g := newGraphBuilder(t)
	g.add("root")
	g.add("p1", "root")
	g.add("p2", "root")
	g.add("p3", "root")
	g.add("octopus", "p1", "p2", "p3")

	seg, _, err := g.mutable.Freeze()
	require.NoError(t, err)
	frozen := NewCompositeIndex(seg, nil)
	pos, ok := frozen.PositionByCommitID(g.ids["octopus"])
	require.True(t, ok)
	assert.Len(t, frozen.ParentPositions(pos), 3)
	assert.Equal(t, uint32(2), frozen.Generation(pos))
}

func TestStackedSegments(t *testing.T) {
	g := buildBranchy(t)
	base, _, err := g.mutable.Freeze()
	require.NoError(t, err)

	top := NewMutableSegment(base)
	x := NewCompositeIndex(base, top)
	aPos, ok := x.PositionByCommitID(g.ids["c"])
	require.True(t, ok)
	newID := plumbing.HashOf([]byte("e"))
	top.Add(newID, plumbing.NewChangeID(), []GlobalCommitPosition{aPos}, x.Generation)

	assert.True(t, x.IsAncestor(g.ids["root"], newID))
	pos, ok := x.PositionByCommitID(newID)
	require.True(t, ok)
	assert.Equal(t, uint32(4), x.Generation(pos))
}

func TestSquashAbsorbsSmallParent(t *testing.T) {
	g := buildBranchy(t)
	base, _, err := g.mutable.Freeze()
	require.NoError(t, err)

	top := NewMutableSegment(base)
	x := NewCompositeIndex(base, top)
	prev := "c"
	for i := 0; i < 6; i++ {
		name := string(rune('e' + i))
		id := plumbing.HashOf([]byte(name))
		pos, ok := x.PositionByCommitID(g.ids[prev])
		require.True(t, ok)
		top.Add(id, plumbing.NewChangeID(), []GlobalCommitPosition{pos}, x.Generation)
		g.ids[name] = id
		prev = name
	}
	// 6 local commits on a 5-commit parent: the parent gets absorbed.
	seg, _, err := top.Freeze()
	require.NoError(t, err)
	assert.Nil(t, seg.parent)
	assert.Equal(t, uint32(11), seg.numLocalCommits())
}

func TestAncestorsBitSet(t *testing.T) {
	g := buildBranchy(t)
	s := NewAncestorsBitSet(g.index)
	cPos, _ := g.index.PositionByCommitID(g.ids["c"])
	rootPos, _ := g.index.PositionByCommitID(g.ids["root"])
	dPos, _ := g.index.PositionByCommitID(g.ids["d"])
	s.AddHead(cPos)
	s.VisitUntil(rootPos)
	assert.True(t, s.Contains(rootPos))
	assert.False(t, s.Contains(dPos))
}

func TestShortestUniquePrefixLen(t *testing.T) {
	g := buildBranchy(t)
	id := g.ids["c"]
	n := g.index.ShortestUniqueCommitIDPrefixLen(id)
	require.GreaterOrEqual(t, n, 1)
	p, ok := plumbing.ParseHexPrefix(id.String()[:n])
	require.True(t, ok)
	res, got := g.index.ResolveCommitIDPrefix(p)
	assert.Equal(t, PrefixSingleMatch, res)
	assert.Equal(t, id, got)
}

func TestIndexStorePersistence(t *testing.T) {
	g := buildBranchy(t)
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	opID := plumbing.HashOf([]byte("op"))
	seg, err := store.Save(g.mutable, opID)
	require.NoError(t, err)

	// A fresh store reloads the same stack from disk.
	store2, err := NewStore(store.dir)
	require.NoError(t, err)
	loaded, ok := store2.SegmentAtOperation(opID)
	require.True(t, ok)
	assert.Equal(t, seg.Name(), loaded.Name())
	x := NewCompositeIndex(loaded, nil)
	assert.True(t, x.IsAncestor(g.ids["a"], g.ids["d"]))
}

func TestChangedPathsOverlay(t *testing.T) {
	c := NewChangedPathsIndex()
	c.Record(3, []string{"a", "b"})
	paths, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, paths)
	c.Freeze()
	_, ok = c.Get(3)
	assert.True(t, ok)
	_, ok = c.Get(4)
	assert.False(t, ok)
}
