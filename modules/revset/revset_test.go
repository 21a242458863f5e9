package revset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/plumbing"
)

type graph struct {
	t     *testing.T
	m     *index.MutableSegment
	idx   *index.CompositeIndex
	ids   map[string]plumbing.CommitID
	names map[plumbing.CommitID]string
	heads []plumbing.CommitID
}

func newGraph(t *testing.T) *graph {
	m := index.NewMutableSegment(nil)
	return &graph{
		t:     t,
		m:     m,
		idx:   index.NewCompositeIndex(nil, m),
		ids:   make(map[string]plumbing.CommitID),
		names: make(map[plumbing.CommitID]string),
	}
}

func (g *graph) add(name string, parents ...string) {
	id := plumbing.HashOf([]byte(name))
	positions := make([]index.GlobalCommitPosition, 0, len(parents))
	for _, p := range parents {
		pos, ok := g.idx.PositionByCommitID(g.ids[p])
		require.True(g.t, ok)
		positions = append(positions, pos)
	}
	g.m.Add(id, plumbing.NewChangeID(), positions, g.idx.Generation)
	g.ids[name] = id
	g.names[id] = name
}

func (g *graph) commits(names ...string) CommitsExpr {
	ids := make([]plumbing.CommitID, len(names))
	for i, n := range names {
		ids[i] = g.ids[n]
	}
	return CommitsExpr{IDs: ids}
}

func (g *graph) eval(expr Expression) []string {
	r, err := Evaluate(context.Background(), g.idx, expr, g.heads)
	require.NoError(g.t, err)
	var out []string
	for _, id := range r.Iter() {
		out = append(out, g.names[id])
	}
	return out
}

// root - a - b - c, with d a second child of a and f a merge of b and d.
func buildGraph(t *testing.T) *graph {
	g := newGraph(t)
	g.add("root")
	g.add("a", "root")
	g.add("b", "a")
	g.add("c", "b")
	g.add("d", "a")
	g.add("f", "b", "d")
	g.heads = []plumbing.CommitID{g.ids["c"], g.ids["f"]}
	return g
}

func TestAncestors(t *testing.T) {
	g := buildGraph(t)
	got := g.eval(AncestorsExpr{Heads: g.commits("b")})
	assert.Equal(t, []string{"b", "a", "root"}, got)
}

func TestDescendants(t *testing.T) {
	g := buildGraph(t)
	got := g.eval(DescendantsExpr{Roots: g.commits("b")})
	assert.ElementsMatch(t, []string{"b", "c", "f"}, got)
}

func TestRange(t *testing.T) {
	g := buildGraph(t)
	got := g.eval(RangeExpr{Base: g.commits("a"), Head: g.commits("c")})
	assert.Equal(t, []string{"c", "b"}, got)
}

func TestDagRange(t *testing.T) {
	g := buildGraph(t)
	got := g.eval(DagRangeExpr{Base: g.commits("a"), Head: g.commits("f")})
	assert.ElementsMatch(t, []string{"a", "b", "d", "f"}, got)
}

func TestSetOperators(t *testing.T) {
	g := buildGraph(t)
	union := g.eval(UnionExpr{A: g.commits("a"), B: g.commits("d")})
	assert.ElementsMatch(t, []string{"a", "d"}, union)

	inter := g.eval(IntersectionExpr{
		A: AncestorsExpr{Heads: g.commits("c")},
		B: AncestorsExpr{Heads: g.commits("f")},
	})
	assert.ElementsMatch(t, []string{"root", "a", "b"}, inter)

	diff := g.eval(DifferenceExpr{
		A: AncestorsExpr{Heads: g.commits("f")},
		B: AncestorsExpr{Heads: g.commits("c")},
	})
	assert.ElementsMatch(t, []string{"f", "d"}, diff)
}

func TestParentsChildren(t *testing.T) {
	g := buildGraph(t)
	assert.ElementsMatch(t, []string{"b", "d"}, g.eval(ParentsExpr{Of: g.commits("f")}))
	assert.ElementsMatch(t, []string{"b", "d"}, g.eval(ChildrenExpr{Of: g.commits("a")}))
}

func TestRootsHeads(t *testing.T) {
	g := buildGraph(t)
	set := UnionExpr{A: g.commits("b", "c"), B: g.commits("d", "f")}
	assert.ElementsMatch(t, []string{"b", "d"}, g.eval(RootsExpr{Of: set}))
	assert.ElementsMatch(t, []string{"c", "f"}, g.eval(HeadsExpr{Of: set}))
}

func TestAllUsesVisibleHeads(t *testing.T) {
	g := buildGraph(t)
	got := g.eval(AllExpr{})
	assert.Len(t, got, 6)
}

func TestReverseTopologicalOrder(t *testing.T) {
	g := buildGraph(t)
	got := g.eval(AllExpr{})
	seen := make(map[string]bool)
	order := map[string][]string{
		"a": {"root"}, "b": {"a"}, "c": {"b"}, "d": {"a"}, "f": {"b", "d"},
	}
	for i := len(got) - 1; i >= 0; i-- {
		name := got[i]
		for _, p := range order[name] {
			assert.True(t, seen[p], "%s before its parent %s", name, p)
		}
		seen[name] = true
	}
}

func TestFilterPredicate(t *testing.T) {
	g := buildGraph(t)
	got := g.eval(FilterExpr{
		Of: AllExpr{},
		Predicate: func(ctx context.Context, e index.CommitEntry) (bool, error) {
			return g.names[e.CommitID] == "d", nil
		},
	})
	assert.Equal(t, []string{"d"}, got)
}

func TestUnknownCommitFails(t *testing.T) {
	g := buildGraph(t)
	_, err := Evaluate(context.Background(), g.idx, CommitsExpr{IDs: []plumbing.CommitID{plumbing.HashOf([]byte("nope"))}}, g.heads)
	var evalErr *EvaluationError
	assert.ErrorAs(t, err, &evalErr)
}

func TestGraphEdges(t *testing.T) {
	g := buildGraph(t)
	// Set {root, b, f}: b's parent a is external, so b → root indirect;
	// f reaches b directly and d→a→root indirectly, but root is
	// transitively reachable via b and gets pruned.
	r, err := Evaluate(context.Background(), g.idx, UnionExpr{A: g.commits("root", "b"), B: g.commits("f")}, g.heads)
	require.NoError(t, err)
	nodes := r.IterGraph(nil)
	require.Len(t, nodes, 3)

	byName := make(map[string]GraphNode)
	for _, n := range nodes {
		byName[g.names[n.CommitID]] = n
	}
	fEdges := byName["f"]
	require.Len(t, fEdges.Edges, 1)
	assert.Equal(t, g.ids["b"], fEdges.Edges[0].Target)
	assert.Equal(t, EdgeDirect, fEdges.Edges[0].Type)

	bEdges := byName["b"]
	require.Len(t, bEdges.Edges, 1)
	assert.Equal(t, g.ids["root"], bEdges.Edges[0].Target)
	assert.Equal(t, EdgeIndirect, bEdges.Edges[0].Type)
}

func TestGraphKeepsTransitiveWhenAsked(t *testing.T) {
	g := buildGraph(t)
	r, err := Evaluate(context.Background(), g.idx, UnionExpr{A: g.commits("root", "b"), B: g.commits("f")}, g.heads)
	require.NoError(t, err)
	nodes := r.IterGraph(&GraphOptions{SkipTransitiveEdges: false})
	byName := make(map[string]GraphNode)
	for _, n := range nodes {
		byName[g.names[n.CommitID]] = n
	}
	// Without pruning, f keeps both the direct edge to b and the
	// indirect edge to root (via d, a).
	assert.Len(t, byName["f"].Edges, 2)
}

func TestGraphMissingEdge(t *testing.T) {
	g := buildGraph(t)
	r, err := Evaluate(context.Background(), g.idx, g.commits("b"), g.heads)
	require.NoError(t, err)
	nodes := r.IterGraph(nil)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Edges, 1)
	assert.Equal(t, EdgeMissing, nodes[0].Edges[0].Type)
}

func TestStringPattern(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"exact:foo", "foo", true},
		{"exact:foo", "foobar", false},
		{"substring:oba", "foobar", true},
		{"prefix:foo", "foobar", true},
		{"suffix:bar", "foobar", true},
		{"glob:f*r", "foobar", true},
		{"exact-i:FOO", "foo", true},
		{"plain", "plain", true},
		{"plain", "PLAIN", false},
	}
	for _, tt := range tests {
		p, err := ParseStringPattern(tt.pattern, "exact")
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Match(tt.input), tt.pattern)
	}
}
