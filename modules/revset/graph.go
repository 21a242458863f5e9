// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package revset

import (
	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/plumbing"
)

type EdgeType int

const (
	// EdgeDirect connects to a parent inside the set.
	EdgeDirect EdgeType = iota
	// EdgeIndirect connects to the nearest ancestor inside the set,
	// skipping external commits.
	EdgeIndirect
	// EdgeMissing marks an ancestry line that leaves the set entirely.
	EdgeMissing
)

type GraphEdge struct {
	Target plumbing.CommitID
	Type   EdgeType
}

type GraphNode struct {
	CommitID plumbing.CommitID
	Edges    []GraphEdge
}

// GraphOptions configure IterGraph. SkipTransitiveEdges is the default
// behavior of graph rendering.
type GraphOptions struct {
	SkipTransitiveEdges bool
}

// IterGraph yields the set in reverse-topological order with classified
// edges: Direct to in-set parents, Indirect to the nearest in-set
// ancestors behind external commits, Missing when the line dies outside
// the set.
func (r *Revset) IterGraph(opts *GraphOptions) []GraphNode {
	if opts == nil {
		opts = &GraphOptions{SkipTransitiveEdges: true}
	}
	// externalCache holds, per external position, the in-set positions
	// (or terminal misses) its ancestry reaches.
	type resolved struct {
		inSet   []index.GlobalCommitPosition
		missing []index.GlobalCommitPosition
	}
	externalCache := make(map[index.GlobalCommitPosition]*resolved)

	var resolveExternal func(pos index.GlobalCommitPosition) *resolved
	resolveExternal = func(pos index.GlobalCommitPosition) *resolved {
		if r.members[pos] {
			return &resolved{inSet: []index.GlobalCommitPosition{pos}}
		}
		if cached, ok := externalCache[pos]; ok {
			return cached
		}
		res := &resolved{}
		parents := r.idx.ParentPositions(pos)
		if len(parents) == 0 {
			res.missing = append(res.missing, pos)
		}
		seenIn := make(map[index.GlobalCommitPosition]bool)
		seenMiss := make(map[index.GlobalCommitPosition]bool)
		for _, p := range parents {
			sub := resolveExternal(p)
			for _, s := range sub.inSet {
				if !seenIn[s] {
					seenIn[s] = true
					res.inSet = append(res.inSet, s)
				}
			}
			if len(sub.inSet) == 0 && len(sub.missing) == 0 {
				continue
			}
			if len(sub.inSet) == 0 {
				for _, s := range sub.missing {
					if !seenMiss[s] {
						seenMiss[s] = true
						res.missing = append(res.missing, s)
					}
				}
			}
		}
		if len(res.inSet) == 0 && len(res.missing) == 0 {
			res.missing = append(res.missing, pos)
		}
		externalCache[pos] = res
		return res
	}

	edgesByPos := make(map[index.GlobalCommitPosition][]GraphEdge, len(r.positions))
	targetsByPos := make(map[index.GlobalCommitPosition][]index.GlobalCommitPosition, len(r.positions))
	for _, pos := range r.positions {
		var edges []GraphEdge
		var targets []index.GlobalCommitPosition
		seen := make(map[index.GlobalCommitPosition]bool)
		for _, parent := range r.idx.ParentPositions(pos) {
			if r.members[parent] {
				if !seen[parent] {
					seen[parent] = true
					edges = append(edges, GraphEdge{Target: r.idx.CommitIDByPos(parent), Type: EdgeDirect})
					targets = append(targets, parent)
				}
				continue
			}
			sub := resolveExternal(parent)
			for _, s := range sub.inSet {
				if !seen[s] {
					seen[s] = true
					edges = append(edges, GraphEdge{Target: r.idx.CommitIDByPos(s), Type: EdgeIndirect})
					targets = append(targets, s)
				}
			}
			if len(sub.inSet) == 0 {
				for _, s := range sub.missing {
					edges = append(edges, GraphEdge{Target: r.idx.CommitIDByPos(s), Type: EdgeMissing})
				}
			}
		}
		edgesByPos[pos] = edges
		targetsByPos[pos] = targets
	}

	if opts.SkipTransitiveEdges {
		pruneTransitive(r, edgesByPos, targetsByPos)
	}

	out := make([]GraphNode, 0, len(r.positions))
	for _, pos := range r.positions {
		out = append(out, GraphNode{CommitID: r.idx.CommitIDByPos(pos), Edges: edgesByPos[pos]})
	}
	return out
}

// pruneTransitive drops an edge X→Y when another edge X→Z already reaches
// Y through the simplified graph.
func pruneTransitive(r *Revset, edgesByPos map[index.GlobalCommitPosition][]GraphEdge, targetsByPos map[index.GlobalCommitPosition][]index.GlobalCommitPosition) {
	// reachable[p] is the set of in-set positions reachable from p
	// through the simplified edges, p included. Ascending order computes
	// targets before the nodes pointing at them.
	reachable := make(map[index.GlobalCommitPosition]map[index.GlobalCommitPosition]bool, len(r.positions))
	for i := len(r.positions) - 1; i >= 0; i-- {
		pos := r.positions[i]
		set := map[index.GlobalCommitPosition]bool{pos: true}
		for _, t := range targetsByPos[pos] {
			for q := range reachable[t] {
				set[q] = true
			}
		}
		reachable[pos] = set
	}
	for _, pos := range r.positions {
		targets := targetsByPos[pos]
		if len(targets) < 2 {
			continue
		}
		redundant := make(map[index.GlobalCommitPosition]bool)
		for _, via := range targets {
			for _, t := range targets {
				if t != via && reachable[via][t] {
					redundant[t] = true
				}
			}
		}
		if len(redundant) == 0 {
			continue
		}
		var keptEdges []GraphEdge
		var keptTargets []index.GlobalCommitPosition
		ti := 0
		for _, e := range edgesByPos[pos] {
			if e.Type == EdgeMissing {
				keptEdges = append(keptEdges, e)
				continue
			}
			t := targets[ti]
			ti++
			if redundant[t] {
				continue
			}
			keptEdges = append(keptEdges, e)
			keptTargets = append(keptTargets, t)
		}
		edgesByPos[pos] = keptEdges
		targetsByPos[pos] = keptTargets
	}
}
