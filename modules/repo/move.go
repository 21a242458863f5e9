// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/plumbing"
)

// MoveTarget selects what MoveCommits relocates: Roots pulls each root's
// whole descendant subgraph along; Commits moves exactly the listed
// commits, preserving their internal structure.
type MoveTarget struct {
	Roots   []plumbing.CommitID
	Commits []plumbing.CommitID
}

// MoveCommits re-parents the target onto newParents. When newChildren is
// non-empty the move becomes an insertion: each child's parent list drops
// the moved commits' old positions and gains the moved heads.
func (m *MutableRepo) MoveCommits(ctx context.Context, newParents, newChildren []plumbing.CommitID, target MoveTarget, opts *RebaseOptions) error {
	if opts == nil {
		opts = &RebaseOptions{Empty: EmptyKeep, SimplifyAncestorMerge: true}
	}
	var movedHeads []plumbing.CommitID
	switch {
	case len(target.Roots) > 0:
		if err := m.CheckRewritable(target.Roots...); err != nil {
			return err
		}
		// Re-parent the roots; descendant propagation carries the rest of
		// each subgraph along.
		for _, id := range target.Roots {
			c, err := m.Store().Commit(ctx, id)
			if err != nil {
				return err
			}
			if err := m.rebaseOnto(ctx, c, newParents, opts); err != nil {
				return err
			}
		}
		if _, err := m.RebaseDescendants(ctx, opts); err != nil {
			return err
		}
		for _, id := range target.Roots {
			movedHeads = append(movedHeads, m.rewriteMap[id]...)
		}
	case len(target.Commits) > 0:
		if err := m.CheckRewritable(target.Commits...); err != nil {
			return err
		}
		inSet := make(map[plumbing.CommitID]bool, len(target.Commits))
		for _, id := range target.Commits {
			inSet[id] = true
		}
		// Ascending position order keeps internal dependencies intact:
		// an internal parent is already rewritten when its child moves.
		ordered := m.sortByPosition(target.Commits)
		for _, id := range ordered {
			c, err := m.Store().Commit(ctx, id)
			if err != nil {
				return err
			}
			var mapped []plumbing.CommitID
			seen := make(map[plumbing.CommitID]bool)
			internal := false
			for _, p := range c.Parents {
				if inSet[p] {
					internal = true
					for _, img := range m.resolveParent(p, make(map[plumbing.CommitID]bool)) {
						if !seen[img] {
							seen[img] = true
							mapped = append(mapped, img)
						}
					}
					continue
				}
				// Non-internal parents are replaced by the destination.
				for _, np := range newParents {
					if !seen[np] {
						seen[np] = true
						mapped = append(mapped, np)
					}
				}
			}
			if !internal && len(mapped) == 0 {
				mapped = newParents
			}
			if err := m.rebaseOnto(ctx, c, mapped, opts); err != nil {
				return err
			}
		}
		if _, err := m.RebaseDescendants(ctx, opts); err != nil {
			return err
		}
		heads := m.idx.Heads(ordered)
		for _, id := range heads {
			movedHeads = append(movedHeads, m.rewriteMap[id]...)
		}
	default:
		return fmt.Errorf("strata: nothing to move")
	}

	if len(newChildren) == 0 {
		return nil
	}
	oldTargets := make(map[plumbing.CommitID]bool)
	for old := range m.rewriteMap {
		oldTargets[old] = true
	}
	for _, childID := range newChildren {
		// The child may itself have been rebased already.
		current := childID
		if images := m.rewriteMap[childID]; len(images) > 0 {
			current = images[len(images)-1]
		}
		c, err := m.Store().Commit(ctx, current)
		if err != nil {
			return err
		}
		var parents []plumbing.CommitID
		seen := make(map[plumbing.CommitID]bool)
		for _, p := range c.Parents {
			if oldTargets[p] || containsID(movedHeads, p) {
				continue
			}
			if !seen[p] {
				seen[p] = true
				parents = append(parents, p)
			}
		}
		for _, h := range movedHeads {
			if !seen[h] {
				seen[h] = true
				parents = append(parents, h)
			}
		}
		if err := m.rebaseOnto(ctx, c, parents, opts); err != nil {
			return err
		}
	}
	_, err := m.RebaseDescendants(ctx, opts)
	return err
}

// Parallelize rewrites a run of commits into siblings: every target gets
// the parents of the run's roots, and children of the run's heads are
// re-parented onto all of the new siblings.
func (m *MutableRepo) Parallelize(ctx context.Context, targets []plumbing.CommitID) error {
	if err := m.CheckRewritable(targets...); err != nil {
		return err
	}
	inSet := make(map[plumbing.CommitID]bool, len(targets))
	for _, id := range targets {
		inSet[id] = true
	}
	// The shared parent set comes from the targets whose parents are all
	// outside the run.
	var sharedParents []plumbing.CommitID
	seen := make(map[plumbing.CommitID]bool)
	ordered := m.sortByPosition(targets)
	for _, id := range ordered {
		c, err := m.Store().Commit(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range c.Parents {
			if !inSet[p] && !seen[p] {
				seen[p] = true
				sharedParents = append(sharedParents, p)
			}
		}
	}
	oldHeads := m.idx.Heads(ordered)
	opts := &RebaseOptions{Empty: EmptyKeep, SimplifyAncestorMerge: true}
	var siblings []plumbing.CommitID
	for _, id := range ordered {
		c, err := m.Store().Commit(ctx, id)
		if err != nil {
			return err
		}
		if err := m.rebaseOnto(ctx, c, sharedParents, opts); err != nil {
			return err
		}
		siblings = append(siblings, m.rewriteMap[id]...)
	}
	// Children of the run's heads now descend from every sibling.
	for _, head := range oldHeads {
		children, err := m.visibleChildren(head, inSet)
		if err != nil {
			return err
		}
		for _, childID := range children {
			c, err := m.Store().Commit(ctx, childID)
			if err != nil {
				return err
			}
			var parents []plumbing.CommitID
			dedup := make(map[plumbing.CommitID]bool)
			for _, p := range c.Parents {
				if inSet[p] {
					continue
				}
				if !dedup[p] {
					dedup[p] = true
					parents = append(parents, p)
				}
			}
			for _, s := range siblings {
				if !dedup[s] {
					dedup[s] = true
					parents = append(parents, s)
				}
			}
			if err := m.rebaseOnto(ctx, c, parents, opts); err != nil {
				return err
			}
		}
	}
	_, err := m.RebaseDescendants(ctx, opts)
	return err
}

// visibleChildren lists the visible commits whose parents include id,
// excluding members of skip.
func (m *MutableRepo) visibleChildren(id plumbing.CommitID, skip map[plumbing.CommitID]bool) ([]plumbing.CommitID, error) {
	pos, ok := m.idx.PositionByCommitID(id)
	if !ok {
		return nil, nil
	}
	visible := m.visibleSet()
	var out []plumbing.CommitID
	for p := index.GlobalCommitPosition(0); uint32(p) < m.idx.NumCommits(); p++ {
		if !visible[p] {
			continue
		}
		cid := m.idx.CommitIDByPos(p)
		if skip[cid] {
			continue
		}
		for _, parent := range m.idx.ParentPositions(p) {
			if parent == pos {
				out = append(out, cid)
				break
			}
		}
	}
	return out, nil
}

func (m *MutableRepo) sortByPosition(ids []plumbing.CommitID) []plumbing.CommitID {
	type pair struct {
		pos index.GlobalCommitPosition
		id  plumbing.CommitID
	}
	pairs := make([]pair, 0, len(ids))
	for _, id := range ids {
		if pos, ok := m.idx.PositionByCommitID(id); ok {
			pairs = append(pairs, pair{pos: pos, id: id})
		}
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].pos < pairs[j-1].pos; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	out := make([]plumbing.CommitID, len(pairs))
	for i, p := range pairs {
		out[i] = p.id
	}
	return out
}

func containsID(ids []plumbing.CommitID, id plumbing.CommitID) bool {
	for _, c := range ids {
		if c == id {
			return true
		}
	}
	return false
}
