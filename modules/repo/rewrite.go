// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"

	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
)

type EmptyBehavior int

const (
	// EmptyKeep rebases emptied commits like any other.
	EmptyKeep EmptyBehavior = iota
	// EmptyAbandonNewly abandons commits that become empty by rebasing
	// but were not empty before.
	EmptyAbandonNewly
)

type RewriteRefsOptions struct {
	DeleteAbandonedBookmarks bool
}

type RebaseOptions struct {
	Empty                 EmptyBehavior
	RewriteRefs           RewriteRefsOptions
	SimplifyAncestorMerge bool
}

// visibleSet is every position reachable from the view heads.
func (m *MutableRepo) visibleSet() map[index.GlobalCommitPosition]bool {
	out := make(map[index.GlobalCommitPosition]bool)
	var stack []index.GlobalCommitPosition
	for _, id := range m.view.Heads() {
		if pos, ok := m.idx.PositionByCommitID(id); ok {
			stack = append(stack, pos)
		}
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[p] {
			continue
		}
		out[p] = true
		stack = append(stack, m.idx.ParentPositions(p)...)
	}
	return out
}

// RebaseDescendants propagates the transaction's rewrites to every
// visible descendant of a rewritten commit, then retargets refs, heads
// and working copies. Running it with an empty rewrite map is a no-op,
// and running it twice in a row rebases nothing the second time.
func (m *MutableRepo) RebaseDescendants(ctx context.Context, opts *RebaseOptions) (int, error) {
	if opts == nil {
		opts = &RebaseOptions{Empty: EmptyKeep, SimplifyAncestorMerge: true}
	}
	if len(m.rewriteMap) == 0 {
		m.descendantsRebased = true
		return 0, nil
	}

	newCommits := make(map[plumbing.CommitID]bool)
	for _, images := range m.rewriteMap {
		for _, id := range images {
			newCommits[id] = true
		}
	}
	affected := make(map[plumbing.CommitID]bool, len(m.rewriteMap))
	for old := range m.rewriteMap {
		affected[old] = true
	}
	visible := m.visibleSet()

	rebased := 0
	// Ascending position order visits parents before children, so a
	// commit's parents are fully mapped by the time it is reached.
	for pos := index.GlobalCommitPosition(0); uint32(pos) < m.idx.NumCommits(); pos++ {
		if !visible[pos] {
			continue
		}
		id := m.idx.CommitIDByPos(pos)
		if _, isOld := m.rewriteMap[id]; isOld {
			continue
		}
		if newCommits[id] {
			continue
		}
		touched := false
		for _, parentPos := range m.idx.ParentPositions(pos) {
			if affected[m.idx.CommitIDByPos(parentPos)] {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		affected[id] = true
		c, err := m.Store().Commit(ctx, id)
		if err != nil {
			return rebased, err
		}
		// Abandoned parents keep contributing their own tree, so the
		// child's content survives the abandon; rewritten parents swap
		// their tree in, preserving the child's diff instead.
		if err := m.rebaseCommit(ctx, c, m.NewParents(c.Parents), m.treeParents(c.Parents), opts); err != nil {
			return rebased, err
		}
		rebased++
	}
	if err := m.rewriteRefs(opts); err != nil {
		return rebased, err
	}
	m.descendantsRebased = true
	return rebased, nil
}

// treeParents maps the commit's parents for tree purposes: rewritten
// parents become their images, abandoned parents stay themselves.
func (m *MutableRepo) treeParents(parents []plumbing.CommitID) []plumbing.CommitID {
	var out []plumbing.CommitID
	seen := make(map[plumbing.CommitID]bool)
	for _, p := range parents {
		images, rewritten := m.rewriteMap[p]
		mapped := []plumbing.CommitID{p}
		if rewritten && len(images) > 0 {
			mapped = images
		}
		for _, id := range mapped {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// rebaseOnto rewrites one commit onto new parents, preserving its net
// change via a 3-way tree merge, and applies the emptied-commit policy.
func (m *MutableRepo) rebaseOnto(ctx context.Context, c *object.Commit, newParents []plumbing.CommitID, opts *RebaseOptions) error {
	return m.rebaseCommit(ctx, c, newParents, newParents, opts)
}

// rebaseCommit rewrites c onto newParents; treeBasisParents supplies the
// trees the 3-way merge rebases onto (they differ from newParents when an
// old parent was abandoned rather than rewritten).
func (m *MutableRepo) rebaseCommit(ctx context.Context, c *object.Commit, newParents, treeBasisParents []plumbing.CommitID, opts *RebaseOptions) error {
	if opts.SimplifyAncestorMerge && len(newParents) > 1 {
		newParents = m.simplifyParents(newParents)
	}
	newTree, err := m.rebasedTreeOnto(ctx, c, treeBasisParents)
	if err != nil {
		return err
	}
	if opts.Empty == EmptyAbandonNewly && len(newParents) == 1 {
		newEmpty, err := m.commitEmptyAgainst(ctx, newTree, newParents)
		if err != nil {
			return err
		}
		if newEmpty {
			oldEmpty, err := m.commitEmptyAgainst(ctx, c.RootTree, c.Parents)
			if err != nil {
				return err
			}
			if !oldEmpty {
				m.rewriteMap[c.ID] = nil
				m.abandonedParents[c.ID] = newParents
				return nil
			}
		}
	}
	_, err = m.RewriteCommit(c).SetParents(newParents).SetTree(newTree).Write(ctx)
	return err
}

// rebasedTree computes the 3-way merge carrying c's change from its old
// parents onto the new ones. Identical parent trees short-circuit.
func (m *MutableRepo) rebasedTree(ctx context.Context, c *object.Commit, newParents []plumbing.CommitID) (merge.Merge[plumbing.TreeID], error) {
	return m.rebasedTreeOnto(ctx, c, newParents)
}

func (m *MutableRepo) rebasedTreeOnto(ctx context.Context, c *object.Commit, newParents []plumbing.CommitID) (merge.Merge[plumbing.TreeID], error) {
	oldParentCommits, err := m.loadCommits(ctx, c.Parents)
	if err != nil {
		return merge.Merge[plumbing.TreeID]{}, err
	}
	newParentCommits, err := m.loadCommits(ctx, newParents)
	if err != nil {
		return merge.Merge[plumbing.TreeID]{}, err
	}
	oldTree, err := m.MergeCommitTrees(ctx, oldParentCommits)
	if err != nil {
		return merge.Merge[plumbing.TreeID]{}, err
	}
	newTree, err := m.MergeCommitTrees(ctx, newParentCommits)
	if err != nil {
		return merge.Merge[plumbing.TreeID]{}, err
	}
	if sameMerge(oldTree, newTree) {
		return c.RootTree, nil
	}
	combined := merge.Flatten([]merge.Merge[plumbing.TreeID]{c.RootTree, oldTree, newTree})
	return object.MergeTrees(ctx, m.Store(), combined)
}

func sameMerge(a, b merge.Merge[plumbing.TreeID]) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i, t := range a.Terms() {
		if b.Terms()[i] != t {
			return false
		}
	}
	return true
}

func (m *MutableRepo) loadCommits(ctx context.Context, ids []plumbing.CommitID) ([]*object.Commit, error) {
	out := make([]*object.Commit, 0, len(ids))
	for _, id := range ids {
		c, err := m.Store().Commit(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// simplifyParents drops parents that are ancestors of other parents.
func (m *MutableRepo) simplifyParents(parents []plumbing.CommitID) []plumbing.CommitID {
	var out []plumbing.CommitID
	for _, p := range parents {
		redundant := false
		for _, q := range parents {
			if p != q && m.idx.IsAncestor(p, q) {
				redundant = true
				break
			}
		}
		if !redundant {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return parents
	}
	return out
}

// mapRefCommit sends a ref target term through the rewrite map. Abandoned
// commits dissolve into their first surviving parent.
func (m *MutableRepo) mapRefCommit(id plumbing.CommitID, deleteAbandoned bool) plumbing.CommitID {
	if id.IsZero() {
		return id
	}
	images, rewritten := m.rewriteMap[id]
	if !rewritten {
		return id
	}
	if len(images) > 0 {
		return images[0]
	}
	if deleteAbandoned {
		return plumbing.ZeroHash
	}
	resolved := m.resolveParent(id, make(map[plumbing.CommitID]bool))
	if len(resolved) == 0 {
		return m.Store().RootCommitID()
	}
	return resolved[0]
}

// rewriteRefs retargets bookmarks, tags, git refs, heads and working
// copies after the rewrite map stabilized.
func (m *MutableRepo) rewriteRefs(opts *RebaseOptions) error {
	mapTarget := func(t opstore.RefTarget, deleteAbandoned bool) opstore.RefTarget {
		if t.Len() == 0 {
			return opstore.AbsentRefTarget()
		}
		return t.Map(func(id plumbing.CommitID) plumbing.CommitID {
			return m.mapRefCommit(id, deleteAbandoned)
		}).Simplify()
	}
	for name, target := range m.view.LocalBookmarks {
		m.view.SetLocalBookmark(name, mapTarget(target, opts.RewriteRefs.DeleteAbandonedBookmarks))
	}
	for name, target := range m.view.LocalTags {
		m.view.SetLocalTag(name, mapTarget(target, false))
	}
	for name, target := range m.view.GitRefs {
		m.view.SetGitRef(name, mapTarget(target, false))
	}
	m.view.GitHead = mapTarget(m.view.GitHead, false)
	for ws, id := range m.view.WcCommitIDs {
		m.view.WcCommitIDs[ws] = m.mapRefCommit(id, false)
	}

	// Heads: drop the rewritten commits, surface replacements and the
	// parents abandoned commits dissolved into, then reduce graph-wise.
	candidates := make(map[plumbing.CommitID]bool)
	for id := range m.view.HeadIDs {
		if _, isOld := m.rewriteMap[id]; !isOld {
			candidates[id] = true
			continue
		}
		for _, mapped := range m.resolveParent(id, make(map[plumbing.CommitID]bool)) {
			candidates[mapped] = true
		}
	}
	ids := make([]plumbing.CommitID, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	m.view.HeadIDs = make(map[plumbing.CommitID]bool)
	for _, id := range m.idx.Heads(ids) {
		m.view.HeadIDs[id] = true
	}
	if len(m.view.HeadIDs) == 0 {
		m.view.HeadIDs[m.Store().RootCommitID()] = true
	}
	return nil
}
