// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"

	"github.com/strata-scm/strata/modules/backend"
	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
)

// MutableRepo buffers a transaction's mutations: a cloned view, a mutable
// index segment, the rewrite map and the predecessor records. Nothing it
// holds is visible outside the transaction until commit.
type MutableRepo struct {
	base *ReadonlyRepo

	view       *opstore.View
	mutableSeg *index.MutableSegment
	idx        *index.CompositeIndex

	// rewriteMap sends each rewritten commit to its replacements; nil
	// replacements mean the commit was abandoned.
	rewriteMap map[plumbing.CommitID][]plumbing.CommitID
	// abandonedParents records where an abandoned commit's descendants
	// should land.
	abandonedParents map[plumbing.CommitID][]plumbing.CommitID
	predecessors     map[plumbing.CommitID][]plumbing.CommitID

	descendantsRebased bool
}

func newMutableRepo(base *ReadonlyRepo) *MutableRepo {
	mutable := index.NewMutableSegment(base.baseSegment)
	return &MutableRepo{
		base:             base,
		view:             base.View.Clone(),
		mutableSeg:       mutable,
		idx:              index.NewCompositeIndex(base.baseSegment, mutable),
		rewriteMap:       make(map[plumbing.CommitID][]plumbing.CommitID),
		abandonedParents: make(map[plumbing.CommitID][]plumbing.CommitID),
		predecessors:     make(map[plumbing.CommitID][]plumbing.CommitID),
	}
}

func (m *MutableRepo) Store() *backend.Store { return m.base.Repo.Store }

func (m *MutableRepo) View() *opstore.View { return m.view }

func (m *MutableRepo) Index() *index.CompositeIndex { return m.idx }

func (m *MutableRepo) Settings() *Settings { return m.base.Repo.Settings }

// CheckRewritable rejects rewrites of the root commit and of anything the
// immutable policy protects.
func (m *MutableRepo) CheckRewritable(ids ...plumbing.CommitID) error {
	for _, id := range ids {
		if id == m.Store().RootCommitID() {
			return &RebaseImmutableError{ID: id}
		}
		if m.Settings().Immutable != nil && m.Settings().Immutable(id) {
			return &RebaseImmutableError{ID: id}
		}
	}
	return nil
}

// indexCommit registers a freshly written commit in the mutable segment.
func (m *MutableRepo) indexCommit(c *object.Commit) {
	parents := make([]index.GlobalCommitPosition, 0, len(c.Parents))
	for _, p := range c.Parents {
		if pos, ok := m.idx.PositionByCommitID(p); ok {
			parents = append(parents, pos)
		}
	}
	m.mutableSeg.Add(c.ID, c.ChangeID, parents, m.idx.Generation)
}

// AddHead makes the commit a visible head, retiring the parents it
// covers.
func (m *MutableRepo) AddHead(c *object.Commit) {
	m.view.AddHead(c.ID)
	for _, p := range c.Parents {
		m.view.RemoveHead(p)
	}
}

// SetWcCommit points a workspace's working copy at a commit.
func (m *MutableRepo) SetWcCommit(workspace string, id plumbing.CommitID) {
	m.view.WcCommitIDs[workspace] = id
}

// RenameWorkspace moves the working-copy pointer to a new name.
func (m *MutableRepo) RenameWorkspace(old, new string) error {
	id, ok := m.view.WcCommitIDs[old]
	if !ok {
		return &WorkspaceRenameError{Name: old}
	}
	if _, exists := m.view.WcCommitIDs[new]; exists {
		return &WorkspaceRenameError{Name: new, AlreadyExists: true}
	}
	delete(m.view.WcCommitIDs, old)
	m.view.WcCommitIDs[new] = id
	return nil
}

// AbandonCommit removes the commit from the visible set; descendants get
// rebased onto its parents.
func (m *MutableRepo) AbandonCommit(ctx context.Context, id plumbing.CommitID) error {
	if err := m.CheckRewritable(id); err != nil {
		return err
	}
	c, err := m.Store().Commit(ctx, id)
	if err != nil {
		return err
	}
	m.rewriteMap[id] = nil
	m.abandonedParents[id] = append([]plumbing.CommitID(nil), c.Parents...)
	m.descendantsRebased = false
	return nil
}

// recordRewrite links old to its replacement.
func (m *MutableRepo) recordRewrite(old, new plumbing.CommitID) {
	m.rewriteMap[old] = append(m.rewriteMap[old], new)
	m.descendantsRebased = false
}

// resolveParent maps a possibly-rewritten parent to its current
// replacements. Abandoned commits dissolve into their parents.
func (m *MutableRepo) resolveParent(id plumbing.CommitID, seen map[plumbing.CommitID]bool) []plumbing.CommitID {
	if seen[id] {
		return nil
	}
	images, rewritten := m.rewriteMap[id]
	if !rewritten {
		return []plumbing.CommitID{id}
	}
	if seen == nil {
		seen = make(map[plumbing.CommitID]bool)
	}
	seen[id] = true
	if len(images) > 0 {
		return images
	}
	var out []plumbing.CommitID
	for _, p := range m.abandonedParents[id] {
		out = append(out, m.resolveParent(p, seen)...)
	}
	return out
}

// NewParents maps a commit's parent list through the rewrite map,
// deduplicated, defaulting to the root commit when everything dissolved.
func (m *MutableRepo) NewParents(parents []plumbing.CommitID) []plumbing.CommitID {
	var out []plumbing.CommitID
	seen := make(map[plumbing.CommitID]bool)
	for _, p := range parents {
		for _, mapped := range m.resolveParent(p, make(map[plumbing.CommitID]bool)) {
			if !seen[mapped] {
				seen[mapped] = true
				out = append(out, mapped)
			}
		}
	}
	if len(out) == 0 {
		out = []plumbing.CommitID{m.Store().RootCommitID()}
	}
	return out
}

// MergeCommitTrees merges the trees of several commits, using their graph
// common ancestors as merge bases.
func (m *MutableRepo) MergeCommitTrees(ctx context.Context, commits []*object.Commit) (merge.Merge[plumbing.TreeID], error) {
	if len(commits) == 0 {
		return merge.Resolved(m.Store().EmptyTreeID()), nil
	}
	tree := commits[0].RootTree
	done := []plumbing.CommitID{commits[0].ID}
	for _, c := range commits[1:] {
		baseIDs := m.idx.CommonAncestors(done, []plumbing.CommitID{c.ID})
		baseTree := merge.Resolved(m.Store().EmptyTreeID())
		if len(baseIDs) > 0 {
			baseCommits := make([]*object.Commit, 0, len(baseIDs))
			for _, id := range baseIDs {
				bc, err := m.Store().Commit(ctx, id)
				if err != nil {
					return merge.Merge[plumbing.TreeID]{}, err
				}
				baseCommits = append(baseCommits, bc)
			}
			var err error
			if baseTree, err = m.MergeCommitTrees(ctx, baseCommits); err != nil {
				return merge.Merge[plumbing.TreeID]{}, err
			}
		}
		combined := merge.Flatten([]merge.Merge[plumbing.TreeID]{tree, baseTree, c.RootTree})
		resolved, err := object.MergeTrees(ctx, m.Store(), combined)
		if err != nil {
			return merge.Merge[plumbing.TreeID]{}, err
		}
		tree = resolved
		done = append(done, c.ID)
	}
	return tree, nil
}

// commitEmptyAgainst reports whether the commit's tree equals the
// merged tree of the given parents (i.e. the commit is empty relative to
// them).
func (m *MutableRepo) commitEmptyAgainst(ctx context.Context, tree merge.Merge[plumbing.TreeID], parents []plumbing.CommitID) (bool, error) {
	parentCommits := make([]*object.Commit, 0, len(parents))
	for _, p := range parents {
		c, err := m.Store().Commit(ctx, p)
		if err != nil {
			return false, err
		}
		parentCommits = append(parentCommits, c)
	}
	parentTree, err := m.MergeCommitTrees(ctx, parentCommits)
	if err != nil {
		return false, err
	}
	a, aok := tree.AsResolved()
	b, bok := parentTree.AsResolved()
	if aok && bok {
		return a == b, nil
	}
	if tree.Len() != parentTree.Len() {
		return false, nil
	}
	for i, t := range tree.Terms() {
		if parentTree.Terms()[i] != t {
			return false, nil
		}
	}
	return true, nil
}
