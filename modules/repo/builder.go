// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

// CommitBuilder assembles one commit write. Builders come from NewCommit
// (fresh change id) or RewriteCommit (fields copied, committer reset, the
// old commit tracked as predecessor).
type CommitBuilder struct {
	mut    *MutableRepo
	commit object.Commit

	rewriteSource *object.Commit
	predecessors  []plumbing.CommitID
	// detached skips the rewrite and predecessor bookkeeping.
	detached bool
}

// NewCommit starts a commit with a fresh change id on the given parents.
func (m *MutableRepo) NewCommit(parents []plumbing.CommitID, tree merge.Merge[plumbing.TreeID]) *CommitBuilder {
	settings := m.Settings()
	now := object.NewTimestamp(settings.now())
	sig := object.Signature{Name: settings.Name, Email: settings.Email, When: now}
	return &CommitBuilder{
		mut: m,
		commit: object.Commit{
			Parents:   append([]plumbing.CommitID(nil), parents...),
			RootTree:  tree,
			ChangeID:  plumbing.NewChangeID(),
			Author:    sig,
			Committer: sig,
		},
	}
}

// RewriteCommit starts from an existing commit: same change id, tree,
// description and author; the committer becomes the current user now.
func (m *MutableRepo) RewriteCommit(old *object.Commit) *CommitBuilder {
	settings := m.Settings()
	c := *old
	c.ID = plumbing.ZeroHash
	c.SecureSig = nil
	c.Committer = object.Signature{
		Name:  settings.Name,
		Email: settings.Email,
		When:  object.NewTimestamp(settings.now()),
	}
	return &CommitBuilder{
		mut:           m,
		commit:        c,
		rewriteSource: old,
		predecessors:  []plumbing.CommitID{old.ID},
	}
}

func (b *CommitBuilder) SetTree(tree merge.Merge[plumbing.TreeID]) *CommitBuilder {
	b.commit.RootTree = tree
	return b
}

func (b *CommitBuilder) SetParents(parents []plumbing.CommitID) *CommitBuilder {
	b.commit.Parents = append([]plumbing.CommitID(nil), parents...)
	return b
}

func (b *CommitBuilder) SetDescription(description string) *CommitBuilder {
	b.commit.Description = description
	return b
}

func (b *CommitBuilder) SetAuthor(author object.Signature) *CommitBuilder {
	b.commit.Author = author
	return b
}

func (b *CommitBuilder) SetCommitter(committer object.Signature) *CommitBuilder {
	b.commit.Committer = committer
	return b
}

// GenerateNewChangeID detaches the commit from its change lineage.
func (b *CommitBuilder) GenerateNewChangeID() *CommitBuilder {
	b.commit.ChangeID = plumbing.NewChangeID()
	return b
}

// SetPredecessors overrides the recorded rewrite trail.
func (b *CommitBuilder) SetPredecessors(preds []plumbing.CommitID) *CommitBuilder {
	b.predecessors = append([]plumbing.CommitID(nil), preds...)
	return b
}

// ClearRewriteSource keeps the copied fields but stops treating the write
// as a rewrite of the source commit.
func (b *CommitBuilder) ClearRewriteSource() *CommitBuilder {
	b.rewriteSource = nil
	b.predecessors = nil
	return b
}

// isDiscardable mirrors the working-copy placeholder shape: empty
// description, single root parent, empty tree.
func (b *CommitBuilder) isDiscardable(c *object.Commit) bool {
	if c.Description != "" || len(c.Parents) != 1 {
		return false
	}
	if c.Parents[0] != b.mut.Store().RootCommitID() {
		return false
	}
	tid, ok := c.RootTree.AsResolved()
	return ok && (tid == b.mut.Store().EmptyTreeID() || tid.IsZero())
}

// Write persists the commit and records the rewrite in the transaction.
// Writing a commit identical to its rewrite source is rejected: it would
// form a self-cycle in the predecessor graph.
func (b *CommitBuilder) Write(ctx context.Context) (*object.Commit, error) {
	if b.rewriteSource != nil {
		if err := b.mut.CheckRewritable(b.rewriteSource.ID); err != nil {
			return nil, err
		}
		// A discardable placeholder growing real content counts as new
		// work: the author timestamp moves to now.
		if b.isDiscardable(b.rewriteSource) && !b.isDiscardable(&b.commit) {
			b.commit.Author.When = object.NewTimestamp(b.mut.Settings().now())
		}
	}
	id, stored, err := b.mut.Store().WriteCommit(ctx, &b.commit, nil)
	if err != nil {
		return nil, err
	}
	if !b.detached {
		if b.rewriteSource != nil {
			if id == b.rewriteSource.ID {
				return nil, fmt.Errorf("strata: rewrite of %s produced an identical commit", id.Short(12))
			}
			b.mut.recordRewrite(b.rewriteSource.ID, id)
		}
		b.mut.predecessors[id] = append([]plumbing.CommitID(nil), b.predecessors...)
		b.mut.indexCommit(stored)
		b.mut.AddHead(stored)
	}
	return stored, nil
}

// WriteHidden persists the commit without any transaction bookkeeping: no
// rewrite map entry, no predecessor record, no head update.
func (b *CommitBuilder) WriteHidden(ctx context.Context) (*object.Commit, error) {
	_, stored, err := b.mut.Store().WriteCommit(ctx, &b.commit, nil)
	if err != nil {
		return nil, err
	}
	b.mut.indexCommit(stored)
	return stored, nil
}
