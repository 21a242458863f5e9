// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"sort"

	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
)

// RefChange describes one ref moving between two operations.
type RefChange struct {
	Name string
	From opstore.RefTarget
	To   opstore.RefTarget
}

// OpDiff summarizes what one operation changed relative to another: the
// commits it created and abandoned and every ref move.
type OpDiff struct {
	CreatedCommits   []plumbing.CommitID
	AbandonedCommits []plumbing.CommitID
	Bookmarks        []RefChange
	Tags             []RefChange
	WcChanges        []RefChange
}

// DiffOperations compares the views of two operations.
func (r *Repo) DiffOperations(ctx context.Context, from, to *opstore.Operation) (*OpDiff, error) {
	fromView, err := r.OpStore.ReadView(ctx, from.ViewID)
	if err != nil {
		return nil, err
	}
	toView, err := r.OpStore.ReadView(ctx, to.ViewID)
	if err != nil {
		return nil, err
	}
	out := &OpDiff{}
	for id := range toView.HeadIDs {
		if !fromView.HeadIDs[id] {
			out.CreatedCommits = append(out.CreatedCommits, id)
		}
	}
	for id := range fromView.HeadIDs {
		if !toView.HeadIDs[id] {
			out.AbandonedCommits = append(out.AbandonedCommits, id)
		}
	}
	plumbing.HashesSort(out.CreatedCommits)
	plumbing.HashesSort(out.AbandonedCommits)

	diffTargets := func(a, b map[string]opstore.RefTarget) []RefChange {
		names := make(map[string]bool)
		for n := range a {
			names[n] = true
		}
		for n := range b {
			names[n] = true
		}
		var changes []RefChange
		for n := range names {
			fromT, fok := a[n]
			toT, tok := b[n]
			if !fok {
				fromT = opstore.AbsentRefTarget()
			}
			if !tok {
				toT = opstore.AbsentRefTarget()
			}
			if sameTarget(fromT, toT) {
				continue
			}
			changes = append(changes, RefChange{Name: n, From: fromT, To: toT})
		}
		sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
		return changes
	}
	out.Bookmarks = diffTargets(fromView.LocalBookmarks, toView.LocalBookmarks)
	out.Tags = diffTargets(fromView.LocalTags, toView.LocalTags)

	wsNames := make(map[string]bool)
	for ws := range fromView.WcCommitIDs {
		wsNames[ws] = true
	}
	for ws := range toView.WcCommitIDs {
		wsNames[ws] = true
	}
	for ws := range wsNames {
		f := fromView.WcCommitIDs[ws]
		t := toView.WcCommitIDs[ws]
		if f == t {
			continue
		}
		out.WcChanges = append(out.WcChanges, RefChange{
			Name: ws,
			From: opstore.NormalRefTarget(f),
			To:   opstore.NormalRefTarget(t),
		})
	}
	sort.Slice(out.WcChanges, func(i, j int) bool { return out.WcChanges[i].Name < out.WcChanges[j].Name })
	return out, nil
}

func sameTarget(a, b opstore.RefTarget) bool {
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

// SetView replaces the buffered view wholesale (op revert and restore).
// Commits referenced by the restored view may be absent from the base
// index, so they are re-indexed here.
func (m *MutableRepo) SetView(ctx context.Context, v *opstore.View) error {
	if err := index.AddReachable(ctx, m.idx, m.mutableSeg, m.Store(), v.Heads()); err != nil {
		return err
	}
	for _, id := range v.WcCommitIDs {
		if err := index.AddReachable(ctx, m.idx, m.mutableSeg, m.Store(), []plumbing.CommitID{id}); err != nil {
			return err
		}
	}
	m.view = v.Clone()
	m.descendantsRebased = true
	return nil
}

// ViewAtOperationRevert computes the view that undoes op: its parent's
// view, merged across parents for a merge operation.
func (r *Repo) ViewAtOperationRevert(ctx context.Context, op *opstore.Operation, idx *index.CompositeIndex) (*opstore.View, error) {
	if op.IsRoot() {
		return r.OpStore.ReadView(ctx, op.ViewID)
	}
	first, err := r.OpStore.ReadOperation(ctx, op.Parents[0])
	if err != nil {
		return nil, err
	}
	view, err := r.OpStore.ReadView(ctx, first.ViewID)
	if err != nil {
		return nil, err
	}
	prev := first
	for _, parentID := range op.Parents[1:] {
		parent, err := r.OpStore.ReadOperation(ctx, parentID)
		if err != nil {
			return nil, err
		}
		parentView, err := r.OpStore.ReadView(ctx, parent.ViewID)
		if err != nil {
			return nil, err
		}
		ancestor, err := r.commonAncestorOp(ctx, prev.ID, parentID)
		if err != nil {
			return nil, err
		}
		ancestorView, err := r.OpStore.ReadView(ctx, ancestor.ViewID)
		if err != nil {
			return nil, err
		}
		view = MergeViews(idx, ancestorView, view, parentView)
		prev = parent
	}
	return view, nil
}
