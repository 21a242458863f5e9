// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

// SquashCommits folds the matched changes of each source commit into the
// destination. Sources whose whole change moved are abandoned unless
// keepEmptied; partially-moved sources survive and their diff shrinks
// when descendant rebasing re-merges them onto the grown destination. A
// nil matcher moves everything.
func (m *MutableRepo) SquashCommits(ctx context.Context, sources []plumbing.CommitID, destination plumbing.CommitID, keepEmptied bool, matcher func(string) bool) (plumbing.CommitID, error) {
	ids := append(append([]plumbing.CommitID(nil), sources...), destination)
	if err := m.CheckRewritable(ids...); err != nil {
		return plumbing.ZeroHash, err
	}
	dest, err := m.Store().Commit(ctx, destination)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	destTreeID, ok := dest.RootTree.AsResolved()
	if !ok {
		return plumbing.ZeroHash, fmt.Errorf("strata: cannot squash into conflicted commit %s", destination.Short(12))
	}
	destFlat, err := object.FlattenTree(ctx, m.Store(), destTreeID)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	type sourceState struct {
		id         plumbing.CommitID
		fullyMoved bool
	}
	states := make([]sourceState, 0, len(sources))
	for _, srcID := range m.sortByPosition(sources) {
		src, err := m.Store().Commit(ctx, srcID)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		srcTreeID, ok := src.RootTree.AsResolved()
		if !ok {
			return plumbing.ZeroHash, fmt.Errorf("strata: cannot squash conflicted commit %s", srcID.Short(12))
		}
		srcFlat, err := object.FlattenTree(ctx, m.Store(), srcTreeID)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		parentCommits, err := m.loadCommits(ctx, src.Parents)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		parentTree, err := m.MergeCommitTrees(ctx, parentCommits)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		parentTreeID, ok := parentTree.AsResolved()
		if !ok {
			return plumbing.ZeroHash, fmt.Errorf("strata: parents of %s are conflicted", srcID.Short(12))
		}
		parentFlat, err := object.FlattenTree(ctx, m.Store(), parentTreeID)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		changed := make(map[string]bool)
		for p := range srcFlat {
			changed[p] = true
		}
		for p := range parentFlat {
			changed[p] = true
		}
		fullyMoved := true
		for p := range changed {
			if srcFlat[p] == parentFlat[p] {
				continue
			}
			if matcher != nil && !matcher(p) {
				fullyMoved = false
				continue
			}
			if v, present := srcFlat[p]; present {
				destFlat[p] = v
			} else {
				delete(destFlat, p)
			}
		}
		states = append(states, sourceState{id: srcID, fullyMoved: fullyMoved})
	}

	newDestTree, err := object.WriteTreeFromPaths(ctx, m.Store(), destFlat)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	preds := append([]plumbing.CommitID{destination}, sources...)
	newDest, err := m.RewriteCommit(dest).
		SetTree(resolvedTree(newDestTree)).
		SetPredecessors(preds).
		Write(ctx)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	for _, st := range states {
		if st.fullyMoved && !keepEmptied {
			if err := m.AbandonCommit(ctx, st.id); err != nil {
				return plumbing.ZeroHash, err
			}
		}
	}
	if _, err := m.RebaseDescendants(ctx, nil); err != nil {
		return plumbing.ZeroHash, err
	}
	return newDest.ID, nil
}
