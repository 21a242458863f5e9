// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

// RestorePaths copies the matched paths from the source commit's tree
// into the destination commit, rewriting it. A nil matcher restores
// everything, which makes the destination's tree equal the source's.
func (m *MutableRepo) RestorePaths(ctx context.Context, source, destination plumbing.CommitID, matcher func(string) bool) (plumbing.CommitID, error) {
	if err := m.CheckRewritable(destination); err != nil {
		return plumbing.ZeroHash, err
	}
	src, err := m.Store().Commit(ctx, source)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	dest, err := m.Store().Commit(ctx, destination)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	srcTreeID, ok := src.RootTree.AsResolved()
	if !ok {
		srcTreeID = src.RootTree.Adds()[0]
	}
	destTreeID, ok := dest.RootTree.AsResolved()
	if !ok {
		return plumbing.ZeroHash, fmt.Errorf("strata: cannot restore into conflicted commit %s", destination.Short(12))
	}
	srcFlat, err := object.FlattenTree(ctx, m.Store(), srcTreeID)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	destFlat, err := object.FlattenTree(ctx, m.Store(), destTreeID)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	paths := make(map[string]bool, len(srcFlat)+len(destFlat))
	for p := range srcFlat {
		paths[p] = true
	}
	for p := range destFlat {
		paths[p] = true
	}
	for p := range paths {
		if matcher != nil && !matcher(p) {
			continue
		}
		if v, present := srcFlat[p]; present {
			destFlat[p] = v
		} else {
			delete(destFlat, p)
		}
	}
	newTreeID, err := object.WriteTreeFromPaths(ctx, m.Store(), destFlat)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if newTreeID == destTreeID {
		return destination, nil
	}
	newDest, err := m.RewriteCommit(dest).SetTree(resolvedTree(newTreeID)).Write(ctx)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := m.RebaseDescendants(ctx, nil); err != nil {
		return plumbing.ZeroHash, err
	}
	return newDest.ID, nil
}
