// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/strata-scm/strata/modules/backend"
	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

// FixContentError wraps a file fixer failure; the transaction aborts and
// nothing staged survives.
type FixContentError struct {
	Path string
	Err  error
}

func (e *FixContentError) Error() string {
	return fmt.Sprintf("strata: fixing %s: %v", e.Path, e.Err)
}

func (e *FixContentError) Unwrap() error { return e.Err }

// FileToFix identifies one blob handed to a fixer.
type FileToFix struct {
	Path string
	ID   plumbing.FileID
}

// FileFixer transforms a batch of file contents. Returning no entry for a
// file means "unchanged".
type FileFixer interface {
	Fix(ctx context.Context, store *backend.Store, files []FileToFix) (map[FileToFix]plumbing.FileID, error)
}

// FixFn transforms one file's content; ok=false leaves it untouched.
type FixFn func(ctx context.Context, path string, content []byte) ([]byte, bool, error)

// ParallelFileFixer runs a per-file transform with bounded parallelism.
// Item order is irrelevant; the caller serializes the application into
// trees.
type ParallelFileFixer struct {
	Fn          FixFn
	Concurrency int
}

func (f *ParallelFileFixer) Fix(ctx context.Context, store *backend.Store, files []FileToFix) (map[FileToFix]plumbing.FileID, error) {
	g, gctx := errgroup.WithContext(ctx)
	limit := f.Concurrency
	if limit <= 0 {
		limit = store.Concurrency()
	}
	g.SetLimit(limit)
	var mu sync.Mutex
	out := make(map[FileToFix]plumbing.FileID)
	for _, file := range files {
		file := file
		g.Go(func() error {
			data, err := object.ReadBlob(gctx, store, file.ID)
			if err != nil {
				return &FixContentError{Path: file.Path, Err: err}
			}
			fixed, ok, err := f.Fn(gctx, file.Path, data)
			if err != nil {
				return &FixContentError{Path: file.Path, Err: err}
			}
			if !ok || bytes.Equal(fixed, data) {
				return nil
			}
			id, err := store.WriteBlob(gctx, bytes.NewReader(fixed))
			if err != nil {
				return &FixContentError{Path: file.Path, Err: err}
			}
			mu.Lock()
			out[file] = id
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// FixFiles runs the fixer over every matched file in the descendants of
// roots, rewriting commits whose files changed and propagating to
// descendants. Unchanged descendants of rewritten commits are still
// rewritten so predecessor links stay consistent.
func (m *MutableRepo) FixFiles(ctx context.Context, roots []plumbing.CommitID, matcher func(string) bool, includeUnchanged bool, fixer FileFixer) (int, error) {
	if err := m.CheckRewritable(roots...); err != nil {
		return 0, err
	}
	rootSet := make(map[plumbing.CommitID]bool, len(roots))
	for _, id := range roots {
		rootSet[id] = true
	}
	visible := m.visibleSet()
	inSet := make(map[index.GlobalCommitPosition]bool)
	fixedCommits := 0
	for pos := index.GlobalCommitPosition(0); uint32(pos) < m.idx.NumCommits(); pos++ {
		if !visible[pos] {
			continue
		}
		id := m.idx.CommitIDByPos(pos)
		member := rootSet[id]
		if !member {
			for _, parentPos := range m.idx.ParentPositions(pos) {
				if inSet[parentPos] {
					member = true
					break
				}
			}
		}
		if !member {
			continue
		}
		inSet[pos] = true

		c, err := m.Store().Commit(ctx, id)
		if err != nil {
			return fixedCommits, err
		}
		newParents := m.NewParents(c.Parents)
		tree := c.RootTree
		treeID, resolvedCommit := c.RootTree.AsResolved()
		changedAny := false
		if resolvedCommit {
			// Work in flat path space: where the commit changed a path
			// its (fixed) value wins, everywhere else the fixed parent
			// value flows through. This propagates parent fixes without
			// re-merging trees.
			flat, err := object.FlattenTree(ctx, m.Store(), treeID)
			if err != nil {
				return fixedCommits, err
			}
			oldParentValues, err := m.parentFileValues(ctx, c.Parents)
			if err != nil {
				return fixedCommits, err
			}
			newParentValues, err := m.parentFileValues(ctx, newParents)
			if err != nil {
				return fixedCommits, err
			}
			newFlat := make(map[string]object.TreeValue)
			paths := make(map[string]bool)
			for p := range flat {
				paths[p] = true
			}
			for _, pf := range append(oldParentValues, newParentValues...) {
				for p := range pf {
					paths[p] = true
				}
			}
			var batch []FileToFix
			for path := range paths {
				v := flat[path]
				if differsFromAll(oldParentValues, path, v) {
					// The commit's own change.
					if !v.IsAbsent() {
						newFlat[path] = v
					}
					if v.Kind == object.KindFile && (matcher == nil || matcher(path)) {
						batch = append(batch, FileToFix{Path: path, ID: v.ID})
					}
					continue
				}
				// Inherited: take the (possibly fixed) new-parent value.
				inherited := object.TreeValue{}
				for _, pf := range newParentValues {
					if pv, ok := pf[path]; ok {
						inherited = pv
						break
					}
				}
				if !inherited.IsAbsent() {
					newFlat[path] = inherited
				}
				if includeUnchanged && inherited.Kind == object.KindFile && (matcher == nil || matcher(path)) {
					batch = append(batch, FileToFix{Path: path, ID: inherited.ID})
				}
			}
			if len(batch) > 0 {
				results, err := fixer.Fix(ctx, m.Store(), batch)
				if err != nil {
					return fixedCommits, err
				}
				for file, newID := range results {
					v := newFlat[file.Path]
					if v.ID != file.ID {
						continue
					}
					v.ID = newID
					newFlat[file.Path] = v
					changedAny = true
				}
			}
			newTreeID, err := object.WriteTreeFromPaths(ctx, m.Store(), newFlat)
			if err != nil {
				return fixedCommits, err
			}
			if changedAny {
				fixedCommits++
			}
			tree = resolvedTree(newTreeID)
		}
		parentsChanged := !sameIDs(newParents, c.Parents)
		treeChanged := !sameMerge(tree, c.RootTree)
		if !changedAny && !parentsChanged && !treeChanged {
			continue
		}
		if _, err := m.RewriteCommit(c).SetParents(newParents).SetTree(tree).Write(ctx); err != nil {
			return fixedCommits, err
		}
	}
	if _, err := m.RebaseDescendants(ctx, nil); err != nil {
		return fixedCommits, err
	}
	return fixedCommits, nil
}

// parentFileValues flattens each parent's tree for changed-file checks.
func (m *MutableRepo) parentFileValues(ctx context.Context, parents []plumbing.CommitID) ([]map[string]object.TreeValue, error) {
	out := make([]map[string]object.TreeValue, 0, len(parents))
	for _, p := range parents {
		c, err := m.Store().Commit(ctx, p)
		if err != nil {
			return nil, err
		}
		tid, ok := c.RootTree.AsResolved()
		if !ok {
			tid = c.RootTree.Adds()[0]
		}
		flat, err := object.FlattenTree(ctx, m.Store(), tid)
		if err != nil {
			return nil, err
		}
		out = append(out, flat)
	}
	return out, nil
}

func differsFromAll(parents []map[string]object.TreeValue, path string, v object.TreeValue) bool {
	if len(parents) == 0 {
		return true
	}
	for _, flat := range parents {
		if flat[path] == v {
			return false
		}
	}
	return true
}

func sameIDs(a, b []plumbing.CommitID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func resolvedTree(id plumbing.TreeID) merge.Merge[plumbing.TreeID] {
	return merge.Resolved(id)
}
