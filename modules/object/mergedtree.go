// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"context"
	"sort"
	"strings"

	"github.com/strata-scm/strata/modules/conflicts"
	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/plumbing"
)

// MergedTree is a possibly-conflicted root tree: a resolved tree id, or an
// odd-length merge of complete tree ids. Path lookups return the per-path
// value merge.
type MergedTree struct {
	Trees merge.Merge[plumbing.TreeID]
}

func NewMergedTree(trees merge.Merge[plumbing.TreeID]) MergedTree {
	return MergedTree{Trees: trees}
}

func ResolvedTree(id plumbing.TreeID) MergedTree {
	return MergedTree{Trees: merge.Resolved(id)}
}

func (mt MergedTree) IsResolved() bool { return mt.Trees.IsResolved() }

// Value looks up a slash-separated path across every term.
func (mt MergedTree) Value(ctx context.Context, b Backend, path string) (merge.Merge[TreeValue], error) {
	return merge.ConvertErr(mt.Trees, func(root plumbing.TreeID) (TreeValue, error) {
		return FindPath(ctx, b, root, path)
	})
}

// Paths lists every path reachable from any term, sorted.
func (mt MergedTree) Paths(ctx context.Context, b Backend) ([]string, error) {
	seen := make(map[string]bool)
	for _, root := range mt.Trees.Terms() {
		if err := walkTree(ctx, b, root, "", seen); err != nil {
			return nil, err
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sortStrings(paths)
	return paths, nil
}

func walkTree(ctx context.Context, b Backend, root plumbing.TreeID, prefix string, seen map[string]bool) error {
	tree, err := resolveTree(ctx, b, root)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		if e.Value.Kind == KindTree {
			if err := walkTree(ctx, b, e.Value.ID, path, seen); err != nil {
				return err
			}
			continue
		}
		seen[path] = true
	}
	return nil
}

// MergeTrees merges an odd number of root trees, resolving as much as it
// can: per-path trivial merges, recursive subtree merges and line-based
// file merges. Paths that stay conflicted keep their per-term values, so
// the result is a merge of complete trees of the input arity (simplified,
// and collapsed when everything resolved).
func MergeTrees(ctx context.Context, b WriteBackend, trees merge.Merge[plumbing.TreeID]) (merge.Merge[plumbing.TreeID], error) {
	simplified := trees.Simplify()
	if id, ok := simplified.ResolveTrivial(); ok {
		return merge.Resolved(id), nil
	}
	return mergeTreesRec(ctx, b, simplified)
}

func mergeTreesRec(ctx context.Context, b WriteBackend, trees merge.Merge[plumbing.TreeID]) (merge.Merge[plumbing.TreeID], error) {
	arity := trees.Len()
	loaded := make([]*Tree, arity)
	for i, id := range trees.Terms() {
		t, err := resolveTree(ctx, b, id)
		if err != nil {
			return merge.Merge[plumbing.TreeID]{}, err
		}
		loaded[i] = t
	}
	names := make(map[string]bool)
	for _, t := range loaded {
		for _, e := range t.Entries {
			names[e.Name] = true
		}
	}
	ordered := make([]string, 0, len(names))
	for n := range names {
		ordered = append(ordered, n)
	}
	sortStrings(ordered)

	out := make([]*Tree, arity)
	for i := range out {
		out[i] = &Tree{}
	}
	setAll := func(name string, v TreeValue) {
		for i := range out {
			out[i].Set(name, v)
		}
	}
	for _, name := range ordered {
		terms := make([]TreeValue, arity)
		for i, t := range loaded {
			terms[i], _ = t.Get(name)
		}
		vm := merge.New(terms...)
		if v, ok := vm.ResolveTrivial(); ok {
			setAll(name, v)
			continue
		}
		resolved, perTerm, err := mergeValue(ctx, b, vm)
		if err != nil {
			return merge.Merge[plumbing.TreeID]{}, err
		}
		if perTerm == nil {
			setAll(name, resolved)
			continue
		}
		for i := range out {
			out[i].Set(name, perTerm[i])
		}
	}

	ids := make([]plumbing.TreeID, arity)
	for i, t := range out {
		id, err := b.WriteTree(ctx, t)
		if err != nil {
			return merge.Merge[plumbing.TreeID]{}, err
		}
		ids[i] = id
	}
	// Keep the input arity when conflicted: callers line results up with
	// their terms. Only a full collapse resolves.
	result := merge.New(ids...)
	if id, ok := result.ResolveTrivial(); ok {
		return merge.Resolved(id), nil
	}
	return result, nil
}

// mergeValue attempts the non-trivial merge of one path's values. It
// returns either a resolved value (perTerm nil) or the per-term values to
// keep as a conflict.
func mergeValue(ctx context.Context, b WriteBackend, vm merge.Merge[TreeValue]) (TreeValue, []TreeValue, error) {
	terms := vm.Terms()
	allTrees := true
	allFiles := true
	for _, v := range terms {
		if v.Kind != KindTree && v.Kind != KindNone {
			allTrees = false
		}
		if v.Kind != KindFile {
			allFiles = false
		}
	}
	switch {
	case allTrees:
		sub := merge.Convert(vm, func(v TreeValue) plumbing.TreeID { return v.ID })
		rec, err := mergeTreesRec(ctx, b, sub)
		if err != nil {
			return TreeValue{}, nil, err
		}
		if id, ok := rec.AsResolved(); ok {
			if id == EmptyTreeID() || id.IsZero() {
				return TreeValue{}, nil, nil
			}
			return TreeValueOf(id), nil, nil
		}
		// The recursion keeps the input arity when conflicted.
		perTerm := make([]TreeValue, len(terms))
		for i, id := range rec.Terms() {
			if !id.IsZero() && id != EmptyTreeID() {
				perTerm[i] = TreeValueOf(id)
			}
		}
		return TreeValue{}, perTerm, nil
	case allFiles:
		return mergeFileValues(ctx, b, vm)
	default:
		// Mixed kinds never reduce further.
		return TreeValue{}, terms, nil
	}
}

// mergeFileValues merges file contents line by line; executable bits and
// copy ids merge trivially.
func mergeFileValues(ctx context.Context, b WriteBackend, vm merge.Merge[TreeValue]) (TreeValue, []TreeValue, error) {
	terms := vm.Terms()
	exec, execOK := merge.Convert(vm, func(v TreeValue) bool { return v.Executable }).ResolveTrivial()
	copyID, copyOK := merge.Convert(vm, func(v TreeValue) plumbing.CopyID { return v.Copy }).ResolveTrivial()
	if !execOK || !copyOK {
		return TreeValue{}, terms, nil
	}
	contents, err := merge.ConvertErr(vm, func(v TreeValue) (string, error) {
		data, err := ReadBlob(ctx, b, v.ID)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		return TreeValue{}, nil, err
	}
	body, ok := conflicts.TryResolveLines(contents)
	if !ok {
		return TreeValue{}, terms, nil
	}
	id, err := b.WriteBlob(ctx, strings.NewReader(body))
	if err != nil {
		return TreeValue{}, nil, err
	}
	v := TreeValue{Kind: KindFile, ID: id, Executable: exec, Copy: copyID}
	return v, nil, nil
}

func sortStrings(s []string) {
	// Entries merge in byte order, the same order trees serialize in.
	sort.Strings(s)
}
