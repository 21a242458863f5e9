// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package revset

import (
	"context"
	"sort"

	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

// DescriptionPredicate keeps commits whose description matches.
func DescriptionPredicate(b object.Backend, pat StringPattern) Predicate {
	return func(ctx context.Context, entry index.CommitEntry) (bool, error) {
		c, err := b.Commit(ctx, entry.CommitID)
		if err != nil {
			return false, err
		}
		return pat.Match(c.Description), nil
	}
}

// AuthorPredicate keeps commits whose author name or email matches.
func AuthorPredicate(b object.Backend, pat StringPattern) Predicate {
	return func(ctx context.Context, entry index.CommitEntry) (bool, error) {
		c, err := b.Commit(ctx, entry.CommitID)
		if err != nil {
			return false, err
		}
		return pat.Match(c.Author.Name) || pat.Match(c.Author.Email), nil
	}
}

// EmptyPredicate keeps commits for which ChangedPaths reports no path.
func EmptyPredicate(b object.Backend) Predicate {
	return func(ctx context.Context, entry index.CommitEntry) (bool, error) {
		paths, err := ChangedPaths(ctx, b, entry.CommitID)
		if err != nil {
			return false, err
		}
		return len(paths) == 0, nil
	}
}

// FilePredicate keeps commits that changed a path accepted by match. The
// changed-path index answers repeat queries without re-diffing.
func FilePredicate(b object.Backend, changed *index.ChangedPathsIndex, match func(string) bool) Predicate {
	return func(ctx context.Context, entry index.CommitEntry) (bool, error) {
		paths, ok := changed.Get(entry.Pos)
		if !ok {
			var err error
			paths, err = ChangedPaths(ctx, b, entry.CommitID)
			if err != nil {
				return false, err
			}
			changed.Record(entry.Pos, paths)
		}
		for _, p := range paths {
			if match(p) {
				return true, nil
			}
		}
		return false, nil
	}
}

// ChangedPaths diffs a commit against its parents (first parent for a
// resolved tree comparison per parent; a path counts as changed when it
// differs from every parent).
func ChangedPaths(ctx context.Context, b object.Backend, id plumbing.CommitID) ([]string, error) {
	c, err := b.Commit(ctx, id)
	if err != nil {
		return nil, err
	}
	tid, ok := c.RootTree.AsResolved()
	var flat map[string]object.TreeValue
	if ok {
		if flat, err = object.FlattenTree(ctx, b, tid); err != nil {
			return nil, err
		}
	} else {
		// A conflicted commit is diffed via its first side.
		if flat, err = object.FlattenTree(ctx, b, c.RootTree.Adds()[0]); err != nil {
			return nil, err
		}
	}
	parentFlats := make([]map[string]object.TreeValue, 0, len(c.Parents))
	for _, p := range c.Parents {
		pc, err := b.Commit(ctx, p)
		if err != nil {
			return nil, err
		}
		ptid, ok := pc.RootTree.AsResolved()
		if !ok {
			ptid = pc.RootTree.Adds()[0]
		}
		pf, err := object.FlattenTree(ctx, b, ptid)
		if err != nil {
			return nil, err
		}
		parentFlats = append(parentFlats, pf)
	}
	seen := make(map[string]bool)
	for p := range flat {
		seen[p] = true
	}
	for _, pf := range parentFlats {
		for p := range pf {
			seen[p] = true
		}
	}
	var out []string
	for p := range seen {
		v := flat[p]
		changedEverywhere := true
		for _, pf := range parentFlats {
			if pf[p] == v {
				changedEverywhere = false
				break
			}
		}
		if len(parentFlats) == 0 {
			changedEverywhere = !v.IsAbsent()
		}
		if changedEverywhere {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
