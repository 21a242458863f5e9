// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

// Store wraps a Backend with size-bounded caches for commits and trees.
// Concurrent readers of the same id share one backend call.
type Store struct {
	Backend

	commits *ristretto.Cache[string, *object.Commit]
	trees   *ristretto.Cache[string, *object.Tree]
	group   singleflight.Group
}

func NewStore(b Backend) (*Store, error) {
	commits, err := ristretto.NewCache(&ristretto.Config[string, *object.Commit]{
		NumCounters: 100000,
		MaxCost:     10000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	trees, err := ristretto.NewCache(&ristretto.Config[string, *object.Tree]{
		NumCounters: 100000,
		MaxCost:     10000,
		BufferItems: 64,
	})
	if err != nil {
		commits.Close()
		return nil, err
	}
	return &Store{Backend: b, commits: commits, trees: trees}, nil
}

func (s *Store) Close() {
	s.commits.Close()
	s.trees.Close()
}

// Wait flushes pending cache admissions. Mostly useful in tests.
func (s *Store) Wait() {
	s.commits.Wait()
	s.trees.Wait()
}

func (s *Store) Commit(ctx context.Context, oid plumbing.CommitID) (*object.Commit, error) {
	key := "c" + oid.String()
	if c, ok := s.commits.Get(key); ok {
		return c, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		c, err := s.Backend.Commit(ctx, oid)
		if err != nil {
			return nil, err
		}
		s.commits.Set(key, c, 1)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Commit), nil
}

func (s *Store) Tree(ctx context.Context, oid plumbing.TreeID) (*object.Tree, error) {
	key := "t" + oid.String()
	if t, ok := s.trees.Get(key); ok {
		return t, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		t, err := s.Backend.Tree(ctx, oid)
		if err != nil {
			return nil, err
		}
		s.trees.Set(key, t, 1)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Tree), nil
}

// WriteCommit caches what it wrote so an immediate read-back hits.
func (s *Store) WriteCommit(ctx context.Context, commit *object.Commit, sign SigningFn) (plumbing.CommitID, *object.Commit, error) {
	oid, stored, err := s.Backend.WriteCommit(ctx, commit, sign)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	s.commits.Set("c"+oid.String(), stored, 1)
	return oid, stored, nil
}

func (s *Store) WriteTree(ctx context.Context, tree *object.Tree) (plumbing.TreeID, error) {
	oid, err := s.Backend.WriteTree(ctx, tree)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	cp := &object.Tree{ID: oid, Entries: append([]object.TreeEntry(nil), tree.Entries...)}
	s.trees.Set("t"+oid.String(), cp, 1)
	return oid, nil
}

// RootTree loads a commit's possibly-conflicted root tree.
func (s *Store) RootTree(c *object.Commit) object.MergedTree {
	return object.NewMergedTree(c.RootTree)
}

// MustCommit is a test and tooling helper: it panics on lookup failure.
func (s *Store) MustCommit(ctx context.Context, oid plumbing.CommitID) *object.Commit {
	c, err := s.Commit(ctx, oid)
	if err != nil {
		panic(fmt.Sprintf("strata: %v", err))
	}
	return c
}

var _ Backend = (*Store)(nil)
var _ object.WriteBackend = (*Store)(nil)
