// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package repo ties the stores together: it loads a repository at an
// operation, runs transactions against a mutable view+index, and houses
// the rewrite engine. All repository mutation funnels through a
// Transaction; nothing is visible to other readers until the transaction
// writes its operation and advances the op heads.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/strata-scm/strata/modules/backend"
	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/trace"
)

const (
	// DefaultWorkspace names the workspace a fresh repo checks out.
	DefaultWorkspace = "default"

	storeDir   = "store"
	opStoreDir = "op_store"
	opHeadsDir = "op_heads"
	indexDir   = "index"
)

// Settings carries the ambient user identity and clock. The clock is
// injectable so tests produce stable timestamps.
type Settings struct {
	Name     string
	Email    string
	Hostname string
	Username string
	Now      func() time.Time

	// Immutable, when set, rejects rewrites of the commits it reports.
	Immutable func(plumbing.CommitID) bool
}

func (s *Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Repo is the set of opened stores backing one repository directory.
type Repo struct {
	Path       string
	Store      *backend.Store
	OpStore    *opstore.SimpleOpStore
	OpHeads    *opstore.OpHeadsStore
	IndexStore *index.Store
	Settings   *Settings
}

// ReadonlyRepo is a repository pinned at one operation: its view and a
// matching commit index.
type ReadonlyRepo struct {
	Repo      *Repo
	Operation *opstore.Operation
	View      *opstore.View
	Index     *index.CompositeIndex

	baseSegment *index.ReadonlySegment
}

// Init creates an empty repository under path and returns it loaded at
// the root operation.
func Init(ctx context.Context, path string, settings *Settings) (*ReadonlyRepo, error) {
	for _, d := range []string{storeDir, opStoreDir, opHeadsDir, indexDir} {
		if err := os.MkdirAll(filepath.Join(path, d), 0o755); err != nil {
			return nil, err
		}
	}
	repo, err := openStores(path, settings)
	if err != nil {
		return nil, err
	}
	if _, err := opstore.InitOpHeads(filepath.Join(path, opHeadsDir), repo.OpStore.RootOperationID()); err != nil {
		return nil, err
	}
	return Load(ctx, path, settings)
}

func openStores(path string, settings *Settings) (*Repo, error) {
	simple, err := backend.NewSimpleBackend(filepath.Join(path, storeDir))
	if err != nil {
		return nil, err
	}
	store, err := backend.NewStore(simple)
	if err != nil {
		return nil, err
	}
	ops, err := opstore.NewSimpleOpStore(filepath.Join(path, opStoreDir), simple.RootCommitID())
	if err != nil {
		return nil, err
	}
	heads, err := opstore.NewOpHeadsStore(filepath.Join(path, opHeadsDir))
	if err != nil {
		return nil, err
	}
	idxStore, err := index.NewStore(filepath.Join(path, indexDir))
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = &Settings{}
	}
	return &Repo{
		Path:       path,
		Store:      store,
		OpStore:    ops,
		OpHeads:    heads,
		IndexStore: idxStore,
		Settings:   settings,
	}, nil
}

// Load opens the repository at the current operation head. Multiple heads
// left behind by concurrent writers are merged into a new operation
// first.
func Load(ctx context.Context, path string, settings *Settings) (*ReadonlyRepo, error) {
	repo, err := openStores(path, settings)
	if err != nil {
		return nil, err
	}
	heads, err := repo.OpHeads.Heads()
	if err != nil {
		return nil, err
	}
	headID := heads[0]
	if len(heads) > 1 {
		if headID, err = repo.mergeOperationHeads(ctx, heads); err != nil {
			return nil, err
		}
	}
	return repo.LoadAtOperation(ctx, headID)
}

// LoadAtOperation pins the repository at one operation, building the
// commit index for it when none is on disk.
func (r *Repo) LoadAtOperation(ctx context.Context, opID plumbing.OperationID) (*ReadonlyRepo, error) {
	op, err := r.OpStore.ReadOperation(ctx, opID)
	if err != nil {
		return nil, err
	}
	view, err := r.OpStore.ReadView(ctx, op.ViewID)
	if err != nil {
		return nil, err
	}
	seg, ok := r.IndexStore.SegmentAtOperation(opID)
	if !ok {
		if seg, err = r.buildIndexAt(ctx, op, view); err != nil {
			return nil, err
		}
	}
	return &ReadonlyRepo{
		Repo:        r,
		Operation:   op,
		View:        view,
		Index:       index.NewCompositeIndex(seg, nil),
		baseSegment: seg,
	}, nil
}

// buildIndexAt indexes everything reachable from the view's heads,
// reusing a parent operation's segment when one exists.
func (r *Repo) buildIndexAt(ctx context.Context, op *opstore.Operation, view *opstore.View) (*index.ReadonlySegment, error) {
	var base *index.ReadonlySegment
	for _, parent := range op.Parents {
		if seg, ok := r.IndexStore.SegmentAtOperation(parent); ok {
			base = seg
			break
		}
	}
	mutable := index.NewMutableSegment(base)
	x := index.NewCompositeIndex(base, mutable)
	if err := index.AddReachable(ctx, x, mutable, r.Store, view.Heads()); err != nil {
		return nil, err
	}
	if mutable.NumLocal() == 0 && base != nil {
		if err := r.IndexStore.Associate(base, op.ID); err != nil {
			return nil, err
		}
		return base, nil
	}
	seg, err := r.IndexStore.Save(mutable, op.ID)
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// mergeOperationHeads writes the merge operation combining concurrent
// heads and promotes it.
func (r *Repo) mergeOperationHeads(ctx context.Context, heads []plumbing.OperationID) (plumbing.OperationID, error) {
	left, err := r.LoadAtOperation(ctx, heads[0])
	if err != nil {
		return plumbing.ZeroHash, err
	}
	// One index over every side's commits lets head merging compute graph
	// heads across the union.
	mutable := index.NewMutableSegment(left.baseSegment)
	x := index.NewCompositeIndex(left.baseSegment, mutable)
	mergedView := left.View
	prevOp := heads[0]
	for _, other := range heads[1:] {
		otherOp, err := r.OpStore.ReadOperation(ctx, other)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		otherView, err := r.OpStore.ReadView(ctx, otherOp.ViewID)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		ancestorOp, err := r.commonAncestorOp(ctx, prevOp, other)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		ancestorView, err := r.OpStore.ReadView(ctx, ancestorOp.ViewID)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if err := index.AddReachable(ctx, x, mutable, r.Store, otherView.Heads()); err != nil {
			return plumbing.ZeroHash, err
		}
		mergedView = MergeViews(x, ancestorView, mergedView, otherView)
	}
	viewID, err := r.OpStore.WriteView(ctx, mergedView)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	now := r.Settings.now()
	op := &opstore.Operation{
		ViewID:  viewID,
		Parents: heads,
		Metadata: opstore.OperationMetadata{
			StartTime:   timestampOf(now),
			EndTime:     timestampOf(now),
			Description: "merge concurrent operations",
			Hostname:    r.Settings.Hostname,
			Username:    r.Settings.Username,
		},
		CommitPredecessors:   map[plumbing.CommitID][]plumbing.CommitID{},
		PredecessorsRecorded: true,
	}
	opID, err := r.OpStore.WriteOperation(ctx, op)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := r.OpHeads.Update(opID, heads...); err != nil {
		return plumbing.ZeroHash, err
	}
	trace.Debugf("merged %d operation heads into %s", len(heads), opID.Short(12))
	return opID, nil
}

// commonAncestorOp finds the nearest common ancestor of two operations in
// the op DAG (any one of them when several are equally near).
func (r *Repo) commonAncestorOp(ctx context.Context, a, b plumbing.OperationID) (*opstore.Operation, error) {
	ancestors := make(map[plumbing.OperationID]bool)
	queue := []plumbing.OperationID{a}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if ancestors[id] {
			continue
		}
		ancestors[id] = true
		op, err := r.OpStore.ReadOperation(ctx, id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, op.Parents...)
	}
	queue = []plumbing.OperationID{b}
	seen := make(map[plumbing.OperationID]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		op, err := r.OpStore.ReadOperation(ctx, id)
		if err != nil {
			return nil, err
		}
		if ancestors[id] {
			return op, nil
		}
		queue = append(queue, op.Parents...)
	}
	return nil, fmt.Errorf("strata: operations %s and %s share no ancestor", a.Short(12), b.Short(12))
}
