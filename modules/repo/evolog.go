// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
)

// EvologEntry is one step in a change's rewrite history: the commit, the
// operation that produced it (nil for pre-tracking data) and what it
// rewrote.
type EvologEntry struct {
	Commit       *object.Commit
	Operation    *opstore.Operation
	Predecessors []plumbing.CommitID
}

// WalkPredecessors walks a commit's rewrite trail backwards from the head
// operation: newest rewrites first, child operations before parents.
// Operations that never recorded predecessors fall back to the
// deprecated commit-level predecessors. A commit reappearing in its own
// trail is corrupt data and aborts with CycleDetectedError.
func (r *Repo) WalkPredecessors(ctx context.Context, start plumbing.CommitID, headOp *opstore.Operation) ([]EvologEntry, error) {
	ops, err := r.linearizeOps(ctx, headOp)
	if err != nil {
		return nil, err
	}
	anyRecorded := false
	for _, op := range ops {
		if op.PredecessorsRecorded {
			anyRecorded = true
			break
		}
	}
	if !anyRecorded {
		return r.walkLegacyPredecessors(ctx, start)
	}

	var entries []EvologEntry
	yielded := make(map[plumbing.CommitID]bool)
	pending := []plumbing.CommitID{start}
	for _, op := range ops {
		if !op.PredecessorsRecorded {
			continue
		}
		var still []plumbing.CommitID
		for _, id := range pending {
			preds, ok := op.CommitPredecessors[id]
			if !ok {
				still = append(still, id)
				continue
			}
			if yielded[id] {
				return nil, &CycleDetectedError{ID: id}
			}
			yielded[id] = true
			c, err := r.Store.Commit(ctx, id)
			if err != nil {
				return nil, err
			}
			entries = append(entries, EvologEntry{Commit: c, Operation: op, Predecessors: preds})
			for _, p := range preds {
				if yielded[p] {
					return nil, &CycleDetectedError{ID: p}
				}
				still = append(still, p)
			}
		}
		pending = still
	}
	// Anything not explained by any operation predates tracking.
	for _, id := range pending {
		legacy, err := r.walkLegacyPredecessors(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, legacy...)
	}
	return entries, nil
}

// linearizeOps orders the op DAG children-first from the head.
func (r *Repo) linearizeOps(ctx context.Context, head *opstore.Operation) ([]*opstore.Operation, error) {
	var out []*opstore.Operation
	seen := make(map[plumbing.OperationID]bool)
	queue := []*opstore.Operation{head}
	for len(queue) > 0 {
		op := queue[0]
		queue = queue[1:]
		if seen[op.ID] {
			continue
		}
		seen[op.ID] = true
		out = append(out, op)
		for _, parent := range op.Parents {
			p, err := r.OpStore.ReadOperation(ctx, parent)
			if err != nil {
				return nil, err
			}
			queue = append(queue, p)
		}
	}
	return out, nil
}

func (r *Repo) walkLegacyPredecessors(ctx context.Context, start plumbing.CommitID) ([]EvologEntry, error) {
	var entries []EvologEntry
	yielded := make(map[plumbing.CommitID]bool)
	queue := []plumbing.CommitID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if yielded[id] {
			return nil, &CycleDetectedError{ID: id}
		}
		yielded[id] = true
		c, err := r.Store.Commit(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, EvologEntry{Commit: c, Predecessors: c.Predecessors})
		queue = append(queue, c.Predecessors...)
	}
	return entries, nil
}
