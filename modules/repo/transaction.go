// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"time"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
)

// Transaction buffers mutations on top of a base operation and commits
// them by writing a child operation. Dropping a transaction without
// committing leaves no trace.
type Transaction struct {
	mut       *MutableRepo
	baseOp    *opstore.Operation
	startTime time.Time
	snapshot  bool
}

// StartTransaction opens a transaction at this repo's operation.
func (r *ReadonlyRepo) StartTransaction() *Transaction {
	return &Transaction{
		mut:       newMutableRepo(r),
		baseOp:    r.Operation,
		startTime: r.Repo.Settings.now(),
	}
}

// Mutable exposes the buffered repository state.
func (t *Transaction) Mutable() *MutableRepo { return t.mut }

// SetIsSnapshot marks the resulting operation as a working-copy snapshot.
func (t *Transaction) SetIsSnapshot(snapshot bool) { t.snapshot = snapshot }

func timestampOf(t time.Time) object.Timestamp {
	return object.NewTimestamp(t)
}

// Commit writes the new view and operation, advances the op heads and
// returns the repository loaded at the new operation. Concurrent writers
// leave multiple heads; those are merged into a fresh merge operation
// before this returns.
func (t *Transaction) Commit(ctx context.Context, description string) (*ReadonlyRepo, error) {
	m := t.mut
	repo := m.base.Repo
	settings := repo.Settings

	if !m.descendantsRebased {
		if _, err := m.RebaseDescendants(ctx, nil); err != nil {
			return nil, err
		}
	}

	viewID, err := repo.OpStore.WriteView(ctx, m.view)
	if err != nil {
		return nil, err
	}
	preds := make(map[plumbing.CommitID][]plumbing.CommitID, len(m.predecessors))
	for id, p := range m.predecessors {
		preds[id] = p
	}
	op := &opstore.Operation{
		ViewID:  viewID,
		Parents: []plumbing.OperationID{t.baseOp.ID},
		Metadata: opstore.OperationMetadata{
			StartTime:   timestampOf(t.startTime),
			EndTime:     timestampOf(settings.now()),
			Description: description,
			Hostname:    settings.Hostname,
			Username:    settings.Username,
			IsSnapshot:  t.snapshot,
		},
		CommitPredecessors:   preds,
		PredecessorsRecorded: true,
	}
	opID, err := repo.OpStore.WriteOperation(ctx, op)
	if err != nil {
		return nil, err
	}
	if m.mutableSeg.NumLocal() > 0 {
		if _, err := repo.IndexStore.Save(m.mutableSeg, opID); err != nil {
			return nil, err
		}
	} else if m.base.baseSegment != nil {
		if err := repo.IndexStore.Associate(m.base.baseSegment, opID); err != nil {
			return nil, err
		}
	}
	if err := repo.OpHeads.Update(opID, t.baseOp.ID); err != nil {
		return nil, err
	}
	heads, err := repo.OpHeads.Heads()
	if err != nil {
		return nil, err
	}
	headID := opID
	if len(heads) > 1 {
		// Someone else advanced the head concurrently: write the merge
		// operation now instead of leaving it for the next loader.
		if headID, err = repo.mergeOperationHeads(ctx, heads); err != nil {
			return nil, err
		}
	}
	return repo.LoadAtOperation(ctx, headID)
}
