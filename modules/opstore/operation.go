// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package opstore

import (
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

// OperationMetadata describes one mutation of repository state for humans
// and tooling.
type OperationMetadata struct {
	StartTime   object.Timestamp  `json:"start_time"`
	EndTime     object.Timestamp  `json:"end_time"`
	Description string            `json:"description"`
	Hostname    string            `json:"hostname,omitempty"`
	Username    string            `json:"username,omitempty"`
	IsSnapshot  bool              `json:"is_snapshot,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Operation is one node of the op DAG: a view plus parent operations. The
// predecessors map records, per commit written by this operation, which
// commits it rewrote; nil means the operation predates predecessor
// recording and readers fall back to commit-level predecessors.
type Operation struct {
	ID       plumbing.OperationID   `json:"-"`
	ViewID   plumbing.ViewID        `json:"view_id"`
	Parents  []plumbing.OperationID `json:"parents"`
	Metadata OperationMetadata      `json:"metadata"`

	CommitPredecessors map[plumbing.CommitID][]plumbing.CommitID `json:"commit_predecessors,omitempty"`
	// PredecessorsRecorded distinguishes "recorded, empty" from "not
	// recorded at all".
	PredecessorsRecorded bool `json:"predecessors_recorded,omitempty"`
}

// IsRoot reports whether op is the synthetic root operation.
func (op *Operation) IsRoot() bool { return len(op.Parents) == 0 }
