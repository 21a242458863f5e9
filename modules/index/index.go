// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package index maintains the segmented, content-addressed commit-graph
// index: generation numbers, parent positions, id lookup tables and the
// ancestry machinery revsets evaluate against. A composite index is a
// stack of immutable segments plus one optional mutable segment owned by
// the current writer.
package index

import (
	"github.com/strata-scm/strata/modules/plumbing"
)

// GlobalCommitPosition identifies a commit across the whole segment
// stack. Parents always sit at strictly smaller positions, so descending
// position order is a reverse-topological order.
type GlobalCommitPosition uint32

const (
	// NoParent marks an unused inline parent slot.
	NoParent uint32 = 0xffffffff
	// OverflowFlag marks a parent1 slot that points into the overflow
	// table instead of holding an inline position.
	OverflowFlag uint32 = 0x80000000

	FormatVersion uint32 = 1
)

// CommitEntry is one indexed commit.
type CommitEntry struct {
	Pos        GlobalCommitPosition
	Generation uint32
	Parents    []GlobalCommitPosition
	CommitID   plumbing.CommitID
	ChangeID   plumbing.ChangeID
}

// PrefixResolution is the outcome of resolving an id prefix.
type PrefixResolution int

const (
	PrefixNoMatch PrefixResolution = iota
	PrefixSingleMatch
	PrefixAmbiguousMatch
)

// segment is one layer of the stack. Local positions are 0-based within
// the segment; the segment's parent count converts them to global.
type segment interface {
	numParentCommits() uint32
	numLocalCommits() uint32
	localGeneration(local uint32) uint32
	localParents(local uint32) []GlobalCommitPosition
	localCommitID(local uint32) plumbing.CommitID
	localChangeID(local uint32) plumbing.ChangeID
	commitIDToLocal(id plumbing.CommitID) (uint32, bool)
	// commitIDsMatching returns up to limit commit ids with the prefix.
	commitIDsMatching(p plumbing.HexPrefix, limit int) []plumbing.CommitID
	changeIDsMatching(p plumbing.HexPrefix, limit int) []plumbing.ChangeID
	changeIDToLocals(id plumbing.ChangeID) []uint32
	// neighbors returns the lexicographic predecessor and successor of id
	// among this segment's commit ids, excluding id itself.
	commitIDNeighbors(id plumbing.CommitID) (prev, next *plumbing.CommitID)
	changeIDNeighbors(id plumbing.ChangeID) (prev, next *plumbing.ChangeID)
}
