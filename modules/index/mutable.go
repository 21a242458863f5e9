// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/strata-scm/strata/modules/plumbing"
)

// MutableSegment is the single-writer top of a segment stack. Commits are
// appended with their parents already indexed; serialization produces a
// content-addressed readonly segment.
type MutableSegment struct {
	parent      *ReadonlySegment
	parentCount uint32

	generations  []uint32
	parentsLists [][]GlobalCommitPosition
	commitIDs    []plumbing.CommitID
	changeIDsPer []plumbing.ChangeID

	byCommit map[plumbing.CommitID]uint32
	byChange map[plumbing.ChangeID][]uint32
}

// NewMutableSegment opens a writable segment on top of parent (nil for an
// empty stack).
func NewMutableSegment(parent *ReadonlySegment) *MutableSegment {
	s := &MutableSegment{
		parent:   parent,
		byCommit: make(map[plumbing.CommitID]uint32),
		byChange: make(map[plumbing.ChangeID][]uint32),
	}
	if parent != nil {
		s.parentCount = parent.parentCount + parent.numLocalCommits()
	}
	return s
}

// NumLocal reports how many commits this segment added on top of its
// parent chain.
func (s *MutableSegment) NumLocal() uint32 { return uint32(len(s.commitIDs)) }

func (s *MutableSegment) numParentCommits() uint32 { return s.parentCount }

func (s *MutableSegment) numLocalCommits() uint32 { return uint32(len(s.commitIDs)) }

func (s *MutableSegment) localGeneration(local uint32) uint32 { return s.generations[local] }

func (s *MutableSegment) localParents(local uint32) []GlobalCommitPosition {
	return s.parentsLists[local]
}

func (s *MutableSegment) localCommitID(local uint32) plumbing.CommitID { return s.commitIDs[local] }

func (s *MutableSegment) localChangeID(local uint32) plumbing.ChangeID { return s.changeIDsPer[local] }

func (s *MutableSegment) commitIDToLocal(id plumbing.CommitID) (uint32, bool) {
	local, ok := s.byCommit[id]
	return local, ok
}

func (s *MutableSegment) commitIDsMatching(p plumbing.HexPrefix, limit int) []plumbing.CommitID {
	var out []plumbing.CommitID
	for id := range s.byCommit {
		if p.Matches(id[:]) {
			out = append(out, id)
		}
	}
	plumbing.HashesSort(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MutableSegment) changeIDsMatching(p plumbing.HexPrefix, limit int) []plumbing.ChangeID {
	var out []plumbing.ChangeID
	for id := range s.byChange {
		if p.Matches(id[:]) {
			out = append(out, id)
		}
	}
	plumbing.ChangeIDsSort(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MutableSegment) changeIDToLocals(id plumbing.ChangeID) []uint32 {
	return s.byChange[id]
}

func (s *MutableSegment) commitIDNeighbors(id plumbing.CommitID) (prev, next *plumbing.CommitID) {
	for cid := range s.byCommit {
		cid := cid
		switch {
		case bytes.Compare(cid[:], id[:]) < 0:
			if prev == nil || bytes.Compare(cid[:], prev[:]) > 0 {
				prev = &cid
			}
		case bytes.Compare(cid[:], id[:]) > 0:
			if next == nil || bytes.Compare(cid[:], next[:]) < 0 {
				next = &cid
			}
		}
	}
	return prev, next
}

func (s *MutableSegment) changeIDNeighbors(id plumbing.ChangeID) (prev, next *plumbing.ChangeID) {
	for cid := range s.byChange {
		cid := cid
		switch {
		case bytes.Compare(cid[:], id[:]) < 0:
			if prev == nil || bytes.Compare(cid[:], prev[:]) > 0 {
				prev = &cid
			}
		case bytes.Compare(cid[:], id[:]) > 0:
			if next == nil || bytes.Compare(cid[:], next[:]) < 0 {
				next = &cid
			}
		}
	}
	return prev, next
}

// Add appends one commit. Parents must already be indexed; the generation
// number is derived from theirs.
func (s *MutableSegment) Add(commitID plumbing.CommitID, changeID plumbing.ChangeID, parents []GlobalCommitPosition, parentGen func(GlobalCommitPosition) uint32) {
	if _, ok := s.byCommit[commitID]; ok {
		return
	}
	gen := uint32(0)
	for _, p := range parents {
		if g := parentGen(p) + 1; g > gen {
			gen = g
		}
	}
	local := uint32(len(s.commitIDs))
	s.generations = append(s.generations, gen)
	s.parentsLists = append(s.parentsLists, append([]GlobalCommitPosition(nil), parents...))
	s.commitIDs = append(s.commitIDs, commitID)
	s.changeIDsPer = append(s.changeIDsPer, changeID)
	s.byCommit[commitID] = local
	s.byChange[changeID] = append(s.byChange[changeID], local)
}

// absorbParent folds the parent segment's entries under this segment's
// own, keeping every global position unchanged.
func (s *MutableSegment) absorbParent() {
	p := s.parent
	n := p.numLocalCommits()
	generations := make([]uint32, 0, int(n)+len(s.generations))
	parentsLists := make([][]GlobalCommitPosition, 0, int(n)+len(s.parentsLists))
	commitIDs := make([]plumbing.CommitID, 0, int(n)+len(s.commitIDs))
	changeIDs := make([]plumbing.ChangeID, 0, int(n)+len(s.changeIDsPer))
	for local := uint32(0); local < n; local++ {
		generations = append(generations, p.localGeneration(local))
		parentsLists = append(parentsLists, p.localParents(local))
		commitIDs = append(commitIDs, p.localCommitID(local))
		changeIDs = append(changeIDs, p.localChangeID(local))
	}
	generations = append(generations, s.generations...)
	parentsLists = append(parentsLists, s.parentsLists...)
	commitIDs = append(commitIDs, s.commitIDs...)
	changeIDs = append(changeIDs, s.changeIDsPer...)

	s.generations = generations
	s.parentsLists = parentsLists
	s.commitIDs = commitIDs
	s.changeIDsPer = changeIDs
	s.parent = p.parent
	s.parentCount = p.parentCount

	s.byCommit = make(map[plumbing.CommitID]uint32, len(commitIDs))
	s.byChange = make(map[plumbing.ChangeID][]uint32, len(commitIDs))
	for local, id := range s.commitIDs {
		s.byCommit[id] = uint32(local)
	}
	for local, id := range s.changeIDsPer {
		s.byChange[id] = append(s.byChange[id], uint32(local))
	}
}

// maybeSquash keeps the stack at O(log N) files: while this segment holds
// more than half its parent's commits, the parent is absorbed.
func (s *MutableSegment) maybeSquash() {
	for s.parent != nil && uint32(len(s.commitIDs))*2 > s.parent.numLocalCommits() {
		s.absorbParent()
	}
}

// Serialize produces the canonical segment body and its content name.
func (s *MutableSegment) Serialize() (string, []byte) {
	s.maybeSquash()
	var buf bytes.Buffer
	u32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	u32(FormatVersion)
	parentName := ""
	if s.parent != nil {
		parentName = s.parent.name
	}
	u32(uint32(len(parentName)))
	buf.WriteString(parentName)

	numCommits := uint32(len(s.commitIDs))

	// Build the sorted change-id table and per-commit refs.
	changeTable := make([]plumbing.ChangeID, 0, len(s.byChange))
	for id := range s.byChange {
		changeTable = append(changeTable, id)
	}
	plumbing.ChangeIDsSort(changeTable)
	changeIndex := make(map[plumbing.ChangeID]uint32, len(changeTable))
	for i, id := range changeTable {
		changeIndex[id] = uint32(i)
	}
	var changeRefs []uint32
	var changeOverflow []uint32
	for _, id := range changeTable {
		locals := append([]uint32(nil), s.byChange[id]...)
		sort.Slice(locals, func(i, j int) bool { return locals[i] < locals[j] })
		if len(locals) == 1 {
			changeRefs = append(changeRefs, locals[0])
			continue
		}
		changeRefs = append(changeRefs, ^uint32(len(changeOverflow)))
		changeOverflow = append(changeOverflow, locals...)
	}

	var parentOverflow []uint32
	encodedParents := make([][2]uint32, numCommits)
	for local := uint32(0); local < numCommits; local++ {
		parents := s.parentsLists[local]
		switch len(parents) {
		case 0:
			encodedParents[local] = [2]uint32{NoParent, NoParent}
		case 1:
			encodedParents[local] = [2]uint32{uint32(parents[0]), NoParent}
		case 2:
			encodedParents[local] = [2]uint32{uint32(parents[0]), uint32(parents[1])}
		default:
			start := uint32(len(parentOverflow))
			for _, p := range parents {
				parentOverflow = append(parentOverflow, uint32(p))
			}
			encodedParents[local] = [2]uint32{OverflowFlag | start, uint32(len(parents))}
		}
	}

	u32(numCommits)
	u32(uint32(len(changeTable)))
	u32(uint32(len(parentOverflow)))
	u32(uint32(len(changeOverflow)))
	for local := uint32(0); local < numCommits; local++ {
		u32(s.generations[local])
		u32(encodedParents[local][0])
		u32(encodedParents[local][1])
		u32(changeIndex[s.changeIDsPer[local]])
		buf.Write(s.commitIDs[local][:])
	}
	lookup := make([]uint32, numCommits)
	for i := range lookup {
		lookup[i] = uint32(i)
	}
	sort.Slice(lookup, func(i, j int) bool {
		return bytes.Compare(s.commitIDs[lookup[i]][:], s.commitIDs[lookup[j]][:]) < 0
	})
	for _, local := range lookup {
		buf.Write(s.commitIDs[local][:])
		u32(local)
	}
	for _, id := range changeTable {
		buf.Write(id[:])
	}
	for _, ref := range changeRefs {
		u32(ref)
	}
	for _, p := range parentOverflow {
		u32(p)
	}
	for _, p := range changeOverflow {
		u32(p)
	}

	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), buf.Bytes()
}

// Freeze serializes the segment and re-parses it as a readonly segment.
func (s *MutableSegment) Freeze() (*ReadonlySegment, []byte, error) {
	name, data := s.Serialize()
	seg, err := ParseSegment(name, data, s.parent)
	if err != nil {
		return nil, nil, fmt.Errorf("strata: freeze index segment: %w", err)
	}
	return seg, data, nil
}

var _ segment = (*MutableSegment)(nil)
