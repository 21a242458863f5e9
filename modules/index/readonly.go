// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/strata-scm/strata/modules/plumbing"
)

// ReadonlySegment is an immutable, content-addressed slice of the commit
// graph, chained to the segment it extends. The file name is the hash of
// the serialized body.
type ReadonlySegment struct {
	name   string
	parent *ReadonlySegment

	parentCount uint32

	generations  []uint32
	parent1      []uint32
	parent2      []uint32
	changeIDRefs []uint32
	commitIDs    []plumbing.CommitID

	// lookup is local positions ordered by commit id.
	lookup []uint32
	// changeIDs is the segment's sorted change-id table; changeRefs holds
	// one local position or a ^start into changeOverflow per table entry.
	changeIDs      []plumbing.ChangeID
	changeRefs     []uint32
	parentOverflow []uint32
	changeOverflow []uint32
}

func (s *ReadonlySegment) Name() string { return s.name }

func (s *ReadonlySegment) numParentCommits() uint32 { return s.parentCount }

func (s *ReadonlySegment) numLocalCommits() uint32 { return uint32(len(s.commitIDs)) }

func (s *ReadonlySegment) localGeneration(local uint32) uint32 { return s.generations[local] }

func (s *ReadonlySegment) localCommitID(local uint32) plumbing.CommitID { return s.commitIDs[local] }

func (s *ReadonlySegment) localChangeID(local uint32) plumbing.ChangeID {
	return s.changeIDs[s.changeIDRefs[local]]
}

func (s *ReadonlySegment) localParents(local uint32) []GlobalCommitPosition {
	p1 := s.parent1[local]
	p2 := s.parent2[local]
	if p1 == NoParent {
		return nil
	}
	if p1&OverflowFlag == 0 {
		if p2 == NoParent {
			return []GlobalCommitPosition{GlobalCommitPosition(p1)}
		}
		return []GlobalCommitPosition{GlobalCommitPosition(p1), GlobalCommitPosition(p2)}
	}
	start := p1 &^ OverflowFlag
	count := p2
	out := make([]GlobalCommitPosition, 0, count)
	for _, p := range s.parentOverflow[start : start+count] {
		out = append(out, GlobalCommitPosition(p))
	}
	return out
}

func (s *ReadonlySegment) commitIDToLocal(id plumbing.CommitID) (uint32, bool) {
	i := sort.Search(len(s.lookup), func(i int) bool {
		return bytes.Compare(s.commitIDs[s.lookup[i]][:], id[:]) >= 0
	})
	if i < len(s.lookup) && s.commitIDs[s.lookup[i]] == id {
		return s.lookup[i], true
	}
	return 0, false
}

func (s *ReadonlySegment) commitIDsMatching(p plumbing.HexPrefix, limit int) []plumbing.CommitID {
	low := p.MinBytes()
	i := sort.Search(len(s.lookup), func(i int) bool {
		id := s.commitIDs[s.lookup[i]]
		return bytes.Compare(id[:len(low)], low) >= 0
	})
	var out []plumbing.CommitID
	for ; i < len(s.lookup) && len(out) < limit; i++ {
		id := s.commitIDs[s.lookup[i]]
		if !p.Matches(id[:]) {
			break
		}
		out = append(out, id)
	}
	return out
}

func (s *ReadonlySegment) changeIDsMatching(p plumbing.HexPrefix, limit int) []plumbing.ChangeID {
	low := p.MinBytes()
	i := sort.Search(len(s.changeIDs), func(i int) bool {
		id := s.changeIDs[i]
		return bytes.Compare(id[:len(low)], low) >= 0
	})
	var out []plumbing.ChangeID
	for ; i < len(s.changeIDs) && len(out) < limit; i++ {
		id := s.changeIDs[i]
		if !p.Matches(id[:]) {
			break
		}
		out = append(out, id)
	}
	return out
}

func (s *ReadonlySegment) changeIDToLocals(id plumbing.ChangeID) []uint32 {
	i := sort.Search(len(s.changeIDs), func(i int) bool {
		return bytes.Compare(s.changeIDs[i][:], id[:]) >= 0
	})
	if i >= len(s.changeIDs) || s.changeIDs[i] != id {
		return nil
	}
	ref := s.changeRefs[i]
	if ref&OverflowFlag == 0 {
		return []uint32{ref}
	}
	start := ^ref
	end := uint32(len(s.changeOverflow))
	// Overflow runs are appended in table order; the next overflowing
	// change id bounds this run.
	for j := i + 1; j < len(s.changeRefs); j++ {
		if s.changeRefs[j]&OverflowFlag != 0 {
			end = ^s.changeRefs[j]
			break
		}
	}
	return append([]uint32(nil), s.changeOverflow[start:end]...)
}

func (s *ReadonlySegment) commitIDNeighbors(id plumbing.CommitID) (prev, next *plumbing.CommitID) {
	i := sort.Search(len(s.lookup), func(i int) bool {
		return bytes.Compare(s.commitIDs[s.lookup[i]][:], id[:]) >= 0
	})
	if i > 0 {
		p := s.commitIDs[s.lookup[i-1]]
		prev = &p
	}
	j := i
	if j < len(s.lookup) && s.commitIDs[s.lookup[j]] == id {
		j++
	}
	if j < len(s.lookup) {
		n := s.commitIDs[s.lookup[j]]
		next = &n
	}
	return prev, next
}

func (s *ReadonlySegment) changeIDNeighbors(id plumbing.ChangeID) (prev, next *plumbing.ChangeID) {
	i := sort.Search(len(s.changeIDs), func(i int) bool {
		return bytes.Compare(s.changeIDs[i][:], id[:]) >= 0
	})
	if i > 0 {
		p := s.changeIDs[i-1]
		prev = &p
	}
	j := i
	if j < len(s.changeIDs) && s.changeIDs[j] == id {
		j++
	}
	if j < len(s.changeIDs) {
		n := s.changeIDs[j]
		next = &n
	}
	return prev, next
}

type sliceReader struct {
	data []byte
	off  int
	err  error
}

func (r *sliceReader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.off+4 > len(r.data) {
		r.err = fmt.Errorf("strata: truncated index segment")
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *sliceReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("strata: truncated index segment")
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ParseSegment decodes a serialized segment body. The caller supplies the
// already-loaded parent segment matching the embedded parent file name.
func ParseSegment(name string, data []byte, parent *ReadonlySegment) (*ReadonlySegment, error) {
	r := &sliceReader{data: data}
	if v := r.u32(); v != FormatVersion {
		if r.err == nil {
			return nil, fmt.Errorf("strata: index segment format %d not supported", v)
		}
		return nil, r.err
	}
	parentNameLen := r.u32()
	parentName := string(r.bytes(int(parentNameLen)))
	if parent == nil && parentNameLen != 0 {
		return nil, fmt.Errorf("strata: index segment wants parent %s", parentName)
	}
	if parent != nil && parent.name != parentName {
		return nil, fmt.Errorf("strata: index segment parent mismatch: %s != %s", parent.name, parentName)
	}
	s := &ReadonlySegment{name: name, parent: parent}
	if parent != nil {
		s.parentCount = parent.parentCount + parent.numLocalCommits()
	}
	numCommits := r.u32()
	numChangeIDs := r.u32()
	parentOverflowCount := r.u32()
	changeOverflowCount := r.u32()

	s.generations = make([]uint32, numCommits)
	s.parent1 = make([]uint32, numCommits)
	s.parent2 = make([]uint32, numCommits)
	s.changeIDRefs = make([]uint32, numCommits)
	s.commitIDs = make([]plumbing.CommitID, numCommits)
	for i := uint32(0); i < numCommits; i++ {
		s.generations[i] = r.u32()
		s.parent1[i] = r.u32()
		s.parent2[i] = r.u32()
		s.changeIDRefs[i] = r.u32()
		copy(s.commitIDs[i][:], r.bytes(plumbing.HASH_DIGEST_SIZE))
	}
	s.lookup = make([]uint32, numCommits)
	for i := uint32(0); i < numCommits; i++ {
		r.bytes(plumbing.HASH_DIGEST_SIZE) // id is implied by the position
		s.lookup[i] = r.u32()
	}
	s.changeIDs = make([]plumbing.ChangeID, numChangeIDs)
	for i := uint32(0); i < numChangeIDs; i++ {
		copy(s.changeIDs[i][:], r.bytes(plumbing.CHANGE_DIGEST_SIZE))
	}
	s.changeRefs = make([]uint32, numChangeIDs)
	for i := uint32(0); i < numChangeIDs; i++ {
		s.changeRefs[i] = r.u32()
	}
	s.parentOverflow = make([]uint32, parentOverflowCount)
	for i := uint32(0); i < parentOverflowCount; i++ {
		s.parentOverflow[i] = r.u32()
	}
	s.changeOverflow = make([]uint32, changeOverflowCount)
	for i := uint32(0); i < changeOverflowCount; i++ {
		s.changeOverflow[i] = r.u32()
	}
	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

var _ segment = (*ReadonlySegment)(nil)
