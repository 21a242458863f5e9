// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"sort"

	"github.com/strata-scm/strata/modules/plumbing"
)

// CompositeIndex answers graph queries over a stack of readonly segments
// plus an optional mutable segment. Lookups are synchronous and never
// touch the backend.
type CompositeIndex struct {
	// segs is ordered oldest to newest; the mutable segment, when
	// present, is last.
	segs []segment
}

// NewCompositeIndex assembles the stack. Either argument may be nil.
func NewCompositeIndex(readonly *ReadonlySegment, mutable *MutableSegment) *CompositeIndex {
	var chain []segment
	for s := readonly; s != nil; s = s.parent {
		chain = append(chain, s)
	}
	// chain is newest → oldest; reverse it.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if mutable != nil {
		chain = append(chain, mutable)
	}
	return &CompositeIndex{segs: chain}
}

func (x *CompositeIndex) NumCommits() uint32 {
	if len(x.segs) == 0 {
		return 0
	}
	top := x.segs[len(x.segs)-1]
	return top.numParentCommits() + top.numLocalCommits()
}

func (x *CompositeIndex) segmentFor(pos GlobalCommitPosition) (segment, uint32) {
	for i := len(x.segs) - 1; i >= 0; i-- {
		s := x.segs[i]
		if uint32(pos) >= s.numParentCommits() {
			return s, uint32(pos) - s.numParentCommits()
		}
	}
	panic("strata: commit position out of range")
}

// Entry returns the indexed data at pos.
func (x *CompositeIndex) Entry(pos GlobalCommitPosition) CommitEntry {
	s, local := x.segmentFor(pos)
	return CommitEntry{
		Pos:        pos,
		Generation: s.localGeneration(local),
		Parents:    s.localParents(local),
		CommitID:   s.localCommitID(local),
		ChangeID:   s.localChangeID(local),
	}
}

func (x *CompositeIndex) Generation(pos GlobalCommitPosition) uint32 {
	s, local := x.segmentFor(pos)
	return s.localGeneration(local)
}

func (x *CompositeIndex) ParentPositions(pos GlobalCommitPosition) []GlobalCommitPosition {
	s, local := x.segmentFor(pos)
	return s.localParents(local)
}

func (x *CompositeIndex) CommitIDByPos(pos GlobalCommitPosition) plumbing.CommitID {
	s, local := x.segmentFor(pos)
	return s.localCommitID(local)
}

// PositionByCommitID resolves a full commit id to its global position.
func (x *CompositeIndex) PositionByCommitID(id plumbing.CommitID) (GlobalCommitPosition, bool) {
	for i := len(x.segs) - 1; i >= 0; i-- {
		s := x.segs[i]
		if local, ok := s.commitIDToLocal(id); ok {
			return GlobalCommitPosition(s.numParentCommits() + local), true
		}
	}
	return 0, false
}

func (x *CompositeIndex) Has(id plumbing.CommitID) bool {
	_, ok := x.PositionByCommitID(id)
	return ok
}

// PositionsByChangeID lists every indexed commit carrying the change id,
// in ascending position order.
func (x *CompositeIndex) PositionsByChangeID(id plumbing.ChangeID) []GlobalCommitPosition {
	var out []GlobalCommitPosition
	for _, s := range x.segs {
		for _, local := range s.changeIDToLocals(id) {
			out = append(out, GlobalCommitPosition(s.numParentCommits()+local))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func (x *CompositeIndex) IsAncestor(a, b plumbing.CommitID) bool {
	ap, ok := x.PositionByCommitID(a)
	if !ok {
		return false
	}
	bp, ok := x.PositionByCommitID(b)
	if !ok {
		return false
	}
	return x.isAncestorPos(ap, bp)
}

func (x *CompositeIndex) isAncestorPos(a, b GlobalCommitPosition) bool {
	if a == b {
		return true
	}
	genA := x.Generation(a)
	if genA >= x.Generation(b) {
		return false
	}
	seen := make(map[GlobalCommitPosition]bool)
	stack := append([]GlobalCommitPosition(nil), x.ParentPositions(b)...)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p == a {
			return true
		}
		if seen[p] || x.Generation(p) <= genA {
			continue
		}
		seen[p] = true
		stack = append(stack, x.ParentPositions(p)...)
	}
	return false
}

// Heads returns the subset of candidates not reachable from any other
// candidate. Reachability comes from the dense ancestors bit set: the
// candidates' parents seed it, the propagation runs down to the oldest
// candidate, and whatever got a bit is not a head.
func (x *CompositeIndex) Heads(candidates []plumbing.CommitID) []plumbing.CommitID {
	positions := make([]GlobalCommitPosition, 0, len(candidates))
	byPos := make(map[GlobalCommitPosition]plumbing.CommitID, len(candidates))
	for _, id := range candidates {
		pos, ok := x.PositionByCommitID(id)
		if !ok {
			continue
		}
		if _, dup := byPos[pos]; dup {
			continue
		}
		byPos[pos] = id
		positions = append(positions, pos)
	}
	if len(positions) == 0 {
		return nil
	}
	minPos := positions[0]
	reached := NewAncestorsBitSet(x)
	for _, p := range positions {
		if p < minPos {
			minPos = p
		}
		for _, parent := range x.ParentPositions(p) {
			reached.AddHead(parent)
		}
	}
	reached.VisitUntil(minPos)
	var heads []plumbing.CommitID
	// Report in descending position order, the index's stable order.
	sort.Slice(positions, func(i, j int) bool { return positions[i] > positions[j] })
	for _, p := range positions {
		if !reached.Contains(p) {
			heads = append(heads, byPos[p])
		}
	}
	return heads
}

// CommonAncestors returns the heads of the set of commits reachable from
// both input sets.
func (x *CompositeIndex) CommonAncestors(set1, set2 []plumbing.CommitID) []plumbing.CommitID {
	reach := func(ids []plumbing.CommitID) *AncestorsBitSet {
		s := NewAncestorsBitSet(x)
		for _, id := range ids {
			if pos, ok := x.PositionByCommitID(id); ok {
				s.AddHead(pos)
			}
		}
		s.VisitUntil(0)
		return s
	}
	r1 := reach(set1)
	r2 := reach(set2)
	var both []plumbing.CommitID
	for pos := GlobalCommitPosition(0); uint32(pos) < x.NumCommits(); pos++ {
		if r1.Contains(pos) && r2.Contains(pos) {
			both = append(both, x.CommitIDByPos(pos))
		}
	}
	return x.Heads(both)
}

// ResolveCommitIDPrefix resolves a prefix across every segment:
// NoMatch+NoMatch stays NoMatch, two different singles are ambiguous.
func (x *CompositeIndex) ResolveCommitIDPrefix(p plumbing.HexPrefix) (PrefixResolution, plumbing.CommitID) {
	var found *plumbing.CommitID
	for _, s := range x.segs {
		for _, id := range s.commitIDsMatching(p, 2) {
			id := id
			if found != nil && *found != id {
				return PrefixAmbiguousMatch, plumbing.ZeroHash
			}
			found = &id
		}
	}
	if found == nil {
		return PrefixNoMatch, plumbing.ZeroHash
	}
	return PrefixSingleMatch, *found
}

// ResolveChangeIDPrefix resolves a change-id prefix to the commits
// currently carrying that change.
func (x *CompositeIndex) ResolveChangeIDPrefix(p plumbing.HexPrefix) (PrefixResolution, []GlobalCommitPosition) {
	var found *plumbing.ChangeID
	for _, s := range x.segs {
		matches := s.changeIDsMatching(p, 2)
		if len(matches) > 1 {
			return PrefixAmbiguousMatch, nil
		}
		for _, id := range matches {
			id := id
			if found != nil && *found != id {
				return PrefixAmbiguousMatch, nil
			}
			if found == nil {
				found = &id
			}
		}
	}
	if found == nil {
		return PrefixNoMatch, nil
	}
	return PrefixSingleMatch, x.PositionsByChangeID(*found)
}

func commonNibblePrefixLen(a, b []byte) int {
	n := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i]>>4 != b[i]>>4 {
			return n
		}
		n++
		if a[i]&0x0f != b[i]&0x0f {
			return n
		}
		n++
	}
	return n
}

// ShortestUniqueCommitIDPrefixLen returns the number of hex digits that
// distinguish id from every other indexed commit id.
func (x *CompositeIndex) ShortestUniqueCommitIDPrefixLen(id plumbing.CommitID) int {
	best := 0
	for _, s := range x.segs {
		prev, next := s.commitIDNeighbors(id)
		if prev != nil {
			if n := commonNibblePrefixLen(id[:], prev[:]); n > best {
				best = n
			}
		}
		if next != nil {
			if n := commonNibblePrefixLen(id[:], next[:]); n > best {
				best = n
			}
		}
	}
	return min(best+1, plumbing.HASH_HEX_SIZE)
}

func (x *CompositeIndex) ShortestUniqueChangeIDPrefixLen(id plumbing.ChangeID) int {
	best := 0
	for _, s := range x.segs {
		prev, next := s.changeIDNeighbors(id)
		if prev != nil {
			if n := commonNibblePrefixLen(id[:], prev[:]); n > best {
				best = n
			}
		}
		if next != nil {
			if n := commonNibblePrefixLen(id[:], next[:]); n > best {
				best = n
			}
		}
	}
	return min(best+1, plumbing.CHANGE_HEX_SIZE)
}
