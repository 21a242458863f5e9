// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package revset evaluates resolved revset expressions against the commit
// index. Evaluation produces commit streams in reverse-topological order
// (descending index position, so children before parents) and a graph
// walk with simplified edges for rendering.
package revset

import (
	"context"
	"fmt"
	"sort"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/plumbing"
)

// EvaluationError wraps failures to evaluate an expression (unknown ids,
// failing predicates).
type EvaluationError struct {
	Msg string
	Err error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("strata: revset: %s: %v", e.Msg, e.Err)
	}
	return "strata: revset: " + e.Msg
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Expression is a resolved revset: symbols and refs are already commit
// ids. Construction helpers below mirror the operator algebra.
type Expression interface {
	isExpression()
}

type (
	// CommitsExpr is an explicit set of commits.
	CommitsExpr struct{ IDs []plumbing.CommitID }
	// AllExpr is every commit reachable from the visible heads.
	AllExpr struct{}
	// AncestorsExpr is heads plus everything reachable from them.
	AncestorsExpr struct{ Heads Expression }
	// DescendantsExpr is roots plus everything that reaches them.
	DescendantsExpr struct{ Roots Expression }
	// RangeExpr is base..head: ancestors(head) minus ancestors(base).
	RangeExpr struct{ Base, Head Expression }
	// DagRangeExpr is base::head: descendants(base) ∩ ancestors(head).
	DagRangeExpr struct{ Base, Head Expression }
	// ParentsExpr is the direct parents of the set.
	ParentsExpr struct{ Of Expression }
	// ChildrenExpr is the direct children of the set.
	ChildrenExpr struct{ Of Expression }
	// RootsExpr is the members with no ancestor inside the set.
	RootsExpr struct{ Of Expression }
	// HeadsExpr is the members with no descendant inside the set.
	HeadsExpr struct{ Of Expression }
	// UnionExpr, IntersectionExpr, DifferenceExpr are the set operators.
	UnionExpr        struct{ A, B Expression }
	IntersectionExpr struct{ A, B Expression }
	DifferenceExpr   struct{ A, B Expression }
	// FilterExpr keeps members matching the predicate.
	FilterExpr struct {
		Of        Expression
		Predicate Predicate
	}
)

func (CommitsExpr) isExpression()      {}
func (AllExpr) isExpression()          {}
func (AncestorsExpr) isExpression()    {}
func (DescendantsExpr) isExpression()  {}
func (RangeExpr) isExpression()        {}
func (DagRangeExpr) isExpression()     {}
func (ParentsExpr) isExpression()      {}
func (ChildrenExpr) isExpression()     {}
func (RootsExpr) isExpression()        {}
func (HeadsExpr) isExpression()        {}
func (UnionExpr) isExpression()        {}
func (IntersectionExpr) isExpression() {}
func (DifferenceExpr) isExpression()   {}
func (FilterExpr) isExpression()       {}

// Predicate decides membership for one indexed commit. It may read the
// backend and therefore may block.
type Predicate func(ctx context.Context, entry index.CommitEntry) (bool, error)

// Revset is an evaluated expression: a set of indexed commits in
// descending position order.
type Revset struct {
	idx       *index.CompositeIndex
	positions []index.GlobalCommitPosition
	members   map[index.GlobalCommitPosition]bool
}

// Evaluate runs the expression. visibleHeads anchors AllExpr;
// ChildrenExpr and DescendantsExpr scan every indexed position.
func Evaluate(ctx context.Context, idx *index.CompositeIndex, expr Expression, visibleHeads []plumbing.CommitID) (*Revset, error) {
	e := &evaluator{ctx: ctx, idx: idx, visibleHeads: visibleHeads}
	members, err := e.eval(expr)
	if err != nil {
		return nil, err
	}
	positions := make([]index.GlobalCommitPosition, 0, len(members))
	for p := range members {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] > positions[j] })
	return &Revset{idx: idx, positions: positions, members: members}, nil
}

// Iter returns the commit ids in reverse-topological order.
func (r *Revset) Iter() []plumbing.CommitID {
	out := make([]plumbing.CommitID, len(r.positions))
	for i, p := range r.positions {
		out[i] = r.idx.CommitIDByPos(p)
	}
	return out
}

// Positions exposes the evaluated positions, descending.
func (r *Revset) Positions() []index.GlobalCommitPosition {
	return r.positions
}

func (r *Revset) Len() int { return len(r.positions) }

func (r *Revset) Contains(pos index.GlobalCommitPosition) bool { return r.members[pos] }

func (r *Revset) ContainsCommit(id plumbing.CommitID) bool {
	pos, ok := r.idx.PositionByCommitID(id)
	return ok && r.members[pos]
}

// CommitChangeIDs returns (commit id, change id) pairs in iteration
// order.
func (r *Revset) CommitChangeIDs() [][2]string {
	out := make([][2]string, len(r.positions))
	for i, p := range r.positions {
		e := r.idx.Entry(p)
		out[i] = [2]string{e.CommitID.String(), e.ChangeID.String()}
	}
	return out
}

type positionSet = map[index.GlobalCommitPosition]bool

type evaluator struct {
	ctx          context.Context
	idx          *index.CompositeIndex
	visibleHeads []plumbing.CommitID
}

func (e *evaluator) eval(expr Expression) (positionSet, error) {
	switch x := expr.(type) {
	case CommitsExpr:
		out := make(positionSet, len(x.IDs))
		for _, id := range x.IDs {
			pos, ok := e.idx.PositionByCommitID(id)
			if !ok {
				return nil, &EvaluationError{Msg: fmt.Sprintf("commit %s is not indexed", id.Short(12))}
			}
			out[pos] = true
		}
		return out, nil
	case AllExpr:
		return e.eval(AncestorsExpr{Heads: CommitsExpr{IDs: e.visibleHeads}})
	case AncestorsExpr:
		heads, err := e.eval(x.Heads)
		if err != nil {
			return nil, err
		}
		return e.ancestors(heads), nil
	case DescendantsExpr:
		roots, err := e.eval(x.Roots)
		if err != nil {
			return nil, err
		}
		return e.descendants(roots), nil
	case RangeExpr:
		head, err := e.eval(AncestorsExpr{Heads: x.Head})
		if err != nil {
			return nil, err
		}
		base, err := e.eval(AncestorsExpr{Heads: x.Base})
		if err != nil {
			return nil, err
		}
		return difference(head, base), nil
	case DagRangeExpr:
		down, err := e.eval(DescendantsExpr{Roots: x.Base})
		if err != nil {
			return nil, err
		}
		up, err := e.eval(AncestorsExpr{Heads: x.Head})
		if err != nil {
			return nil, err
		}
		return intersection(down, up), nil
	case ParentsExpr:
		of, err := e.eval(x.Of)
		if err != nil {
			return nil, err
		}
		out := make(positionSet)
		for p := range of {
			for _, parent := range e.idx.ParentPositions(p) {
				out[parent] = true
			}
		}
		return out, nil
	case ChildrenExpr:
		of, err := e.eval(x.Of)
		if err != nil {
			return nil, err
		}
		out := make(positionSet)
		e.scanVisible(func(pos index.GlobalCommitPosition) {
			for _, parent := range e.idx.ParentPositions(pos) {
				if of[parent] {
					out[pos] = true
				}
			}
		})
		return out, nil
	case RootsExpr:
		of, err := e.eval(x.Of)
		if err != nil {
			return nil, err
		}
		out := make(positionSet)
		for p := range of {
			isRoot := true
			for _, parent := range e.idx.ParentPositions(p) {
				if of[parent] {
					isRoot = false
					break
				}
			}
			if isRoot {
				out[p] = true
			}
		}
		return out, nil
	case HeadsExpr:
		of, err := e.eval(x.Of)
		if err != nil {
			return nil, err
		}
		ids := make([]plumbing.CommitID, 0, len(of))
		for p := range of {
			ids = append(ids, e.idx.CommitIDByPos(p))
		}
		out := make(positionSet)
		for _, id := range e.idx.Heads(ids) {
			pos, _ := e.idx.PositionByCommitID(id)
			out[pos] = true
		}
		return out, nil
	case UnionExpr:
		a, err := e.eval(x.A)
		if err != nil {
			return nil, err
		}
		b, err := e.eval(x.B)
		if err != nil {
			return nil, err
		}
		for p := range b {
			a[p] = true
		}
		return a, nil
	case IntersectionExpr:
		a, err := e.eval(x.A)
		if err != nil {
			return nil, err
		}
		b, err := e.eval(x.B)
		if err != nil {
			return nil, err
		}
		return intersection(a, b), nil
	case DifferenceExpr:
		a, err := e.eval(x.A)
		if err != nil {
			return nil, err
		}
		b, err := e.eval(x.B)
		if err != nil {
			return nil, err
		}
		return difference(a, b), nil
	case FilterExpr:
		of, err := e.eval(x.Of)
		if err != nil {
			return nil, err
		}
		out := make(positionSet)
		for p := range of {
			keep, err := x.Predicate(e.ctx, e.idx.Entry(p))
			if err != nil {
				return nil, &EvaluationError{Msg: "filter predicate", Err: err}
			}
			if keep {
				out[p] = true
			}
		}
		return out, nil
	}
	return nil, &EvaluationError{Msg: fmt.Sprintf("unhandled expression %T", expr)}
}

func (e *evaluator) ancestors(heads positionSet) positionSet {
	// The frontier is a max-heap on position, so the walk visits
	// newest-first and each position is expanded exactly once.
	frontier := binaryheap.NewWith(func(a, b any) int {
		return int(b.(index.GlobalCommitPosition)) - int(a.(index.GlobalCommitPosition))
	})
	out := make(positionSet, len(heads))
	for p := range heads {
		frontier.Push(p)
	}
	for {
		v, ok := frontier.Pop()
		if !ok {
			break
		}
		p := v.(index.GlobalCommitPosition)
		if out[p] {
			continue
		}
		out[p] = true
		for _, parent := range e.idx.ParentPositions(p) {
			if !out[parent] {
				frontier.Push(parent)
			}
		}
	}
	return out
}

func (e *evaluator) descendants(roots positionSet) positionSet {
	out := make(positionSet, len(roots))
	for p := range roots {
		out[p] = true
	}
	if len(roots) == 0 {
		return out
	}
	minPos := index.GlobalCommitPosition(0)
	first := true
	for p := range roots {
		if first || p < minPos {
			minPos = p
			first = false
		}
	}
	// Ascending positions see parents before children.
	for pos := minPos; uint32(pos) < e.idx.NumCommits(); pos++ {
		if out[pos] {
			continue
		}
		for _, parent := range e.idx.ParentPositions(pos) {
			if out[parent] {
				out[pos] = true
				break
			}
		}
	}
	return out
}

// scanVisible visits every indexed position once, ascending.
func (e *evaluator) scanVisible(visit func(index.GlobalCommitPosition)) {
	for pos := index.GlobalCommitPosition(0); uint32(pos) < e.idx.NumCommits(); pos++ {
		visit(pos)
	}
}

func intersection(a, b positionSet) positionSet {
	out := make(positionSet)
	for p := range a {
		if b[p] {
			out[p] = true
		}
	}
	return out
}

func difference(a, b positionSet) positionSet {
	out := make(positionSet)
	for p := range a {
		if !b[p] {
			out[p] = true
		}
	}
	return out
}
