// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package bisect drives a binary search over a set of candidate commits,
// interpreting good/bad/skip/abort outcomes from a user-supplied test.
package bisect

import (
	"context"
	"errors"
	"sort"

	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/plumbing"
)

type Outcome int

const (
	OutcomeGood Outcome = iota
	OutcomeBad
	OutcomeSkip
	OutcomeAbort
)

// ErrAborted is returned when the test asked to stop the search.
var ErrAborted = errors.New("strata: bisect aborted")

// Tester checks out and evaluates one candidate.
type Tester func(ctx context.Context, id plumbing.CommitID) (Outcome, error)

// Result reports the search outcome. Exact is false when only skipped
// candidates remained and Found is the best remaining guess.
type Result struct {
	Found plumbing.CommitID
	Exact bool
	// Steps is how many candidates were tested.
	Steps int
}

// Run searches candidates (any order) for the first bad commit; with
// findGood it searches for the first good one instead. Ancestry comes
// from the index: marking a commit bad discards everything that is not
// an ancestor of it, marking it good discards its own ancestors.
func Run(ctx context.Context, idx *index.CompositeIndex, candidates []plumbing.CommitID, test Tester, findGood bool) (*Result, error) {
	type cand struct {
		id  plumbing.CommitID
		pos index.GlobalCommitPosition
		gen uint32
	}
	remaining := make([]cand, 0, len(candidates))
	for _, id := range candidates {
		pos, ok := idx.PositionByCommitID(id)
		if !ok {
			continue
		}
		remaining = append(remaining, cand{id: id, pos: pos, gen: idx.Generation(pos)})
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].gen < remaining[j].gen })

	skipped := make(map[plumbing.CommitID]bool)
	steps := 0
	for {
		var testable []cand
		for _, c := range remaining {
			if !skipped[c.id] {
				testable = append(testable, c)
			}
		}
		if len(testable) == 0 {
			if len(remaining) == 0 {
				return nil, errors.New("strata: no candidates left")
			}
			// Only skipped commits remain: report the newest as the best
			// guess.
			return &Result{Found: remaining[len(remaining)-1].id, Exact: false, Steps: steps}, nil
		}
		if len(testable) == 1 {
			// Exact only when no skipped candidate could be the real
			// culprit.
			return &Result{Found: testable[0].id, Exact: len(remaining) == 1, Steps: steps}, nil
		}
		median := testable[(len(testable)-1)/2]
		outcome, err := test(ctx, median.id)
		if err != nil {
			return nil, err
		}
		steps++
		hit := outcome == OutcomeBad
		if findGood {
			hit = outcome == OutcomeGood
		}
		miss := outcome == OutcomeGood
		if findGood {
			miss = outcome == OutcomeBad
		}
		switch {
		case outcome == OutcomeAbort:
			return nil, ErrAborted
		case outcome == OutcomeSkip:
			skipped[median.id] = true
		case hit:
			// The culprit is this commit or one of its ancestors.
			var next []cand
			for _, c := range remaining {
				if idx.IsAncestor(c.id, median.id) {
					next = append(next, c)
				}
			}
			remaining = next
		case miss:
			// Everything at or below this commit is clean.
			var next []cand
			for _, c := range remaining {
				if !idx.IsAncestor(c.id, median.id) {
					next = append(next, c)
				}
			}
			remaining = next
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
