package bisect

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/plumbing"
)

// linearHistory builds a chain c0 … cN-1 and returns the ids in order.
func linearHistory(n int) (*index.CompositeIndex, []plumbing.CommitID) {
	m := index.NewMutableSegment(nil)
	idx := index.NewCompositeIndex(nil, m)
	ids := make([]plumbing.CommitID, n)
	for i := 0; i < n; i++ {
		ids[i] = plumbing.HashOf([]byte(fmt.Sprintf("c%d", i)))
		var parents []index.GlobalCommitPosition
		if i > 0 {
			pos, _ := idx.PositionByCommitID(ids[i-1])
			parents = []index.GlobalCommitPosition{pos}
		}
		m.Add(ids[i], plumbing.NewChangeID(), parents, idx.Generation)
	}
	return idx, ids
}

func TestFindFirstBad(t *testing.T) {
	idx, ids := linearHistory(16)
	firstBad := 9
	steps := 0
	res, err := Run(context.Background(), idx, ids, func(ctx context.Context, id plumbing.CommitID) (Outcome, error) {
		steps++
		for i, c := range ids {
			if c == id {
				if i >= firstBad {
					return OutcomeBad, nil
				}
				return OutcomeGood, nil
			}
		}
		t.Fatalf("unknown candidate")
		return OutcomeAbort, nil
	}, false)
	require.NoError(t, err)
	assert.True(t, res.Exact)
	assert.Equal(t, ids[firstBad], res.Found)
	assert.Less(t, steps, 16, "binary search beats linear scan")
}

func TestFindFirstGood(t *testing.T) {
	idx, ids := linearHistory(8)
	firstGood := 5
	res, err := Run(context.Background(), idx, ids, func(ctx context.Context, id plumbing.CommitID) (Outcome, error) {
		for i, c := range ids {
			if c == id {
				if i >= firstGood {
					return OutcomeGood, nil
				}
				return OutcomeBad, nil
			}
		}
		return OutcomeAbort, nil
	}, true)
	require.NoError(t, err)
	assert.True(t, res.Exact)
	assert.Equal(t, ids[firstGood], res.Found)
}

func TestSkippedCulpritReportsBestGuess(t *testing.T) {
	idx, ids := linearHistory(8)
	firstBad := 4
	res, err := Run(context.Background(), idx, ids, func(ctx context.Context, id plumbing.CommitID) (Outcome, error) {
		for i, c := range ids {
			if c == id {
				if i == firstBad {
					return OutcomeSkip, nil
				}
				if i > firstBad {
					return OutcomeBad, nil
				}
				return OutcomeGood, nil
			}
		}
		return OutcomeAbort, nil
	}, false)
	require.NoError(t, err)
	assert.False(t, res.Exact)
	// The best remaining candidate neighbors the skipped culprit.
	found := -1
	for i, c := range ids {
		if c == res.Found {
			found = i
		}
	}
	assert.InDelta(t, firstBad, found, 1)
}

func TestAbort(t *testing.T) {
	idx, ids := linearHistory(8)
	_, err := Run(context.Background(), idx, ids, func(ctx context.Context, id plumbing.CommitID) (Outcome, error) {
		return OutcomeAbort, nil
	}, false)
	assert.ErrorIs(t, err, ErrAborted)
}
