// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/strata-scm/strata/modules/bisect"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/revset"
	"github.com/strata-scm/strata/pkg/strata"
)

type Bisect struct {
	Good     string   `name:"good" required:"" help:"Known good revision" placeholder:"<revision>"`
	Bad      string   `name:"bad" required:"" help:"Known bad revision" placeholder:"<revision>"`
	FindGood bool     `name:"find-good" help:"Search for the first good revision instead"`
	Command  []string `arg:"" name:"command" help:"Command deciding an outcome: exit 0 good, 125 skip, 255 abort, other bad"`
}

func (c *Bisect) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	good, err := s.ResolveRevision(ctx, c.Good)
	if err != nil {
		return err
	}
	bad, err := s.ResolveRevision(ctx, c.Bad)
	if err != nil {
		return err
	}
	// The operation id lets the user discard bisection checkouts with op
	// revert afterwards.
	fmt.Printf("Current operation: %s\n", s.Repo.Operation.ID.Short(12))

	candidates, err := revset.Evaluate(ctx, s.Repo.Index, revset.RangeExpr{
		Base: revset.CommitsExpr{IDs: []plumbing.CommitID{good.ID}},
		Head: revset.CommitsExpr{IDs: []plumbing.CommitID{bad.ID}},
	}, s.Repo.View.Heads())
	if err != nil {
		return err
	}
	result, err := bisect.Run(ctx, s.Repo.Index, candidates.Iter(), func(ctx context.Context, id plumbing.CommitID) (bisect.Outcome, error) {
		fmt.Printf("Testing %s\n", id.Short(12))
		cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
		cmd.Env = append(cmd.Environ(), "STRATA_BISECT_COMMIT="+id.String())
		err := cmd.Run()
		if err == nil {
			return bisect.OutcomeGood, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			switch exitErr.ExitCode() {
			case 125:
				return bisect.OutcomeSkip, nil
			case 255:
				return bisect.OutcomeAbort, nil
			}
			return bisect.OutcomeBad, nil
		}
		return bisect.OutcomeAbort, err
	}, c.FindGood)
	if err != nil {
		return err
	}
	kind := "bad"
	if c.FindGood {
		kind = "good"
	}
	found := s.Repo.Repo.Store.MustCommit(ctx, result.Found)
	if result.Exact {
		fmt.Printf("First %s commit: %s (%d steps)\n", kind, s.Summary(found), result.Steps)
	} else {
		fmt.Printf("Best candidate (skipped commits remain): %s (%d steps)\n", s.Summary(found), result.Steps)
	}
	return nil
}
