// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/repo"
	"github.com/strata-scm/strata/pkg/strata"
)

type Rebase struct {
	Source       []string `short:"s" name:"source" help:"Rebase the revision and its descendants" placeholder:"<revision>"`
	Revisions    []string `short:"r" name:"revisions" help:"Rebase only the given revisions" placeholder:"<revision>"`
	Destination  []string `short:"d" name:"destination" required:"" help:"Rebase onto these revisions" placeholder:"<revision>"`
	InsertBefore []string `short:"B" name:"insert-before" help:"Insert the rebased revisions before these children" placeholder:"<revision>"`
	SkipEmptied  bool     `name:"skip-emptied" help:"Abandon commits that become empty"`
}

func (c *Rebase) Run(g *Globals) error {
	if len(c.Source) == 0 && len(c.Revisions) == 0 {
		return dief("please specify --source or --revisions")
	}
	if len(c.Source) > 0 && len(c.Revisions) > 0 {
		return dief("--source is not compatible with --revisions")
	}
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	dests, err := s.ResolveRevisions(ctx, c.Destination)
	if err != nil {
		return err
	}
	children, err := s.ResolveRevisions(ctx, c.InsertBefore)
	if err != nil {
		return err
	}
	var target repo.MoveTarget
	var moved []string
	if len(c.Source) > 0 {
		commits, err := s.ResolveRevisions(ctx, c.Source)
		if err != nil {
			return err
		}
		for _, commit := range commits {
			target.Roots = append(target.Roots, commit.ID)
			moved = append(moved, s.Summary(commit))
		}
	} else {
		commits, err := s.ResolveRevisions(ctx, c.Revisions)
		if err != nil {
			return err
		}
		for _, commit := range commits {
			target.Commits = append(target.Commits, commit.ID)
			moved = append(moved, s.Summary(commit))
		}
	}
	opts := &repo.RebaseOptions{Empty: repo.EmptyKeep, SimplifyAncestorMerge: true}
	if c.SkipEmptied {
		opts.Empty = repo.EmptyAbandonNewly
	}
	tx := s.Repo.StartTransaction()
	err = tx.Mutable().MoveCommits(ctx, commitIDs(dests), commitIDs(children), target, opts)
	if err != nil {
		return err
	}
	if _, err := tx.Commit(ctx, fmt.Sprintf("rebase %d commits", len(moved))); err != nil {
		return err
	}
	for _, line := range moved {
		fmt.Printf("Rebased %s\n", line)
	}
	return nil
}

func commitIDs(commits []*object.Commit) []plumbing.CommitID {
	ids := make([]plumbing.CommitID, len(commits))
	for i, c := range commits {
		ids[i] = c.ID
	}
	return ids
}
