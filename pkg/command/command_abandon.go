// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/pkg/strata"
)

type Abandon struct {
	Revisions []string `arg:"" name:"revisions" help:"Revisions to abandon"`
}

func (c *Abandon) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	commits, err := s.ResolveRevisions(ctx, c.Revisions)
	if err != nil {
		return err
	}
	tx := s.Repo.StartTransaction()
	m := tx.Mutable()
	for _, commit := range commits {
		if err := m.AbandonCommit(ctx, commit.ID); err != nil {
			return err
		}
	}
	description := fmt.Sprintf("abandon commit %s", commits[0].ID)
	if len(commits) > 1 {
		description = fmt.Sprintf("abandon %d commits", len(commits))
	}
	rebased, err := m.RebaseDescendants(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.Commit(ctx, description); err != nil {
		return err
	}
	for _, commit := range commits {
		fmt.Printf("Abandoned commit %s\n", s.Summary(commit))
	}
	if rebased > 0 {
		fmt.Printf("Rebased %d descendant commits onto parents of abandoned commits\n", rebased)
	}
	return nil
}
