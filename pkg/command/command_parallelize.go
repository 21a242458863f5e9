// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/pkg/strata"
)

type Parallelize struct {
	Revisions []string `arg:"" name:"revisions" help:"Revisions to make siblings of each other"`
}

func (c *Parallelize) Run(g *Globals) error {
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
	if err := tx.Mutable().Parallelize(ctx, commitIDs(commits)); err != nil {
		return err
	}
	if _, err := tx.Commit(ctx, fmt.Sprintf("parallelize %d commits", len(commits))); err != nil {
		return err
	}
	fmt.Printf("Parallelized %d commits\n", len(commits))
	return nil
}
