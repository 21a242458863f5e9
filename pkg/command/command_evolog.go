// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/pkg/strata"
)

type Evolog struct {
	Revision string `short:"r" name:"revision" default:"@" help:"Revision whose rewrite history to show"`
	Limit    int    `short:"n" name:"limit" help:"Show at most this many entries"`
}

func (c *Evolog) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	commit, err := s.ResolveRevision(ctx, c.Revision)
	if err != nil {
		return err
	}
	entries, err := s.Repo.Repo.WalkPredecessors(ctx, commit.ID, s.Repo.Operation)
	if err != nil {
		return err
	}
	for i, entry := range entries {
		if c.Limit > 0 && i >= c.Limit {
			break
		}
		line := s.Summary(entry.Commit)
		if entry.Operation != nil {
			fmt.Printf("%s\n  at operation %s: %s\n", line, entry.Operation.ID.Short(12), entry.Operation.Metadata.Description)
		} else {
			fmt.Printf("%s\n  (recorded before operation tracking)\n", line)
		}
	}
	return nil
}
