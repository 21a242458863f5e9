// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/pkg/strata"
)

type Restore struct {
	From  string   `name:"from" help:"Revision to restore from (default: parent of --into)" placeholder:"<revision>"`
	Into  string   `name:"into" help:"Revision to restore into (default: @)" placeholder:"<revision>"`
	Paths []string `arg:"" optional:"" name:"paths" help:"Restore only these paths"`
}

func (c *Restore) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	into := c.Into
	if into == "" {
		into = "@"
	}
	dest, err := s.ResolveRevision(ctx, into)
	if err != nil {
		return err
	}
	from := c.From
	if from == "" {
		if len(dest.Parents) != 1 {
			return dief("cannot infer source: %s has %d parents", dest.ID.Short(12), len(dest.Parents))
		}
		from = dest.Parents[0].String()
	}
	source, err := s.ResolveRevision(ctx, from)
	if err != nil {
		return err
	}
	tx := s.Repo.StartTransaction()
	newID, err := tx.Mutable().RestorePaths(ctx, source.ID, dest.ID, pathMatcher(c.Paths))
	if err != nil {
		return err
	}
	if newID == dest.ID {
		fmt.Println("Nothing changed.")
		return nil
	}
	repo, err := tx.Commit(ctx, fmt.Sprintf("restore into commit %s", dest.ID))
	if err != nil {
		return err
	}
	s.Repo = repo
	fmt.Printf("Created %s\n", s.Summary(s.Repo.Repo.Store.MustCommit(ctx, newID)))
	return nil
}
