// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/pkg/strata"
)

type Squash struct {
	From        []string `short:"f" name:"from" help:"Revisions to squash from (default: @)" placeholder:"<revision>"`
	Into        string   `short:"t" name:"into" help:"Revision to squash into (default: parent of the source)" placeholder:"<revision>"`
	KeepEmptied bool     `name:"keep-emptied" help:"Keep emptied source revisions"`
	Paths       []string `arg:"" optional:"" name:"paths" help:"Move only these paths"`
}

func (c *Squash) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	from := c.From
	if len(from) == 0 {
		from = []string{"@"}
	}
	sources, err := s.ResolveRevisions(ctx, from)
	if err != nil {
		return err
	}
	into := c.Into
	if into == "" {
		if len(sources[0].Parents) != 1 {
			return dief("cannot infer destination: %s has %d parents", sources[0].ID.Short(12), len(sources[0].Parents))
		}
		into = sources[0].Parents[0].String()
	}
	dest, err := s.ResolveRevision(ctx, into)
	if err != nil {
		return err
	}
	tx := s.Repo.StartTransaction()
	newDest, err := tx.Mutable().SquashCommits(ctx, commitIDs(sources), dest.ID, c.KeepEmptied, pathMatcher(c.Paths))
	if err != nil {
		return err
	}
	repo, err := tx.Commit(ctx, fmt.Sprintf("squash %d commits into %s", len(sources), dest.ID.Short(12)))
	if err != nil {
		return err
	}
	s.Repo = repo
	fmt.Printf("Squashed into %s\n", s.Summary(s.Repo.Repo.Store.MustCommit(ctx, newDest)))
	return nil
}
