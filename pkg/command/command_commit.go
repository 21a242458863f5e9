// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/repo"
	"github.com/strata-scm/strata/pkg/strata"
)

type Commit struct {
	Message []string `short:"m" name:"message" help:"Use the given message as the commit description" placeholder:"<text>"`
}

// Run finalizes the working-copy commit: it gets the given description
// and a fresh empty working-copy commit is checked out on top.
func (c *Commit) Run(g *Globals) error {
	if len(c.Message) == 0 {
		return &UserError{
			Msg:  "a description is required",
			Hint: "use -m to provide a commit message",
		}
	}
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	wcID, ok := s.WcCommitID()
	if !ok {
		return dief("no working-copy commit in this workspace")
	}
	wc, err := s.Repo.Repo.Store.Commit(ctx, wcID)
	if err != nil {
		return err
	}
	message := strings.Join(c.Message, "\n\n")
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}

	tx := s.Repo.StartTransaction()
	m := tx.Mutable()
	finalized, err := m.RewriteCommit(wc).SetDescription(message).Write(ctx)
	if err != nil {
		return err
	}
	newWc, err := m.NewCommit([]plumbing.CommitID{finalized.ID}, finalized.RootTree).Write(ctx)
	if err != nil {
		return err
	}
	m.SetWcCommit(repo.DefaultWorkspace, newWc.ID)
	repoAfter, err := tx.Commit(ctx, fmt.Sprintf("commit %s", finalized.ID))
	if err != nil {
		return err
	}
	s.Repo = repoAfter
	fmt.Printf("Committed %s\n", s.Summary(finalized))
	return nil
}
