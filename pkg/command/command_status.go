// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/modules/revset"
	"github.com/strata-scm/strata/pkg/strata"
)

type Status struct{}

func (c *Status) Run(g *Globals) error {
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
	paths, err := revset.ChangedPaths(ctx, s.Repo.Repo.Store, wcID)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("The working copy has no changes.")
	} else {
		fmt.Println("Working copy changes:")
		for _, p := range paths {
			fmt.Printf("M %s\n", p)
		}
	}
	if !wc.RootTree.IsResolved() {
		fmt.Println("There are unresolved conflicts at these paths:")
		mt := s.Repo.Repo.Store.RootTree(wc)
		conflicted, err := mt.Paths(ctx, s.Repo.Repo.Store)
		if err != nil {
			return err
		}
		for _, p := range conflicted {
			vm, err := mt.Value(ctx, s.Repo.Repo.Store, p)
			if err != nil {
				return err
			}
			if _, resolved := vm.ResolveTrivial(); !resolved {
				fmt.Printf("C %s\n", p)
			}
		}
	}
	fmt.Printf("Working copy : %s\n", s.Summary(wc))
	for _, parent := range wc.Parents {
		pc, err := s.Repo.Repo.Store.Commit(ctx, parent)
		if err != nil {
			return err
		}
		fmt.Printf("Parent commit: %s\n", s.Summary(pc))
	}
	return nil
}
