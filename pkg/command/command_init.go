// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/pkg/strata"
)

type Init struct {
	Directory string `arg:"" optional:"" name:"directory" help:"Where to create the repository (default: .)"`
}

func (c *Init) Run(g *Globals) error {
	dir := c.Directory
	if dir == "" {
		dir = "."
	}
	s, err := strata.Init(context.Background(), dir, g.Verbose)
	if err != nil {
		return err
	}
	fmt.Printf("Initialized repo in %s\n", s.Worktree)
	return nil
}
