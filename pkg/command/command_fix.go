// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"

	"github.com/strata-scm/strata/modules/repo"
	"github.com/strata-scm/strata/pkg/strata"
)

type Fix struct {
	Source           []string `short:"s" name:"source" help:"Fix these revisions and their descendants (default: @)" placeholder:"<revision>"`
	IncludeUnchanged bool     `name:"include-unchanged-files" help:"Fix all matching files, not just changed ones"`
	Paths            []string `arg:"" optional:"" name:"paths" help:"Fix only these paths"`
}

func (c *Fix) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	if len(s.Config.Fix) == 0 {
		return &UserError{
			Msg:  "no fix tools configured",
			Hint: "add a [fix.<name>] table with a command to .strata/config.toml",
		}
	}
	source := c.Source
	if len(source) == 0 {
		source = []string{"@"}
	}
	roots, err := s.ResolveRevisions(ctx, source)
	if err != nil {
		return err
	}
	argMatcher := pathMatcher(c.Paths)

	// Tools run in sequence on each file; a failing tool is skipped and
	// the remaining tools still run.
	fixer := &repo.ParallelFileFixer{
		Fn: func(ctx context.Context, filePath string, content []byte) ([]byte, bool, error) {
			current := content
			changed := false
			for name, tool := range s.Config.Fix {
				if len(tool.Command) == 0 || !toolMatches(tool.Patterns, filePath) {
					continue
				}
				cmd := exec.CommandContext(ctx, tool.Command[0], tool.Command[1:]...)
				cmd.Stdin = bytes.NewReader(current)
				var out bytes.Buffer
				cmd.Stdout = &out
				if err := cmd.Run(); err != nil {
					g.DbgPrint("fix tool %s failed on %s: %v", name, filePath, err)
					continue
				}
				if !bytes.Equal(out.Bytes(), current) {
					current = out.Bytes()
					changed = true
				}
			}
			return current, changed, nil
		},
	}
	matcher := func(p string) bool {
		if argMatcher != nil && !argMatcher(p) {
			return false
		}
		for _, tool := range s.Config.Fix {
			if toolMatches(tool.Patterns, p) {
				return true
			}
		}
		return false
	}
	tx := s.Repo.StartTransaction()
	fixed, err := tx.Mutable().FixFiles(ctx, commitIDs(roots), matcher, c.IncludeUnchanged, fixer)
	if err != nil {
		return err
	}
	if _, err := tx.Commit(ctx, fmt.Sprintf("fix files in %d commits", fixed)); err != nil {
		return err
	}
	fmt.Printf("Fixed %d commits\n", fixed)
	return nil
}

func toolMatches(patterns []string, filePath string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, path.Base(filePath)); ok {
			return true
		}
		if ok, _ := path.Match(pattern, filePath); ok {
			return true
		}
	}
	return false
}
