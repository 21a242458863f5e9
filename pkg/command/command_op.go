// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/pkg/strata"
)

type Op struct {
	Log    OpLog    `cmd:"log" help:"Show the operation log"`
	Diff   OpDiff   `cmd:"diff" help:"Compare the changes of two operations"`
	Revert OpRevert `cmd:"revert" help:"Create a new operation that reverts an earlier one"`
}

func resolveOperation(ctx context.Context, s *strata.Session, symbol string) (*opstore.Operation, error) {
	if symbol == "" || symbol == "@" {
		return s.Repo.Operation, nil
	}
	prefix, ok := plumbing.ParseHexPrefix(symbol)
	if !ok {
		return nil, dief("'%s' is not an operation id prefix", symbol)
	}
	matches, err := s.Repo.Repo.OpStore.ResolveOperationIDPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, dief("no operation matches '%s'", symbol)
	case 1:
		return s.Repo.Repo.OpStore.ReadOperation(ctx, matches[0])
	}
	return nil, dief("operation id prefix '%s' is ambiguous", symbol)
}

type OpLog struct {
	Limit int `short:"n" name:"limit" help:"Show at most this many operations"`
}

func (c *OpLog) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	op := s.Repo.Operation
	shown := 0
	queue := []*opstore.Operation{op}
	seen := make(map[plumbing.OperationID]bool)
	for len(queue) > 0 {
		op := queue[0]
		queue = queue[1:]
		if seen[op.ID] {
			continue
		}
		seen[op.ID] = true
		if c.Limit > 0 && shown >= c.Limit {
			break
		}
		shown++
		desc := op.Metadata.Description
		if op.IsRoot() {
			desc = "initialize repo"
		}
		fmt.Printf("%s %s@%s %s\n", op.ID.Short(12), op.Metadata.Username, op.Metadata.Hostname, desc)
		for _, parent := range op.Parents {
			p, err := s.Repo.Repo.OpStore.ReadOperation(ctx, parent)
			if err != nil {
				return err
			}
			queue = append(queue, p)
		}
	}
	return nil
}

type OpDiff struct {
	From string `name:"from" help:"Operation to compare from (default: parent of --to)" placeholder:"<operation>"`
	To   string `name:"to" help:"Operation to compare to (default: @)" placeholder:"<operation>"`
}

func (c *OpDiff) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	to, err := resolveOperation(ctx, s, c.To)
	if err != nil {
		return err
	}
	var from *opstore.Operation
	if c.From != "" {
		if from, err = resolveOperation(ctx, s, c.From); err != nil {
			return err
		}
	} else {
		if to.IsRoot() {
			return dief("the root operation has no parent to compare against")
		}
		if from, err = s.Repo.Repo.OpStore.ReadOperation(ctx, to.Parents[0]); err != nil {
			return err
		}
	}
	diff, err := s.Repo.Repo.DiffOperations(ctx, from, to)
	if err != nil {
		return err
	}
	for _, id := range diff.CreatedCommits {
		fmt.Printf("+ commit %s\n", id.Short(12))
	}
	for _, id := range diff.AbandonedCommits {
		fmt.Printf("- commit %s\n", id.Short(12))
	}
	for _, ch := range diff.Bookmarks {
		fmt.Printf("bookmark %s: %s -> %s\n", ch.Name, targetString(ch.From), targetString(ch.To))
	}
	for _, ch := range diff.Tags {
		fmt.Printf("tag %s: %s -> %s\n", ch.Name, targetString(ch.From), targetString(ch.To))
	}
	for _, ch := range diff.WcChanges {
		fmt.Printf("working copy %s: %s -> %s\n", ch.Name, targetString(ch.From), targetString(ch.To))
	}
	if len(diff.CreatedCommits)+len(diff.AbandonedCommits)+len(diff.Bookmarks)+len(diff.Tags)+len(diff.WcChanges) == 0 {
		fmt.Println("No changes.")
	}
	return nil
}

func targetString(t opstore.RefTarget) string {
	if opstore.RefTargetIsAbsent(t) {
		return "(absent)"
	}
	if id, ok := t.AsResolved(); ok {
		return id.Short(12)
	}
	return "(conflicted)"
}

type OpRevert struct {
	Operation string `arg:"" optional:"" name:"operation" help:"Operation to revert (default: @)"`
}

func (c *OpRevert) Run(g *Globals) error {
	ctx := context.Background()
	s, err := strata.Open(ctx, &strata.OpenOptions{Worktree: g.CWD, Verbose: g.Verbose})
	if err != nil {
		return err
	}
	op, err := resolveOperation(ctx, s, c.Operation)
	if err != nil {
		return err
	}
	if op.IsRoot() {
		return dief("cannot revert the root operation")
	}
	view, err := s.Repo.Repo.ViewAtOperationRevert(ctx, op, s.Repo.Index)
	if err != nil {
		return err
	}
	tx := s.Repo.StartTransaction()
	if err := tx.Mutable().SetView(ctx, view); err != nil {
		return err
	}
	if _, err := tx.Commit(ctx, fmt.Sprintf("revert operation %s", op.ID)); err != nil {
		return err
	}
	fmt.Printf("Reverted operation %s\n", op.ID.Short(12))
	return nil
}
