// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/strata-scm/strata/pkg/command"
)

type App struct {
	command.Globals
	Init        command.Init        `cmd:"init" help:"Create an empty strata repository"`
	Status      command.Status      `cmd:"status" aliases:"st" help:"Show working-copy status"`
	Commit      command.Commit      `cmd:"commit" aliases:"ci" help:"Finalize the working-copy commit and start a new one"`
	Abandon     command.Abandon     `cmd:"abandon" help:"Abandon revisions, rebasing descendants onto their parents"`
	Rebase      command.Rebase      `cmd:"rebase" help:"Move revisions to different parents"`
	Squash      command.Squash      `cmd:"squash" help:"Move changes from revisions into another revision"`
	Parallelize command.Parallelize `cmd:"parallelize" help:"Make revisions siblings instead of a chain"`
	Restore     command.Restore     `cmd:"restore" help:"Restore paths from another revision"`
	Fix         command.Fix         `cmd:"fix" help:"Run configured tools over files and rewrite commits"`
	Evolog      command.Evolog      `cmd:"evolog" help:"Show how a change evolved over time"`
	Op          command.Op          `cmd:"op" help:"Work with the operation log"`
	Bisect      command.Bisect      `cmd:"bisect" help:"Binary-search a range for the first bad commit"`
}

func run() int {
	var app App
	parser, err := kong.New(&app,
		kong.Name("strata"),
		kong.Description("A version control system with stable change identities, first-class operations and first-class conflicts"),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			if code != 0 {
				os.Exit(command.ExitUsage)
			}
			os.Exit(command.ExitSuccess)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "strata: %v\n", err)
		return command.ExitInternal
	}
	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "strata: %v\n", err)
		return command.ExitUsage
	}
	if err := ctx.Run(&app.Globals); err != nil {
		return command.Render(err)
	}
	return command.ExitSuccess
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "strata: internal error: %v\n", r)
			os.Exit(command.ExitInternal)
		}
	}()
	os.Exit(run())
}
