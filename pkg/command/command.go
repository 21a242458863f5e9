// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package command implements the strata CLI surface. Every mutating
// command runs inside one transaction and leaves one operation in the
// op log; failures print a single-line error, optionally followed by a
// "Hint:" line, and exit non-zero.
package command

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/strata-scm/strata/modules/trace"
)

// Exit codes of the strata binary.
const (
	ExitSuccess  = 0
	ExitUser     = 1
	ExitUsage    = 2
	ExitInternal = 255
)

type Globals struct {
	Verbose bool        `short:"V" name:"verbose" help:"Make the operation more talkative"`
	Version VersionFlag `short:"v" name:"version" help:"Show version number and quit"`
	CWD     string      `name:"cwd" help:"Set the path to the repository worktree"`
}

func (g *Globals) DbgPrint(format string, args ...any) {
	if !g.Verbose {
		return
	}
	trace.Debugf(format, args...)
}

type VersionFlag bool

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println("strata version", Version)
	app.Exit(ExitSuccess)
	return nil
}

// Version is stamped by the build.
var Version = "0.1.0-dev"

var (
	ErrArgRequired = errors.New("arg required")
)

// UserError carries an optional hint shown under the error line.
type UserError struct {
	Msg  string
	Hint string
}

func (e *UserError) Error() string { return e.Msg }

func dief(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// Render prints an error the way every command reports failure.
func Render(err error) int {
	var userErr *UserError
	if errors.As(err, &userErr) {
		fmt.Fprintf(os.Stderr, "strata: %s\n", userErr.Msg)
		if userErr.Hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", userErr.Hint)
		}
		return ExitUser
	}
	fmt.Fprintf(os.Stderr, "strata: %s\n", err)
	return ExitUser
}

// pathMatcher builds a prefix matcher from CLI path arguments; no paths
// means "everything".
func pathMatcher(paths []string) func(string) bool {
	if len(paths) == 0 {
		return nil
	}
	return func(p string) bool {
		for _, arg := range paths {
			if p == arg || strings.HasPrefix(p, arg+"/") {
				return true
			}
		}
		return false
	}
}
