// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package strata is the application layer between the CLI and the
// engine: it locates and opens repositories, resolves user-typed
// revisions and renders one-line summaries.
package strata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/strata-scm/strata/modules/config"
	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/repo"
	"github.com/strata-scm/strata/modules/revset"
	"github.com/strata-scm/strata/modules/trace"
)

const strataDirName = ".strata"

var (
	ErrNotARepository = errors.New("strata: not inside a strata repository")
)

type OpenOptions struct {
	Worktree string
	Verbose  bool
}

// Session is an opened repository plus its effective configuration.
type Session struct {
	Repo      *repo.ReadonlyRepo
	Config    *config.Config
	StrataDir string
	Worktree  string
}

func findStrataDir(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, strataDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotARepository
		}
		dir = parent
	}
}

func settingsFromConfig(cfg *config.Config) *repo.Settings {
	hostname, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return &repo.Settings{
		Name:     cfg.User.Name,
		Email:    cfg.User.Email,
		Hostname: hostname,
		Username: username,
		Now:      time.Now,
	}
}

// Open loads the repository containing opts.Worktree (default: cwd).
func Open(ctx context.Context, opts *OpenOptions) (*Session, error) {
	trace.SetVerbose(opts != nil && opts.Verbose)
	start := "."
	if opts != nil && opts.Worktree != "" {
		start = opts.Worktree
	}
	strataDir, err := findStrataDir(start)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(strataDir)
	if err != nil {
		return nil, err
	}
	r, err := repo.Load(ctx, strataDir, settingsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &Session{
		Repo:      r,
		Config:    cfg,
		StrataDir: strataDir,
		Worktree:  filepath.Dir(strataDir),
	}, nil
}

// Init creates a repository at dir with an empty working-copy commit
// checked out in the default workspace.
func Init(ctx context.Context, dir string, verbose bool) (*Session, error) {
	trace.SetVerbose(verbose)
	strataDir := filepath.Join(dir, strataDirName)
	if _, err := os.Stat(strataDir); err == nil {
		return nil, fmt.Errorf("strata: repository already exists at %s", strataDir)
	}
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	r, err := repo.Init(ctx, strataDir, settingsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	tx := r.StartTransaction()
	m := tx.Mutable()
	wc, err := m.NewCommit([]plumbing.CommitID{m.Store().RootCommitID()}, merge.Resolved(m.Store().EmptyTreeID())).Write(ctx)
	if err != nil {
		return nil, err
	}
	m.SetWcCommit(repo.DefaultWorkspace, wc.ID)
	r, err = tx.Commit(ctx, "initialize repository")
	if err != nil {
		return nil, err
	}
	return &Session{
		Repo:      r,
		Config:    cfg,
		StrataDir: strataDir,
		Worktree:  dir,
	}, nil
}

// Reload re-opens the repository at the current head operation.
func (s *Session) Reload(ctx context.Context) error {
	r, err := repo.Load(ctx, s.StrataDir, s.Repo.Repo.Settings)
	if err != nil {
		return err
	}
	s.Repo = r
	return nil
}

// WcCommitID returns the default workspace's working-copy commit.
func (s *Session) WcCommitID() (plumbing.CommitID, bool) {
	id, ok := s.Repo.View.WcCommitIDs[repo.DefaultWorkspace]
	return id, ok
}

// ResolveRevision resolves "@", bookmarks, tags and id prefixes to one
// visible commit.
func (s *Session) ResolveRevision(ctx context.Context, symbol string) (*object.Commit, error) {
	if symbol == "@" {
		id, ok := s.WcCommitID()
		if !ok {
			return nil, errors.New("strata: no working-copy commit in this workspace")
		}
		return s.Repo.Repo.Store.Commit(ctx, id)
	}
	if symbol == "root()" {
		return s.Repo.Repo.Store.Commit(ctx, s.Repo.Repo.Store.RootCommitID())
	}
	idCtx := repo.NewIDPrefixContext(s.Repo, nil)
	ids, err := idCtx.ResolveSymbol(symbol)
	if err != nil {
		return nil, err
	}
	// A change id may name several commits; only one may be visible.
	var visible []plumbing.CommitID
	heads := s.Repo.View.Heads()
	for _, id := range ids {
		for _, h := range heads {
			if s.Repo.Index.IsAncestor(id, h) {
				visible = append(visible, id)
				break
			}
		}
	}
	switch len(visible) {
	case 0:
		return nil, &revset.EvaluationError{Msg: "revision " + symbol + " is not visible"}
	case 1:
		return s.Repo.Repo.Store.Commit(ctx, visible[0])
	}
	return nil, &revset.EvaluationError{Msg: "change " + symbol + " is divergent"}
}

// ResolveRevisions maps each symbol through ResolveRevision.
func (s *Session) ResolveRevisions(ctx context.Context, symbols []string) ([]*object.Commit, error) {
	out := make([]*object.Commit, 0, len(symbols))
	for _, sym := range symbols {
		c, err := s.ResolveRevision(ctx, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Summary renders the one-line commit summary the commands print.
func (s *Session) Summary(c *object.Commit) string {
	idCtx := repo.NewIDPrefixContext(s.Repo, nil)
	changeLen := idCtx.ShortestChangePrefixLen(c.ChangeID)
	commitLen := idCtx.ShortestCommitPrefixLen(c.ID)
	subject := c.Subject()
	if subject == "" {
		subject = "(no description set)"
	}
	return fmt.Sprintf("%s %s %s", c.ChangeID.String()[:changeLen], c.ID.Short(commitLen), subject)
}
