// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the storage contract for repository objects and
// provides the reference ("simple") implementation plus the caching Store
// wrapper every reader goes through.
package backend

import (
	"context"
	"io"
	"time"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

// SigningFn signs the canonical bytes of a commit about to be written.
type SigningFn func(data []byte) ([]byte, error)

// CopyRecord reports that head's file at Target descends from Source as of
// the given commit.
type CopyRecord struct {
	Target   string
	Source   string
	SourceID plumbing.FileID
	CommitID plumbing.CommitID
}

// CopyRecordIter is a lazy stream of copy records. Next returns io.EOF
// when drained; the stream is single-consumer and not restartable.
type CopyRecordIter interface {
	Next(ctx context.Context) (*CopyRecord, error)
	Close()
}

// Backend is the only component that knows how objects serialize. All
// calls may block on I/O and honor ctx cancellation.
type Backend interface {
	object.Backend

	// Name identifies the backend implementation.
	Name() string

	// RootCommitID is the fixed id of the synthetic root commit. It is
	// the only commit with zero parents.
	RootCommitID() plumbing.CommitID
	RootChangeID() plumbing.ChangeID
	EmptyTreeID() plumbing.TreeID

	// Concurrency hints how many backend calls are worth running in
	// parallel.
	Concurrency() int

	ReadSymlink(ctx context.Context, oid plumbing.SymlinkID) (string, error)
	WriteSymlink(ctx context.Context, target string) (plumbing.SymlinkID, error)
	WriteBlob(ctx context.Context, r io.Reader) (plumbing.FileID, error)
	WriteTree(ctx context.Context, tree *object.Tree) (plumbing.TreeID, error)

	// WriteCommit persists the commit, optionally signing it. The
	// returned commit is the one actually stored and may differ from the
	// input (signature attachment). Zero-parent commits other than the
	// fixed root are rejected.
	WriteCommit(ctx context.Context, commit *object.Commit, sign SigningFn) (plumbing.CommitID, *object.Commit, error)

	// GetCopyRecords streams copy records between root and head,
	// restricted to paths when non-nil. Backends without copy tracking
	// return an Unsupported error.
	GetCopyRecords(ctx context.Context, paths []string, root, head plumbing.CommitID) (CopyRecordIter, error)

	// GC removes objects for which reachable reports false, keeping
	// anything newer than keepNewer.
	GC(ctx context.Context, reachable func(plumbing.Hash) bool, keepNewer time.Time) error
}
