// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package object defines the immutable repository objects: commits, trees
// and the values stored at tree paths. Objects are value types addressed
// by the BLAKE2b digest of their canonical serialization; they are created
// once and never mutated.
package object

import (
	"context"
	"errors"
	"io"

	"github.com/strata-scm/strata/modules/plumbing"
)

var (
	ErrUnsupportedObject = errors.New("unsupported object type")
	ErrMalformedObject   = errors.New("malformed object")
)

// Backend is the read surface the object helpers need. The full storage
// contract lives in modules/backend; this narrow interface keeps tree and
// commit traversal independent of it.
type Backend interface {
	Commit(ctx context.Context, oid plumbing.CommitID) (*Commit, error)
	Tree(ctx context.Context, oid plumbing.TreeID) (*Tree, error)
	Blob(ctx context.Context, oid plumbing.FileID) (io.ReadCloser, error)
}

// WriteBackend extends Backend with the writes tree merging performs when
// it resolves file and subtree conflicts.
type WriteBackend interface {
	Backend
	WriteTree(ctx context.Context, tree *Tree) (plumbing.TreeID, error)
	WriteBlob(ctx context.Context, r io.Reader) (plumbing.FileID, error)
}

// ReadBlob slurps a file object.
func ReadBlob(ctx context.Context, b Backend, oid plumbing.FileID) ([]byte, error) {
	rc, err := b.Blob(ctx, oid)
	if err != nil {
		return nil, err
	}
	defer rc.Close() // nolint
	return io.ReadAll(rc)
}
