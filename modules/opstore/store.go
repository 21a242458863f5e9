// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package opstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/strata-scm/strata/modules/plumbing"
)

// OpStore reads and writes views and operations. Both are content
// addressed: writing identical content twice yields the same id.
type OpStore interface {
	ReadView(ctx context.Context, id plumbing.ViewID) (*View, error)
	WriteView(ctx context.Context, view *View) (plumbing.ViewID, error)
	ReadOperation(ctx context.Context, id plumbing.OperationID) (*Operation, error)
	WriteOperation(ctx context.Context, op *Operation) (plumbing.OperationID, error)

	// ResolveOperationIDPrefix lists the operation ids matching a prefix.
	ResolveOperationIDPrefix(ctx context.Context, prefix plumbing.HexPrefix) ([]plumbing.OperationID, error)

	RootOperationID() plumbing.OperationID

	// GC removes operations and views unreachable from keepHeads, keeping
	// anything newer than keepNewer.
	GC(ctx context.Context, keepHeads []plumbing.OperationID, keepNewer time.Time) error
}

const (
	dirViews      = "views"
	dirOperations = "operations"
)

// SimpleOpStore stores each view and operation as one JSON file named by
// the BLAKE2b digest of its canonical bytes.
type SimpleOpStore struct {
	root       string
	rootCommit plumbing.CommitID
}

func NewSimpleOpStore(root string, rootCommit plumbing.CommitID) (*SimpleOpStore, error) {
	for _, d := range []string{dirViews, dirOperations} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, err
		}
	}
	return &SimpleOpStore{root: root, rootCommit: rootCommit}, nil
}

func (s *SimpleOpStore) RootOperationID() plumbing.OperationID { return plumbing.ZeroHash }

// RootViewID is the fixed id referencing the synthetic root view.
func (s *SimpleOpStore) RootViewID() plumbing.ViewID { return plumbing.ZeroHash }

func (s *SimpleOpStore) path(kind string, id plumbing.Hash) string {
	return filepath.Join(s.root, kind, id.String())
}

func (s *SimpleOpStore) write(kind string, payload []byte) (plumbing.Hash, error) {
	id := plumbing.HashOf(payload)
	p := s.path(kind, id)
	if _, err := os.Stat(p); err == nil {
		return id, nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer os.Remove(tmp.Name()) // nolint
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return plumbing.ZeroHash, err
	}
	if err := tmp.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return plumbing.ZeroHash, err
	}
	return id, nil
}

func (s *SimpleOpStore) read(kind string, id plumbing.Hash) ([]byte, error) {
	data, err := os.ReadFile(s.path(kind, id))
	if os.IsNotExist(err) {
		return nil, plumbing.NoSuchObject(id)
	}
	return data, err
}

func (s *SimpleOpStore) ReadView(ctx context.Context, id plumbing.ViewID) (*View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == s.RootViewID() {
		return RootView(s.rootCommit), nil
	}
	data, err := s.read(dirViews, id)
	if err != nil {
		return nil, err
	}
	v := NewView()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *SimpleOpStore) WriteView(ctx context.Context, view *View) (plumbing.ViewID, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	data, err := json.Marshal(view)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return s.write(dirViews, data)
}

func (s *SimpleOpStore) ReadOperation(ctx context.Context, id plumbing.OperationID) (*Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == s.RootOperationID() {
		return &Operation{ID: id, ViewID: s.RootViewID()}, nil
	}
	data, err := s.read(dirOperations, id)
	if err != nil {
		return nil, err
	}
	op := &Operation{}
	if err := json.Unmarshal(data, op); err != nil {
		return nil, err
	}
	op.ID = id
	return op, nil
}

func (s *SimpleOpStore) WriteOperation(ctx context.Context, op *Operation) (plumbing.OperationID, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	data, err := json.Marshal(op)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	id, err := s.write(dirOperations, data)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	op.ID = id
	return id, nil
}

func (s *SimpleOpStore) ResolveOperationIDPrefix(ctx context.Context, prefix plumbing.HexPrefix) ([]plumbing.OperationID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, dirOperations))
	if err != nil {
		return nil, err
	}
	var out []plumbing.OperationID
	for _, e := range entries {
		id, err := plumbing.NewHashEx(e.Name())
		if err != nil {
			continue
		}
		if prefix.Matches(id[:]) {
			out = append(out, id)
		}
	}
	rootID := s.RootOperationID()
	if prefix.Matches(rootID[:]) {
		out = append(out, rootID)
	}
	plumbing.HashesSort(out)
	return out, nil
}

func (s *SimpleOpStore) GC(ctx context.Context, keepHeads []plumbing.OperationID, keepNewer time.Time) error {
	keepOps := make(map[plumbing.OperationID]bool)
	keepViews := make(map[plumbing.ViewID]bool)
	queue := append([]plumbing.OperationID(nil), keepHeads...)
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if keepOps[id] || id == s.RootOperationID() {
			continue
		}
		op, err := s.ReadOperation(ctx, id)
		if err != nil {
			return err
		}
		keepOps[id] = true
		keepViews[op.ViewID] = true
		queue = append(queue, op.Parents...)
	}
	sweep := func(kind string, keep map[plumbing.Hash]bool) error {
		entries, err := os.ReadDir(filepath.Join(s.root, kind))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := plumbing.NewHashEx(e.Name())
			if err != nil || keep[id] {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(keepNewer) {
				continue
			}
			_ = os.Remove(filepath.Join(s.root, kind, e.Name()))
		}
		return nil
	}
	if err := sweep(dirOperations, keepOps); err != nil {
		return err
	}
	return sweep(dirViews, keepViews)
}

var _ OpStore = (*SimpleOpStore)(nil)
