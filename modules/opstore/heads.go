// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package opstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/strata-scm/strata/modules/plumbing"
)

// OpHeadsStore tracks the current head operations: one empty file per
// head id. Promoting a new head is create-then-remove, so two concurrent
// writers both leave their head in place and the next loader merges them.
// This is the only serialization point in the engine.
type OpHeadsStore struct {
	dir string
}

func NewOpHeadsStore(dir string) (*OpHeadsStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &OpHeadsStore{dir: dir}, nil
}

// InitOpHeads seeds the store with the root operation.
func InitOpHeads(dir string, root plumbing.OperationID) (*OpHeadsStore, error) {
	s, err := NewOpHeadsStore(dir)
	if err != nil {
		return nil, err
	}
	heads, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		if err := s.add(root); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *OpHeadsStore) path(id plumbing.OperationID) string {
	return filepath.Join(s.dir, id.String())
}

func (s *OpHeadsStore) add(id plumbing.OperationID) error {
	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// Update promotes newHead and retires the olds it supersedes. The new
// head lands before any old is removed, so there is never a moment with
// no head on disk.
func (s *OpHeadsStore) Update(newHead plumbing.OperationID, olds ...plumbing.OperationID) error {
	if err := s.add(newHead); err != nil {
		return err
	}
	for _, old := range olds {
		if old == newHead {
			continue
		}
		if err := os.Remove(s.path(old)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Heads lists the current head operations in stable order.
func (s *OpHeadsStore) Heads() ([]plumbing.OperationID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var heads []plumbing.OperationID
	for _, e := range entries {
		id, err := plumbing.NewHashEx(e.Name())
		if err != nil {
			continue
		}
		heads = append(heads, id)
	}
	if len(heads) == 0 {
		return nil, fmt.Errorf("strata: no operation heads")
	}
	plumbing.HashesSort(heads)
	return heads, nil
}
