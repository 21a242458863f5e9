// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

const (
	dirCommits    = "commits"
	dirOperations = "operations"
)

// Store persists index segments under index/commits/<hash> and records,
// per operation, which segment was current when that operation was the
// head (index/operations/<op-id>).
type Store struct {
	dir   string
	cache map[string]*ReadonlySegment
}

func NewStore(dir string) (*Store, error) {
	for _, d := range []string{dirCommits, dirOperations} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{dir: dir, cache: make(map[string]*ReadonlySegment)}, nil
}

// segmentParentName peeks at the parent reference embedded in a segment
// body without fully parsing it.
func segmentParentName(data []byte) (string, error) {
	if len(data) < 8 {
		return "", fmt.Errorf("strata: truncated index segment")
	}
	n := binary.LittleEndian.Uint32(data[4:8])
	if len(data) < int(8+n) {
		return "", fmt.Errorf("strata: truncated index segment")
	}
	return string(data[8 : 8+n]), nil
}

// LoadSegment loads a segment and, transitively, the chain it extends.
func (s *Store) LoadSegment(name string) (*ReadonlySegment, error) {
	if seg, ok := s.cache[name]; ok {
		return seg, nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, dirCommits, name))
	if err != nil {
		return nil, err
	}
	parentName, err := segmentParentName(data)
	if err != nil {
		return nil, err
	}
	var parent *ReadonlySegment
	if parentName != "" {
		if parent, err = s.LoadSegment(parentName); err != nil {
			return nil, err
		}
	}
	seg, err := ParseSegment(name, data, parent)
	if err != nil {
		return nil, err
	}
	s.cache[name] = seg
	return seg, nil
}

// SegmentAtOperation returns the segment recorded for the operation, or
// false when the operation has no index yet.
func (s *Store) SegmentAtOperation(opID plumbing.OperationID) (*ReadonlySegment, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, dirOperations, opID.String()))
	if err != nil {
		return nil, false
	}
	seg, err := s.LoadSegment(string(data))
	if err != nil {
		return nil, false
	}
	return seg, true
}

// Save freezes the mutable segment, writes it content-addressed and
// associates it with the operation.
func (s *Store) Save(m *MutableSegment, opID plumbing.OperationID) (*ReadonlySegment, error) {
	seg, data, err := m.Freeze()
	if err != nil {
		return nil, err
	}
	p := filepath.Join(s.dir, dirCommits, seg.name)
	if _, err := os.Stat(p); err != nil {
		tmp, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp.Name()) // nolint
		if _, err := tmp.Write(data); err != nil {
			_ = tmp.Close()
			return nil, err
		}
		if err := tmp.Close(); err != nil {
			return nil, err
		}
		if err := os.Rename(tmp.Name(), p); err != nil {
			return nil, err
		}
	}
	s.cache[seg.name] = seg
	if err := s.Associate(seg, opID); err != nil {
		return nil, err
	}
	return seg, nil
}

// Associate records that the segment was current at the operation.
func (s *Store) Associate(seg *ReadonlySegment, opID plumbing.OperationID) error {
	return os.WriteFile(filepath.Join(s.dir, dirOperations, opID.String()), []byte(seg.name), 0o644)
}

// AddReachable indexes every commit reachable from heads that the
// composite does not know yet, parents before children.
func AddReachable(ctx context.Context, x *CompositeIndex, m *MutableSegment, b object.Backend, heads []plumbing.CommitID) error {
	type frame struct {
		commit   *object.Commit
		expanded bool
	}
	var stack []frame
	push := func(id plumbing.CommitID) error {
		if x.Has(id) {
			return nil
		}
		c, err := b.Commit(ctx, id)
		if err != nil {
			return err
		}
		stack = append(stack, frame{commit: c})
		return nil
	}
	for _, h := range heads {
		if err := push(h); err != nil {
			return err
		}
		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			f := &stack[len(stack)-1]
			if !f.expanded {
				f.expanded = true
				for _, p := range f.commit.Parents {
					if err := push(p); err != nil {
						return err
					}
				}
				continue
			}
			c := f.commit
			stack = stack[:len(stack)-1]
			if x.Has(c.ID) {
				continue
			}
			parents := make([]GlobalCommitPosition, 0, len(c.Parents))
			for _, p := range c.Parents {
				pos, ok := x.PositionByCommitID(p)
				if !ok {
					return fmt.Errorf("strata: parent %s not indexed", p.Short(12))
				}
				parents = append(parents, pos)
			}
			m.Add(c.ID, c.ChangeID, parents, x.Generation)
		}
	}
	return nil
}
