// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package workingcopy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/fslock"
	"github.com/zeebo/blake3"

	"github.com/strata-scm/strata/modules/plumbing"
)

// FileState is what the snapshotter remembers about one checked-out
// path. ConflictMarkerLen pins the marker length a conflicted file was
// materialized with, so a later snapshot parses it back with the same
// length even if the user added lines that would now require a longer
// marker.
type FileState struct {
	MTimeMillis int64  `json:"mtime"`
	Size        int64  `json:"size"`
	Executable  bool   `json:"exec,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`

	ConflictMarkerLen int `json:"conflict_marker_len,omitempty"`
}

// TreeState is the persisted working-copy bookkeeping for one workspace.
type TreeState struct {
	WorkingCopyCommit plumbing.CommitID    `json:"wc_commit"`
	Files             map[string]FileState `json:"files"`

	path string
	lock *fslock.Lock
}

const treeStateFile = "tree_state"

// LoadTreeState reads (or initializes) the tree state under dir and
// takes the working-copy lock. The lock is held until Save or Unlock:
// snapshot and checkout never run concurrently.
func LoadTreeState(dir string, timeout time.Duration) (*TreeState, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock := fslock.New(filepath.Join(dir, "lock"))
	if err := lock.LockWithTimeout(timeout); err != nil {
		return nil, err
	}
	ts := &TreeState{
		Files: make(map[string]FileState),
		path:  filepath.Join(dir, treeStateFile),
		lock:  lock,
	}
	data, err := os.ReadFile(ts.path)
	if os.IsNotExist(err) {
		return ts, nil
	}
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if err := json.Unmarshal(data, ts); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if ts.Files == nil {
		ts.Files = make(map[string]FileState)
	}
	return ts, nil
}

// Save persists the state and releases the lock.
func (ts *TreeState) Save() error {
	data, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	tmp := ts.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, ts.path); err != nil {
		return err
	}
	return ts.Unlock()
}

// Unlock releases the working-copy lock without saving.
func (ts *TreeState) Unlock() error {
	if ts.lock == nil {
		return nil
	}
	err := ts.lock.Unlock()
	ts.lock = nil
	return err
}

// Fingerprint hashes file content for change detection between
// snapshots.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hexEncode(sum[:8])
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}
