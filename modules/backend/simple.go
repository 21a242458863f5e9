// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
)

const (
	SimpleBackendName = "simple"

	kindCommits  = "commits"
	kindTrees    = "trees"
	kindFiles    = "files"
	kindSymlinks = "symlinks"
)

var (
	OBJECT_MAGIC = [4]byte{'S', 'B', 0x00, 0x01}
)

type CompressMethod uint16

const (
	STORE CompressMethod = 0
	ZSTD  CompressMethod = 1
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// SimpleBackend stores each object as one content-addressed file under
// store/{commits,trees,files,symlinks}/xx/<hex>, compressed inside a
// magic-tagged envelope. Ids are BLAKE2b-512 over the canonical payload,
// never over the envelope.
type SimpleBackend struct {
	root     string
	incoming string
}

func NewSimpleBackend(root string) (*SimpleBackend, error) {
	b := &SimpleBackend{root: root, incoming: filepath.Join(root, "incoming")}
	for _, d := range []string{kindCommits, kindTrees, kindFiles, kindSymlinks} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(b.incoming, 0o755); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SimpleBackend) Name() string { return SimpleBackendName }

func (b *SimpleBackend) RootCommitID() plumbing.CommitID { return plumbing.ZeroHash }

func (b *SimpleBackend) RootChangeID() plumbing.ChangeID { return plumbing.ZeroChangeID }

func (b *SimpleBackend) EmptyTreeID() plumbing.TreeID { return object.EmptyTreeID() }

func (b *SimpleBackend) Concurrency() int { return 8 }

func (b *SimpleBackend) path(kind string, oid plumbing.Hash) string {
	encoded := oid.String()
	return filepath.Join(b.root, kind, encoded[:2], encoded)
}

// writeObject stores payload under its content hash and returns the hash.
// The write lands in incoming first and is renamed into place, so a
// half-written object is never visible under its final name.
func (b *SimpleBackend) writeObject(kind string, payload []byte) (plumbing.Hash, error) {
	oid := plumbing.HashOf(payload)
	p := b.path(kind, oid)
	if _, err := os.Stat(p); err == nil {
		return oid, nil
	}
	var buf bytes.Buffer
	buf.Write(OBJECT_MAGIC[:])
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(ZSTD))
	buf.Write(hdr[:])
	buf.Write(zstdEncoder.EncodeAll(payload, nil))
	tmp, err := os.CreateTemp(b.incoming, "obj-*")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer os.Remove(tmp.Name()) // nolint
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return plumbing.ZeroHash, err
	}
	if err := tmp.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return plumbing.ZeroHash, err
	}
	return oid, nil
}

func (b *SimpleBackend) readObject(kind string, oid plumbing.Hash) ([]byte, error) {
	data, err := os.ReadFile(b.path(kind, oid))
	if os.IsNotExist(err) {
		return nil, plumbing.NoSuchObject(oid)
	}
	if err != nil {
		return nil, err
	}
	if len(data) < 6 || !bytes.Equal(data[:4], OBJECT_MAGIC[:]) {
		return nil, fmt.Errorf("strata: object %s: %w", oid.Short(12), object.ErrMalformedObject)
	}
	switch CompressMethod(binary.LittleEndian.Uint16(data[4:6])) {
	case STORE:
		return data[6:], nil
	case ZSTD:
		return zstdDecoder.DecodeAll(data[6:], nil)
	}
	return nil, fmt.Errorf("strata: object %s: unknown compression", oid.Short(12))
}

func (b *SimpleBackend) Commit(ctx context.Context, oid plumbing.CommitID) (*object.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if oid == b.RootCommitID() {
		return object.NewRootCommit(), nil
	}
	data, err := b.readObject(kindCommits, oid)
	if err != nil {
		return nil, err
	}
	c := &object.Commit{}
	if err := c.Decode(data); err != nil {
		return nil, err
	}
	c.ID = oid
	return c, nil
}

func (b *SimpleBackend) Tree(ctx context.Context, oid plumbing.TreeID) (*object.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if oid.IsZero() || oid == b.EmptyTreeID() {
		return &object.Tree{ID: oid}, nil
	}
	data, err := b.readObject(kindTrees, oid)
	if err != nil {
		return nil, err
	}
	t := &object.Tree{}
	if err := t.Decode(data); err != nil {
		return nil, err
	}
	t.ID = oid
	return t, nil
}

func (b *SimpleBackend) Blob(ctx context.Context, oid plumbing.FileID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := b.readObject(kindFiles, oid)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *SimpleBackend) ReadSymlink(ctx context.Context, oid plumbing.SymlinkID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := b.readObject(kindSymlinks, oid)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (b *SimpleBackend) WriteSymlink(ctx context.Context, target string) (plumbing.SymlinkID, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	return b.writeObject(kindSymlinks, []byte(target))
}

func (b *SimpleBackend) WriteBlob(ctx context.Context, r io.Reader) (plumbing.FileID, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	// Equal byte streams must yield equal ids; the hash is computed once
	// here regardless of how the caller streams.
	payload, err := io.ReadAll(r)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return b.writeObject(kindFiles, payload)
}

func (b *SimpleBackend) WriteTree(ctx context.Context, tree *object.Tree) (plumbing.TreeID, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	data, err := tree.CanonicalBytes()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return b.writeObject(kindTrees, data)
}

func (b *SimpleBackend) WriteCommit(ctx context.Context, commit *object.Commit, sign SigningFn) (plumbing.CommitID, *object.Commit, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, nil, err
	}
	if len(commit.Parents) == 0 {
		return plumbing.ZeroHash, nil, fmt.Errorf("strata: only the root commit has zero parents")
	}
	stored := *commit
	if sign != nil {
		unsigned := stored
		unsigned.SecureSig = nil
		data, err := unsigned.CanonicalBytes()
		if err != nil {
			return plumbing.ZeroHash, nil, err
		}
		sig, err := sign(data)
		if err != nil {
			return plumbing.ZeroHash, nil, err
		}
		stored.SecureSig = sig
	}
	data, err := stored.CanonicalBytes()
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	oid, err := b.writeObject(kindCommits, data)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	stored.ID = oid
	return oid, &stored, nil
}

func (b *SimpleBackend) GetCopyRecords(ctx context.Context, paths []string, root, head plumbing.CommitID) (CopyRecordIter, error) {
	return nil, &plumbing.UnsupportedError{Op: "copy records"}
}

func (b *SimpleBackend) GC(ctx context.Context, reachable func(plumbing.Hash) bool, keepNewer time.Time) error {
	for _, kind := range []string{kindCommits, kindTrees, kindFiles, kindSymlinks} {
		dir := filepath.Join(b.root, kind)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, fan := range entries {
			if !fan.IsDir() || !plumbing.IsLooseDir(fan.Name()) {
				continue
			}
			files, err := os.ReadDir(filepath.Join(dir, fan.Name()))
			if err != nil {
				return err
			}
			for _, f := range files {
				if err := ctx.Err(); err != nil {
					return err
				}
				oid, err := plumbing.NewHashEx(f.Name())
				if err != nil {
					continue
				}
				if reachable != nil && reachable(oid) {
					continue
				}
				info, err := f.Info()
				if err != nil || info.ModTime().After(keepNewer) {
					continue
				}
				_ = os.Remove(filepath.Join(dir, fan.Name(), f.Name()))
			}
		}
	}
	return nil
}

var _ Backend = (*SimpleBackend)(nil)
