// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/strata-scm/strata/modules/plumbing"
)

var (
	TREE_MAGIC = [4]byte{'S', 'T', 0x00, 0x01}
)

type TreeValueKind uint8

const (
	// KindNone is the zero TreeValue: nothing at this path.
	KindNone TreeValueKind = iota
	KindFile
	KindSymlink
	KindTree
	KindGitSubmodule
)

func (k TreeValueKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	case KindTree:
		return "tree"
	case KindGitSubmodule:
		return "submodule"
	}
	return "none"
}

func parseKind(s string) (TreeValueKind, bool) {
	switch s {
	case "file":
		return KindFile, true
	case "symlink":
		return KindSymlink, true
	case "tree":
		return KindTree, true
	case "submodule":
		return KindGitSubmodule, true
	}
	return KindNone, false
}

// TreeValue is what a tree stores at one path component. The zero value
// means "absent", which is how deletion flows through merges.
type TreeValue struct {
	Kind       TreeValueKind
	ID         plumbing.Hash
	Executable bool
	Copy       plumbing.CopyID
}

func FileValue(id plumbing.FileID, executable bool) TreeValue {
	return TreeValue{Kind: KindFile, ID: id, Executable: executable}
}

func SymlinkValue(id plumbing.SymlinkID) TreeValue {
	return TreeValue{Kind: KindSymlink, ID: id}
}

func TreeValueOf(id plumbing.TreeID) TreeValue {
	return TreeValue{Kind: KindTree, ID: id}
}

func (v TreeValue) IsAbsent() bool { return v.Kind == KindNone }

// TreeEntry is a named value inside a tree.
type TreeEntry struct {
	Name  string
	Value TreeValue
}

// Tree is an ordered mapping from path component to value. Entries stay
// sorted by name; the content hash derives from the serialized entries.
type Tree struct {
	ID      plumbing.TreeID
	Entries []TreeEntry
}

// Get returns the value stored under name.
func (t *Tree) Get(name string) (TreeValue, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Name >= name })
	if i < len(t.Entries) && t.Entries[i].Name == name {
		return t.Entries[i].Value, true
	}
	return TreeValue{}, false
}

// Set inserts or replaces name. A zero value removes the entry.
func (t *Tree) Set(name string, v TreeValue) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Name >= name })
	switch {
	case v.IsAbsent():
		if i < len(t.Entries) && t.Entries[i].Name == name {
			t.Entries = append(t.Entries[:i], t.Entries[i+1:]...)
		}
	case i < len(t.Entries) && t.Entries[i].Name == name:
		t.Entries[i].Value = v
	default:
		t.Entries = append(t.Entries, TreeEntry{})
		copy(t.Entries[i+1:], t.Entries[i:])
		t.Entries[i] = TreeEntry{Name: name, Value: v}
	}
}

func (t *Tree) IsEmpty() bool { return len(t.Entries) == 0 }

func validEntryName(name string) bool {
	return len(name) > 0 && !strings.ContainsAny(name, "\x00\n/")
}

func (t *Tree) Encode(w io.Writer) error {
	if _, err := w.Write(TREE_MAGIC[:]); err != nil {
		return err
	}
	for _, e := range t.Entries {
		if !validEntryName(e.Name) {
			return fmt.Errorf("%w: bad entry name %q", ErrMalformedObject, e.Name)
		}
		x := "-"
		if e.Value.Executable {
			x = "x"
		}
		c := "-"
		if !e.Value.Copy.IsZero() {
			c = e.Value.Copy.String()
		}
		if _, err := fmt.Fprintf(w, "%s %s %s %s %s\n", e.Value.Kind, e.Value.ID, x, c, e.Name); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) Decode(data []byte) error {
	if len(data) < len(TREE_MAGIC) || !bytes.Equal(data[:4], TREE_MAGIC[:]) {
		return ErrUnsupportedObject
	}
	t.Entries = t.Entries[:0]
	for _, line := range strings.Split(string(data[4:]), "\n") {
		if len(line) == 0 {
			continue
		}
		fields := strings.SplitN(line, " ", 5)
		if len(fields) != 5 {
			return fmt.Errorf("%w: tree entry %q", ErrMalformedObject, line)
		}
		kind, ok := parseKind(fields[0])
		if !ok {
			return fmt.Errorf("%w: tree entry kind %q", ErrMalformedObject, fields[0])
		}
		oid, err := plumbing.NewHashEx(fields[1])
		if err != nil {
			return err
		}
		v := TreeValue{Kind: kind, ID: oid, Executable: fields[2] == "x"}
		if fields[3] != "-" {
			if v.Copy, err = plumbing.NewHashEx(fields[3]); err != nil {
				return err
			}
		}
		t.Entries = append(t.Entries, TreeEntry{Name: fields[4], Value: v})
	}
	sort.Slice(t.Entries, func(i, j int) bool { return t.Entries[i].Name < t.Entries[j].Name })
	return nil
}

// CanonicalBytes serializes the tree and stamps its content id.
func (t *Tree) CanonicalBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Encode(&buf); err != nil {
		return nil, err
	}
	t.ID = plumbing.HashOf(buf.Bytes())
	return buf.Bytes(), nil
}

// EmptyTreeID is the fixed id of the tree with no entries.
func EmptyTreeID() plumbing.TreeID {
	t := &Tree{}
	b, _ := t.CanonicalBytes()
	return plumbing.HashOf(b)
}

// resolveTree loads a subtree, mapping the zero id to the empty tree.
func resolveTree(ctx context.Context, b Backend, oid plumbing.TreeID) (*Tree, error) {
	if oid.IsZero() {
		return &Tree{}, nil
	}
	return b.Tree(ctx, oid)
}

// FlattenTree lists every non-tree value reachable from root, keyed by
// slash-separated path.
func FlattenTree(ctx context.Context, b Backend, root plumbing.TreeID) (map[string]TreeValue, error) {
	out := make(map[string]TreeValue)
	var walk func(oid plumbing.TreeID, prefix string) error
	walk = func(oid plumbing.TreeID, prefix string) error {
		tree, err := resolveTree(ctx, b, oid)
		if err != nil {
			return err
		}
		for _, e := range tree.Entries {
			path := e.Name
			if prefix != "" {
				path = prefix + "/" + e.Name
			}
			if e.Value.Kind == KindTree {
				if err := walk(e.Value.ID, path); err != nil {
					return err
				}
				continue
			}
			out[path] = e.Value
		}
		return nil
	}
	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteTreeFromPaths builds nested trees from a flat path→value map.
func WriteTreeFromPaths(ctx context.Context, b WriteBackend, files map[string]TreeValue) (plumbing.TreeID, error) {
	type dir struct {
		entries map[string]TreeValue
		subdirs map[string]*dir
	}
	newDir := func() *dir {
		return &dir{entries: make(map[string]TreeValue), subdirs: make(map[string]*dir)}
	}
	root := newDir()
	for path, v := range files {
		if v.IsAbsent() {
			continue
		}
		d := root
		components := strings.Split(path, "/")
		for _, name := range components[:len(components)-1] {
			sub, ok := d.subdirs[name]
			if !ok {
				sub = newDir()
				d.subdirs[name] = sub
			}
			d = sub
		}
		d.entries[components[len(components)-1]] = v
	}
	var write func(d *dir) (plumbing.TreeID, error)
	write = func(d *dir) (plumbing.TreeID, error) {
		tree := &Tree{}
		for name, sub := range d.subdirs {
			id, err := write(sub)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			if id != EmptyTreeID() {
				tree.Set(name, TreeValueOf(id))
			}
		}
		for name, v := range d.entries {
			tree.Set(name, v)
		}
		return b.WriteTree(ctx, tree)
	}
	return write(root)
}

// FindPath walks a slash-separated path from the root tree.
func FindPath(ctx context.Context, b Backend, root plumbing.TreeID, path string) (TreeValue, error) {
	tree, err := resolveTree(ctx, b, root)
	if err != nil {
		return TreeValue{}, err
	}
	components := strings.Split(path, "/")
	for i, name := range components {
		v, ok := tree.Get(name)
		if !ok {
			return TreeValue{}, nil
		}
		if i == len(components)-1 {
			return v, nil
		}
		if v.Kind != KindTree {
			return TreeValue{}, nil
		}
		if tree, err = resolveTree(ctx, b, v.ID); err != nil {
			return TreeValue{}, err
		}
	}
	return TreeValue{}, nil
}
