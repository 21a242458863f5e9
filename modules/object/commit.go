// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/plumbing"
)

var (
	COMMIT_MAGIC = [4]byte{'S', 'C', 0x00, 0x01}
)

// Commit is one snapshot in the commit DAG. The root tree is a merge: a
// resolved commit carries a single tree id, a conflicted commit carries an
// odd-length tree-id merge.
type Commit struct {
	ID plumbing.CommitID `json:"id"`
	// Parents is non-empty for every commit except the backend's root.
	Parents []plumbing.CommitID `json:"parents"`
	// Predecessors is the deprecated commit-level rewrite trail; new code
	// records predecessors on operations.
	Predecessors []plumbing.CommitID          `json:"predecessors,omitempty"`
	RootTree     merge.Merge[plumbing.TreeID] `json:"root_tree"`
	ChangeID     plumbing.ChangeID            `json:"change_id"`
	Description  string                       `json:"description"`
	Author       Signature                    `json:"author"`
	Committer    Signature                    `json:"committer"`
	SecureSig    []byte                       `json:"-"`
}

func (c *Commit) Encode(w *bytes.Buffer) error {
	if _, err := w.Write(COMMIT_MAGIC[:]); err != nil {
		return err
	}
	w.WriteString("tree")
	for _, t := range c.RootTree.Terms() {
		w.WriteByte(' ')
		w.WriteString(t.String())
	}
	w.WriteByte('\n')
	for _, parent := range c.Parents {
		fmt.Fprintf(w, "parent %s\n", parent)
	}
	for _, pred := range c.Predecessors {
		fmt.Fprintf(w, "predecessor %s\n", pred)
	}
	fmt.Fprintf(w, "change %s\n", c.ChangeID)
	fmt.Fprintf(w, "author %s\ncommitter %s\n", c.Author.String(), c.Committer.String())
	if len(c.SecureSig) != 0 {
		fmt.Fprintf(w, "sig %s\n", hex.EncodeToString(c.SecureSig))
	}
	w.WriteByte('\n')
	w.WriteString(c.Description)
	return nil
}

func (c *Commit) Decode(data []byte) error {
	if len(data) < len(COMMIT_MAGIC) || !bytes.Equal(data[:4], COMMIT_MAGIC[:]) {
		return ErrUnsupportedObject
	}
	body := string(data[4:])
	var description string
	for len(body) > 0 {
		var line string
		if i := strings.IndexByte(body, '\n'); i >= 0 {
			line = body[:i]
			body = body[i+1:]
		} else {
			line = body
			body = ""
		}
		if len(line) == 0 {
			// The remainder is the description, verbatim.
			description = body
			break
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "tree":
			var terms []plumbing.TreeID
			for _, f := range strings.Fields(value) {
				t, err := plumbing.NewHashEx(f)
				if err != nil {
					return err
				}
				terms = append(terms, t)
			}
			if len(terms)%2 == 0 {
				return fmt.Errorf("%w: %d tree terms", ErrMalformedObject, len(terms))
			}
			c.RootTree = merge.New(terms...)
		case "parent":
			p, err := plumbing.NewHashEx(value)
			if err != nil {
				return err
			}
			c.Parents = append(c.Parents, p)
		case "predecessor":
			p, err := plumbing.NewHashEx(value)
			if err != nil {
				return err
			}
			c.Predecessors = append(c.Predecessors, p)
		case "change":
			id, err := plumbing.NewChangeIDEx(value)
			if err != nil {
				return err
			}
			c.ChangeID = id
		case "author":
			c.Author.Decode([]byte(value))
		case "committer":
			c.Committer.Decode([]byte(value))
		case "sig":
			sig, err := hex.DecodeString(value)
			if err != nil {
				return fmt.Errorf("%w: sig header", ErrMalformedObject)
			}
			c.SecureSig = sig
		default:
			return fmt.Errorf("%w: commit header %q", ErrMalformedObject, key)
		}
	}
	c.Description = description
	return nil
}

// CanonicalBytes serializes the commit and stamps its content id.
func (c *Commit) CanonicalBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return nil, err
	}
	c.ID = plumbing.HashOf(buf.Bytes())
	return buf.Bytes(), nil
}

// Subject returns the first line of the description.
func (c *Commit) Subject() string {
	if i := strings.IndexAny(c.Description, "\r\n"); i != -1 {
		return c.Description[0:i]
	}
	return c.Description
}

// Root returns the commit's tree when it is resolved, which is the common
// case outside conflicts.
func (c *Commit) Root(ctx context.Context, b Backend) (*Tree, error) {
	tid, ok := c.RootTree.AsResolved()
	if !ok {
		return nil, fmt.Errorf("strata: commit %s has a conflicted root tree", c.ID.Short(12))
	}
	return resolveTree(ctx, b, tid)
}

// NewRootCommit builds the synthetic root commit: zero parents, the empty
// tree, empty signatures at timestamp 0. Its ids are fixed, not content
// hashes.
func NewRootCommit() *Commit {
	return &Commit{
		ID:       plumbing.ZeroHash,
		RootTree: merge.Resolved(EmptyTreeID()),
		ChangeID: plumbing.ZeroChangeID,
	}
}

// CommitIter is a generic closable interface for iterating over commits.
type CommitIter interface {
	Next(context.Context) (*Commit, error)
	ForEach(context.Context, func(*Commit) error) error
	Close()
}
