// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package opstore persists views and operations: the snapshots of all
// refs and the parent-linked DAG of repository states built on top of
// them.
package opstore

import (
	"sort"

	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/plumbing"
)

// RefTarget is a possibly-conflicted ref pointer. The zero commit id
// means "absent on this side", so a deleted ref is a resolved merge of
// the zero id.
type RefTarget = merge.Merge[plumbing.CommitID]

// AbsentRefTarget is the resolved "no target" value.
func AbsentRefTarget() RefTarget {
	return merge.Resolved(plumbing.ZeroHash)
}

func NormalRefTarget(id plumbing.CommitID) RefTarget {
	return merge.Resolved(id)
}

// RefTargetIsAbsent reports whether the target resolves to nothing.
func RefTargetIsAbsent(t RefTarget) bool {
	return t.Len() == 0 || t.IsAbsent()
}

type RemoteRefState uint8

const (
	// RemoteRefNew is a remote ref the local repo has not decided to
	// track.
	RemoteRefNew RemoteRefState = iota
	// RemoteRefTracked propagates remote moves into the local ref.
	RemoteRefTracked
)

// RemoteRef is a remote-side ref target together with its tracking state.
type RemoteRef struct {
	Target RefTarget      `json:"target"`
	State  RemoteRefState `json:"state"`
}

// RemoteView is one remote's bookmarks and tags as last seen.
type RemoteView struct {
	Bookmarks map[string]RemoteRef `json:"bookmarks,omitempty"`
	Tags      map[string]RemoteRef `json:"tags,omitempty"`
}

func NewRemoteView() *RemoteView {
	return &RemoteView{
		Bookmarks: make(map[string]RemoteRef),
		Tags:      make(map[string]RemoteRef),
	}
}

// View is a complete snapshot of repository state: heads, working-copy
// commits per workspace, and every ref namespace.
type View struct {
	HeadIDs        map[plumbing.CommitID]bool   `json:"head_ids"`
	WcCommitIDs    map[string]plumbing.CommitID `json:"wc_commit_ids,omitempty"`
	LocalBookmarks map[string]RefTarget         `json:"local_bookmarks,omitempty"`
	LocalTags      map[string]RefTarget         `json:"local_tags,omitempty"`
	RemoteViews    map[string]*RemoteView       `json:"remote_views,omitempty"`
	GitRefs        map[string]RefTarget         `json:"git_refs,omitempty"`
	GitHead        RefTarget                    `json:"git_head"`
}

func NewView() *View {
	return &View{
		HeadIDs:        make(map[plumbing.CommitID]bool),
		WcCommitIDs:    make(map[string]plumbing.CommitID),
		LocalBookmarks: make(map[string]RefTarget),
		LocalTags:      make(map[string]RefTarget),
		RemoteViews:    make(map[string]*RemoteView),
		GitRefs:        make(map[string]RefTarget),
		GitHead:        AbsentRefTarget(),
	}
}

// RootView is the view of the synthetic root operation: the root commit
// is its only head.
func RootView(rootCommit plumbing.CommitID) *View {
	v := NewView()
	v.HeadIDs[rootCommit] = true
	return v
}

// Clone deep-copies the view so a transaction can mutate it freely.
func (v *View) Clone() *View {
	out := NewView()
	for id := range v.HeadIDs {
		out.HeadIDs[id] = true
	}
	for ws, id := range v.WcCommitIDs {
		out.WcCommitIDs[ws] = id
	}
	for name, t := range v.LocalBookmarks {
		out.LocalBookmarks[name] = t
	}
	for name, t := range v.LocalTags {
		out.LocalTags[name] = t
	}
	for remote, rv := range v.RemoteViews {
		cp := NewRemoteView()
		for name, r := range rv.Bookmarks {
			cp.Bookmarks[name] = r
		}
		for name, r := range rv.Tags {
			cp.Tags[name] = r
		}
		out.RemoteViews[remote] = cp
	}
	for name, t := range v.GitRefs {
		out.GitRefs[name] = t
	}
	out.GitHead = v.GitHead
	return out
}

// Heads returns the head set in stable (sorted) order.
func (v *View) Heads() []plumbing.CommitID {
	heads := make([]plumbing.CommitID, 0, len(v.HeadIDs))
	for id := range v.HeadIDs {
		heads = append(heads, id)
	}
	plumbing.HashesSort(heads)
	return heads
}

func (v *View) AddHead(id plumbing.CommitID) { v.HeadIDs[id] = true }

func (v *View) RemoveHead(id plumbing.CommitID) { delete(v.HeadIDs, id) }

// SetLocalBookmark sets or, for an absent target, deletes a bookmark.
func (v *View) SetLocalBookmark(name string, t RefTarget) {
	if RefTargetIsAbsent(t) {
		delete(v.LocalBookmarks, name)
		return
	}
	v.LocalBookmarks[name] = t
}

func (v *View) SetLocalTag(name string, t RefTarget) {
	if RefTargetIsAbsent(t) {
		delete(v.LocalTags, name)
		return
	}
	v.LocalTags[name] = t
}

func (v *View) SetGitRef(name string, t RefTarget) {
	if RefTargetIsAbsent(t) {
		delete(v.GitRefs, name)
		return
	}
	v.GitRefs[name] = t
}

// RefNames lists every bookmark and tag name, the namespace id-prefix
// resolution must avoid shadowing.
func (v *View) RefNames() []string {
	names := make([]string, 0, len(v.LocalBookmarks)+len(v.LocalTags))
	for name := range v.LocalBookmarks {
		names = append(names, name)
	}
	for name := range v.LocalTags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
