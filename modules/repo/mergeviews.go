// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/opstore"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/trace"
)

// MergeViews combines two views that diverged from a common ancestor.
// Heads are merged through the graph; every ref namespace gets a 3-way
// merge that keeps a conflicted RefTarget when it does not resolve.
func MergeViews(idx *index.CompositeIndex, ancestor, left, right *opstore.View) *opstore.View {
	out := opstore.NewView()

	// Heads: keep what either side added, drop what either side removed,
	// then reduce to graph heads.
	removed := make(map[plumbing.CommitID]bool)
	for id := range ancestor.HeadIDs {
		if !left.HeadIDs[id] || !right.HeadIDs[id] {
			removed[id] = true
		}
	}
	var candidates []plumbing.CommitID
	for id := range left.HeadIDs {
		if !removed[id] {
			candidates = append(candidates, id)
		}
	}
	for id := range right.HeadIDs {
		if !removed[id] && !left.HeadIDs[id] {
			candidates = append(candidates, id)
		}
	}
	for _, id := range idx.Heads(candidates) {
		out.AddHead(id)
	}

	mergeTargets := func(name string, l, a, r opstore.RefTarget) opstore.RefTarget {
		m := merge.Flatten([]opstore.RefTarget{l, a, r}).Simplify()
		if resolved, ok := m.ResolveTrivial(); ok {
			return merge.Resolved(resolved)
		}
		trace.Debugf("ref %s is conflicted after concurrent operations", name)
		return m
	}
	targetOr := func(t opstore.RefTarget, ok bool) opstore.RefTarget {
		if !ok {
			return opstore.AbsentRefTarget()
		}
		return t
	}
	names := make(map[string]bool)
	collect := func(m map[string]opstore.RefTarget) {
		for name := range m {
			names[name] = true
		}
	}

	collect(left.LocalBookmarks)
	collect(ancestor.LocalBookmarks)
	collect(right.LocalBookmarks)
	for name := range names {
		l, lok := left.LocalBookmarks[name]
		a, aok := ancestor.LocalBookmarks[name]
		r, rok := right.LocalBookmarks[name]
		out.SetLocalBookmark(name, mergeTargets("bookmark "+name, targetOr(l, lok), targetOr(a, aok), targetOr(r, rok)))
	}

	names = make(map[string]bool)
	collect(left.LocalTags)
	collect(ancestor.LocalTags)
	collect(right.LocalTags)
	for name := range names {
		l, lok := left.LocalTags[name]
		a, aok := ancestor.LocalTags[name]
		r, rok := right.LocalTags[name]
		out.SetLocalTag(name, mergeTargets("tag "+name, targetOr(l, lok), targetOr(a, aok), targetOr(r, rok)))
	}

	names = make(map[string]bool)
	collect(left.GitRefs)
	collect(ancestor.GitRefs)
	collect(right.GitRefs)
	for name := range names {
		l, lok := left.GitRefs[name]
		a, aok := ancestor.GitRefs[name]
		r, rok := right.GitRefs[name]
		out.SetGitRef(name, mergeTargets("git ref "+name, targetOr(l, lok), targetOr(a, aok), targetOr(r, rok)))
	}
	out.GitHead = mergeTargets("git HEAD", left.GitHead, ancestor.GitHead, right.GitHead)

	// Remote views: per (remote, name), merge targets; Tracked is sticky.
	remotes := make(map[string]bool)
	for remote := range left.RemoteViews {
		remotes[remote] = true
	}
	for remote := range ancestor.RemoteViews {
		remotes[remote] = true
	}
	for remote := range right.RemoteViews {
		remotes[remote] = true
	}
	for remote := range remotes {
		lrv := left.RemoteViews[remote]
		arv := ancestor.RemoteViews[remote]
		rrv := right.RemoteViews[remote]
		merged := opstore.NewRemoteView()
		mergeRemoteRefs(merged.Bookmarks, remoteRefsOf(lrv, false), remoteRefsOf(arv, false), remoteRefsOf(rrv, false), "bookmark@"+remote, mergeTargets)
		mergeRemoteRefs(merged.Tags, remoteRefsOf(lrv, true), remoteRefsOf(arv, true), remoteRefsOf(rrv, true), "tag@"+remote, mergeTargets)
		if len(merged.Bookmarks) != 0 || len(merged.Tags) != 0 {
			out.RemoteViews[remote] = merged
		}
	}

	// Working-copy commits: 3-way per workspace, current side wins a real
	// conflict and the loss is surfaced.
	wsNames := make(map[string]bool)
	for ws := range left.WcCommitIDs {
		wsNames[ws] = true
	}
	for ws := range ancestor.WcCommitIDs {
		wsNames[ws] = true
	}
	for ws := range right.WcCommitIDs {
		wsNames[ws] = true
	}
	for ws := range wsNames {
		l := left.WcCommitIDs[ws]
		a := ancestor.WcCommitIDs[ws]
		r := right.WcCommitIDs[ws]
		if resolved, ok := merge.New(l, a, r).ResolveTrivial(); ok {
			if !resolved.IsZero() {
				out.WcCommitIDs[ws] = resolved
			}
			continue
		}
		trace.Warnf("workspace %s was checked out concurrently; keeping %s, the other side was %s", ws, l.Short(12), r.Short(12))
		if !l.IsZero() {
			out.WcCommitIDs[ws] = l
		}
	}
	return out
}

func remoteRefsOf(rv *opstore.RemoteView, tags bool) map[string]opstore.RemoteRef {
	if rv == nil {
		return nil
	}
	if tags {
		return rv.Tags
	}
	return rv.Bookmarks
}

func mergeRemoteRefs(out map[string]opstore.RemoteRef, l, a, r map[string]opstore.RemoteRef, label string, mergeTargets func(string, opstore.RefTarget, opstore.RefTarget, opstore.RefTarget) opstore.RefTarget) {
	names := make(map[string]bool)
	for name := range l {
		names[name] = true
	}
	for name := range a {
		names[name] = true
	}
	for name := range r {
		names[name] = true
	}
	absent := opstore.RemoteRef{Target: opstore.AbsentRefTarget()}
	refOr := func(m map[string]opstore.RemoteRef, name string) opstore.RemoteRef {
		if ref, ok := m[name]; ok {
			return ref
		}
		return absent
	}
	for name := range names {
		lr := refOr(l, name)
		ar := refOr(a, name)
		rr := refOr(r, name)
		target := mergeTargets(label+"/"+name, lr.Target, ar.Target, rr.Target)
		if opstore.RefTargetIsAbsent(target) {
			continue
		}
		// Tracking is sticky: once either side tracks, the merge tracks.
		state := opstore.RemoteRefNew
		if lr.State == opstore.RemoteRefTracked || rr.State == opstore.RemoteRefTracked {
			state = opstore.RemoteRefTracked
		}
		out[name] = opstore.RemoteRef{Target: target, State: state}
	}
}
