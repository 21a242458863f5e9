// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/revset"
)

// IDPrefixContext resolves and shortens commit and change id prefixes
// against a disambiguation domain: prefixes unique inside the domain win
// even when the whole repo would make them ambiguous. Display lengths are
// additionally lengthened past any bookmark or tag name they would
// shadow.
type IDPrefixContext struct {
	repo   *ReadonlyRepo
	domain *revset.Revset
}

// NewIDPrefixContext builds a context; a nil domain means global-only
// resolution.
func NewIDPrefixContext(r *ReadonlyRepo, domain *revset.Revset) *IDPrefixContext {
	return &IDPrefixContext{repo: r, domain: domain}
}

// ResolveCommitPrefix resolves a hex prefix, preferring the domain.
func (c *IDPrefixContext) ResolveCommitPrefix(prefix plumbing.HexPrefix) (index.PrefixResolution, plumbing.CommitID) {
	if c.domain != nil {
		var found plumbing.CommitID
		count := 0
		for _, pos := range c.domain.Positions() {
			id := c.repo.Index.CommitIDByPos(pos)
			if prefix.Matches(id[:]) {
				found = id
				if count++; count > 1 {
					return index.PrefixAmbiguousMatch, plumbing.ZeroHash
				}
			}
		}
		if count == 1 {
			return index.PrefixSingleMatch, found
		}
	}
	return c.repo.Index.ResolveCommitIDPrefix(prefix)
}

// ResolveChangePrefix resolves a reverse-hex prefix to the commits
// carrying the change, preferring the domain.
func (c *IDPrefixContext) ResolveChangePrefix(prefix plumbing.HexPrefix) (index.PrefixResolution, []plumbing.CommitID) {
	if c.domain != nil {
		var foundChange plumbing.ChangeID
		seen := false
		ambiguous := false
		for _, pos := range c.domain.Positions() {
			e := c.repo.Index.Entry(pos)
			if !prefix.Matches(e.ChangeID[:]) {
				continue
			}
			if seen && e.ChangeID != foundChange {
				ambiguous = true
				break
			}
			foundChange = e.ChangeID
			seen = true
		}
		if ambiguous {
			return index.PrefixAmbiguousMatch, nil
		}
		if seen {
			var out []plumbing.CommitID
			for _, pos := range c.repo.Index.PositionsByChangeID(foundChange) {
				out = append(out, c.repo.Index.CommitIDByPos(pos))
			}
			return index.PrefixSingleMatch, out
		}
	}
	res, positions := c.repo.Index.ResolveChangeIDPrefix(prefix)
	if res != index.PrefixSingleMatch {
		return res, nil
	}
	var out []plumbing.CommitID
	for _, pos := range positions {
		out = append(out, c.repo.Index.CommitIDByPos(pos))
	}
	return res, out
}

// ShortestCommitPrefixLen reports the display length for a commit id:
// unambiguous within the domain, then lengthened past clashing ref
// names.
func (c *IDPrefixContext) ShortestCommitPrefixLen(id plumbing.CommitID) int {
	n := 1
	if c.domain != nil {
		n = c.shortestWithinDomain(id)
	} else {
		n = c.repo.Index.ShortestUniqueCommitIDPrefixLen(id)
	}
	return c.lengthenPastRefNames(id.String(), n)
}

func (c *IDPrefixContext) shortestWithinDomain(id plumbing.CommitID) int {
	best := 0
	for _, pos := range c.domain.Positions() {
		other := c.repo.Index.CommitIDByPos(pos)
		if other == id {
			continue
		}
		if n := commonNibbleLen(id[:], other[:]); n > best {
			best = n
		}
	}
	n := best + 1
	if n > plumbing.HASH_HEX_SIZE {
		n = plumbing.HASH_HEX_SIZE
	}
	return n
}

// ShortestChangePrefixLen is the change-id counterpart. It measures
// uniqueness across the whole index; the domain is not consulted.
func (c *IDPrefixContext) ShortestChangePrefixLen(id plumbing.ChangeID) int {
	n := c.repo.Index.ShortestUniqueChangeIDPrefixLen(id)
	return c.lengthenPastRefNames(id.String(), n)
}

// lengthenPastRefNames grows the prefix until it no longer spells a
// bookmark or tag name, so an id prefix never silently shadows a ref.
func (c *IDPrefixContext) lengthenPastRefNames(full string, n int) int {
	refNames := c.repo.View.RefNames()
	for n < len(full) {
		prefix := full[:n]
		clash := false
		for _, name := range refNames {
			if name == prefix {
				clash = true
				break
			}
		}
		if !clash {
			break
		}
		n++
	}
	return n
}

func commonNibbleLen(a, b []byte) int {
	n := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i]>>4 != b[i]>>4 {
			return n
		}
		n++
		if a[i]&0x0f != b[i]&0x0f {
			return n
		}
		n++
	}
	return n
}

// ResolveSymbol resolves a user-typed revision symbol: bookmarks and tags
// shadow id prefixes, change ids come before commit ids.
func (c *IDPrefixContext) ResolveSymbol(symbol string) ([]plumbing.CommitID, error) {
	view := c.repo.View
	if target, ok := view.LocalBookmarks[symbol]; ok {
		if id, resolved := target.AsResolved(); resolved && !id.IsZero() {
			return []plumbing.CommitID{id}, nil
		}
		return nil, &revset.EvaluationError{Msg: "bookmark " + symbol + " is conflicted"}
	}
	if target, ok := view.LocalTags[symbol]; ok {
		if id, resolved := target.AsResolved(); resolved && !id.IsZero() {
			return []plumbing.CommitID{id}, nil
		}
		return nil, &revset.EvaluationError{Msg: "tag " + symbol + " is conflicted"}
	}
	if prefix, ok := plumbing.ParseReverseHexPrefix(symbol); ok {
		if res, ids := c.ResolveChangePrefix(prefix); res == index.PrefixSingleMatch {
			return ids, nil
		} else if res == index.PrefixAmbiguousMatch {
			return nil, &revset.EvaluationError{Msg: "change id prefix " + symbol + " is ambiguous"}
		}
	}
	if prefix, ok := plumbing.ParseHexPrefix(symbol); ok {
		switch res, id := c.ResolveCommitPrefix(prefix); res {
		case index.PrefixSingleMatch:
			return []plumbing.CommitID{id}, nil
		case index.PrefixAmbiguousMatch:
			return nil, &revset.EvaluationError{Msg: "commit id prefix " + symbol + " is ambiguous"}
		}
	}
	return nil, &revset.EvaluationError{Msg: "revision " + symbol + " does not exist"}
}
