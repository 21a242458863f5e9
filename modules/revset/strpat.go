// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package revset

import (
	"fmt"
	"path"
	"strings"
)

// StringPattern matches strings the way revset filter arguments are
// written: "kind:needle" with exact, substring, prefix, suffix and glob
// kinds, each with a "-i" case-insensitive variant. A bare needle takes
// the fallback kind given to ParseStringPattern.
type StringPattern struct {
	kind            string
	needle          string
	caseInsensitive bool
}

// ParseStringPattern parses "kind:needle"; without a kind prefix the
// fallback kind applies.
func ParseStringPattern(s, fallback string) (StringPattern, error) {
	kind := fallback
	needle := s
	if k, rest, ok := strings.Cut(s, ":"); ok {
		switch strings.TrimSuffix(k, "-i") {
		case "exact", "substring", "prefix", "suffix", "glob":
			kind = k
			needle = rest
		}
	}
	p := StringPattern{kind: strings.TrimSuffix(kind, "-i"), needle: needle}
	p.caseInsensitive = strings.HasSuffix(kind, "-i")
	switch p.kind {
	case "exact", "substring", "prefix", "suffix":
	case "glob":
		if _, err := path.Match(p.needle, ""); err != nil {
			return StringPattern{}, fmt.Errorf("strata: bad glob %q: %w", p.needle, err)
		}
	default:
		return StringPattern{}, fmt.Errorf("strata: unknown string pattern kind %q", kind)
	}
	return p, nil
}

// ExactPattern is the pattern matching exactly s.
func ExactPattern(s string) StringPattern {
	return StringPattern{kind: "exact", needle: s}
}

// SubstringPattern matches any string containing s.
func SubstringPattern(s string) StringPattern {
	return StringPattern{kind: "substring", needle: s}
}

func (p StringPattern) Match(s string) bool {
	needle := p.needle
	if p.caseInsensitive {
		s = strings.ToLower(s)
		needle = strings.ToLower(needle)
	}
	switch p.kind {
	case "exact":
		return s == needle
	case "substring":
		return strings.Contains(s, needle)
	case "prefix":
		return strings.HasPrefix(s, needle)
	case "suffix":
		return strings.HasSuffix(s, needle)
	case "glob":
		ok, _ := path.Match(needle, s)
		return ok
	}
	return false
}
