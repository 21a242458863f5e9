// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package conflicts

import (
	"strings"

	"github.com/strata-scm/strata/modules/diff"
	"github.com/strata-scm/strata/modules/merge"
)

// Parse scans materialized content for conflict markers of at least
// markerLen (use MinMarkerLen when none was persisted) and reconstructs
// the merge. Content without recognizable markers, or with malformed or
// inconsistent conflicts, is returned as a resolved merge of the literal
// text.
func Parse(content string, markerLen int) merge.Merge[string] {
	if markerLen < MinMarkerLen {
		markerLen = MinMarkerLen
	}
	lines := diff.SplitLines(content)
	type segment struct {
		resolved string
		hunk     merge.Merge[string]
		conflict bool
	}
	var segments []segment
	var resolved strings.Builder
	i := 0
	for i < len(lines) {
		if kind, _ := markerKind(lines[i], markerLen); kind != '<' {
			resolved.WriteString(lines[i])
			i++
			continue
		}
		hunk, next, ok := parseConflict(lines, i, markerLen)
		if !ok {
			// Malformed conflict: the marker is literal text.
			resolved.WriteString(lines[i])
			i++
			continue
		}
		segments = append(segments, segment{resolved: resolved.String()})
		resolved.Reset()
		segments = append(segments, segment{hunk: hunk, conflict: true})
		i = next
	}
	segments = append(segments, segment{resolved: resolved.String()})

	arity := 0
	for _, s := range segments {
		if !s.conflict {
			continue
		}
		if arity == 0 {
			arity = s.hunk.Len()
		} else if arity != s.hunk.Len() {
			// Hunks of different shape cannot form one merge value.
			return merge.Resolved(content)
		}
	}
	if arity == 0 {
		return merge.Resolved(content)
	}
	terms := make([]strings.Builder, arity)
	for _, s := range segments {
		if s.conflict {
			for j, t := range s.hunk.Terms() {
				terms[j].WriteString(t)
			}
			continue
		}
		for j := range terms {
			terms[j].WriteString(s.resolved)
		}
	}
	out := make([]string, arity)
	for j := range terms {
		out[j] = terms[j].String()
	}
	return merge.New(out...)
}

// markerKind classifies a line as a conflict marker. It returns the marker
// character and the trailing label, or 0 when the line is not a marker of
// sufficient length.
func markerKind(line string, markerLen int) (byte, string) {
	n := leadingMarkerRun(line)
	if n < markerLen {
		return 0, ""
	}
	rest := strings.TrimSuffix(line[n:], "\n")
	if len(rest) > 0 && rest[0] != ' ' {
		return 0, ""
	}
	return line[0], strings.TrimPrefix(rest, " ")
}

// parseConflict parses one conflict region starting at lines[start] (a '<'
// marker). It returns the reconstructed hunk merge and the index just past
// the '>' marker.
func parseConflict(lines []string, start, markerLen int) (merge.Merge[string], int, bool) {
	_, openLabel := markerKind(lines[start], markerLen)
	gitStyle := strings.HasPrefix(openLabel, "Side #")

	type section struct {
		kind byte
		body []string
	}
	var sections []section
	if gitStyle {
		sections = append(sections, section{kind: '+'})
	}
	i := start + 1
	closed := false
	for i < len(lines) {
		kind, _ := markerKind(lines[i], markerLen)
		switch kind {
		case '>':
			closed = true
		case '%', '+', '-', '|':
			sections = append(sections, section{kind: kind})
		case '=':
			if !gitStyle {
				return merge.Merge[string]{}, 0, false
			}
			sections = append(sections, section{kind: '+'})
		case '<':
			// Nested conflict start: malformed.
			return merge.Merge[string]{}, 0, false
		default:
			if len(sections) == 0 {
				return merge.Merge[string]{}, 0, false
			}
			sec := &sections[len(sections)-1]
			sec.body = append(sec.body, lines[i])
		}
		i++
		if closed {
			break
		}
	}
	if !closed || len(sections) == 0 {
		return merge.Merge[string]{}, 0, false
	}
	var adds, removes []string
	for _, sec := range sections {
		switch sec.kind {
		case '+':
			adds = append(adds, strings.Join(sec.body, ""))
		case '-', '|':
			removes = append(removes, strings.Join(sec.body, ""))
		case '%':
			base, side, ok := parseUnified(sec.body)
			if !ok {
				return merge.Merge[string]{}, 0, false
			}
			// The pair keeps merge order: the side precedes its base.
			adds = append(adds, side)
			removes = append(removes, base)
		}
	}
	if len(adds) != len(removes)+1 {
		return merge.Merge[string]{}, 0, false
	}
	// Diff-style sections list pairs first and the trailing side last, but
	// sides recovered from %%% sections come interleaved already; rebuild
	// in interleaved order.
	return merge.FromLegacyForm(removes, adds), i, true
}

// parseUnified reverses writeUnified: context lines belong to both
// versions, '-' to the base, '+' to the side.
func parseUnified(body []string) (base, side string, ok bool) {
	var b, s strings.Builder
	for _, line := range body {
		if len(line) == 0 || line == "\n" {
			// A bare newline is an empty context line.
			b.WriteString(line)
			s.WriteString(line)
			continue
		}
		switch line[0] {
		case ' ':
			b.WriteString(line[1:])
			s.WriteString(line[1:])
		case '-':
			b.WriteString(line[1:])
		case '+':
			s.WriteString(line[1:])
		default:
			return "", "", false
		}
	}
	return b.String(), s.String(), true
}
