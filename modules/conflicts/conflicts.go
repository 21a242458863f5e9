// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package conflicts renders an N-ary file merge to bytes with conflict
// markers and parses such bytes back. Markers always use LF internally;
// EOL conversion happens at the working-copy boundary together with the
// surrounding content.
package conflicts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/strata-scm/strata/modules/diff"
	"github.com/strata-scm/strata/modules/merge"
)

// MinMarkerLen is the shortest marker run the materializer emits and the
// parser recognizes.
const MinMarkerLen = 7

type Style int

const (
	// StyleDiff renders each base/side pair as a unified-style diff
	// section. The default.
	StyleDiff Style = iota
	// StyleSnapshot renders every base and side literally.
	StyleSnapshot
	// StyleGit renders classic <<<<<<< / ||||||| / ======= / >>>>>>>
	// markers. Only expressible for 2-sided conflicts; others fall back
	// to StyleDiff.
	StyleGit
)

func ParseStyle(s string) (Style, error) {
	switch s {
	case "", "diff":
		return StyleDiff, nil
	case "snapshot":
		return StyleSnapshot, nil
	case "git":
		return StyleGit, nil
	}
	return StyleDiff, fmt.Errorf("conflicts: unknown conflict marker style '%s'", s)
}

// MaterializeOptions configure Materialize. A zero MarkerLen means
// "compute the shortest safe length".
type MaterializeOptions struct {
	Style     Style
	MarkerLen int
}

const markerChars = "<>%+-|="

// leadingMarkerRun returns the length of the run of marker characters at
// the start of the line, or 0.
func leadingMarkerRun(line string) int {
	if len(line) == 0 || !strings.ContainsRune(markerChars, rune(line[0])) {
		return 0
	}
	c := line[0]
	n := 0
	for n < len(line) && line[n] == c {
		n++
	}
	return n
}

// RequiredMarkerLen returns the shortest marker length that no line of any
// term could be confused with.
func RequiredMarkerLen(m merge.Merge[string]) int {
	longest := 0
	for _, term := range m.Terms() {
		for _, line := range diff.SplitLines(term) {
			if n := leadingMarkerRun(line); n > longest {
				longest = n
			}
		}
	}
	return max(MinMarkerLen, longest+1)
}

// hunk is one aligned region across all terms of the merge: either
// matching (all terms agree) or a conflict candidate.
type hunk struct {
	matching bool
	body     string   // matching hunks
	terms    []string // conflict hunks, interleaved like the merge
}

// mergeRegion is a group of changes that overlap in the base.
type mergeRegion struct {
	start, end int
	// delta is, per term, the length change its edits contribute inside
	// the region.
	delta map[int]int
}

// splitHunks cuts the merge into regions of the first base's coordinate
// space: runs no term edited become matching hunks, each group of
// overlapping edits becomes one candidate conflict hunk carrying every
// term's slice. A resolved merge yields a single matching hunk.
func splitHunks(m merge.Merge[string]) []hunk {
	if body, ok := m.AsResolved(); ok {
		return []hunk{{matching: true, body: body}}
	}
	termLines := make([][]string, m.Len())
	for i, t := range m.Terms() {
		termLines[i] = diff.SplitLines(t)
	}
	ref := termLines[1]

	type edit struct {
		h    diff.Hunk
		side int
	}
	var edits []edit
	for j, lines := range termLines {
		if j == 1 {
			continue
		}
		for _, h := range diff.Lines(ref, lines) {
			edits = append(edits, edit{h: h, side: j})
		}
	}
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].h.A.Start != edits[j].h.A.Start {
			return edits[i].h.A.Start < edits[j].h.A.Start
		}
		return edits[i].h.A.Len() > edits[j].h.A.Len()
	})

	// Group edits whose base ranges overlap or touch: edits separated by
	// at least one line every term agrees on resolve independently,
	// anything closer is one conflict candidate.
	var regions []mergeRegion
	for _, e := range edits {
		s, end := e.h.A.Start, e.h.A.End
		if n := len(regions); n > 0 {
			r := &regions[n-1]
			if s <= r.end {
				if end > r.end {
					r.end = end
				}
				r.delta[e.side] += e.h.B.Len() - e.h.A.Len()
				continue
			}
		}
		regions = append(regions, mergeRegion{
			start: s,
			end:   end,
			delta: map[int]int{e.side: e.h.B.Len() - e.h.A.Len()},
		})
	}

	cursor := make([]int, m.Len())
	var hunks []hunk
	pos := 0
	emitMatching := func(to int) {
		if to <= pos {
			return
		}
		hunks = append(hunks, hunk{matching: true, body: strings.Join(ref[pos:to], "")})
		for j := range cursor {
			cursor[j] += to - pos
		}
		pos = to
	}
	for _, r := range regions {
		emitMatching(r.start)
		terms := make([]string, m.Len())
		for j := range terms {
			length := r.end - r.start
			if j != 1 {
				length += r.delta[j]
			}
			terms[j] = strings.Join(termLines[j][cursor[j]:cursor[j]+length], "")
			cursor[j] += length
		}
		hunks = append(hunks, hunk{terms: terms})
		pos = r.end
	}
	emitMatching(len(ref))
	return hunks
}

func marker(c byte, n int) string {
	return strings.Repeat(string(c), n)
}

// ensureEOL appends a newline when content is non-empty and does not end
// with one, so the following marker starts its own line.
func ensureEOL(sb *strings.Builder, content string) {
	sb.WriteString(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		sb.WriteByte('\n')
	}
}

// Materialize renders the merge with conflict markers, returning the text
// and the marker length actually used.
func Materialize(m merge.Merge[string], opts *MaterializeOptions) (string, int) {
	if opts == nil {
		opts = &MaterializeOptions{}
	}
	markerLen := opts.MarkerLen
	if markerLen < MinMarkerLen {
		markerLen = RequiredMarkerLen(m)
	}
	if body, ok := m.AsResolved(); ok {
		return body, markerLen
	}
	hunks := splitHunks(m)
	// Trivially resolvable regions render literally.
	total := 0
	for i := range hunks {
		if hunks[i].matching {
			continue
		}
		hm := merge.New(hunks[i].terms...)
		if body, ok := hm.ResolveTrivial(); ok {
			hunks[i].matching = true
			hunks[i].body = body
		} else {
			total++
		}
	}
	style := opts.Style
	if style == StyleGit && m.Len() != 3 {
		style = StyleDiff
	}
	var sb strings.Builder
	nth := 0
	for _, h := range hunks {
		if h.matching {
			sb.WriteString(h.body)
			continue
		}
		nth++
		hm := merge.New(h.terms...)
		switch style {
		case StyleGit:
			materializeGit(&sb, hm, markerLen, nth, total)
		case StyleSnapshot:
			materializeSnapshot(&sb, hm, markerLen, nth, total)
		default:
			materializeDiff(&sb, hm, markerLen, nth, total)
		}
	}
	return sb.String(), markerLen
}

func baseLabel(k, numBases int) string {
	if numBases == 1 {
		return "base"
	}
	return fmt.Sprintf("base #%d", k+1)
}

func materializeDiff(sb *strings.Builder, hm merge.Merge[string], markerLen, nth, total int) {
	adds := hm.Adds()
	removes := hm.Removes()
	fmt.Fprintf(sb, "%s Conflict %d of %d\n", marker('<', markerLen), nth, total)
	for k, base := range removes {
		side := adds[k]
		fmt.Fprintf(sb, "%s Changes from %s to side #%d\n", marker('%', markerLen), baseLabel(k, len(removes)), k+1)
		writeUnified(sb, diff.SplitLines(base), diff.SplitLines(side))
	}
	fmt.Fprintf(sb, "%s Contents of side #%d\n", marker('+', markerLen), len(adds))
	ensureEOL(sb, adds[len(adds)-1])
	fmt.Fprintf(sb, "%s Conflict %d of %d ends\n", marker('>', markerLen), nth, total)
}

func writeUnified(sb *strings.Builder, base, side []string) {
	x, y := 0, 0
	emit := func(prefix byte, line string) {
		sb.WriteByte(prefix)
		ensureEOL(sb, line)
	}
	for _, h := range diff.Lines(base, side) {
		for x < h.A.Start {
			emit(' ', base[x])
			x++
			y++
		}
		for ; x < h.A.End; x++ {
			emit('-', base[x])
		}
		for ; y < h.B.End; y++ {
			emit('+', side[y])
		}
	}
	for x < len(base) {
		emit(' ', base[x])
		x++
		y++
	}
}

func materializeSnapshot(sb *strings.Builder, hm merge.Merge[string], markerLen, nth, total int) {
	fmt.Fprintf(sb, "%s Conflict %d of %d\n", marker('<', markerLen), nth, total)
	side, base := 0, 0
	numBases := hm.Len() / 2
	for i, term := range hm.Terms() {
		if i%2 == 0 {
			side++
			fmt.Fprintf(sb, "%s Contents of side #%d\n", marker('+', markerLen), side)
		} else {
			fmt.Fprintf(sb, "%s Contents of %s\n", marker('-', markerLen), baseLabel(base, numBases))
			base++
		}
		ensureEOL(sb, term)
	}
	fmt.Fprintf(sb, "%s Conflict %d of %d ends\n", marker('>', markerLen), nth, total)
}

func materializeGit(sb *strings.Builder, hm merge.Merge[string], markerLen, nth, total int) {
	terms := hm.Terms()
	fmt.Fprintf(sb, "%s Side #1 (Conflict %d of %d)\n", marker('<', markerLen), nth, total)
	ensureEOL(sb, terms[0])
	fmt.Fprintf(sb, "%s Base\n", marker('|', markerLen))
	ensureEOL(sb, terms[1])
	sb.WriteString(marker('=', markerLen))
	sb.WriteByte('\n')
	ensureEOL(sb, terms[2])
	fmt.Fprintf(sb, "%s Side #2 (Conflict %d of %d ends)\n", marker('>', markerLen), nth, total)
}
