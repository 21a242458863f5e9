// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package annotate computes line-level blame by propagating line maps
// from child to parent along the commit graph: each line of the starting
// text is ascribed to the newest commit in the domain that introduced it.
package annotate

import (
	"context"

	"github.com/strata-scm/strata/modules/diff"
	"github.com/strata-scm/strata/modules/index"
	"github.com/strata-scm/strata/modules/object"
	"github.com/strata-scm/strata/modules/plumbing"
	"github.com/strata-scm/strata/modules/revset"
)

// Line is one annotated line of the starting text.
type Line struct {
	Text   string
	Commit plumbing.CommitID
	// Known is false when the line's origin lies outside the domain; the
	// commit is then the first ancestor the walk could not enter.
	Known bool
}

// Annotation is the result for one file.
type Annotation struct {
	Lines []Line
}

// lineMap sends line numbers in some commit's version of the file to
// line numbers of the starting text.
type lineMap map[int]int

// File annotates path as of start, attributing lines only to commits
// inside domain (which must contain start). The domain is typically
// "ancestors of start touching path".
func File(ctx context.Context, b object.Backend, idx *index.CompositeIndex, domain *revset.Revset, start plumbing.CommitID, path string) (*Annotation, error) {
	startText, err := readFileAt(ctx, b, start, path)
	if err != nil {
		return nil, err
	}
	startLines := diff.SplitLines(startText)
	result := &Annotation{Lines: make([]Line, len(startLines))}
	for i, text := range startLines {
		result.Lines[i] = Line{Text: text}
	}

	startPos, ok := idx.PositionByCommitID(start)
	if !ok {
		return nil, &revset.EvaluationError{Msg: "commit " + start.Short(12) + " is not indexed"}
	}
	pending := make(map[index.GlobalCommitPosition]lineMap)
	identity := make(lineMap, len(startLines))
	for i := range startLines {
		identity[i] = i
	}
	pending[startPos] = identity

	texts := make(map[index.GlobalCommitPosition][]string)
	texts[startPos] = startLines

	for pos := startPos; ; pos-- {
		lm, open := pending[pos]
		if open {
			delete(pending, pos)
			if err := propagate(ctx, b, idx, domain, pos, path, lm, texts, pending, result); err != nil {
				return nil, err
			}
		}
		if pos == 0 || len(pending) == 0 {
			break
		}
	}
	return result, nil
}

func propagate(ctx context.Context, b object.Backend, idx *index.CompositeIndex, domain *revset.Revset, pos index.GlobalCommitPosition, path string, lm lineMap, texts map[index.GlobalCommitPosition][]string, pending map[index.GlobalCommitPosition]lineMap, result *Annotation) error {
	entry := idx.Entry(pos)
	curLines := texts[pos]
	delete(texts, pos)
	for _, parentPos := range idx.ParentPositions(pos) {
		if len(lm) == 0 {
			break
		}
		parentID := idx.CommitIDByPos(parentPos)
		if !domain.Contains(parentPos) {
			// The origin leaves the domain; every line the parent still
			// holds is reported with the unreachable ancestor.
			parentLines, err := readLinesAt(ctx, b, parentID, parentPos, path, texts)
			if err != nil {
				return err
			}
			for cur := range diff.UnchangedRanges(curLines, parentLines) {
				if orig, held := lm[cur]; held {
					result.Lines[orig].Commit = parentID
					result.Lines[orig].Known = false
					delete(lm, cur)
				}
			}
			continue
		}
		parentLines, err := readLinesAt(ctx, b, parentID, parentPos, path, texts)
		if err != nil {
			return err
		}
		matches := diff.UnchangedRanges(curLines, parentLines)
		parentMap := pending[parentPos]
		if parentMap == nil {
			parentMap = make(lineMap)
			pending[parentPos] = parentMap
		}
		for cur, parentLine := range matches {
			if orig, held := lm[cur]; held {
				if _, taken := parentMap[parentLine]; !taken {
					parentMap[parentLine] = orig
					delete(lm, cur)
				}
			}
		}
	}
	// Whatever no parent claimed was introduced here.
	for _, orig := range lm {
		result.Lines[orig].Commit = entry.CommitID
		result.Lines[orig].Known = true
	}
	return nil
}

func readLinesAt(ctx context.Context, b object.Backend, id plumbing.CommitID, pos index.GlobalCommitPosition, path string, texts map[index.GlobalCommitPosition][]string) ([]string, error) {
	if lines, ok := texts[pos]; ok {
		return lines, nil
	}
	text, err := readFileAt(ctx, b, id, path)
	if err != nil {
		return nil, err
	}
	lines := diff.SplitLines(text)
	texts[pos] = lines
	return lines, nil
}

func readFileAt(ctx context.Context, b object.Backend, id plumbing.CommitID, path string) (string, error) {
	c, err := b.Commit(ctx, id)
	if err != nil {
		return "", err
	}
	tid, ok := c.RootTree.AsResolved()
	if !ok {
		tid = c.RootTree.Adds()[0]
	}
	v, err := object.FindPath(ctx, b, tid, path)
	if err != nil {
		return "", err
	}
	if v.IsAbsent() || v.Kind != object.KindFile {
		return "", nil
	}
	data, err := object.ReadBlob(ctx, b, v.ID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
