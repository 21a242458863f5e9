package diff

import "strings"

// SplitLines tokenizes content into lines, each keeping its trailing
// newline. Concatenating the result reproduces the input exactly, so
// merge and annotate code can reassemble file contents from line slices.
func SplitLines(s string) []string {
	if len(s) == 0 {
		return nil
	}
	lines := make([]string, 0, strings.Count(s, "\n")+1)
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

// UnchangedRanges returns, for each left-side line that survives into the
// right side, its position there. Positions inside differing regions are
// absent.
func UnchangedRanges(left, right []string) map[int]int {
	return matchLines(left, right)
}
