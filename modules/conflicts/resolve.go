package conflicts

import (
	"strings"

	"github.com/strata-scm/strata/modules/merge"
)

// TryResolveLines runs the line-based hunk merge and succeeds only when
// every hunk resolves trivially. It is the file-content step of tree
// merging: no markers are ever written here.
func TryResolveLines(m merge.Merge[string]) (string, bool) {
	if body, ok := m.ResolveTrivial(); ok {
		return body, true
	}
	var sb strings.Builder
	for _, h := range splitHunks(m) {
		if h.matching {
			sb.WriteString(h.body)
			continue
		}
		body, ok := merge.New(h.terms...).ResolveTrivial()
		if !ok {
			return "", false
		}
		sb.WriteString(body)
	}
	return sb.String(), true
}
