package index

// ChangedPathsIndex caches, per indexed commit, the paths the commit
// changed relative to its parents. The base layer is frozen; writers
// record into the mutable overlay. It is an optional accelerator: a miss
// just means the caller diffs trees itself.
type ChangedPathsIndex struct {
	base    map[GlobalCommitPosition][]string
	overlay map[GlobalCommitPosition][]string
}

func NewChangedPathsIndex() *ChangedPathsIndex {
	return &ChangedPathsIndex{
		base:    make(map[GlobalCommitPosition][]string),
		overlay: make(map[GlobalCommitPosition][]string),
	}
}

func (c *ChangedPathsIndex) Get(pos GlobalCommitPosition) ([]string, bool) {
	if paths, ok := c.overlay[pos]; ok {
		return paths, true
	}
	paths, ok := c.base[pos]
	return paths, ok
}

func (c *ChangedPathsIndex) Record(pos GlobalCommitPosition, paths []string) {
	c.overlay[pos] = append([]string(nil), paths...)
}

// Freeze folds the overlay into the base, returning the same index ready
// for further overlay writes.
func (c *ChangedPathsIndex) Freeze() *ChangedPathsIndex {
	for pos, paths := range c.overlay {
		c.base[pos] = paths
	}
	c.overlay = make(map[GlobalCommitPosition][]string)
	return c
}
