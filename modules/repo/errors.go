package repo

import (
	"fmt"

	"github.com/strata-scm/strata/modules/plumbing"
)

// RebaseImmutableError rejects a rewrite of a commit in the configured
// immutable set before anything is written.
type RebaseImmutableError struct {
	ID plumbing.CommitID
}

func (e *RebaseImmutableError) Error() string {
	return fmt.Sprintf("strata: commit %s is immutable", e.ID.Short(12))
}

// WorkspaceRenameError reports a rename of a missing workspace or onto an
// existing one.
type WorkspaceRenameError struct {
	Name          string
	AlreadyExists bool
}

func (e *WorkspaceRenameError) Error() string {
	if e.AlreadyExists {
		return fmt.Sprintf("strata: workspace %q already exists", e.Name)
	}
	return fmt.Sprintf("strata: workspace %q does not exist", e.Name)
}

// CycleDetectedError means the merged predecessor maps form a cycle,
// which only corrupt data produces.
type CycleDetectedError struct {
	ID plumbing.CommitID
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("strata: cycle detected in predecessors of %s", e.ID.Short(12))
}

// ConcurrentOpWriteError surfaces repeated failures to advance the op
// head. The caller may retry the whole transaction.
type ConcurrentOpWriteError struct {
	Attempts int
}

func (e *ConcurrentOpWriteError) Error() string {
	return fmt.Sprintf("strata: op head contended after %d attempts", e.Attempts)
}
