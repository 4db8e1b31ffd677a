package manifest

import (
	"fmt"

	"github.com/poiesic/manifest/core"
	"github.com/poiesic/manifest/storage"
)

// withRollback runs fn against the tree under a snapshot. A failed Result,
// an error, or a panic restores the tree and the modified flag, so one
// operation is all-or-nothing. Id index mutations are not covered; the
// verify pass on load handles any staleness they leave behind.
func (r *Repository) withRollback(fn func() (core.Result, error)) (core.Result, error) {
	snapshot := storage.MarshalTree(r.tree)
	wasModified := r.modified

	restore := func() {
		tree, err := storage.UnmarshalTree(snapshot)
		if err != nil {
			panic(fmt.Sprintf("restore tree snapshot: %v", err))
		}
		r.tree = tree
		r.modified = wasModified
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	res, err := fn()
	if err != nil || !res.OK {
		restore()
	}
	return res, err
}
