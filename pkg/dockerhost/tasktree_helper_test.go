package dockerhost

import "github.com/getbay/bay/pkg/tasktree"

// newTestRoot builds a tasktree.Root that discards its output, for tests
// that need a real root to exercise progress-reporting code paths.
func newTestRoot() *tasktree.Root {
	return tasktree.NewRoot(func(string) {})
}
