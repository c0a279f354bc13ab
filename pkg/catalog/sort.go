package catalog

import "github.com/getbay/bay/pkg/bayerr"

// DependencySort returns roots and all of their transitive dependencies in
// topological order, leaves first, each root placed after its own
// dependencies (for a single root, the root comes last). A cycle
// along the given edge function fails with BadConfig, mirroring the
// original's dependency_sort (bay/utils/sorting.py), whose use in
// ContainerFormation.add_container relies on exactly this ordering and
// cycle detection.
func DependencySort(roots []string, deps func(string) []string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := map[string]int{}
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return bayerr.NewBadConfig("dependency cycle detected at %s", name)
		}
		state[name] = visiting
		for _, d := range deps(name) {
			if err := visit(d); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return order, nil
}
