// Package catalog defines the Container entity and the ContainerGraph
// contract that the reconciliation core consumes (spec §4.2). The catalog
// loader that would populate a graph from on-disk container definitions is
// out of scope (spec §1); MapGraph here is a minimal in-memory Graph
// implementation good enough to drive the core and its tests.
package catalog

import "regexp"

// Wait is one readiness-probe declaration attached to a Container (spec §3).
type Wait struct {
	Type   string
	Params map[string]interface{}
}

// Container is the immutable catalog entity describing one kind of
// container: its image, its dependency/build ancestry, and its options.
type Container struct {
	Name           string
	ImageName      string
	Dependencies   []string // ordered names of runtime dependencies
	BuildParents   []string // names of build ancestors
	Ports          map[int]*int
	BoundVolumes   map[string]string // host path -> container path
	NamedVolumes   map[string]string // volume name -> container path
	Devmodes       map[string]map[string]string
	Waits          []Wait
	GitVolumePattern *regexp.Regexp
}

// Options is the per-container option bag returned by Graph.Options.
type Options struct {
	DefaultBoot bool
	Devmodes    map[string]bool
}

// Graph is the read-only query surface the reconciliation core depends on
// (spec §4.2). It is assumed acyclic along both edge types.
type Graph interface {
	// Dependencies returns the direct runtime dependencies of a container.
	Dependencies(name string) []string
	// BuildParent returns the direct build parent of a container, or "".
	BuildParent(name string) string
	// BuildAncestry returns the full chain of build ancestors, nearest first.
	BuildAncestry(name string) []string
	// Dependents returns every container that directly depends on name.
	Dependents(name string) []string
	// Options returns the per-container option bag.
	Options(name string) Options
	// All iterates every container known to the graph.
	All() []*Container
	// Prefix is the graph-level namespace string.
	Prefix() string
	// Get looks a container up by name. ok is false if it isn't declared.
	Get(name string) (c *Container, ok bool)
}

// MapGraph is a simple in-memory Graph backed by a name->Container map,
// sufficient for tests and for small hand-written catalogs; the full
// catalog loader (YAML definitions, build-ancestry inference from
// Dockerfiles, etc.) is out of scope per spec §1.
type MapGraph struct {
	prefix     string
	containers map[string]*Container
	options    map[string]Options
}

// NewMapGraph builds a MapGraph from a flat list of containers.
func NewMapGraph(prefix string, containers []*Container) *MapGraph {
	g := &MapGraph{
		prefix:     prefix,
		containers: make(map[string]*Container, len(containers)),
		options:    make(map[string]Options),
	}
	for _, c := range containers {
		g.containers[c.Name] = c
	}
	return g
}

// SetOptions overrides the option bag for a named container.
func (g *MapGraph) SetOptions(name string, opts Options) {
	g.options[name] = opts
}

func (g *MapGraph) Dependencies(name string) []string {
	c, ok := g.containers[name]
	if !ok {
		return nil
	}
	return c.Dependencies
}

func (g *MapGraph) BuildParent(name string) string {
	c, ok := g.containers[name]
	if !ok || len(c.BuildParents) == 0 {
		return ""
	}
	return c.BuildParents[0]
}

func (g *MapGraph) BuildAncestry(name string) []string {
	var ancestry []string
	seen := map[string]bool{}
	cur := name
	for {
		parent := g.BuildParent(cur)
		if parent == "" || seen[parent] {
			break
		}
		ancestry = append(ancestry, parent)
		seen[parent] = true
		cur = parent
	}
	return ancestry
}

func (g *MapGraph) Dependents(name string) []string {
	var out []string
	for _, c := range g.containers {
		for _, dep := range c.Dependencies {
			if dep == name {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

func (g *MapGraph) Options(name string) Options {
	return g.options[name]
}

func (g *MapGraph) All() []*Container {
	out := make([]*Container, 0, len(g.containers))
	for _, c := range g.containers {
		out = append(out, c)
	}
	return out
}

func (g *MapGraph) Prefix() string { return g.prefix }

func (g *MapGraph) Get(name string) (*Container, bool) {
	c, ok := g.containers[name]
	return c, ok
}
