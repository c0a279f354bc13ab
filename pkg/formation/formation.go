// Package formation implements bay's core data model: the desired or
// observed layout of containers on one host (spec §3, §4.3). It is a
// direct port of bay/containers/formation.py.
package formation

import (
	"fmt"
	"reflect"

	"github.com/getbay/bay/pkg/bayerr"
	"github.com/getbay/bay/pkg/catalog"
)

// Instance is the runtime projection of one Container inside a Formation
// (spec's ContainerInstance).
type Instance struct {
	Name      string
	Container *catalog.Container

	// Desired-state fields.
	Image       string
	ImageTag    string
	ImageID     string // authoritative when present, per spec §9's open question
	Links       map[string]*Instance
	Devmodes    map[string]bool
	Ports       map[int]int
	Environment map[string]string
	Command     []string
	Foreground  bool

	// Observed-only fields, populated by the introspector (spec §3).
	IPAddress   string
	PortMapping map[int]int

	formation *Formation
}

// Formation returns the Formation this instance currently belongs to, or
// nil if unattached.
func (i *Instance) Formation() *Formation { return i.formation }

// NewInstance builds a standalone instance seeding Ports from the
// Container's declared ports, mirroring __attrs_post_init__ in the
// original ContainerInstance.
func NewInstance(name string, container *catalog.Container) *Instance {
	inst := &Instance{
		Name:        name,
		Container:   container,
		Links:       map[string]*Instance{},
		Devmodes:    map[string]bool{},
		Ports:       map[int]int{},
		Environment: map[string]string{},
		PortMapping: map[int]int{},
	}
	for port, hostPort := range container.Ports {
		if hostPort != nil {
			inst.Ports[port] = *hostPort
		} else {
			inst.Ports[port] = 0
		}
	}
	return inst
}

// Validate cross-checks the instance's settings against the Container's
// declared dependencies and devmodes (spec §4.3).
func (i *Instance) Validate(graph catalog.Graph) error {
	deps := graph.Dependencies(i.Container.Name)
	depSet := make(map[string]bool, len(deps))
	for _, d := range deps {
		depSet[d] = true
	}
	for alias, target := range i.Links {
		if target.Container == nil || !depSet[target.Container.Name] {
			return bayerr.NewBadConfig("it is not possible to link %s to %s as %s", target.Name, i.Container.Name, alias)
		}
	}
	for devmode := range i.Devmodes {
		if _, ok := i.Container.Devmodes[devmode]; !ok {
			return bayerr.NewBadConfig("invalid devmode %s", devmode)
		}
	}
	return nil
}

// Clone returns a safely mutable clone of this instance. Links are left
// pointing at the same targets; Formation.Clone() remaps them by name once
// every instance in the new formation exists.
func (i *Instance) Clone() *Instance {
	clone := &Instance{
		Name:        i.Name,
		Container:   i.Container,
		Image:       i.Image,
		ImageTag:    i.ImageTag,
		ImageID:     i.ImageID,
		Links:       make(map[string]*Instance, len(i.Links)),
		Devmodes:    make(map[string]bool, len(i.Devmodes)),
		Ports:       make(map[int]int, len(i.Ports)),
		Environment: make(map[string]string, len(i.Environment)),
		Command:     append([]string(nil), i.Command...),
		Foreground:  i.Foreground,
		IPAddress:   i.IPAddress,
		PortMapping: make(map[int]int, len(i.PortMapping)),
	}
	for k, v := range i.Links {
		clone.Links[k] = v
	}
	for k := range i.Devmodes {
		clone.Devmodes[k] = true
	}
	for k, v := range i.Ports {
		clone.Ports[k] = v
	}
	for k, v := range i.Environment {
		clone.Environment[k] = v
	}
	for k, v := range i.PortMapping {
		clone.PortMapping[k] = v
	}
	return clone
}

// DifferentFrom reports whether other diverges from i enough to warrant a
// stop-then-start (spec §3, §8 invariant 5). Equality on image prefers the
// authoritative ImageID when either side has one set, per the open
// question in spec §9 about image identity.
func (i *Instance) DifferentFrom(other *Instance) bool {
	if i.Name != other.Name {
		return true
	}
	if i.Container != other.Container {
		return true
	}
	if !sameImage(i, other) {
		return true
	}
	if !sameLinks(i.Links, other.Links) {
		return true
	}
	if !sameBoolSet(i.Devmodes, other.Devmodes) {
		return true
	}
	if !sameIntMap(i.Ports, other.Ports) {
		return true
	}
	if !sameStringMap(i.Environment, other.Environment) {
		return true
	}
	if !reflect.DeepEqual(i.Command, other.Command) {
		return true
	}
	return other.Foreground || i.Foreground
}

func sameImage(a, b *Instance) bool {
	if a.ImageID != "" || b.ImageID != "" {
		return a.ImageID == b.ImageID
	}
	return a.Image == b.Image && a.ImageTag == b.ImageTag
}

func sameLinks(a, b map[string]*Instance) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || bv.Name != v.Name {
			return false
		}
	}
	return true
}

func sameBoolSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sameIntMap(a, b map[int]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func sameStringMap(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// Formation is a desired or observed layout of containers on one host,
// keyed by network (spec §3, §4.3).
type Formation struct {
	Graph   catalog.Graph
	Network string

	instances map[string]*Instance
}

// New builds an empty Formation. If network is "", it defaults to
// graph.Prefix().
func New(graph catalog.Graph, network string) *Formation {
	if network == "" {
		network = graph.Prefix()
	}
	return &Formation{
		Graph:     graph,
		Network:   network,
		instances: map[string]*Instance{},
	}
}

// AddInstance inserts an existing, unattached instance into the formation.
func (f *Formation) AddInstance(inst *Instance) error {
	if inst.formation != nil {
		return fmt.Errorf("formation: instance %s is already attached to a formation", inst.Name)
	}
	f.instances[inst.Name] = inst
	inst.formation = f
	return nil
}

// RemoveInstance detaches inst from the formation.
func (f *Formation) RemoveInstance(inst *Instance) error {
	if inst.formation != f {
		return fmt.Errorf("formation: instance %s does not belong to this formation", inst.Name)
	}
	delete(f.instances, inst.Name)
	inst.formation = nil
	return nil
}

// AddContainer adds a container to the formation along with every
// transitive runtime dependency it needs, reusing existing instances where
// possible (spec §4.3). It returns the instance created for container.
func (f *Formation) AddContainer(container *catalog.Container) (*Instance, error) {
	order, err := catalog.DependencySort([]string{container.Name}, f.Graph.Dependencies)
	if err != nil {
		return nil, err
	}
	// order ends with container.Name itself; the ancestry is everything before it.
	ancestry := order[:len(order)-1]

	directDeps := make(map[string]bool)
	for _, d := range f.Graph.Dependencies(container.Name) {
		directDeps[d] = true
	}

	links := map[string]*Instance{}
	for _, depName := range ancestry {
		depContainer, ok := f.Graph.Get(depName)
		if !ok {
			return nil, bayerr.NewBadConfig("unknown dependency %s of %s", depName, container.Name)
		}
		inst := f.findInstanceFor(depContainer)
		if inst == nil {
			inst, err = f.AddContainer(depContainer)
			if err != nil {
				return nil, err
			}
		}
		if directDeps[depName] {
			links[depName] = inst
		}
	}

	opts := f.Graph.Options(container.Name)
	inst := NewInstance(fmt.Sprintf("%s.%s.1", f.Graph.Prefix(), container.Name), container)
	inst.Image = container.ImageName
	inst.ImageTag = "latest"
	inst.Links = links
	for d := range opts.Devmodes {
		if opts.Devmodes[d] {
			inst.Devmodes[d] = true
		}
	}

	if err := f.AddInstance(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (f *Formation) findInstanceFor(container *catalog.Container) *Instance {
	for _, inst := range f.instances {
		if inst.Container == container {
			return inst
		}
	}
	return nil
}

// Clone produces a deep, safely-mutable copy of the formation, sharing
// only Container references, with links remapped to the new instances by
// name (spec §4.3).
func (f *Formation) Clone() *Formation {
	clone := New(f.Graph, f.Network)
	newInstances := make(map[string]*Instance, len(f.instances))
	for name, inst := range f.instances {
		newInstances[name] = inst.Clone()
	}
	for name, inst := range newInstances {
		remapped := make(map[string]*Instance, len(inst.Links))
		for alias, target := range inst.Links {
			remapped[alias] = newInstances[target.Name]
		}
		inst.Links = remapped
		_ = name
	}
	for _, inst := range newInstances {
		_ = clone.AddInstance(inst)
	}
	return clone
}

// Get looks an instance up by name.
func (f *Formation) Get(name string) (*Instance, bool) {
	inst, ok := f.instances[name]
	return inst, ok
}

// Contains reports whether an instance with inst.Name exists in the
// formation (spec §4.3's `container in formation`).
func (f *Formation) Contains(inst *Instance) bool {
	_, ok := f.instances[inst.Name]
	return ok
}

// Instances returns every instance in the formation; order is unspecified.
func (f *Formation) Instances() []*Instance {
	out := make([]*Instance, 0, len(f.instances))
	for _, inst := range f.instances {
		out = append(out, inst)
	}
	return out
}

// Len returns the number of instances in the formation.
func (f *Formation) Len() int { return len(f.instances) }
