// Package plugin implements bay's hook registry: a small set of named
// extension points the reconciler and build pipeline fire into, and a
// catalog-type registry used to register new wait kinds (spec §4.7),
// grounded on bay/plugins/base.py.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/getbay/bay/pkg/bayerr"
)

// Hook names the closed set of extension points a plugin may register
// against (spec §4.7). Registering against an unknown hook name is a
// BadConfig error; firing one simply runs no callbacks.
type Hook string

const (
	HookPreBuild      Hook = "pre-build"
	HookPostBuild     Hook = "post-build"
	HookPreStart      Hook = "pre-start"
	HookPostStart     Hook = "post-start"
	HookPreGroupBuild Hook = "pre-group-build"
	HookDockerFail    Hook = "docker-fail"
)

var validHooks = map[Hook]bool{
	HookPreBuild:      true,
	HookPostBuild:     true,
	HookPreStart:      true,
	HookPostStart:     true,
	HookPreGroupBuild: true,
	HookDockerFail:    true,
}

// HookFunc is a single hook callback. ctx carries cancellation; args is the
// hook-specific payload (an *formation.Instance for pre-start/post-start, a
// catalog name for pre-/post-build, and so on — left untyped the way the
// original's duck-typed hook payloads were, since each hook kind has its
// own shape).
type HookFunc func(ctx context.Context, args interface{}) error

// CatalogTypeFactory builds a registered catalog extension (currently only
// wait types, spec §4.7) from its declared params.
type CatalogTypeFactory func(params map[string]interface{}) (interface{}, error)

// Host is bay's plugin registry: hook callbacks keyed by Hook, plus a
// catalog-type registry used by pkg/waits to register "http",
// "https", "tcp", and "time" wait kinds.
type Host struct {
	mu          sync.RWMutex
	hooks       map[Hook][]HookFunc
	catalogKind map[string]CatalogTypeFactory
}

// NewHost builds an empty plugin Host.
func NewHost() *Host {
	return &Host{
		hooks:       map[Hook][]HookFunc{},
		catalogKind: map[string]CatalogTypeFactory{},
	}
}

// On registers fn against hook. It returns a BadConfig error if hook isn't
// one of the closed set the reconciler actually fires.
func (h *Host) On(hook Hook, fn HookFunc) error {
	if !validHooks[hook] {
		return bayerr.NewBadConfig("unknown plugin hook %q", hook)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[hook] = append(h.hooks[hook], fn)
	return nil
}

// Fire invokes every callback registered against hook, in registration
// order, stopping at (and returning) the first error.
func (h *Host) Fire(ctx context.Context, hook Hook, args interface{}) error {
	h.mu.RLock()
	fns := append([]HookFunc(nil), h.hooks[hook]...)
	h.mu.RUnlock()

	for _, fn := range fns {
		if err := fn(ctx, args); err != nil {
			return fmt.Errorf("plugin hook %s: %w", hook, err)
		}
	}
	return nil
}

// RegisterCatalogKind adds a named catalog-item factory (spec §4.7's
// plugin-registered wait types).
func (h *Host) RegisterCatalogKind(name string, factory CatalogTypeFactory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.catalogKind[name]; exists {
		return bayerr.NewBadConfig("catalog kind %q is already registered", name)
	}
	h.catalogKind[name] = factory
	return nil
}

// BuildCatalogKind instantiates a registered catalog kind by name.
func (h *Host) BuildCatalogKind(name string, params map[string]interface{}) (interface{}, error) {
	h.mu.RLock()
	factory, ok := h.catalogKind[name]
	h.mu.RUnlock()
	if !ok {
		return nil, bayerr.NewBadConfig("unknown catalog kind %q", name)
	}
	return factory(params)
}

// CatalogKinds returns every registered catalog kind name, sorted.
func (h *Host) CatalogKinds() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.catalogKind))
	for name := range h.catalogKind {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
