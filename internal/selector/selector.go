// Package selector implements agent selection for kernel placement
// (spec.md §4.4). Like scheduler, implementations register by name at
// package-init time rather than through reflection-based discovery.
package selector

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
)

// Selector picks one agent able to run a kernel's demand.
type Selector interface {
	// SelectForKernel returns the chosen agent from candidates, or
	// ok=false if none fit demand/arch. Implementations that need
	// cross-tick state (roundrobin's cursor) read/write it through deps.Tx.
	SelectForKernel(ctx context.Context, deps Deps, candidates []model.Agent, demand resource.Slot, arch string) (*model.Agent, bool)
}

// Deps carries the per-call dependencies a Selector implementation may
// need beyond its candidate list, kept narrow so most implementations
// (concentrated, dispersed) never touch it.
type Deps struct {
	ScalingGroup string
	Tx           store.SchedulingTx
}

// Factory constructs a Selector from plugin options.
type Factory func(opts map[string]any) (Selector, error)

var registry = map[string]Factory{}

// Register adds a named selector factory.
func Register(name string, f Factory) {
	if _, exists := registry[name]; exists {
		panic("selector: duplicate registration for " + name)
	}
	registry[name] = f
}

// New constructs the named selector.
func New(name string, opts map[string]any) (Selector, error) {
	f, ok := registry[name]
	if !ok {
		return nil, &UnknownSelectorError{Name: name}
	}
	return f(opts)
}

// UnknownSelectorError is returned by New for an unregistered name.
type UnknownSelectorError struct{ Name string }

func (e *UnknownSelectorError) Error() string {
	return "selector: unknown selector: " + e.Name
}

// eligible filters candidates down to agents that fit demand and arch and
// are below their container ceiling, shared by every concrete selector so
// fit/arch logic lives in one place.
func eligible(candidates []model.Agent, demand resource.Slot, arch string) []model.Agent {
	var out []model.Agent
	for _, a := range candidates {
		if a.MaxContainerCount > 0 && a.ContainerCount >= a.MaxContainerCount {
			continue
		}
		if a.Fits(demand, arch) {
			out = append(out, a)
		}
	}
	return out
}
