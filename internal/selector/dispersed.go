package selector

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

func init() {
	Register("dispersed", func(opts map[string]any) (Selector, error) {
		return dispersedSelector{}, nil
	})
}

// dispersedSelector picks the agent with the MOST remaining capacity,
// spreading load across the pool. Generalizes warren's selectNode
// "fewest containers" heuristic from a raw container count to resource-
// slot remaining capacity, since this core's agents carry heterogeneous
// demand rather than uniform containers.
type dispersedSelector struct{}

func (dispersedSelector) SelectForKernel(_ context.Context, _ Deps, candidates []model.Agent, demand resource.Slot, arch string) (*model.Agent, bool) {
	fits := eligible(candidates, demand, arch)
	if len(fits) == 0 {
		return nil, false
	}

	best := fits[0]
	bestRemaining := totalApprox(best.RemainingSlots())
	for _, a := range fits[1:] {
		if r := totalApprox(a.RemainingSlots()); r > bestRemaining {
			best = a
			bestRemaining = r
		}
	}
	return &best, true
}
