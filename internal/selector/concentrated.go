package selector

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

func init() {
	Register("concentrated", func(opts map[string]any) (Selector, error) {
		return concentratedSelector{}, nil
	})
}

// concentratedSelector bin-packs: among agents that fit demand, it picks
// the one with the LEAST remaining capacity that still fits — filling
// nearly-full agents before spreading onto empty ones, the inverse of
// dispersed.
type concentratedSelector struct{}

func (concentratedSelector) SelectForKernel(_ context.Context, _ Deps, candidates []model.Agent, demand resource.Slot, arch string) (*model.Agent, bool) {
	fits := eligible(candidates, demand, arch)
	if len(fits) == 0 {
		return nil, false
	}

	best := fits[0]
	bestRemaining := totalApprox(best.RemainingSlots())
	for _, a := range fits[1:] {
		if r := totalApprox(a.RemainingSlots()); r < bestRemaining {
			best = a
			bestRemaining = r
		}
	}
	return &best, true
}

// totalApprox sums a slot's components as an approximate float64 purely
// for ranking agents against one another; no scheduling decision depends
// on its precision, only its ordering.
func totalApprox(s resource.Slot) float64 {
	var sum float64
	for _, v := range s {
		sum += v.AsApproximateFloat64()
	}
	return sum
}
