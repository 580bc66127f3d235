package selector

import (
	"context"
	"sort"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

func init() {
	Register("roundrobin", func(opts map[string]any) (Selector, error) {
		return roundRobinSelector{}, nil
	})
}

// roundRobinSelector cycles through fitting agents in a stable order,
// persisting its position as a model.SchedulerCursor (SaveSchedulerCursor)
// so a dispatcher
// restart resumes from where it left off instead of re-biasing toward the
// first agent in iteration order.
type roundRobinSelector struct{}

func (roundRobinSelector) SelectForKernel(ctx context.Context, deps Deps, candidates []model.Agent, demand resource.Slot, arch string) (*model.Agent, bool) {
	fits := eligible(candidates, demand, arch)
	if len(fits) == 0 {
		return nil, false
	}
	sort.Slice(fits, func(i, j int) bool { return fits[i].AgentID < fits[j].AgentID })

	if deps.Tx == nil {
		return &fits[0], true
	}

	cursor, err := deps.Tx.ReadSchedulerCursor(ctx, deps.ScalingGroup)
	if err != nil {
		return &fits[0], true
	}

	idx := cursor.Position % len(fits)
	chosen := fits[idx]

	cursor.ScalingGroup = deps.ScalingGroup
	cursor.Position = (idx + 1) % len(fits)
	_ = deps.Tx.SaveSchedulerCursor(ctx, cursor)

	return &chosen, true
}
