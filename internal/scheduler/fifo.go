package scheduler

import (
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

func init() {
	Register("fifo", func(opts map[string]any) (Scheduler, error) {
		return fifoScheduler{}, nil
	})
}

// fifoScheduler prioritizes strictly by the stable tie-break order: no
// look-ahead, no starvation mitigation. A session the free capacity can't
// fund simply stays PENDING until the next tick.
type fifoScheduler struct{}

func (fifoScheduler) Prioritize(pending, existing []model.Session) []model.Session {
	return stableSort(pending)
}

func (fifoScheduler) Pick(prioritized []model.Session, free map[string]resource.Slot) (*model.Session, bool) {
	return pickHeadOnly(prioritized, free)
}
