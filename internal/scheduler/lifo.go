package scheduler

import (
	"sort"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

func init() {
	Register("lifo", func(opts map[string]any) (Scheduler, error) {
		return lifoScheduler{}, nil
	})
}

// lifoScheduler still respects priority desc, but within equal priority
// runs the most recently submitted session first (created_at desc),
// falling back to session_id desc for true ties so the order is a strict
// inverse of fifo's rather than an independent ordering.
type lifoScheduler struct{}

func (lifoScheduler) Prioritize(pending, existing []model.Session) []model.Session {
	out := make([]model.Session, len(pending))
	copy(out, pending)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.SessionID > b.SessionID
	})
	return out
}

func (lifoScheduler) Pick(prioritized []model.Session, free map[string]resource.Slot) (*model.Session, bool) {
	return pickHeadOnly(prioritized, free)
}
