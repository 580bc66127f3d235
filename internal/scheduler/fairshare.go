package scheduler

import (
	"sort"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

func init() {
	Register("fairshare", func(opts map[string]any) (Scheduler, error) {
		return fairshareScheduler{}, nil
	})
}

// fairshareScheduler prioritizes access keys with fewer currently-running
// sessions ahead of keys with more, so one heavy user's backlog doesn't
// starve a light user's single request. Within an access key, falls back
// to the stable priority/created_at/session_id order.
type fairshareScheduler struct{}

func (fairshareScheduler) Prioritize(pending, existing []model.Session) []model.Session {
	runningCount := map[string]int{}
	for _, sess := range existing {
		runningCount[sess.AccessKey]++
	}

	out := stableSort(pending)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if runningCount[a.AccessKey] != runningCount[b.AccessKey] {
			return runningCount[a.AccessKey] < runningCount[b.AccessKey]
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.SessionID < b.SessionID
	})
	return out
}

func (fairshareScheduler) Pick(prioritized []model.Session, free map[string]resource.Slot) (*model.Session, bool) {
	return pickFirstFitting(prioritized, free)
}
