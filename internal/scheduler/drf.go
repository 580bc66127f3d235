package scheduler

import (
	"sort"

	apiresource "k8s.io/apimachinery/pkg/api/resource"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

func init() {
	Register("drf", func(opts map[string]any) (Scheduler, error) {
		total := resource.Slot{}
		if raw, ok := opts["total_slots"].(resource.Slot); ok {
			total = raw
		}
		return drfScheduler{totalSlots: total}, nil
	})
}

// drfScheduler approximates dominant-resource-fairness: each access key's
// dominant share is its largest (demand-or-usage / total) ratio across
// slot types, and keys with a smaller current dominant share are
// prioritized ahead of keys that already hold more. The numerics here are
// intentionally simple — spec.md leaves scheduler internals pluggable —
// but the documented Prioritize/Pick contract is implemented fully.
type drfScheduler struct {
	totalSlots resource.Slot
}

func (d drfScheduler) Prioritize(pending, existing []model.Session) []model.Session {
	usage := map[string]resource.Slot{}
	for _, sess := range existing {
		usage[sess.AccessKey] = resource.Add(usage[sess.AccessKey], sess.TotalDemand())
	}

	out := stableSort(pending)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		shareA := dominantShare(usage[a.AccessKey], d.totalSlots)
		shareB := dominantShare(usage[b.AccessKey], d.totalSlots)
		if shareA != shareB {
			return shareA < shareB
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

func (drfScheduler) Pick(prioritized []model.Session, free map[string]resource.Slot) (*model.Session, bool) {
	return pickFirstFitting(prioritized, free)
}

// dominantShare returns the largest used/total ratio across every slot
// named in total, as a float64 approximation — sufficient for ranking
// purposes even though the core's own arithmetic stays decimal.
func dominantShare(used, total resource.Slot) float64 {
	var max float64
	for name, totalQty := range total {
		if totalQty.IsZero() {
			continue
		}
		usedQty, ok := used[name]
		if !ok {
			usedQty = apiresource.Quantity{}
		}
		share := usedQty.AsApproximateFloat64() / totalQty.AsApproximateFloat64()
		if share > max {
			max = share
		}
	}
	return max
}
