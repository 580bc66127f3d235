// Package scheduler implements the pending-session prioritization and
// pick-next-fundable-session pipeline (spec.md §4.3). Implementations are
// registered by name at package-init time rather than discovered via
// reflection, the same static-registry idiom the corpus favors for
// anything pluggable (Design Note "Plugins by name").
package scheduler

import (
	"sort"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

// Scheduler orders pending sessions and picks the next one fundable within
// free capacity.
type Scheduler interface {
	// Prioritize returns pending re-ordered by this scheduler's policy.
	// existing is the set of already-running sessions, available for
	// policies (drf, fairshare) that weigh accumulated usage.
	Prioritize(pending, existing []model.Session) []model.Session
	// Pick returns the next session to attempt from prioritized, with free
	// keyed by agent id. drf and fairshare return the first one fundable
	// under free, or ok=false if none fit; fifo and lifo return the head of
	// the queue whenever it is non-empty, without consulting free.
	Pick(prioritized []model.Session, free map[string]resource.Slot) (*model.Session, bool)
}

// Factory constructs a Scheduler from plugin options (e.g. DRF's
// resource-weighting table).
type Factory func(opts map[string]any) (Scheduler, error)

var registry = map[string]Factory{}

// Register adds a named scheduler factory. Called from each
// implementation's package-init; panics on duplicate registration since
// that is always a build-time mistake, never a runtime condition.
func Register(name string, f Factory) {
	if _, exists := registry[name]; exists {
		panic("scheduler: duplicate registration for " + name)
	}
	registry[name] = f
}

// New constructs the named scheduler.
func New(name string, opts map[string]any) (Scheduler, error) {
	f, ok := registry[name]
	if !ok {
		return nil, &UnknownSchedulerError{Name: name}
	}
	return f(opts)
}

// UnknownSchedulerError is returned by New for an unregistered name.
type UnknownSchedulerError struct{ Name string }

func (e *UnknownSchedulerError) Error() string {
	return "scheduler: unknown scheduler: " + e.Name
}

// stableSort orders sessions by priority desc, then created_at asc, then
// session_id asc — the tie-break this core settled on for spec.md's open
// question about equal-priority, equal-created_at ordering.
func stableSort(sessions []model.Session) []model.Session {
	out := make([]model.Session, len(sessions))
	copy(out, sessions)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
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

// fits reports whether sess could plausibly be funded out of free, a
// per-agent free-capacity map. SINGLE_NODE sessions need one agent whose
// free capacity alone covers total demand; MULTI_NODE sessions may spread
// across agents, so the whole map's sum is what matters. This is only a
// coarse pre-filter — Placement/AgentSelector make the real, per-kernel
// binding decision — but it must not use the aggregate sum for
// SINGLE_NODE, or a candidate that cannot fit on any single agent would
// look fundable while fragmented across many.
func fits(sess model.Session, free map[string]resource.Slot) bool {
	demand := sess.TotalDemand()
	if sess.ClusterMode == model.ClusterModeSingleNode {
		for _, agentFree := range free {
			if resource.LessOrEqual(demand, agentFree) {
				return true
			}
		}
		return false
	}
	total := resource.Sum(valuesOf(free), func(s resource.Slot) resource.Slot { return s })
	return resource.LessOrEqual(demand, total)
}

func valuesOf(free map[string]resource.Slot) []resource.Slot {
	out := make([]resource.Slot, 0, len(free))
	for _, s := range free {
		out = append(out, s)
	}
	return out
}

// pickFirstFitting is shared by drf/fairshare: it scans prioritized order
// and returns the first session that fits, skipping past an unfundable
// head-of-queue session (spec.md §4.3's "pickers may look ahead").
func pickFirstFitting(prioritized []model.Session, free map[string]resource.Slot) (*model.Session, bool) {
	for i := range prioritized {
		if fits(prioritized[i], free) {
			sess := prioritized[i]
			return &sess, true
		}
	}
	return nil, false
}

// pickHeadOnly is shared by fifo/lifo: it always returns the head of the
// prioritized queue, never skipping ahead to a later candidate that looks
// more fundable (spec.md §4.3's "must not reorder the queue visible to the
// next call"). free is unused here on purpose — whether the head actually
// fits is AgentSelector's call at placement time (spec.md line 144: a
// NoSuitableAgent failure still records its reason and the pass moves on to
// the next candidate; fifo/lifo just never jump the head to avoid trying
// it).
func pickHeadOnly(prioritized []model.Session, free map[string]resource.Slot) (*model.Session, bool) {
	if len(prioritized) == 0 {
		return nil, false
	}
	sess := prioritized[0]
	return &sess, true
}
