package model

import "github.com/lablup/baimgr-core/internal/resource"

// ConcurrencyKind distinguishes the two concurrency counters a keypair can
// be limited on (spec §3): regular sessions vs system (private) sessions.
type ConcurrencyKind string

const (
	ConcurrencyRegular ConcurrencyKind = "REGULAR"
	ConcurrencySystem  ConcurrencyKind = "SYSTEM"
)

// ConcurrencyCounter is the live count of non-terminal sessions for one
// access key, split by kind so a system session never competes with the
// user's own concurrency budget.
type ConcurrencyCounter struct {
	AccessKey string
	Kind      ConcurrencyKind
	Count     int
}

// ResourcePolicy bounds what a single access key (keypair) may request.
type ResourcePolicy struct {
	AccessKey            string
	MaxConcurrentRegular int
	MaxConcurrentSystem  int
	MaxPendingSessions   int
	TotalResourceSlots   resource.Slot
	UsedSlots            resource.Slot
}

// PolicyBundle is the full set of resource ceilings a validator chain
// checks a candidate session against, scoped from the most specific
// (keypair) to the widest (domain).
type PolicyBundle struct {
	KeyPair ResourcePolicy
	Group   GroupResourcePolicy
	Domain  DomainResourcePolicy
}

// GroupResourcePolicy bounds total usage for a project/group.
type GroupResourcePolicy struct {
	ProjectID          string
	TotalResourceSlots resource.Slot
	UsedSlots          resource.Slot
}

// DomainResourcePolicy bounds total usage for a domain.
type DomainResourcePolicy struct {
	DomainName         string
	TotalResourceSlots resource.Slot
	UsedSlots          resource.Slot
}

// ScalingGroup is a pool of agents sharing a scheduler and selector
// configuration (spec §3).
type ScalingGroup struct {
	Name                string
	SchedulerName       string
	SelectorName        string
	PendingTimeout      int64 // seconds; 0 means the orchestrator's configured default applies
	Enabled             bool
	AllowedSessionTypes []SessionType // empty means all types allowed
}

// Dependency is a directed edge session -> depends-on-session, used by
// DependencyValidator to block scheduling until the upstream session
// reaches a terminal, successful state.
type Dependency struct {
	SessionID  string
	DependsOn  string
}

// SchedulerCursor persists round-robin position per scaling group so a
// restart of the orchestrator resumes fairly instead of re-biasing toward
// the first agent in iteration order (supplemented: spec.md names
// round-robin selection but is silent on restart behavior; persisting the
// cursor is the natural reading of "round-robin" surviving a dispatcher
// restart).
type SchedulerCursor struct {
	ScalingGroup string
	Position     int
}
