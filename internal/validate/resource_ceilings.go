package validate

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
)

// DomainResourceValidator checks currently_used_slots + session.requested
// against the domain's total_resource_slots ceiling. Not starred.
type DomainResourceValidator struct{}

func (DomainResourceValidator) Name() string  { return "DomainResourceValidator" }
func (DomainResourceValidator) Private() bool { return false }

func (DomainResourceValidator) Validate(ctx context.Context, sess model.Session, policies model.PolicyBundle, tx store.SchedulingTx) Decision {
	return checkCeiling(policies.Domain.UsedSlots, policies.Domain.TotalResourceSlots, sess.TotalDemand(), "DomainResourceCeilingExceeded")
}

// GroupResourceValidator is DomainResourceValidator scoped to the
// session's project/group. Not starred.
type GroupResourceValidator struct{}

func (GroupResourceValidator) Name() string  { return "GroupResourceValidator" }
func (GroupResourceValidator) Private() bool { return false }

func (GroupResourceValidator) Validate(ctx context.Context, sess model.Session, policies model.PolicyBundle, tx store.SchedulingTx) Decision {
	return checkCeiling(policies.Group.UsedSlots, policies.Group.TotalResourceSlots, sess.TotalDemand(), "GroupResourceCeilingExceeded")
}

// KeyPairResourceValidator is DomainResourceValidator scoped to the
// session's access key. Not starred.
type KeyPairResourceValidator struct{}

func (KeyPairResourceValidator) Name() string  { return "KeyPairResourceValidator" }
func (KeyPairResourceValidator) Private() bool { return false }

func (KeyPairResourceValidator) Validate(ctx context.Context, sess model.Session, policies model.PolicyBundle, tx store.SchedulingTx) Decision {
	return checkCeiling(policies.KeyPair.UsedSlots, policies.KeyPair.TotalResourceSlots, sess.TotalDemand(), "KeyPairResourceCeilingExceeded")
}

// checkCeiling fails if used + demand would exceed total, per spec.md
// §4.5's `currently_used_slots + session.requested_slots <= total`. A
// zero-value ceiling (no policy configured) is treated as "no limit",
// matching policy bundles being optional at narrower scopes.
func checkCeiling(used, total, demand resource.Slot, reason string) Decision {
	if resource.IsZero(total) {
		return passDecision()
	}
	projected := resource.Add(used, demand)
	if !resource.LessOrEqual(projected, total) {
		return failDecision(model.PolicyDenial, reason)
	}
	return passDecision()
}
