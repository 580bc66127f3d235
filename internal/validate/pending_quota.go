package validate

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// PendingQuotaValidator bounds how many PENDING sessions one access key
// may hold at once, independent of the running-concurrency ceiling. Not
// starred: system sessions are exempt from the pending-queue quota since
// they are not user-submitted backlog.
type PendingQuotaValidator struct{}

func (PendingQuotaValidator) Name() string  { return "PendingQuotaValidator" }
func (PendingQuotaValidator) Private() bool { return false }

func (PendingQuotaValidator) Validate(ctx context.Context, sess model.Session, policies model.PolicyBundle, tx store.SchedulingTx) Decision {
	if policies.KeyPair.MaxPendingSessions <= 0 {
		return passDecision()
	}
	pending, err := tx.CountPendingForAccessKey(ctx, sess.AccessKey)
	if err != nil {
		return failDecision(model.FatalSystemic, "failed to count pending sessions")
	}
	if pending > policies.KeyPair.MaxPendingSessions {
		return failDecision(model.PolicyDenial, "PendingQuotaExceeded")
	}
	return passDecision()
}
