package validate

import (
	"context"
	"time"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// ReservedBatchValidator requires that a BATCH session with a starts_at in
// the future wait until that time. Starred: applies to SYSTEM sessions
// too, since a reserved system maintenance session has the same
// constraint.
type ReservedBatchValidator struct{}

func (ReservedBatchValidator) Name() string  { return "ReservedBatchValidator" }
func (ReservedBatchValidator) Private() bool { return true }

func (ReservedBatchValidator) Validate(_ context.Context, sess model.Session, _ model.PolicyBundle, _ store.SchedulingTx) Decision {
	if sess.SessionType != model.SessionTypeBatch || sess.StartsAt == nil {
		return passDecision()
	}
	if time.Now().Before(*sess.StartsAt) {
		return failDecision(model.PolicyDenial, "ReservedTimeNotReached")
	}
	return passDecision()
}
