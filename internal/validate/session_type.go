package validate

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// SessionTypeValidator requires the session's type be one the scaling
// group accepts. Not starred, so a private session bypasses it entirely.
type SessionTypeValidator struct{}

func (SessionTypeValidator) Name() string  { return "SessionTypeValidator" }
func (SessionTypeValidator) Private() bool { return false }

func (SessionTypeValidator) Validate(ctx context.Context, sess model.Session, policies model.PolicyBundle, tx store.SchedulingTx) Decision {
	allowed, err := tx.AllowedSessionTypes(ctx, sess.ScalingGroup)
	if err != nil {
		return failDecision(model.FatalSystemic, "failed to load allowed session types")
	}
	if len(allowed) == 0 {
		return passDecision()
	}
	for _, t := range allowed {
		if t == sess.SessionType {
			return passDecision()
		}
	}
	return failDecision(model.PolicyDenial, "SessionTypeNotAllowed")
}
