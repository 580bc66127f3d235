package validate

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// DependencyValidator requires every session this one depends on to have
// already reached TERMINATED with result SUCCESS. Starred: runs for
// SYSTEM sessions too, since a system session can itself depend on a
// regular one finishing first.
type DependencyValidator struct{}

func (DependencyValidator) Name() string   { return "DependencyValidator" }
func (DependencyValidator) Private() bool  { return true }

func (DependencyValidator) Validate(ctx context.Context, sess model.Session, _ model.PolicyBundle, tx store.SchedulingTx) Decision {
	deps, err := tx.ListDependencies(ctx, sess.SessionID)
	if err != nil {
		return failDecision(model.FatalSystemic, "failed to load dependencies")
	}
	for _, dep := range deps {
		upstream, err := tx.GetSession(ctx, dep.DependsOn)
		if err != nil {
			return failDecision(model.PolicyDenial, "DependencyNotSatisfied: "+dep.DependsOn+" not found")
		}
		if upstream.Status != model.SessionTerminated || upstream.Result != model.ResultSuccess {
			return failDecision(model.PolicyDenial, "DependencyNotSatisfied: "+dep.DependsOn+" not yet terminated successfully")
		}
	}
	return passDecision()
}
