package validate

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// ConcurrencyValidator checks the access key's live-session counter
// against its ceiling, and increments it within the same transaction on
// pass so a concurrent tick sees the updated count immediately. If
// anything later in the chain or the transaction aborts, the increment is
// rolled back with the rest of the transaction — no separate decrement
// call is needed for the abort path, only for session termination later.
// Starred: system sessions consume the system counter.
type ConcurrencyValidator struct{}

func (ConcurrencyValidator) Name() string  { return "ConcurrencyValidator" }
func (ConcurrencyValidator) Private() bool { return true }

func (ConcurrencyValidator) Validate(ctx context.Context, sess model.Session, policies model.PolicyBundle, tx store.SchedulingTx) Decision {
	kind := model.ConcurrencyRegular
	ceiling := policies.KeyPair.MaxConcurrentRegular
	if sess.IsPrivate() {
		kind = model.ConcurrencySystem
		ceiling = policies.KeyPair.MaxConcurrentSystem
	}

	count, err := tx.IncrementConcurrency(ctx, sess.AccessKey, kind)
	if err != nil {
		return failDecision(model.FatalSystemic, "failed to read concurrency counter")
	}
	if ceiling > 0 && count > ceiling {
		_, _ = tx.DecrementConcurrency(ctx, sess.AccessKey, kind)
		return failDecision(model.PolicyDenial, "ConcurrencyLimit")
	}
	return passDecision()
}
