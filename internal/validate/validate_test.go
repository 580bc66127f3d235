package validate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiresource "k8s.io/apimachinery/pkg/api/resource"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
	memstore "github.com/lablup/baimgr-core/internal/store/memory"
)

func qty(s string) apiresource.Quantity { return apiresource.MustParse(s) }

func runInTx(t *testing.T, mem *memstore.Store, fn func(ctx context.Context, tx store.SchedulingTx)) {
	t.Helper()
	err := mem.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		fn(ctx, tx)
		return nil
	})
	require.NoError(t, err)
}

func TestDependencyValidatorBlocksUntilUpstreamSucceeds(t *testing.T) {
	mem := memstore.New()
	mem.SeedSession(model.Session{SessionID: "upstream", Status: model.SessionRunning})
	mem.SeedDependencies("downstream", []model.Dependency{{SessionID: "downstream", DependsOn: "upstream"}})

	sess := model.Session{SessionID: "downstream", Dependencies: []string{"upstream"}}

	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := DependencyValidator{}.Validate(ctx, sess, model.PolicyBundle{}, tx)
		assert.False(t, d.Pass)
		assert.Equal(t, model.PolicyDenial, d.Kind)
	})

	mem.SeedSession(model.Session{SessionID: "upstream", Status: model.SessionTerminated, Result: model.ResultSuccess})
	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := DependencyValidator{}.Validate(ctx, sess, model.PolicyBundle{}, tx)
		assert.True(t, d.Pass)
	})
}

func TestReservedBatchValidator(t *testing.T) {
	future := time.Now().Add(time.Hour)
	sess := model.Session{SessionType: model.SessionTypeBatch, StartsAt: &future}
	d := ReservedBatchValidator{}.Validate(context.Background(), sess, model.PolicyBundle{}, nil)
	assert.False(t, d.Pass)

	past := time.Now().Add(-time.Hour)
	sess.StartsAt = &past
	d = ReservedBatchValidator{}.Validate(context.Background(), sess, model.PolicyBundle{}, nil)
	assert.True(t, d.Pass)
}

func TestConcurrencyValidatorDeniesAtCeiling(t *testing.T) {
	mem := memstore.New()
	policies := model.PolicyBundle{KeyPair: model.ResourcePolicy{MaxConcurrentRegular: 1}}
	sess := model.Session{AccessKey: "AKEY", SessionType: model.SessionTypeInteractive}

	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := ConcurrencyValidator{}.Validate(ctx, sess, policies, tx)
		assert.True(t, d.Pass)
	})
	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := ConcurrencyValidator{}.Validate(ctx, sess, policies, tx)
		assert.False(t, d.Pass)
		assert.Equal(t, model.PolicyDenial, d.Kind)
	})
}

func TestPendingQuotaValidator(t *testing.T) {
	mem := memstore.New()
	mem.SeedSession(model.Session{SessionID: "p1", AccessKey: "AKEY", Status: model.SessionPending})
	mem.SeedSession(model.Session{SessionID: "p2", AccessKey: "AKEY", Status: model.SessionPending})

	policies := model.PolicyBundle{KeyPair: model.ResourcePolicy{MaxPendingSessions: 1}}
	sess := model.Session{AccessKey: "AKEY"}

	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := PendingQuotaValidator{}.Validate(ctx, sess, policies, tx)
		assert.False(t, d.Pass)
	})
}

func TestResourceCeilingValidators(t *testing.T) {
	mem := memstore.New()
	policies := model.PolicyBundle{
		Domain: model.DomainResourcePolicy{
			TotalResourceSlots: resource.Slot{"cpu": qty("4")},
			UsedSlots:          resource.Slot{"cpu": qty("3")},
		},
	}
	sess := model.Session{Kernels: []model.Kernel{{RequestedSlots: resource.Slot{"cpu": qty("2")}}}}

	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := DomainResourceValidator{}.Validate(ctx, sess, policies, tx)
		assert.False(t, d.Pass, "3 used + 2 requested exceeds the 4 cpu ceiling")
		assert.Equal(t, model.PolicyDenial, d.Kind)
	})
}

func TestSessionTypeValidator(t *testing.T) {
	mem := memstore.New()
	mem.SeedScalingGroup(model.ScalingGroup{
		Name:                "default",
		Enabled:             true,
		AllowedSessionTypes: []model.SessionType{model.SessionTypeInteractive},
	})
	sess := model.Session{ScalingGroup: "default", SessionType: model.SessionTypeBatch}

	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := SessionTypeValidator{}.Validate(ctx, sess, model.PolicyBundle{}, tx)
		assert.False(t, d.Pass)
	})
}

func TestChainSkipsNonStarredValidatorsForSystemSessions(t *testing.T) {
	mem := memstore.New()
	mem.SeedScalingGroup(model.ScalingGroup{Name: "default", Enabled: true})
	sess := model.Session{
		SessionID:    "sys-1",
		ScalingGroup: "default",
		SessionType:  model.SessionTypeSystem,
		AccessKey:    "AKEY",
	}
	policies := model.PolicyBundle{
		Domain: model.DomainResourcePolicy{TotalResourceSlots: resource.Slot{"cpu": qty("1")}},
	}

	chain := DefaultChain()
	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := chain.Run(ctx, sess, policies, tx)
		assert.True(t, d.Pass, "non-starred DomainResourceValidator must be skipped for a system session")
	})
}

// TestChainSkipsSessionTypeValidatorForSystemSessions pins down
// SessionTypeValidator specifically: it is validator 6, not starred, so a
// SYSTEM session must bypass it even when the scaling group's allow-list
// would otherwise reject SYSTEM outright.
func TestChainSkipsSessionTypeValidatorForSystemSessions(t *testing.T) {
	mem := memstore.New()
	mem.SeedScalingGroup(model.ScalingGroup{
		Name:                "default",
		Enabled:             true,
		AllowedSessionTypes: []model.SessionType{model.SessionTypeInteractive, model.SessionTypeBatch},
	})
	sess := model.Session{
		SessionID:    "sys-1",
		ScalingGroup: "default",
		SessionType:  model.SessionTypeSystem,
		AccessKey:    "AKEY",
	}

	chain := DefaultChain()
	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := chain.Run(ctx, sess, model.PolicyBundle{}, tx)
		assert.True(t, d.Pass, "SessionTypeValidator must be skipped for a system session even when SYSTEM is not in allowed_session_types")
	})
}

func TestChainShortCircuitsOnFirstFailure(t *testing.T) {
	mem := memstore.New()
	mem.SeedDependencies("s1", []model.Dependency{{SessionID: "s1", DependsOn: "missing"}})
	sess := model.Session{SessionID: "s1", Dependencies: []string{"missing"}}

	chain := DefaultChain()
	runInTx(t, mem, func(ctx context.Context, tx store.SchedulingTx) {
		d := chain.Run(ctx, sess, model.PolicyBundle{}, tx)
		assert.False(t, d.Pass)
		assert.Contains(t, d.Info, "DependencyNotSatisfied")
	})
}
