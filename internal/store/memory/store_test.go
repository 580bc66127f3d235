package memory

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
)

func qty(s string) apiresource.Quantity { return apiresource.MustParse(s) }

func seedBasicSession(s *Store) {
	s.SeedSession(model.Session{
		SessionID:   "sess-1",
		AccessKey:   "AKEY",
		Status:      model.SessionPending,
		CreatedAt:   time.Now().Add(-time.Minute),
		ScalingGroup: "default",
		Kernels: []model.Kernel{
			{KernelID: "kern-1", SessionID: "sess-1", Role: model.KernelRoleMain, RequestedSlots: resource.Slot{"cpu": qty("2")}},
		},
	})
	s.SeedAgent(model.Agent{
		AgentID:        "agent-1",
		ScalingGroup:   "default",
		Status:         model.AgentAlive,
		AvailableSlots: resource.Slot{"cpu": qty("4")},
	})
}

func TestListPendingOrdersByCreatedAt(t *testing.T) {
	s := New()
	seedBasicSession(s)
	s.SeedSession(model.Session{
		SessionID:    "sess-0",
		Status:       model.SessionPending,
		CreatedAt:    time.Now().Add(-time.Hour),
		ScalingGroup: "default",
	})

	pending, err := s.ListPending(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "sess-0", pending[0].SessionID)
	assert.Equal(t, "sess-1", pending[1].SessionID)
}

func TestBindKernelRespectsCapacity(t *testing.T) {
	s := New()
	seedBasicSession(s)

	err := s.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		return tx.BindKernel(ctx, "kern-1", "agent-1", resource.Slot{"cpu": qty("2")})
	})
	require.NoError(t, err)

	agents, err := s.ListSchedulableAgents(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.True(t, resource.IsZero(agents[0].RemainingSlots()))
}

func TestBindKernelCapacityConflict(t *testing.T) {
	s := New()
	seedBasicSession(s)

	err := s.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		return tx.BindKernel(ctx, "kern-1", "agent-1", resource.Slot{"cpu": qty("8")})
	})
	assert.ErrorIs(t, err, store.ErrCapacityConflict)
}

func TestTransitionSessionStaleState(t *testing.T) {
	s := New()
	seedBasicSession(s)

	err := s.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		return tx.TransitionSession(ctx, "sess-1", model.SessionRunning, model.SessionTerminating, "", nil)
	})
	assert.ErrorIs(t, err, store.ErrStaleState)
}

func TestTransitionSessionCommitsAndPublishes(t *testing.T) {
	s := New()
	seedBasicSession(s)

	err := s.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		if err := tx.TransitionSession(ctx, "sess-1", model.SessionPending, model.SessionScheduled, "picked", nil); err != nil {
			return err
		}
		return tx.AppendStatusHistory(ctx, "sess-1", model.SessionScheduled, "picked")
	})
	require.NoError(t, err)

	sess, ok := s.Session("sess-1")
	require.True(t, ok)
	assert.Equal(t, model.SessionScheduled, sess.Status)
	assert.NotNil(t, sess.ScheduledAt)

	published := s.Published()
	require.Len(t, published, 1)
	assert.Equal(t, 1, published[0].SequenceNo)
}

func TestAbortedTransactionDiscardsEvents(t *testing.T) {
	s := New()
	seedBasicSession(s)

	err := s.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		_ = tx.AppendStatusHistory(ctx, "sess-1", model.SessionScheduled, "picked")
		return assert.AnError
	})
	assert.Error(t, err)
	assert.Empty(t, s.Published())
}

func TestConcurrencyCounterRoundTrip(t *testing.T) {
	s := New()
	var got int
	err := s.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		var err error
		got, err = tx.IncrementConcurrency(ctx, "AKEY", model.ConcurrencyRegular)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	err = s.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		var err error
		got, err = tx.DecrementConcurrency(ctx, "AKEY", model.ConcurrencyRegular)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}
