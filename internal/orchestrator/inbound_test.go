package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
	memstore "github.com/lablup/baimgr-core/internal/store/memory"
)

func basicSpec(accessKey, scalingGroup string) CreateSessionSpec {
	return CreateSessionSpec{
		Name:         "notebook",
		AccessKey:    accessKey,
		ScalingGroup: scalingGroup,
		SessionType:  model.SessionTypeInteractive,
		ClusterMode:  model.ClusterModeSingleNode,
		Kernels: []KernelSpec{
			{Image: "python:3.11", Architecture: "x86_64", RequestedSlots: resource.Slot{"cpu": qty("1")}},
		},
	}
}

// TestCreateSessionPersistsPendingSession exercises create_session's happy
// path: a new PENDING session lands in the store with exactly the kernels
// requested, and an Enqueued event is published on commit.
func TestCreateSessionPersistsPendingSession(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	o := newTestOrchestrator(mem)

	id, err := o.CreateSession(ctx, basicSpec("ak1", "g1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, ok := mem.Session(id)
	require.True(t, ok)
	assert.Equal(t, model.SessionPending, sess.Status)
	assert.Equal(t, "ak1", sess.AccessKey)
	require.Len(t, sess.Kernels, 1)
	assert.Equal(t, "python:3.11", sess.Kernels[0].Image)
	assert.True(t, resource.LessOrEqual(resource.Slot{"cpu": qty("1")}, sess.RequestedSlots))

	published := mem.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "enqueued", string(published[0].Kind))
	assert.Equal(t, id, published[0].SessionID)
}

// TestHasDependencyCycleDetectsTransitiveLoop matches spec.md §8's
// DependencyCycle boundary: a dependency chain that loops back to the
// session being created is rejected, not just a direct self-reference.
func TestHasDependencyCycleDetectsTransitiveLoop(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()

	mem.SeedDependencies("dep1", []model.Dependency{{SessionID: "dep1", DependsOn: "new-session"}})

	err := mem.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		cyclic, err := hasDependencyCycle(ctx, tx, "new-session", []string{"dep1"})
		require.NoError(t, err)
		assert.True(t, cyclic)
		return nil
	})
	require.NoError(t, err)
}

// TestHasDependencyCycleAllowsAcyclicChain confirms an ordinary dependency
// chain that never loops back is accepted.
func TestHasDependencyCycleAllowsAcyclicChain(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()

	mem.SeedDependencies("dep1", []model.Dependency{{SessionID: "dep1", DependsOn: "dep2"}})

	err := mem.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		cyclic, err := hasDependencyCycle(ctx, tx, "new-session", []string{"dep1"})
		require.NoError(t, err)
		assert.False(t, cyclic)
		return nil
	})
	require.NoError(t, err)
}

// TestCancelSessionFromPending matches cancel_session's primary edge:
// PENDING -> CANCELLED, recorded and published, never touching capacity
// that was never reserved.
func TestCancelSessionFromPending(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	o := newTestOrchestrator(mem)

	mem.SeedSession(singleKernelSession("s1", "ak1", "g1", resource.Slot{"cpu": qty("1")}, time.Now()))

	require.NoError(t, o.CancelSession(ctx, "s1"))

	sess, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionCancelled, sess.Status)

	published := mem.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "cancelled", string(published[0].Kind))
}

// TestCancelSessionIdempotentOnTerminal confirms repeated cancel_session
// calls never advance a session past its terminal state.
func TestCancelSessionIdempotentOnTerminal(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	o := newTestOrchestrator(mem)

	terminated := singleKernelSession("s1", "ak1", "g1", resource.Slot{"cpu": qty("1")}, time.Now())
	terminated.Status = model.SessionTerminated
	terminated.Result = model.ResultSuccess
	mem.SeedSession(terminated)

	require.NoError(t, o.CancelSession(ctx, "s1"))

	sess, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionTerminated, sess.Status)
	assert.Equal(t, model.ResultSuccess, sess.Result)
	assert.Empty(t, mem.Published())
}

// TestCancelSessionDuringPreparationIsRecordedNotRejected exercises the
// idempotence law's other face: a cancel request arriving mid-preparation
// doesn't error and doesn't illegally jump the session to CANCELLED either;
// it is simply recorded for visibility.
func TestCancelSessionDuringPreparationIsRecordedNotRejected(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	o := newTestOrchestrator(mem)

	mem.SeedSession(boundKernelSession("s1", "ak1", "g1", "a1", "addr1", model.SessionPreparing))

	require.NoError(t, o.CancelSession(ctx, "s1"))

	sess, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionPreparing, sess.Status)
	require.NotEmpty(t, sess.StatusHistory)
	assert.Equal(t, "CancelRequestedDuringPreparation", sess.StatusHistory[len(sess.StatusHistory)-1].Info)
}

// TestDestroySessionFromRunningMovesToTerminating is destroy_session's
// primary edge: RUNNING -> TERMINATING, left for dispatchTermination's next
// tick to actually tear down kernels and finalize.
func TestDestroySessionFromRunningMovesToTerminating(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	o := newTestOrchestrator(mem)

	mem.SeedSession(boundKernelSession("s1", "ak1", "g1", "a1", "addr1", model.SessionRunning))

	require.NoError(t, o.DestroySession(ctx, "s1"))

	sess, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionTerminating, sess.Status)

	published := mem.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "terminating", string(published[0].Kind))
}

// TestDestroySessionFromPendingCancelsInstead matches the case where a
// caller destroys a session that was never scheduled: nothing is running,
// so it is cancelled rather than routed toward TERMINATING.
func TestDestroySessionFromPendingCancelsInstead(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	o := newTestOrchestrator(mem)

	mem.SeedSession(singleKernelSession("s1", "ak1", "g1", resource.Slot{"cpu": qty("1")}, time.Now()))

	require.NoError(t, o.DestroySession(ctx, "s1"))

	sess, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionCancelled, sess.Status)
}

// TestDestroySessionIdempotentOnTerminating confirms a second destroy
// request against an already-TERMINATING session is a silent no-op.
func TestDestroySessionIdempotentOnTerminating(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	o := newTestOrchestrator(mem)

	mem.SeedSession(boundKernelSession("s1", "ak1", "g1", "a1", "addr1", model.SessionTerminating))

	require.NoError(t, o.DestroySession(ctx, "s1"))

	sess, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionTerminating, sess.Status)
	assert.Empty(t, mem.Published())
}

// TestListSessionsFiltersByStatusAndAccessKey covers list_sessions'
// filtering contract across both dimensions at once.
func TestListSessionsFiltersByStatusAndAccessKey(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	o := newTestOrchestrator(mem)

	now := time.Now()
	mem.SeedSession(singleKernelSession("s1", "ak1", "g1", resource.Slot{"cpu": qty("1")}, now))
	running := singleKernelSession("s2", "ak1", "g1", resource.Slot{"cpu": qty("1")}, now.Add(time.Second))
	running.Status = model.SessionRunning
	mem.SeedSession(running)
	other := singleKernelSession("s3", "ak2", "g1", resource.Slot{"cpu": qty("1")}, now.Add(2*time.Second))
	mem.SeedSession(other)

	all, err := o.ListSessions(ctx, SessionFilter{ScalingGroup: "g1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyAK1, err := o.ListSessions(ctx, SessionFilter{ScalingGroup: "g1", AccessKey: "ak1"})
	require.NoError(t, err)
	require.Len(t, onlyAK1, 2)

	onlyPending, err := o.ListSessions(ctx, SessionFilter{ScalingGroup: "g1", Status: model.SessionPending})
	require.NoError(t, err)
	require.Len(t, onlyPending, 2)
	for _, sess := range onlyPending {
		assert.Equal(t, model.SessionPending, sess.Status)
	}
}
