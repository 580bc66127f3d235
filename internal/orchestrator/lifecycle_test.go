package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lablup/baimgr-core/internal/agentrpc"
	"github.com/lablup/baimgr-core/internal/config"
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
	memstore "github.com/lablup/baimgr-core/internal/store/memory"
)

func boundKernelSession(id, accessKey, scalingGroup, agentID, agentAddr string, status model.SessionStatus) model.Session {
	return model.Session{
		SessionID:    id,
		AccessKey:    accessKey,
		ScalingGroup: scalingGroup,
		SessionType:  model.SessionTypeInteractive,
		ClusterMode:  model.ClusterModeSingleNode,
		ClusterSize:  1,
		Status:       status,
		CreatedAt:    time.Now(),
		Kernels: []model.Kernel{
			{
				KernelID:       id + "-k1",
				SessionID:      id,
				Role:           model.KernelRoleMain,
				AgentID:        agentID,
				AgentAddr:      agentAddr,
				RequestedSlots: resource.Slot{"cpu": qty("1")},
				Status:         status,
			},
		},
	}
}

// TestDispatchPreparationAdvancesScheduledToPreparing exercises the first
// lifecycle edge: a SCHEDULED session with every kernel bound to an agent
// moves to PREPARING once CreateKernels succeeds for every agent involved.
func TestDispatchPreparationAdvancesScheduledToPreparing(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()

	mem.SeedScalingGroup(model.ScalingGroup{Name: "g1", Enabled: true})
	mem.SeedAgent(aliveAgent("a1", "g1", resource.Slot{"cpu": qty("4")}))
	mem.SeedSession(boundKernelSession("s1", "ak1", "g1", "a1", "addr1", model.SessionScheduled))

	mock := agentrpc.NewMockClient()
	o := New(mem, nil, mock, nil, testScheduleConfig())
	group, err := mem.ReadScalingGroup(ctx, "g1")
	require.NoError(t, err)

	o.dispatchPreparation(ctx, group)

	sess, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionPreparing, sess.Status)
	assert.Equal(t, 1, mock.CreateCalls())

	// A second dispatch pass against the same (now PREPARING) session is a
	// no-op: ListByStatus(SCHEDULED) no longer finds it.
	o.dispatchPreparation(ctx, group)
	assert.Equal(t, 1, mock.CreateCalls())
}

// TestAdvancePreparationMovesOneStageAtATime checks that a PREPARING session
// only advances to PULLING once every kernel reports PULLING, never jumping
// straight to a later stage even if the mock already reports one.
func TestAdvancePreparationMovesOneStageAtATime(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()

	mem.SeedScalingGroup(model.ScalingGroup{Name: "g1", Enabled: true})
	mem.SeedAgent(aliveAgent("a1", "g1", resource.Slot{"cpu": qty("4")}))
	sess := boundKernelSession("s1", "ak1", "g1", "a1", "addr1", model.SessionPreparing)
	mem.SeedSession(sess)

	mock := agentrpc.NewMockClient()
	mock.SetStatus(agentrpc.KernelStatus{KernelID: "s1-k1", Status: model.SessionRunning})
	o := New(mem, nil, mock, nil, testScheduleConfig())
	group, err := mem.ReadScalingGroup(ctx, "g1")
	require.NoError(t, err)

	o.advancePreparation(ctx, group)

	advanced, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionPulling, advanced.Status, "must move exactly one stage forward even though the mock reports RUNNING")
}

// TestAdvancePreparationWaitsForEveryKernel ensures a cluster session does
// not advance until all of its kernels have reported the target stage.
func TestAdvancePreparationWaitsForEveryKernel(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()

	mem.SeedScalingGroup(model.ScalingGroup{Name: "g1", Enabled: true})
	mem.SeedAgent(aliveAgent("a1", "g1", resource.Slot{"cpu": qty("4")}))

	sess := boundKernelSession("s1", "ak1", "g1", "a1", "addr1", model.SessionPreparing)
	sess.Kernels = append(sess.Kernels, model.Kernel{
		KernelID: "s1-k2", SessionID: "s1", Role: model.KernelRoleSub,
		AgentID: "a1", AgentAddr: "addr1", RequestedSlots: resource.Slot{"cpu": qty("1")},
	})
	mem.SeedSession(sess)

	mock := agentrpc.NewMockClient()
	mock.SetStatus(agentrpc.KernelStatus{KernelID: "s1-k1", Status: model.SessionPulling})
	// s1-k2 has no recorded status yet: GetKernelStatus errors, advanceOne
	// must bail out without transitioning.
	o := New(mem, nil, mock, nil, testScheduleConfig())
	group, err := mem.ReadScalingGroup(ctx, "g1")
	require.NoError(t, err)

	o.advancePreparation(ctx, group)

	still, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionPreparing, still.Status)
}

// TestAdvanceOneFailsSessionOnAgentError matches the agent-reported-ERROR
// branch: a kernel that comes back ERROR fails the whole session and
// releases its capacity.
func TestAdvanceOneFailsSessionOnAgentError(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()

	mem.SeedScalingGroup(model.ScalingGroup{Name: "g1", Enabled: true})
	agent := aliveAgent("a1", "g1", resource.Slot{"cpu": qty("4")})
	agent.OccupiedSlots = resource.Slot{"cpu": qty("1")}
	agent.ContainerCount = 1
	mem.SeedAgent(agent)
	mem.SeedSession(boundKernelSession("s1", "ak1", "g1", "a1", "addr1", model.SessionPreparing))

	mock := agentrpc.NewMockClient()
	mock.SetStatus(agentrpc.KernelStatus{KernelID: "s1-k1", Status: model.SessionError, StatusInfo: "OOMKilled"})
	o := New(mem, nil, mock, nil, testScheduleConfig())
	group, err := mem.ReadScalingGroup(ctx, "g1")
	require.NoError(t, err)

	o.advancePreparation(ctx, group)

	failed, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionError, failed.Status)
	assert.Equal(t, model.ResultFailure, failed.Result)
	assert.Empty(t, failed.Kernels[0].AgentID, "released kernel must be unbound")
}

// TestDispatchTerminationFinalizesSession matches the last lifecycle edge:
// TERMINATING -> TERMINATED, concurrency decremented, kernel released.
func TestDispatchTerminationFinalizesSession(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()

	mem.SeedScalingGroup(model.ScalingGroup{Name: "g1", Enabled: true})
	agent := aliveAgent("a1", "g1", resource.Slot{"cpu": qty("4")})
	agent.OccupiedSlots = resource.Slot{"cpu": qty("1")}
	agent.ContainerCount = 1
	mem.SeedAgent(agent)
	mem.SeedSession(boundKernelSession("s1", "ak1", "g1", "a1", "addr1", model.SessionTerminating))

	require.NoError(t, mem.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		_, _ = tx.IncrementConcurrency(ctx, "ak1", model.ConcurrencyRegular)
		return nil
	}))

	mock := agentrpc.NewMockClient()
	o := New(mem, nil, mock, nil, testScheduleConfig())
	group, err := mem.ReadScalingGroup(ctx, "g1")
	require.NoError(t, err)

	o.dispatchTermination(ctx, group)

	sess, ok := mem.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionTerminated, sess.Status)
	assert.Equal(t, model.ResultSuccess, sess.Result)
	assert.Equal(t, 1, mock.DestroyCalls())
	assert.Empty(t, sess.Kernels[0].AgentID)

	agents, err := mem.ListSchedulableAgents(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.True(t, agents[0].OccupiedSlots["cpu"].IsZero())
}

func testScheduleConfig() config.ScheduleConfig {
	return config.ScheduleConfig{RPCTimeout: time.Second}
}
