package selector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiresource "k8s.io/apimachinery/pkg/api/resource"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
	memstore "github.com/lablup/baimgr-core/internal/store/memory"
)

func qty(s string) apiresource.Quantity { return apiresource.MustParse(s) }

func agent(id, arch string, cpu string) model.Agent {
	return model.Agent{
		AgentID:        id,
		Architecture:   arch,
		Status:         model.AgentAlive,
		AvailableSlots: resource.Slot{"cpu": qty(cpu)},
	}
}

func TestConcentratedPicksLeastRemainingThatFits(t *testing.T) {
	s, err := New("concentrated", nil)
	require.NoError(t, err)

	candidates := []model.Agent{
		agent("roomy", "x86_64", "8"),
		agent("tight", "x86_64", "2"),
	}
	chosen, ok := s.SelectForKernel(context.Background(), Deps{}, candidates, resource.Slot{"cpu": qty("2")}, "x86_64")
	require.True(t, ok)
	assert.Equal(t, "tight", chosen.AgentID)
}

func TestDispersedPicksMostRemaining(t *testing.T) {
	s, err := New("dispersed", nil)
	require.NoError(t, err)

	candidates := []model.Agent{
		agent("roomy", "x86_64", "8"),
		agent("tight", "x86_64", "2"),
	}
	chosen, ok := s.SelectForKernel(context.Background(), Deps{}, candidates, resource.Slot{"cpu": qty("2")}, "x86_64")
	require.True(t, ok)
	assert.Equal(t, "roomy", chosen.AgentID)
}

func TestArchMismatchExcludesAgent(t *testing.T) {
	s, err := New("dispersed", nil)
	require.NoError(t, err)

	candidates := []model.Agent{agent("arm-box", "arm64", "8")}
	_, ok := s.SelectForKernel(context.Background(), Deps{}, candidates, resource.Slot{"cpu": qty("1")}, "x86_64")
	assert.False(t, ok)
}

func TestRoundRobinCyclesAndPersistsCursor(t *testing.T) {
	s, err := New("roundrobin", nil)
	require.NoError(t, err)

	candidates := []model.Agent{agent("a", "x86_64", "4"), agent("b", "x86_64", "4")}
	mem := memstore.New()
	mem.SeedScalingGroup(model.ScalingGroup{Name: "default", Enabled: true})

	var first, second *model.Agent
	err = mem.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		var ok bool
		first, ok = s.SelectForKernel(ctx, Deps{ScalingGroup: "default", Tx: tx}, candidates, resource.Slot{"cpu": qty("1")}, "x86_64")
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	err = mem.WithSchedulingTx(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		var ok bool
		second, ok = s.SelectForKernel(ctx, Deps{ScalingGroup: "default", Tx: tx}, candidates, resource.Slot{"cpu": qty("1")}, "x86_64")
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.AgentID, second.AgentID, "consecutive ticks must cycle to a different agent")
}
