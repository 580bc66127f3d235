package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiresource "k8s.io/apimachinery/pkg/api/resource"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

func qty(s string) apiresource.Quantity { return apiresource.MustParse(s) }

func sess(id string, priority int, createdAt time.Time, cpu string) model.Session {
	return model.Session{
		SessionID:   id,
		Priority:    priority,
		CreatedAt:   createdAt,
		ClusterMode: model.ClusterModeSingleNode,
		Kernels: []model.Kernel{
			{KernelID: id + "-k", RequestedSlots: resource.Slot{"cpu": qty(cpu)}},
		},
	}
}

func TestFIFOStableTieBreak(t *testing.T) {
	now := time.Now()
	s, err := New("fifo", nil)
	require.NoError(t, err)

	pending := []model.Session{
		sess("b", 0, now, "1"),
		sess("a", 0, now, "1"),
		sess("c", 5, now, "1"),
	}
	out := s.Prioritize(pending, nil)
	require.Len(t, out, 3)
	assert.Equal(t, "c", out[0].SessionID, "higher priority goes first")
	assert.Equal(t, "a", out[1].SessionID, "equal priority/time ties break by session_id asc")
	assert.Equal(t, "b", out[2].SessionID)
}

func TestFIFOPickDoesNotSkipUnfundableHead(t *testing.T) {
	s, err := New("fifo", nil)
	require.NoError(t, err)

	now := time.Now()
	prioritized := s.Prioritize([]model.Session{
		sess("big", 1, now, "8"),
		sess("small", 0, now, "1"),
	}, nil)

	free := map[string]resource.Slot{"a1": {"cpu": qty("2")}}
	picked, ok := s.Pick(prioritized, free)
	require.True(t, ok, "fifo still offers the head for placement to attempt and fail with NoSuitableAgent")
	assert.Equal(t, "big", picked.SessionID, "fifo never skips ahead to a smaller candidate behind it")
}

func TestFIFOPickReturnsHeadWhenItFits(t *testing.T) {
	s, err := New("fifo", nil)
	require.NoError(t, err)

	now := time.Now()
	prioritized := s.Prioritize([]model.Session{
		sess("big", 1, now, "8"),
		sess("small", 0, now, "1"),
	}, nil)

	free := map[string]resource.Slot{"a1": {"cpu": qty("8")}}
	picked, ok := s.Pick(prioritized, free)
	require.True(t, ok)
	assert.Equal(t, "big", picked.SessionID)
}

func TestDRFPickSkipsUnfundableHead(t *testing.T) {
	s, err := New("drf", nil)
	require.NoError(t, err)

	now := time.Now()
	prioritized := s.Prioritize([]model.Session{
		sess("big", 1, now, "8"),
		sess("small", 0, now, "1"),
	}, nil)

	free := map[string]resource.Slot{"a1": {"cpu": qty("2")}}
	picked, ok := s.Pick(prioritized, free)
	require.True(t, ok)
	assert.Equal(t, "small", picked.SessionID, "drf looks past an unfundable head to the next fitting session")
}

func TestLIFOReversesWithinPriority(t *testing.T) {
	s, err := New("lifo", nil)
	require.NoError(t, err)

	base := time.Now()
	pending := []model.Session{
		sess("first", 0, base, "1"),
		sess("second", 0, base.Add(time.Minute), "1"),
	}
	out := s.Prioritize(pending, nil)
	assert.Equal(t, "second", out[0].SessionID, "lifo runs the more recent session first")
}

func TestFairshareOrdersLightUserFirst(t *testing.T) {
	s, err := New("fairshare", nil)
	require.NoError(t, err)

	now := time.Now()
	pending := []model.Session{
		{SessionID: "heavy-user-sess", AccessKey: "heavy", CreatedAt: now},
		{SessionID: "light-user-sess", AccessKey: "light", CreatedAt: now},
	}
	existing := []model.Session{
		{SessionID: "r1", AccessKey: "heavy"},
		{SessionID: "r2", AccessKey: "heavy"},
		{SessionID: "r3", AccessKey: "heavy"},
	}
	out := s.Prioritize(pending, existing)
	assert.Equal(t, "light-user-sess", out[0].SessionID)
}

func TestUnknownSchedulerError(t *testing.T) {
	_, err := New("nonexistent", nil)
	require.Error(t, err)
	var unknown *UnknownSchedulerError
	require.ErrorAs(t, err, &unknown)
}
