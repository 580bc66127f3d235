package model

import (
	"time"

	"github.com/lablup/baimgr-core/internal/resource"
)

// AgentStatus tracks an agent's membership in the scheduling pool.
type AgentStatus string

const (
	AgentAlive     AgentStatus = "ALIVE"
	AgentLost      AgentStatus = "LOST"
	AgentTerminated AgentStatus = "TERMINATED"
)

// Agent is a compute node available to run kernels, as last reported by its
// heartbeat.
type Agent struct {
	AgentID      string
	Addr         string
	ScalingGroup string
	Architecture string
	Status       AgentStatus

	AvailableSlots    resource.Slot // total capacity
	OccupiedSlots     resource.Slot // currently bound to running kernels
	ContainerCount    int
	MaxContainerCount int // ceiling on simultaneously bound kernels; 0 means unbounded

	LastHeartbeat time.Time
}

// RemainingSlots returns capacity not currently occupied. Never negative in
// a consistent store, but computed defensively via resource.Sub's error
// return rather than assumed.
func (a Agent) RemainingSlots() resource.Slot {
	remaining, err := resource.Sub(a.AvailableSlots, a.OccupiedSlots)
	if err != nil {
		return resource.Slot{}
	}
	return remaining
}

// Fits reports whether demand can be satisfied by the agent's remaining
// capacity and architecture.
func (a Agent) Fits(demand resource.Slot, architecture string) bool {
	if a.Status != AgentAlive {
		return false
	}
	if architecture != "" && a.Architecture != architecture {
		return false
	}
	return resource.LessOrEqual(demand, a.RemainingSlots())
}

// AgentHeartbeat is one periodic liveness/capacity report from an agent.
// No selector, reaper or orchestrator code reads it: a lost kernel is
// detected from the ERROR status its agent reports through GetKernelStatus.
type AgentHeartbeat struct {
	AgentID        string
	ReceivedAt     time.Time
	AvailableSlots resource.Slot
	OccupiedSlots  resource.Slot
	ContainerCount int
}
