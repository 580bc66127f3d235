package model

import (
	"time"

	"github.com/lablup/baimgr-core/internal/resource"
)

// KernelRole distinguishes the main container of a session from its
// sub-kernels in a multi-node cluster.
type KernelRole string

const (
	KernelRoleMain KernelRole = "MAIN"
	KernelRoleSub  KernelRole = "SUB"
)

// Kernel is a single container bound to (at most) one agent.
type Kernel struct {
	KernelID       string
	SessionID      string
	Role           KernelRole
	ClusterIdx     int
	Image          string
	Architecture   string
	RequestedSlots resource.Slot

	AgentID   string // empty until placed
	AgentAddr string

	Status     SessionStatus // kernels share the session status vocabulary
	StatusInfo string

	CreatedAt time.Time
}

// Bound reports whether the kernel has been assigned to an agent.
func (k Kernel) Bound() bool {
	return k.AgentID != ""
}
