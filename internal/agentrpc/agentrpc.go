// Package agentrpc is the outbound contract between the core and the
// per-platform agent processes (spec.md §6): CreateKernels, DestroyKernel,
// GetKernelStatus, plus a StorageClient for mount lifecycle. Message
// shapes are adapted from the teacher's CommandMessage/AckMessage/
// CompleteMessage/FailedMessage/StatusMessage, generalized from
// session-level commands to kernel-level ones and stripped of the
// WebSocket envelope — the wire transport is out of scope, only the
// contract is kept.
package agentrpc

import (
	"context"
	"time"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

// CreateKernelsRequest asks an agent to create one or more kernels bound to
// it. IdempotencyKey lets the agent recognize and no-op a retried request
// that already succeeded, per spec.md §8's round-trip law.
type CreateKernelsRequest struct {
	IdempotencyKey string
	SessionID      string
	Kernels        []KernelSpec
}

// KernelSpec is the agent-facing description of one kernel to create.
type KernelSpec struct {
	KernelID       string
	Image          string
	Architecture   string
	RequestedSlots resource.Slot
	Role           model.KernelRole
}

// CreateKernelsResult reports what the agent actually did for each
// requested kernel.
type CreateKernelsResult struct {
	Kernels []KernelOutcome
}

// KernelOutcome is one kernel's creation result.
type KernelOutcome struct {
	KernelID string
	Addr     string
	Error    string // empty on success
}

// DestroyKernelRequest asks an agent to tear down one kernel.
type DestroyKernelRequest struct {
	IdempotencyKey string
	KernelID       string
	Reason         string
}

// KernelStatus is the agent-reported live state of one kernel, polled or
// pushed by GetKernelStatus.
type KernelStatus struct {
	KernelID   string
	Status     model.SessionStatus // kernels share the session status vocabulary
	StatusInfo string
	ObservedAt time.Time
}

// Client is the outbound RPC surface the orchestrator drives to realize a
// placement decision on an agent. CreateKernels and DestroyKernel are
// idempotency-keyed so a retried call after a timeout never double-creates
// or double-destroys; GetKernelStatus is a read and takes no key.
type Client interface {
	CreateKernels(ctx context.Context, agentAddr string, req CreateKernelsRequest) (CreateKernelsResult, error)
	DestroyKernel(ctx context.Context, agentAddr string, req DestroyKernelRequest) error
	GetKernelStatus(ctx context.Context, agentAddr, kernelID string) (KernelStatus, error)
}

// MountRequest asks a StorageClient to attach a vfolder to a kernel.
type MountRequest struct {
	IdempotencyKey string
	KernelID       string
	VFolderID      string
	MountPath      string
	ReadOnly       bool
}

// UnmountRequest asks a StorageClient to detach a vfolder from a kernel.
type UnmountRequest struct {
	IdempotencyKey string
	KernelID       string
	VFolderID      string
}

// StorageClient surfaces StorageMount failures per spec.md §7; contract
// only, no concrete backend is part of this core.
type StorageClient interface {
	Mount(ctx context.Context, req MountRequest) error
	Unmount(ctx context.Context, req UnmountRequest) error
}
