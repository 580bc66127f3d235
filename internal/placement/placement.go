// Package placement implements the placement engine (spec.md §4.6): binding
// a session's kernels to agents, either all onto one agent (SINGLE_NODE) or
// one agent per kernel (MULTI_NODE), with all-or-nothing rollback on any
// partial failure. Grounded on warren's scheduleGlobalService/
// scheduleReplicatedService/selectNodeForService all-or-nothing binding
// loop, generalized from Docker Swarm service placement to ResourceSlot
// kernel placement.
package placement

import (
	"context"
	"sort"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/selector"
	"github.com/lablup/baimgr-core/internal/store"
)

// Result carries the outcome of a placement attempt.
type Result struct {
	Placed bool
	Kind   model.FailureKind
	Info   string
}

func placed() Result { return Result{Placed: true} }

func failed(kind model.FailureKind, info string) Result {
	return Result{Placed: false, Kind: kind, Info: info}
}

// Engine places sessions against a pool of candidate agents using an
// injected selector, so the algorithm itself never depends on a concrete
// selection policy.
type Engine struct {
	Selector selector.Selector
}

// NewEngine builds a placement Engine around sel.
func NewEngine(sel selector.Selector) *Engine {
	return &Engine{Selector: sel}
}

// Place dispatches to PlaceSingleNode or PlaceMultiNode by sess.ClusterMode.
func (e *Engine) Place(ctx context.Context, sess model.Session, agents []model.Agent, tx store.SchedulingTx) Result {
	switch sess.ClusterMode {
	case model.ClusterModeSingleNode:
		return e.PlaceSingleNode(ctx, sess, agents, tx)
	case model.ClusterModeMultiNode:
		return e.PlaceMultiNode(ctx, sess, agents, tx)
	default:
		return failed(model.FatalPerSession, "UnknownClusterMode")
	}
}

// PlaceSingleNode implements spec.md §4.6's single-node algorithm: either a
// manual agent_id is validated against every kernel's architecture and
// aggregate demand, or the selector picks one agent for the whole session,
// and every kernel is bound to it within the scheduling transaction.
func (e *Engine) PlaceSingleNode(ctx context.Context, sess model.Session, agents []model.Agent, tx store.SchedulingTx) Result {
	demand := sess.TotalDemand()

	var chosen *model.Agent
	if sess.ManualAgentID != "" {
		agent, ok := findAgent(agents, sess.ManualAgentID)
		if !ok {
			return failed(model.FatalPerSession, "ManualAgentInvalid")
		}
		if !agentMatchesEveryKernel(*agent, sess.Kernels) {
			return failed(model.ResourceDenial, "ArchitectureMismatch")
		}
		if !resource.LessOrEqual(demand, agent.RemainingSlots()) {
			return failed(model.FatalPerSession, "ManualAgentInvalid")
		}
		if agent.MaxContainerCount > 0 && agent.ContainerCount+sess.ClusterSize > agent.MaxContainerCount {
			return failed(model.ResourceDenial, "ContainerLimitReached")
		}
		chosen = agent
	} else {
		if !allImagesShareArchitecture(sess.Kernels) {
			return failed(model.ResourceDenial, "ArchitectureMismatch")
		}
		arch := singleNodeArchitecture(sess.Kernels)
		picked, ok := e.Selector.SelectForKernel(ctx, selector.Deps{ScalingGroup: sess.ScalingGroup, Tx: tx}, agents, demand, arch)
		if !ok {
			return failed(model.ResourceDenial, "NoSuitableAgent")
		}
		chosen = picked
	}

	for _, k := range sess.Kernels {
		if err := tx.BindKernel(ctx, k.KernelID, chosen.AgentID, k.RequestedSlots); err != nil {
			return failed(model.Recoverable, "bind conflict: "+err.Error())
		}
	}
	return placed()
}

// PlaceMultiNode implements spec.md §4.6's multi-node algorithm: kernels are
// iterated in stable order (main first, then subs by kernel_id) and each
// gets its own agent from the selector. A binding failure for any kernel
// aborts the whole attempt; the caller's enclosing transaction rollback is
// what makes earlier binds within the same attempt non-durable, since
// PlaceMultiNode itself never commits.
func (e *Engine) PlaceMultiNode(ctx context.Context, sess model.Session, agents []model.Agent, tx store.SchedulingTx) Result {
	kernels := stableKernelOrder(sess.Kernels)
	remaining := append([]model.Agent(nil), agents...)

	for _, k := range kernels {
		deps := selector.Deps{ScalingGroup: sess.ScalingGroup, Tx: tx}
		agent, ok := e.Selector.SelectForKernel(ctx, deps, remaining, k.RequestedSlots, k.Architecture)
		if !ok {
			return failed(model.ResourceDenial, "NoSuitableAgent")
		}
		chosenID := agent.AgentID
		if err := tx.BindKernel(ctx, k.KernelID, chosenID, k.RequestedSlots); err != nil {
			return failed(model.Recoverable, "bind conflict: "+err.Error())
		}
		// An agent hosts at most one kernel of a multi-node session.
		next := remaining[:0:0]
		for _, a := range remaining {
			if a.AgentID != chosenID {
				next = append(next, a)
			}
		}
		remaining = next
	}
	return placed()
}

func findAgent(agents []model.Agent, agentID string) (*model.Agent, bool) {
	for i := range agents {
		if agents[i].AgentID == agentID && agents[i].Status == model.AgentAlive {
			return &agents[i], true
		}
	}
	return nil, false
}

// agentMatchesEveryKernel checks architecture compatibility against every
// kernel's own image, not just the main kernel's — the stricter reading of
// spec.md's ambiguous architecture-check scope (see DESIGN.md).
func agentMatchesEveryKernel(agent model.Agent, kernels []model.Kernel) bool {
	for _, k := range kernels {
		if k.Architecture != "" && k.Architecture != agent.Architecture {
			return false
		}
	}
	return true
}

// allImagesShareArchitecture rejects a SINGLE_NODE session whose kernels
// request incompatible architectures before ever asking the selector for a
// candidate, per spec.md's ArchitectureMismatch edge case.
func allImagesShareArchitecture(kernels []model.Kernel) bool {
	var arch string
	for _, k := range kernels {
		if k.Architecture == "" {
			continue
		}
		if arch == "" {
			arch = k.Architecture
			continue
		}
		if arch != k.Architecture {
			return false
		}
	}
	return true
}

func singleNodeArchitecture(kernels []model.Kernel) string {
	for _, k := range kernels {
		if k.Architecture != "" {
			return k.Architecture
		}
	}
	return ""
}

// stableKernelOrder returns kernels with the main kernel first, then subs
// ordered by kernel_id, per spec.md §4.6 step 1.
func stableKernelOrder(kernels []model.Kernel) []model.Kernel {
	out := make([]model.Kernel, len(kernels))
	copy(out, kernels)
	sort.SliceStable(out, func(i, j int) bool {
		iMain := out[i].Role == model.KernelRoleMain
		jMain := out[j].Role == model.KernelRoleMain
		if iMain != jMain {
			return iMain
		}
		return out[i].KernelID < out[j].KernelID
	})
	return out
}
