package orchestrator

import (
	"context"
	"errors"

	"github.com/lablup/baimgr-core/internal/agentrpc"
	"github.com/lablup/baimgr-core/internal/logger"
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// lifecycleStages is the linear ordering spec.md §4.7 imposes between a
// session entering SCHEDULED and reaching RUNNING. Each element's index is
// that status's stage number; advanceOne only ever moves a session one
// stage forward per tick, matching the state machine's declared edges.
var lifecycleStages = []model.SessionStatus{
	model.SessionPreparing,
	model.SessionPulling,
	model.SessionPrepared,
	model.SessionCreating,
	model.SessionRunning,
}

func stageIndex(status model.SessionStatus) int {
	for i, s := range lifecycleStages {
		if s == status {
			return i
		}
	}
	return -1
}

// lifecyclePass drives SCHEDULED sessions through agent dispatch and
// status-polling until they reach RUNNING, and finalizes TERMINATING
// sessions once their agents confirm teardown.
func (o *Orchestrator) lifecyclePass(ctx context.Context, group model.ScalingGroup) {
	o.dispatchPreparation(ctx, group)
	o.advancePreparation(ctx, group)
	o.dispatchTermination(ctx, group)
}

// dispatchPreparation issues CreateKernels for every SCHEDULED session's
// bound kernels and, once every agent involved has accepted the request,
// advances the session to PREPARING.
func (o *Orchestrator) dispatchPreparation(ctx context.Context, group model.ScalingGroup) {
	sessions, err := o.store.ListByStatus(ctx, group.Name, model.SessionScheduled)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("failed to list scheduled sessions")
		return
	}
	for _, sess := range sessions {
		o.dispatchOnePreparation(ctx, sess)
	}
}

func (o *Orchestrator) dispatchOnePreparation(ctx context.Context, sess model.Session) {
	byAgent := map[string][]model.Kernel{}
	for _, k := range sess.Kernels {
		byAgent[k.AgentAddr] = append(byAgent[k.AgentAddr], k)
	}

	allOK := len(byAgent) > 0
	for addr, kernels := range byAgent {
		if addr == "" {
			allOK = false
			continue
		}
		req := agentrpc.CreateKernelsRequest{
			IdempotencyKey: sess.SessionID + ":" + addr,
			SessionID:      sess.SessionID,
		}
		for _, k := range kernels {
			req.Kernels = append(req.Kernels, agentrpc.KernelSpec{
				KernelID:       k.KernelID,
				Image:          k.Image,
				Architecture:   k.Architecture,
				RequestedSlots: k.RequestedSlots,
				Role:           k.Role,
			})
		}

		rpcCtx, cancel := context.WithTimeout(ctx, o.rpcTimeout())
		_, err := o.agents.CreateKernels(rpcCtx, addr, req)
		cancel()
		if err != nil {
			logger.Orchestrator().Warn().Err(err).Str("session_id", sess.SessionID).Str("agent_addr", addr).
				Msg("create_kernels dispatch failed, will retry next tick")
			allOK = false
		}
	}
	if !allOK {
		return
	}

	err := o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		if err := tx.TransitionSession(ctx, sess.SessionID, model.SessionScheduled, model.SessionPreparing, "Preparing", nil); err != nil {
			return err
		}
		return tx.AppendStatusHistory(ctx, sess.SessionID, model.SessionPreparing, "Preparing")
	})
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("session_id", sess.SessionID).Msg("failed to transition to PREPARING")
	}
}

// advancePreparation polls GetKernelStatus for every session sitting in one
// of the intermediate lifecycle stages and moves it one stage forward once
// every one of its kernels has reported reaching that stage.
func (o *Orchestrator) advancePreparation(ctx context.Context, group model.ScalingGroup) {
	// Walk the stages latest-first so a session moved forward in this pass
	// is not listed again under its new stage until the next tick.
	stages := lifecycleStages[:len(lifecycleStages)-1]
	for i := len(stages) - 1; i >= 0; i-- {
		status := stages[i]
		sessions, err := o.store.ListByStatus(ctx, group.Name, status)
		if err != nil {
			logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Str("status", string(status)).
				Msg("failed to list sessions for lifecycle advancement")
			continue
		}
		for _, sess := range sessions {
			o.advanceOne(ctx, sess, status)
		}
	}
}

func (o *Orchestrator) advanceOne(ctx context.Context, sess model.Session, current model.SessionStatus) {
	currentIdx := stageIndex(current)
	targetIdx := currentIdx + 1

	for _, k := range sess.Kernels {
		rpcCtx, cancel := context.WithTimeout(ctx, o.rpcTimeout())
		status, err := o.agents.GetKernelStatus(rpcCtx, k.AgentAddr, k.KernelID)
		cancel()
		if err != nil {
			logger.Orchestrator().Warn().Err(err).Str("session_id", sess.SessionID).Str("kernel_id", k.KernelID).
				Msg("get_kernel_status failed, will retry next tick")
			return
		}
		if status.Status == model.SessionError {
			o.failSession(ctx, sess.SessionID, "AgentLostDuringPreparation: "+status.StatusInfo)
			return
		}
		if stageIndex(status.Status) < targetIdx {
			return // at least one kernel has not reached the next stage yet
		}
	}

	o.transitionLifecycleStage(ctx, sess.SessionID, current, lifecycleStages[targetIdx])
}

func (o *Orchestrator) transitionLifecycleStage(ctx context.Context, sessionID string, from, to model.SessionStatus) {
	err := o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		if err := tx.TransitionSession(ctx, sessionID, from, to, string(to), nil); err != nil {
			return err
		}
		return tx.AppendStatusHistory(ctx, sessionID, to, string(to))
	})
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("session_id", sessionID).Str("to", string(to)).Msg("failed lifecycle transition")
	}
}

// failSession marks a session ERROR, releases whatever agent capacity it
// held, and decrements its concurrency counter — the terminal handling
// spec.md §7 requires for a Fatal per-session failure discovered mid
// preparation (e.g. the bound agent disappeared).
func (o *Orchestrator) failSession(ctx context.Context, sessionID, reason string) {
	err := o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status.Terminal() {
			return nil
		}
		data := map[string]any{store.ResultDataKey: model.ResultFailure}
		if err := tx.TransitionSession(ctx, sessionID, sess.Status, model.SessionError, reason, data); err != nil {
			return err
		}
		if err := tx.AppendStatusHistory(ctx, sessionID, model.SessionError, reason); err != nil {
			return err
		}
		return releaseSessionCapacity(ctx, tx, sess)
	})
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("session_id", sessionID).Msg("failed to mark session ERROR")
	}
}

// dispatchTermination issues DestroyKernel for every TERMINATING session's
// bound kernels and, once every agent has acknowledged, finalizes the
// session as TERMINATED and releases its accounting.
func (o *Orchestrator) dispatchTermination(ctx context.Context, group model.ScalingGroup) {
	sessions, err := o.store.ListByStatus(ctx, group.Name, model.SessionTerminating)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("failed to list terminating sessions")
		return
	}
	for _, sess := range sessions {
		o.terminateOne(ctx, sess)
	}
}

func (o *Orchestrator) terminateOne(ctx context.Context, sess model.Session) {
	allOK := true
	for _, k := range sess.Kernels {
		if !k.Bound() {
			continue
		}
		req := agentrpc.DestroyKernelRequest{
			IdempotencyKey: sess.SessionID + ":" + k.KernelID,
			KernelID:       k.KernelID,
			Reason:         sess.StatusInfo,
		}
		rpcCtx, cancel := context.WithTimeout(ctx, o.rpcTimeout())
		err := o.agents.DestroyKernel(rpcCtx, k.AgentAddr, req)
		cancel()
		if err != nil {
			logger.Orchestrator().Warn().Err(err).Str("session_id", sess.SessionID).Str("kernel_id", k.KernelID).
				Msg("destroy_kernel dispatch failed, will retry next tick")
			allOK = false
		}
	}
	if !allOK {
		return
	}

	err := o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		data := map[string]any{store.ResultDataKey: model.ResultSuccess}
		if err := tx.TransitionSession(ctx, sess.SessionID, model.SessionTerminating, model.SessionTerminated, "Terminated", data); err != nil {
			return err
		}
		if err := tx.AppendStatusHistory(ctx, sess.SessionID, model.SessionTerminated, "Terminated"); err != nil {
			return err
		}
		return releaseSessionCapacity(ctx, tx, sess)
	})
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("session_id", sess.SessionID).Msg("failed to finalize termination")
	}
}

// releaseSessionCapacity decrements sess's concurrency counter and releases
// every one of its bound kernels back to their agents. Shared by
// failSession and terminateOne: both are terminal exits from the
// non-terminal state machine and must return the same accounting.
func releaseSessionCapacity(ctx context.Context, tx store.SchedulingTx, sess model.Session) error {
	kind := model.ConcurrencyRegular
	if sess.IsPrivate() {
		kind = model.ConcurrencySystem
	}
	if _, err := tx.DecrementConcurrency(ctx, sess.AccessKey, kind); err != nil {
		return err
	}
	for _, k := range sess.Kernels {
		if err := tx.ReleaseKernel(ctx, k.KernelID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}
