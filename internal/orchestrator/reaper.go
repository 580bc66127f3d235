package orchestrator

import (
	"context"
	"time"

	"github.com/lablup/baimgr-core/internal/logger"
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// reapPendingTimeouts cancels every PENDING session that has sat in the
// queue longer than its scaling group's pending_timeout (spec.md §8
// scenario 6). It runs on the cron schedule configured by
// config.ScheduleConfig.ReaperCron, independent of and not holding any
// scaling group's scheduling lock, since cancelling a stale PENDING session
// never conflicts with a concurrent scheduling attempt: TransitionSession's
// compare-and-swap on from=PENDING makes the two race safely, whichever
// wins.
func (o *Orchestrator) reapPendingTimeouts(ctx context.Context) {
	groups, err := o.store.ListScalingGroups(ctx)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Msg("reaper: failed to list scaling groups")
		return
	}

	for _, group := range groups {
		timeout := o.pendingTimeout(group)
		if timeout <= 0 {
			continue
		}

		sessions, err := o.store.ListPending(ctx, group.Name)
		if err != nil {
			logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("reaper: failed to list pending sessions")
			continue
		}

		cutoff := time.Now().Add(-timeout)
		for _, sess := range sessions {
			if sess.CreatedAt.After(cutoff) {
				continue
			}
			o.cancelPendingTimeout(ctx, sess.SessionID)
		}
	}
}

func (o *Orchestrator) pendingTimeout(group model.ScalingGroup) time.Duration {
	if group.PendingTimeout > 0 {
		return time.Duration(group.PendingTimeout) * time.Second
	}
	return o.cfg.PendingTimeoutDefault
}

func (o *Orchestrator) cancelPendingTimeout(ctx context.Context, sessionID string) {
	err := o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != model.SessionPending {
			return nil // already picked up by a scheduling pass racing this reaper
		}
		if err := tx.TransitionSession(ctx, sessionID, model.SessionPending, model.SessionCancelled, "PendingTimeout", nil); err != nil {
			return err
		}
		return tx.AppendStatusHistory(ctx, sessionID, model.SessionCancelled, "PendingTimeout")
	})
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("session_id", sessionID).Msg("reaper: failed to cancel timed-out session")
	}
}
