package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lablup/baimgr-core/internal/events"
	"github.com/lablup/baimgr-core/internal/logger"
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/placement"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/scheduler"
	"github.com/lablup/baimgr-core/internal/selector"
	"github.com/lablup/baimgr-core/internal/store"
	"github.com/lablup/baimgr-core/internal/validate"
)

// errDenied is the sentinel scheduleOne's transaction closure returns when
// the validator chain or placement engine rejects a candidate, so
// WithSchedulingTx rolls back every mutation the attempt made (in
// particular ConcurrencyValidator's counter increment) instead of
// committing a failed attempt's side effects. The denial reason is
// recorded afterward through a second, independent transaction.
var errDenied = errors.New("orchestrator: candidate denied")

// schedulingPass implements spec.md §4.3's tick-level driver: prioritize
// pending sessions, let the scheduler pick the next candidate, attempt it,
// and repeat against the remaining candidates until none are left or a
// Recoverable/FatalSystemic outcome says the rest should wait for the next
// tick.
func (o *Orchestrator) schedulingPass(ctx context.Context, group model.ScalingGroup) {
	sched, err := scheduler.New(group.SchedulerName, nil)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("unknown scheduler plugin, skipping scheduling pass")
		return
	}
	sel, err := selector.New(group.SelectorName, nil)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("unknown selector plugin, skipping scheduling pass")
		return
	}
	engine := placement.NewEngine(sel)
	chain := validate.DefaultChain()

	pending, err := o.store.ListPending(ctx, group.Name)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("failed to list pending sessions")
		return
	}
	if len(pending) == 0 {
		return
	}
	existing, err := o.store.ListByStatus(ctx, group.Name, model.SessionRunning)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("failed to list running sessions")
		return
	}
	agents, err := o.store.ListSchedulableAgents(ctx, group.Name)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("failed to list schedulable agents")
		return
	}

	free := perAgentFree(agents)
	candidates := append([]model.Session(nil), pending...)

	for len(candidates) > 0 {
		prioritized := sched.Prioritize(candidates, existing)
		picked, ok := sched.Pick(prioritized, free)
		if !ok {
			return
		}
		candidates = removeSession(candidates, picked.SessionID)

		outcome := o.scheduleOne(ctx, group, *picked, agents, chain, engine)
		switch outcome.kind {
		case "":
			// A binding landed on one or more specific agents; reload so the
			// next Pick/Place in this tick sees their true remaining
			// capacity instead of the snapshot taken at the top of the pass.
			refreshed, err := o.store.ListSchedulableAgents(ctx, group.Name)
			if err != nil {
				logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("failed to refresh agents after placement")
				return
			}
			agents = refreshed
			free = perAgentFree(agents)
		case model.Recoverable, model.FatalSystemic:
			logger.Orchestrator().Warn().Str("scaling_group", group.Name).Str("session_id", picked.SessionID).
				Str("kind", string(outcome.kind)).Msg("deferring rest of scheduling pass to next tick")
			return
		default:
			// ResourceDenial, PolicyDenial, FatalPerSession: already recorded
			// against the session; try the next candidate this tick.
		}
	}
}

// scheduleOutcome reports what scheduleOne did with a single candidate.
type scheduleOutcome struct {
	placed bool
	kind   model.FailureKind // zero value when placed
	info   string
}

// scheduleOne runs the validator chain and placement engine against one
// candidate inside its own scheduling transaction. A failure at either
// stage aborts the whole transaction via errDenied so nothing it mutated
// (most importantly ConcurrencyValidator's counter increment) survives; the
// denial reason is then recorded in a separate transaction that only
// appends status history, since AppendStatusHistory has no CAS to race
// against a transaction that never touched the session's status.
func (o *Orchestrator) scheduleOne(ctx context.Context, group model.ScalingGroup, sess model.Session, agents []model.Agent, chain *validate.Chain, engine *placement.Engine) scheduleOutcome {
	var outcome scheduleOutcome

	// Policies are read through the Store before the transaction opens:
	// Store methods are not part of SchedulingTx, and the memory backend
	// holds its lock for the whole transaction body.
	policies, err := o.store.ReadPolicies(ctx, sess.AccessKey, sess.UserID, sess.ProjectID, sess.DomainName)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("session_id", sess.SessionID).Msg("failed to read policies")
		return scheduleOutcome{kind: model.FatalSystemic, info: err.Error()}
	}

	err = o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		fresh, err := tx.GetSession(ctx, sess.SessionID)
		if err != nil {
			return err
		}
		if fresh.Status != model.SessionPending {
			// Raced with another tick/instance between ListPending and here;
			// nothing to do, not a denial.
			outcome = scheduleOutcome{placed: true}
			return nil
		}

		decision := chain.Run(ctx, fresh, policies, tx)
		if !decision.Pass {
			outcome = scheduleOutcome{kind: decision.Kind, info: decision.Info}
			return errDenied
		}

		result := engine.Place(ctx, fresh, agents, tx)
		if !result.Placed {
			outcome = scheduleOutcome{kind: result.Kind, info: result.Info}
			return errDenied
		}

		if err := tx.TransitionSession(ctx, fresh.SessionID, model.SessionPending, model.SessionScheduled, "Scheduled", nil); err != nil {
			return err
		}
		if err := tx.AppendStatusHistory(ctx, fresh.SessionID, model.SessionScheduled, "Scheduled"); err != nil {
			return err
		}
		outcome = scheduleOutcome{placed: true}
		return nil
	})

	if err != nil && !errors.Is(err, errDenied) {
		logger.Orchestrator().Error().Err(err).Str("session_id", sess.SessionID).Msg("scheduling transaction failed")
		return scheduleOutcome{kind: model.FatalSystemic, info: err.Error()}
	}

	if outcome.kind != "" {
		o.recordDenial(ctx, sess.SessionID, outcome.kind, outcome.info)
	}
	return outcome
}

// recordDenial persists a candidate's rejection reason. FatalPerSession
// denials can never succeed on a later tick, so the session is transitioned
// straight to ERROR; every other denial kind leaves the session PENDING and
// only appends a status_history entry explaining why this tick skipped it.
func (o *Orchestrator) recordDenial(ctx context.Context, sessionID string, kind model.FailureKind, info string) {
	reason := string(kind) + ":" + info
	err := o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if kind == model.FatalPerSession && sess.Status == model.SessionPending {
			if err := tx.TransitionSession(ctx, sessionID, model.SessionPending, model.SessionError, reason, nil); err != nil {
				return err
			}
			tx.PublishOnCommit(events.Event{ID: uuid.NewString(), Kind: events.KindSessionError, SessionID: sessionID, Info: reason, OccurredAt: time.Now()})
			return nil
		}
		return tx.AppendStatusHistory(ctx, sessionID, sess.Status, reason)
	})
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("session_id", sessionID).Str("reason", reason).Msg("failed to record denial reason")
	}
}

func perAgentFree(agents []model.Agent) map[string]resource.Slot {
	free := make(map[string]resource.Slot, len(agents))
	for _, a := range agents {
		free[a.AgentID] = a.RemainingSlots()
	}
	return free
}

func removeSession(sessions []model.Session, sessionID string) []model.Session {
	out := make([]model.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.SessionID != sessionID {
			out = append(out, s)
		}
	}
	return out
}
