package orchestrator

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
)

// Inbound is the create/cancel/destroy/list surface spec.md §6 names as the
// only way sessions enter or leave the scheduling core outside of a tick.
// No HTTP/GraphQL binding is built for it (a stated Non-goal): a caller
// embeds the manager process and calls these methods directly, or wraps
// them behind whatever transport it chooses.
type Inbound interface {
	CreateSession(ctx context.Context, spec CreateSessionSpec) (string, error)
	CancelSession(ctx context.Context, sessionID string) error
	DestroySession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
}

var _ Inbound = (*Orchestrator)(nil)

// KernelSpec describes one kernel of a create_session request.
type KernelSpec struct {
	Role           model.KernelRole // empty defaults to KernelRoleMain
	ClusterIdx     int
	Image          string
	Architecture   string
	RequestedSlots resource.Slot
}

// CreateSessionSpec is create_session's request payload (spec.md §6). The
// session is always created PENDING; scheduling happens on the scaling
// group's next tick.
type CreateSessionSpec struct {
	Name          string
	AccessKey     string
	UserID        string
	ProjectID     string
	DomainName    string
	ScalingGroup  string
	SessionType   model.SessionType
	ClusterMode   model.ClusterMode
	Priority      int
	StartsAt      *time.Time
	Dependencies  []string // session ids this session must wait on
	ManualAgentID string
	Kernels       []KernelSpec
}

// SessionFilter narrows list_sessions. A zero-value field means "any".
type SessionFilter struct {
	ScalingGroup string
	AccessKey    string
	Status       model.SessionStatus
}

// allSessionStatuses enumerates the state machine's nodes in the order
// list_sessions walks them when a filter leaves Status unset.
var allSessionStatuses = []model.SessionStatus{
	model.SessionPending,
	model.SessionScheduled,
	model.SessionPreparing,
	model.SessionPulling,
	model.SessionPrepared,
	model.SessionCreating,
	model.SessionRunning,
	model.SessionTerminating,
	model.SessionTerminated,
	model.SessionCancelled,
	model.SessionError,
}

// CreateSession validates the request's dependency edges for cycles, then
// persists a new PENDING session with its kernels inside a single
// scheduling transaction. The returned id is the core's own session_id,
// assigned here rather than accepted from the caller.
func (o *Orchestrator) CreateSession(ctx context.Context, spec CreateSessionSpec) (string, error) {
	if len(spec.Kernels) == 0 {
		return "", model.NewSchedulingError(model.FatalPerSession, "CreateSession", "a session must declare at least one kernel", nil)
	}

	sessionID := uuid.NewString()
	now := time.Now()

	sess := model.Session{
		SessionID:     sessionID,
		Name:          spec.Name,
		AccessKey:     spec.AccessKey,
		UserID:        spec.UserID,
		ProjectID:     spec.ProjectID,
		DomainName:    spec.DomainName,
		ScalingGroup:  spec.ScalingGroup,
		SessionType:   spec.SessionType,
		ClusterMode:   spec.ClusterMode,
		ClusterSize:   len(spec.Kernels),
		Priority:      spec.Priority,
		StartsAt:      spec.StartsAt,
		Dependencies:  spec.Dependencies,
		ManualAgentID: spec.ManualAgentID,
		Status:        model.SessionPending,
		CreatedAt:     now,
	}
	for i, k := range spec.Kernels {
		role := k.Role
		if role == "" {
			role = model.KernelRoleMain
		}
		sess.Kernels = append(sess.Kernels, model.Kernel{
			KernelID:       sessionID + "-k" + strconv.Itoa(i),
			SessionID:      sessionID,
			Role:           role,
			ClusterIdx:     k.ClusterIdx,
			Image:          k.Image,
			Architecture:   k.Architecture,
			RequestedSlots: k.RequestedSlots,
			Status:         model.SessionPending,
			CreatedAt:      now,
		})
	}
	sess.RequestedSlots = sess.TotalDemand()

	err := o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		cyclic, err := hasDependencyCycle(ctx, tx, sessionID, spec.Dependencies)
		if err != nil {
			return err
		}
		if cyclic {
			return model.NewSchedulingError(model.PolicyDenial, "CreateSession", "DependencyCycle", nil)
		}
		if err := tx.CreateSession(ctx, sess); err != nil {
			return err
		}
		return tx.AppendStatusHistory(ctx, sessionID, model.SessionPending, "Enqueued")
	})
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

// hasDependencyCycle walks the dependency graph outward from each of a new
// session's declared dependencies, following already-persisted edges, to
// see whether any of them loops back to sessionID. Since sessionID has no
// existing incoming edges before this call, the only way it can appear is
// a direct or transitive self-reference among the requested dependencies.
func hasDependencyCycle(ctx context.Context, tx store.SchedulingTx, sessionID string, dependsOn []string) (bool, error) {
	visited := map[string]bool{}
	var visit func(id string) (bool, error)
	visit = func(id string) (bool, error) {
		if id == sessionID {
			return true, nil
		}
		if visited[id] {
			return false, nil
		}
		visited[id] = true
		deps, err := tx.ListDependencies(ctx, id)
		if err != nil {
			return false, err
		}
		for _, d := range deps {
			found, err := visit(d.DependsOn)
			if err != nil {
				return false, err
			}
			if found {
				return true, nil
			}
		}
		return false, nil
	}
	for _, dep := range dependsOn {
		found, err := visit(dep)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// CancelSession implements cancel_session. Per spec.md §8's idempotence law
// it never errors on account of state: a session already
// CANCELLED/TERMINATED/ERROR is left untouched, and a session mid
// preparation (past SCHEDULED, short of RUNNING) is left to keep converging
// on its own — the request is recorded in status_history but does not
// advance the state beyond what the declared transitions allow.
func (o *Orchestrator) CancelSession(ctx context.Context, sessionID string) error {
	return o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status.Terminal() {
			return nil
		}
		switch sess.Status {
		case model.SessionPending:
			return cancelFrom(ctx, tx, sess, model.SessionPending)
		case model.SessionScheduled:
			if err := releaseSessionCapacity(ctx, tx, sess); err != nil {
				return err
			}
			return cancelFrom(ctx, tx, sess, model.SessionScheduled)
		default:
			return tx.AppendStatusHistory(ctx, sessionID, sess.Status, "CancelRequestedDuringPreparation")
		}
	})
}

func cancelFrom(ctx context.Context, tx store.SchedulingTx, sess model.Session, from model.SessionStatus) error {
	if err := tx.TransitionSession(ctx, sess.SessionID, from, model.SessionCancelled, "Cancelled", nil); err != nil {
		return err
	}
	return tx.AppendStatusHistory(ctx, sess.SessionID, model.SessionCancelled, "Cancelled")
}

// DestroySession implements destroy_session. A still-PENDING or SCHEDULED
// session has nothing running yet, so destroying it is the same request as
// cancelling it; a RUNNING session moves to TERMINATING, and
// dispatchTermination's next tick issues the agent DestroyKernel calls and
// finalizes it. TERMINATING and every terminal status are idempotent
// no-ops. A session mid image-pull/creation has no declared edge into
// TERMINATING; the request is only recorded in status_history, and the
// session is not moved to TERMINATING when it later reaches RUNNING.
func (o *Orchestrator) DestroySession(ctx context.Context, sessionID string) error {
	return o.store.WithSchedulingTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status.Terminal() || sess.Status == model.SessionTerminating {
			return nil
		}
		switch sess.Status {
		case model.SessionPending:
			return cancelFrom(ctx, tx, sess, model.SessionPending)
		case model.SessionScheduled:
			if err := releaseSessionCapacity(ctx, tx, sess); err != nil {
				return err
			}
			return cancelFrom(ctx, tx, sess, model.SessionScheduled)
		case model.SessionRunning:
			if err := tx.TransitionSession(ctx, sessionID, model.SessionRunning, model.SessionTerminating, "Terminating", nil); err != nil {
				return err
			}
			return tx.AppendStatusHistory(ctx, sessionID, model.SessionTerminating, "Terminating")
		default:
			return tx.AppendStatusHistory(ctx, sessionID, sess.Status, "DestroyRequestedDuringPreparation")
		}
	})
}

// ListSessions implements list_sessions. Without a Status filter it walks
// every status bucket for the scaling group, since store.Store only
// exposes per-status listing.
func (o *Orchestrator) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	statuses := allSessionStatuses
	if filter.Status != "" {
		statuses = []model.SessionStatus{filter.Status}
	}

	var out []model.Session
	for _, status := range statuses {
		sessions, err := o.store.ListByStatus(ctx, filter.ScalingGroup, status)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if filter.AccessKey != "" && sess.AccessKey != filter.AccessKey {
				continue
			}
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
