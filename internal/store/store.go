// Package store defines the StateStore repository contract: the single
// boundary through which every other package reads and mutates session,
// kernel, and agent state. Two backends implement it — store/postgres for
// production and store/memory for tests — so the rest of the core is
// backend-agnostic.
package store

import (
	"context"
	"errors"

	"github.com/lablup/baimgr-core/internal/events"
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

// Sentinel errors every backend must return for the corresponding
// condition, so callers can errors.Is against a backend-independent value.
var (
	// ErrStaleState is returned by TransitionSession when the session's
	// current status no longer matches the expected "from" state — another
	// writer raced ahead. Callers re-read and retry or give up.
	ErrStaleState = errors.New("store: stale session state")
	// ErrCapacityConflict is returned by BindKernel when the agent's
	// remaining capacity no longer fits demand at commit time, even though
	// it fit at selection time (another tick bound it first).
	ErrCapacityConflict = errors.New("store: agent capacity conflict")
	// ErrNotFound is returned when a referenced session/kernel/agent row
	// does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrSerializationFailure surfaces a backend's transaction-isolation
	// conflict (e.g. Postgres SQLSTATE 40001) for the retry loop to catch.
	ErrSerializationFailure = errors.New("store: serialization failure")
	// ErrAlreadyExists is returned by CreateSession when a session with the
	// same SessionID has already been created.
	ErrAlreadyExists = errors.New("store: session already exists")
)

// ResultDataKey is the reserved key TransitionSession's data map checks when
// transitioning a session into a terminal status: if present and holding a
// model.Result, the backend persists it as the session's Result field in
// addition to leaving it in status_data. Callers that don't care about the
// terminal result (most transitions never reach one) simply omit the key.
const ResultDataKey = "__result"

// Store is the read-mostly and transaction-entry surface spec.md §4.2
// describes.
type Store interface {
	// ListPending returns sessions in PENDING status for a scaling group,
	// ordered by created_at ascending (schedulers re-sort as needed).
	ListPending(ctx context.Context, scalingGroup string) ([]model.Session, error)
	// ListByStatus returns sessions in a given status for a scaling group,
	// ordered by created_at ascending. Used by the orchestrator's lifecycle
	// sweeps (SCHEDULED/PREPARING/.../TERMINATING) and by schedulers that
	// weigh already-RUNNING sessions (drf, fairshare).
	ListByStatus(ctx context.Context, scalingGroup string, status model.SessionStatus) ([]model.Session, error)
	// ListSchedulableAgents returns ALIVE agents in a scaling group.
	ListSchedulableAgents(ctx context.Context, scalingGroup string) ([]model.Agent, error)
	// ReadPolicies loads the full policy bundle (keypair/group/domain) that
	// bounds a candidate session.
	ReadPolicies(ctx context.Context, accessKey, userID, projectID, domainName string) (model.PolicyBundle, error)
	// ReadScalingGroup loads a scaling group's scheduler/selector config.
	ReadScalingGroup(ctx context.Context, name string) (model.ScalingGroup, error)
	// ListScalingGroups returns all enabled scaling groups, for the
	// orchestrator to spin up one ticker per group.
	ListScalingGroups(ctx context.Context) ([]model.ScalingGroup, error)
	// WithSchedulingTx runs fn inside a serializable transaction. On
	// ErrSerializationFailure/ErrStaleState/ErrCapacityConflict the postgres
	// backend retries fn with jittered backoff up to its configured attempt
	// limit; the memory backend never retries. Any other error aborts
	// immediately, and an aborted fn's side effects (including buffered
	// events) are discarded.
	WithSchedulingTx(ctx context.Context, fn func(ctx context.Context, tx SchedulingTx) error) error
}

// SchedulingTx is the mutation surface available inside a scheduling
// transaction. All methods operate against the transaction's own snapshot;
// nothing is visible to other transactions until the outer WithSchedulingTx
// commits.
type SchedulingTx interface {
	// CreateSession inserts a brand-new PENDING session together with its
	// kernels and dependency edges (sourced from sess.Dependencies). Returns
	// ErrAlreadyExists if sess.SessionID is already present. The caller is
	// responsible for status/status_history being left empty: CreateSession
	// does not itself append a status_history entry or publish an event, so
	// orchestrator.Inbound's CreateSession can do both inside the same
	// transaction the same way every other transition does.
	CreateSession(ctx context.Context, sess model.Session) error
	// BindKernel assigns an agent to a kernel and debits the agent's
	// remaining capacity by slots. Returns ErrCapacityConflict if slots no
	// longer fits.
	BindKernel(ctx context.Context, kernelID, agentID string, slots resource.Slot) error
	// ReleaseKernel is BindKernel's inverse: it unbinds a kernel from its
	// agent and returns its slots to the agent's available capacity. A
	// no-op if the kernel was never bound. Called by the orchestrator once
	// a session's agent RPCs confirm termination.
	ReleaseKernel(ctx context.Context, kernelID string) error
	// TransitionSession performs a compare-and-swap status change. Returns
	// ErrStaleState if the session's current status != from.
	TransitionSession(ctx context.Context, sessionID string, from, to model.SessionStatus, info string, data map[string]any) error
	// IncrementConcurrency bumps an access key's live-session counter and
	// returns the new count (for PolicyDenial checks against a ceiling).
	IncrementConcurrency(ctx context.Context, accessKey string, kind model.ConcurrencyKind) (int, error)
	// DecrementConcurrency is IncrementConcurrency's inverse, called on
	// session termination/cancellation.
	DecrementConcurrency(ctx context.Context, accessKey string, kind model.ConcurrencyKind) (int, error)
	// AppendStatusHistory appends a new StatusHistoryEntry with the next
	// monotonic SequenceNo for the session.
	AppendStatusHistory(ctx context.Context, sessionID string, status model.SessionStatus, info string) error
	// PublishOnCommit buffers an event to be flushed only after the
	// enclosing transaction commits successfully.
	PublishOnCommit(evt events.Event)
	// SaveSchedulerCursor persists a selector's round-robin position.
	SaveSchedulerCursor(ctx context.Context, cursor model.SchedulerCursor) error
	// ReadSchedulerCursor loads a selector's round-robin position, zero
	// value if never saved.
	ReadSchedulerCursor(ctx context.Context, scalingGroup string) (model.SchedulerCursor, error)
	// ListDependencies returns the sessions a given session depends on.
	ListDependencies(ctx context.Context, sessionID string) ([]model.Dependency, error)
	// GetSession re-reads a single session within the transaction's
	// snapshot, for validators that need a fresh view mid-chain.
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	// CountPendingForAccessKey returns how many sessions for accessKey are
	// currently PENDING, for PendingQuotaValidator.
	CountPendingForAccessKey(ctx context.Context, accessKey string) (int, error)
	// AllowedSessionTypes returns the session types a scaling group
	// accepts, for SessionTypeValidator. Empty means all types allowed.
	AllowedSessionTypes(ctx context.Context, scalingGroup string) ([]model.SessionType, error)
}
