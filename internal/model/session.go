// Package model defines the value types shared by every core component:
// Session, Kernel, Agent, ScalingGroup, ResourcePolicy, and the small
// enums and status-history records that travel between them. These are
// immutable snapshots — the StateStore is the only thing that persists or
// mutates the underlying rows; every other package only ever sees these
// value types.
package model

import (
	"time"

	"github.com/lablup/baimgr-core/internal/resource"
)

// SessionStatus is a node in the session state machine (spec §4.7).
type SessionStatus string

const (
	SessionPending     SessionStatus = "PENDING"
	SessionScheduled   SessionStatus = "SCHEDULED"
	SessionPreparing   SessionStatus = "PREPARING"
	SessionPulling     SessionStatus = "PULLING"
	SessionPrepared    SessionStatus = "PREPARED"
	SessionCreating    SessionStatus = "CREATING"
	SessionRunning     SessionStatus = "RUNNING"
	SessionTerminating SessionStatus = "TERMINATING"
	SessionTerminated  SessionStatus = "TERMINATED"
	SessionCancelled   SessionStatus = "CANCELLED"
	SessionError       SessionStatus = "ERROR"
)

// Terminal reports whether a status is one of the state machine's terminal
// states (no further transition is ever legal).
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionTerminated, SessionCancelled, SessionError:
		return true
	default:
		return false
	}
}

// validTransitions encodes the declared state machine edges from spec §4.7.
// transition_session's CAS is the enforcement point; neither the store nor
// the orchestrator consults this table, which backs CanTransition for
// tests asserting state monotonicity.
var validTransitions = map[SessionStatus][]SessionStatus{
	SessionPending:     {SessionScheduled, SessionCancelled, SessionError},
	SessionScheduled:   {SessionPreparing, SessionCancelled, SessionError},
	SessionPreparing:   {SessionPulling, SessionError},
	SessionPulling:     {SessionPrepared, SessionError},
	SessionPrepared:    {SessionCreating, SessionError},
	SessionCreating:    {SessionRunning, SessionError},
	SessionRunning:     {SessionTerminating, SessionError},
	SessionTerminating: {SessionTerminated, SessionTerminating}, // idempotent
	SessionTerminated:  {},
	SessionCancelled:   {},
	SessionError:       {},
}

// CanTransition reports whether to is a legal next state from from.
func CanTransition(from, to SessionStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SessionType classifies the workload per spec §3.
type SessionType string

const (
	SessionTypeInteractive SessionType = "INTERACTIVE"
	SessionTypeBatch       SessionType = "BATCH"
	SessionTypeInference   SessionType = "INFERENCE"
	SessionTypeSystem      SessionType = "SYSTEM"
)

// ClusterMode selects single-node vs multi-node placement.
type ClusterMode string

const (
	ClusterModeSingleNode ClusterMode = "SINGLE_NODE"
	ClusterModeMultiNode  ClusterMode = "MULTI_NODE"
)

// Result is the terminal outcome recorded once a session reaches TERMINATED.
type Result string

const (
	ResultUndefined Result = "UNDEFINED"
	ResultSuccess   Result = "SUCCESS"
	ResultFailure   Result = "FAILURE"
)

// StatusHistoryEntry is one append-only record of a session's status
// timeline. SequenceNo is strictly increasing per session and is the
// dedupe key subscribers use to guarantee at-most-once event observation.
type StatusHistoryEntry struct {
	SequenceNo int
	Status     SessionStatus
	Timestamp  time.Time
	Info       string
}

// Session is the user-visible unit of scheduling: one or more Kernels bound
// as a group. Fields mirror spec §3 exactly.
type Session struct {
	SessionID      string
	Name           string
	AccessKey      string
	UserID         string
	ProjectID      string
	DomainName     string
	ScalingGroup   string
	SessionType    SessionType
	ClusterMode    ClusterMode
	ClusterSize    int
	Priority       int
	StartsAt       *time.Time
	Dependencies   []string
	RequestedSlots resource.Slot
	ManualAgentID  string // optional; empty means "let the selector choose"

	Status        SessionStatus
	StatusInfo    string
	StatusData    map[string]any
	StatusHistory []StatusHistoryEntry

	CreatedAt    time.Time
	ScheduledAt  *time.Time
	TerminatedAt *time.Time
	Result       Result

	Kernels []Kernel
}

// IsPrivate reports whether a session is a system session (e.g. an SSH
// sidecar) that only runs the starred validators per spec §4.5.
func (s Session) IsPrivate() bool {
	return s.SessionType == SessionTypeSystem
}

// TotalDemand sums RequestedSlots across all kernels; kept in sync with
// Session.RequestedSlots by the StateStore on every mutation, but callers
// in the scheduling path always recompute it fresh from Kernels so a stale
// denormalized field can never silently mis-place a session.
func (s Session) TotalDemand() resource.Slot {
	return resource.Sum(s.Kernels, func(k Kernel) resource.Slot { return k.RequestedSlots })
}
