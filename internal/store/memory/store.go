// Package memory implements store.Store as a mutex-guarded, in-process map.
// It enforces the same invariants as the Postgres backend (capacity safety,
// compare-and-swap transitions, monotonic status history) so tests written
// against it exercise real semantics rather than a stub, mirroring the
// corpus's own preference for constructor-injected interfaces over mocks.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lablup/baimgr-core/internal/events"
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
)

// Store is an in-memory store.Store. The zero value is not usable; use New.
type Store struct {
	mu sync.Mutex

	sessions      map[string]*model.Session
	kernelSession map[string]string // kernelID -> sessionID
	agents        map[string]*model.Agent
	scalingGroups map[string]model.ScalingGroup
	policies      map[string]model.PolicyBundle // keyed by access key
	concurrency   map[string]int                // accessKey|kind -> count
	cursors       map[string]model.SchedulerCursor
	dependencies  map[string][]model.Dependency
	seq           map[string]int // sessionID -> next status history sequence no

	published []events.Event // accumulated across all committed transactions, for test assertions
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sessions:      map[string]*model.Session{},
		kernelSession: map[string]string{},
		agents:        map[string]*model.Agent{},
		scalingGroups: map[string]model.ScalingGroup{},
		policies:      map[string]model.PolicyBundle{},
		concurrency:   map[string]int{},
		cursors:       map[string]model.SchedulerCursor{},
		dependencies:  map[string][]model.Dependency{},
		seq:           map[string]int{},
	}
}

// SeedSession registers a session for test setup. Not part of store.Store.
func (s *Store) SeedSession(sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sess
	s.sessions[sess.SessionID] = &cp
	for _, k := range sess.Kernels {
		s.kernelSession[k.KernelID] = sess.SessionID
	}
}

// SeedAgent registers an agent for test setup. Not part of store.Store.
func (s *Store) SeedAgent(agent model.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := agent
	s.agents[agent.AgentID] = &cp
}

// SeedScalingGroup registers a scaling group config. Not part of store.Store.
func (s *Store) SeedScalingGroup(g model.ScalingGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalingGroups[g.Name] = g
}

// SeedPolicies registers a policy bundle keyed by access key. Not part of
// store.Store.
func (s *Store) SeedPolicies(accessKey string, bundle model.PolicyBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[accessKey] = bundle
}

// SeedDependencies registers dependency edges for a session. Not part of
// store.Store.
func (s *Store) SeedDependencies(sessionID string, deps []model.Dependency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dependencies[sessionID] = deps
}

// Session returns a copy of a session by id, for test assertions. Not part
// of store.Store.
func (s *Store) Session(sessionID string) (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.Session{}, false
	}
	return cloneSession(*sess), true
}

// Published returns every event flushed by a committed transaction so far,
// for test assertions.
func (s *Store) Published() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.published))
	copy(out, s.published)
	return out
}

func (s *Store) ListPending(ctx context.Context, scalingGroup string) ([]model.Session, error) {
	return s.ListByStatus(ctx, scalingGroup, model.SessionPending)
}

func (s *Store) ListByStatus(ctx context.Context, scalingGroup string, status model.SessionStatus) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Session
	for _, sess := range s.sessions {
		if sess.Status != status {
			continue
		}
		if scalingGroup != "" && sess.ScalingGroup != scalingGroup {
			continue
		}
		out = append(out, cloneSession(*sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListSchedulableAgents(ctx context.Context, scalingGroup string) ([]model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Agent
	for _, a := range s.agents {
		if a.Status != model.AgentAlive {
			continue
		}
		if scalingGroup != "" && a.ScalingGroup != scalingGroup {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *Store) ReadPolicies(ctx context.Context, accessKey, userID, projectID, domainName string) (model.PolicyBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, ok := s.policies[accessKey]
	if !ok {
		return model.PolicyBundle{}, store.ErrNotFound
	}
	return bundle, nil
}

func (s *Store) ReadScalingGroup(ctx context.Context, name string) (model.ScalingGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.scalingGroups[name]
	if !ok {
		return model.ScalingGroup{}, store.ErrNotFound
	}
	return g, nil
}

func (s *Store) ListScalingGroups(ctx context.Context) ([]model.ScalingGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ScalingGroup
	for _, g := range s.scalingGroups {
		if g.Enabled {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// WithSchedulingTx runs fn against the live store guarded by the single
// store-wide mutex. This backend never retries on conflict: because it
// holds the lock for the whole transaction body, ErrStaleState/
// ErrCapacityConflict can only arise from a bug in the caller, not from
// genuine concurrent interleaving, so there is nothing productive to retry.
// A returned error rolls back every mutation fn made, mirroring a real SQL
// transaction abort: sessions, kernel-to-session binding, agents,
// concurrency counters, cursors, and dependency edges are snapshotted
// before fn runs and restored verbatim on failure, and the event buffer is
// dropped instead of drained.
func (s *Store) WithSchedulingTx(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	tx := &memTx{store: s, buf: events.NewBuffer()}
	if err := fn(ctx, tx); err != nil {
		s.restore(snapshot)
		return err
	}
	s.published = append(s.published, tx.buf.Drain()...)
	return nil
}

// txSnapshot is a deep copy of every map WithSchedulingTx's mutation surface
// touches, taken before fn runs so a failed transaction can be undone.
type txSnapshot struct {
	sessions      map[string]*model.Session
	kernelSession map[string]string
	agents        map[string]*model.Agent
	concurrency   map[string]int
	cursors       map[string]model.SchedulerCursor
	dependencies  map[string][]model.Dependency
	seq           map[string]int
}

func (s *Store) snapshot() txSnapshot {
	sessions := make(map[string]*model.Session, len(s.sessions))
	for id, sess := range s.sessions {
		cp := cloneSession(*sess)
		sessions[id] = &cp
	}
	kernelSession := make(map[string]string, len(s.kernelSession))
	for k, v := range s.kernelSession {
		kernelSession[k] = v
	}
	agents := make(map[string]*model.Agent, len(s.agents))
	for id, agent := range s.agents {
		cp := cloneAgent(*agent)
		agents[id] = &cp
	}
	concurrency := make(map[string]int, len(s.concurrency))
	for k, v := range s.concurrency {
		concurrency[k] = v
	}
	cursors := make(map[string]model.SchedulerCursor, len(s.cursors))
	for k, v := range s.cursors {
		cursors[k] = v
	}
	dependencies := make(map[string][]model.Dependency, len(s.dependencies))
	for k, v := range s.dependencies {
		dependencies[k] = append([]model.Dependency(nil), v...)
	}
	seq := make(map[string]int, len(s.seq))
	for k, v := range s.seq {
		seq[k] = v
	}
	return txSnapshot{
		sessions:      sessions,
		kernelSession: kernelSession,
		agents:        agents,
		concurrency:   concurrency,
		cursors:       cursors,
		dependencies:  dependencies,
		seq:           seq,
	}
}

func (s *Store) restore(snap txSnapshot) {
	s.sessions = snap.sessions
	s.kernelSession = snap.kernelSession
	s.agents = snap.agents
	s.concurrency = snap.concurrency
	s.cursors = snap.cursors
	s.dependencies = snap.dependencies
	s.seq = snap.seq
}

func cloneAgent(agent model.Agent) model.Agent {
	cp := agent
	cp.AvailableSlots = resource.Clone(agent.AvailableSlots)
	cp.OccupiedSlots = resource.Clone(agent.OccupiedSlots)
	return cp
}

type memTx struct {
	store *Store
	buf   *events.Buffer
}

func (t *memTx) CreateSession(ctx context.Context, sess model.Session) error {
	s := t.store
	if _, exists := s.sessions[sess.SessionID]; exists {
		return store.ErrAlreadyExists
	}
	cp := cloneSession(sess)
	s.sessions[sess.SessionID] = &cp
	for _, k := range sess.Kernels {
		s.kernelSession[k.KernelID] = sess.SessionID
	}
	if len(sess.Dependencies) > 0 {
		deps := make([]model.Dependency, 0, len(sess.Dependencies))
		for _, dep := range sess.Dependencies {
			deps = append(deps, model.Dependency{SessionID: sess.SessionID, DependsOn: dep})
		}
		s.dependencies[sess.SessionID] = deps
	}
	return nil
}

func (t *memTx) BindKernel(ctx context.Context, kernelID, agentID string, slots resource.Slot) error {
	s := t.store
	sessID, ok := s.kernelSession[kernelID]
	if !ok {
		return store.ErrNotFound
	}
	sess, ok := s.sessions[sessID]
	if !ok {
		return store.ErrNotFound
	}
	agent, ok := s.agents[agentID]
	if !ok {
		return store.ErrNotFound
	}
	if !resource.LessOrEqual(slots, agent.RemainingSlots()) {
		return store.ErrCapacityConflict
	}
	agent.OccupiedSlots = resource.Add(agent.OccupiedSlots, slots)
	agent.ContainerCount++

	for i := range sess.Kernels {
		if sess.Kernels[i].KernelID == kernelID {
			sess.Kernels[i].AgentID = agentID
			sess.Kernels[i].AgentAddr = agent.Addr
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) ReleaseKernel(ctx context.Context, kernelID string) error {
	s := t.store
	sessID, ok := s.kernelSession[kernelID]
	if !ok {
		return store.ErrNotFound
	}
	sess, ok := s.sessions[sessID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range sess.Kernels {
		if sess.Kernels[i].KernelID != kernelID {
			continue
		}
		agentID := sess.Kernels[i].AgentID
		if agentID == "" {
			return nil
		}
		if agent, ok := s.agents[agentID]; ok {
			if reduced, err := resource.Sub(agent.OccupiedSlots, sess.Kernels[i].RequestedSlots); err == nil {
				agent.OccupiedSlots = reduced
			}
			if agent.ContainerCount > 0 {
				agent.ContainerCount--
			}
		}
		sess.Kernels[i].AgentID = ""
		sess.Kernels[i].AgentAddr = ""
		return nil
	}
	return store.ErrNotFound
}

func (t *memTx) TransitionSession(ctx context.Context, sessionID string, from, to model.SessionStatus, info string, data map[string]any) error {
	s := t.store
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if sess.Status != from {
		return store.ErrStaleState
	}
	sess.Status = to
	sess.StatusInfo = info
	if data != nil {
		sess.StatusData = data
		if result, ok := data[store.ResultDataKey].(model.Result); ok {
			sess.Result = result
		}
	}
	now := time.Now()
	switch to {
	case model.SessionScheduled:
		sess.ScheduledAt = &now
	case model.SessionTerminated, model.SessionCancelled, model.SessionError:
		sess.TerminatedAt = &now
	}
	return nil
}

func (t *memTx) IncrementConcurrency(ctx context.Context, accessKey string, kind model.ConcurrencyKind) (int, error) {
	s := t.store
	key := accessKey + "|" + string(kind)
	s.concurrency[key]++
	return s.concurrency[key], nil
}

func (t *memTx) DecrementConcurrency(ctx context.Context, accessKey string, kind model.ConcurrencyKind) (int, error) {
	s := t.store
	key := accessKey + "|" + string(kind)
	if s.concurrency[key] > 0 {
		s.concurrency[key]--
	}
	return s.concurrency[key], nil
}

func (t *memTx) AppendStatusHistory(ctx context.Context, sessionID string, status model.SessionStatus, info string) error {
	s := t.store
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	s.seq[sessionID]++
	sess.StatusHistory = append(sess.StatusHistory, model.StatusHistoryEntry{
		SequenceNo: s.seq[sessionID],
		Status:     status,
		Timestamp:  time.Now(),
		Info:       info,
	})
	t.buf.Add(events.Event{
		ID:         uuid.NewString(),
		Kind:       statusEventKind(status),
		SessionID:  sessionID,
		SequenceNo: s.seq[sessionID],
		Info:       info,
		OccurredAt: time.Now(),
	})
	return nil
}

func statusEventKind(status model.SessionStatus) events.Kind {
	switch status {
	case model.SessionScheduled:
		return events.KindSessionScheduled
	case model.SessionPreparing:
		return events.KindSessionPreparing
	case model.SessionPrepared:
		return events.KindSessionPrepared
	case model.SessionRunning:
		return events.KindSessionRunning
	case model.SessionTerminating:
		return events.KindSessionTerminating
	case model.SessionTerminated:
		return events.KindSessionTerminated
	case model.SessionCancelled:
		return events.KindSessionCancelled
	case model.SessionError:
		return events.KindSessionError
	default:
		return events.KindSessionEnqueued
	}
}

func (t *memTx) PublishOnCommit(evt events.Event) {
	t.buf.Add(evt)
}

func (t *memTx) SaveSchedulerCursor(ctx context.Context, cursor model.SchedulerCursor) error {
	t.store.cursors[cursor.ScalingGroup] = cursor
	return nil
}

func (t *memTx) ReadSchedulerCursor(ctx context.Context, scalingGroup string) (model.SchedulerCursor, error) {
	return t.store.cursors[scalingGroup], nil
}

func (t *memTx) ListDependencies(ctx context.Context, sessionID string) ([]model.Dependency, error) {
	return t.store.dependencies[sessionID], nil
}

func (t *memTx) CountPendingForAccessKey(ctx context.Context, accessKey string) (int, error) {
	count := 0
	for _, sess := range t.store.sessions {
		if sess.AccessKey == accessKey && sess.Status == model.SessionPending {
			count++
		}
	}
	return count, nil
}

func (t *memTx) AllowedSessionTypes(ctx context.Context, scalingGroup string) ([]model.SessionType, error) {
	g, ok := t.store.scalingGroups[scalingGroup]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g.AllowedSessionTypes, nil
}

func (t *memTx) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	sess, ok := t.store.sessions[sessionID]
	if !ok {
		return model.Session{}, store.ErrNotFound
	}
	return cloneSession(*sess), nil
}

func cloneSession(sess model.Session) model.Session {
	cp := sess
	cp.Kernels = append([]model.Kernel(nil), sess.Kernels...)
	cp.StatusHistory = append([]model.StatusHistoryEntry(nil), sess.StatusHistory...)
	cp.Dependencies = append([]string(nil), sess.Dependencies...)
	cp.RequestedSlots = resource.Clone(sess.RequestedSlots)
	return cp
}
