// Package postgres implements store.Store on top of database/sql and
// github.com/lib/pq, following the teacher's raw-SQL, manually-scanned
// query style (api/internal/services/session_reconciler.go) rather than an
// ORM — repository methods stay plain functions over *sql.DB/*sql.Tx, and
// JSON columns round-trip through the Scanner/Valuer types in types.go.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lablup/baimgr-core/internal/backoff"
	"github.com/lablup/baimgr-core/internal/events"
	"github.com/lablup/baimgr-core/internal/logger"
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
	"github.com/lablup/baimgr-core/internal/store"
)

// serializationFailureCode is the Postgres SQLSTATE for a serializable
// transaction conflict.
const serializationFailureCode = "40001"

// uniqueViolationCode is the Postgres SQLSTATE for a unique-constraint
// violation, raised when CreateSession collides with an existing primary key.
const uniqueViolationCode = "23505"

// Store is a Postgres-backed store.Store.
type Store struct {
	db         *sql.DB
	publisher  *events.Publisher
	txRetries  int
}

// New wraps an existing *sql.DB. The caller owns the connection's lifetime
// (opening/closing it is not this package's concern, matching the
// teacher's db.Database wrapper being constructed once in main).
func New(db *sql.DB, publisher *events.Publisher, txRetries int) *Store {
	if txRetries <= 0 {
		txRetries = 5
	}
	return &Store{db: db, publisher: publisher, txRetries: txRetries}
}

func (s *Store) ListPending(ctx context.Context, scalingGroup string) ([]model.Session, error) {
	return s.ListByStatus(ctx, scalingGroup, model.SessionPending)
}

func (s *Store) ListByStatus(ctx context.Context, scalingGroup string, status model.SessionStatus) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, name, access_key, user_id, project_id, domain_name,
		       scaling_group, session_type, cluster_mode, cluster_size, priority,
		       requested_slots, status, status_info, status_data, created_at, result
		FROM sessions
		WHERE status = $1 AND ($2 = '' OR scaling_group = $2)
		ORDER BY created_at ASC`, status, scalingGroup)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var slots slotJSON
		var data statusDataJSON
		if err := rows.Scan(&sess.SessionID, &sess.Name, &sess.AccessKey, &sess.UserID,
			&sess.ProjectID, &sess.DomainName, &sess.ScalingGroup, &sess.SessionType,
			&sess.ClusterMode, &sess.ClusterSize, &sess.Priority, &slots,
			&sess.Status, &sess.StatusInfo, &data, &sess.CreatedAt, &sess.Result); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.RequestedSlots = resource.Slot(slots)
		sess.StatusData = data
		kernels, err := s.listKernels(ctx, sess.SessionID)
		if err != nil {
			return nil, err
		}
		sess.Kernels = kernels
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) listKernels(ctx context.Context, sessionID string) ([]model.Kernel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kernel_id, session_id, role, cluster_idx, image, architecture,
		       requested_slots, agent_id, agent_addr, status, status_info, created_at
		FROM kernels WHERE session_id = $1 ORDER BY cluster_idx ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	defer rows.Close()

	var out []model.Kernel
	for rows.Next() {
		var k model.Kernel
		var slots slotJSON
		var agentID, agentAddr sql.NullString
		if err := rows.Scan(&k.KernelID, &k.SessionID, &k.Role, &k.ClusterIdx, &k.Image,
			&k.Architecture, &slots, &agentID, &agentAddr, &k.Status, &k.StatusInfo, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan kernel row: %w", err)
		}
		k.RequestedSlots = resource.Slot(slots)
		k.AgentID = agentID.String
		k.AgentAddr = agentAddr.String
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) ListSchedulableAgents(ctx context.Context, scalingGroup string) ([]model.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, addr, scaling_group, architecture, status,
		       available_slots, occupied_slots, container_count, last_heartbeat
		FROM agents
		WHERE status = $1 AND ($2 = '' OR scaling_group = $2)
		ORDER BY agent_id ASC`, model.AgentAlive, scalingGroup)
	if err != nil {
		return nil, fmt.Errorf("list schedulable agents: %w", err)
	}
	defer rows.Close()

	var out []model.Agent
	for rows.Next() {
		var a model.Agent
		var avail, occupied slotJSON
		if err := rows.Scan(&a.AgentID, &a.Addr, &a.ScalingGroup, &a.Architecture, &a.Status,
			&avail, &occupied, &a.ContainerCount, &a.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		a.AvailableSlots = resource.Slot(avail)
		a.OccupiedSlots = resource.Slot(occupied)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ReadPolicies(ctx context.Context, accessKey, userID, projectID, domainName string) (model.PolicyBundle, error) {
	var bundle model.PolicyBundle
	var kpSlots, kpUsed, groupSlots, groupUsed, domainSlots, domainUsed slotJSON

	row := s.db.QueryRowContext(ctx, `
		SELECT kp.access_key, kp.max_concurrent_regular, kp.max_concurrent_system,
		       kp.max_pending_sessions, kp.total_resource_slots, kp.used_slots,
		       g.project_id, g.total_resource_slots, g.used_slots,
		       d.domain_name, d.total_resource_slots, d.used_slots
		FROM keypair_resource_policies kp
		JOIN group_resource_policies g ON g.project_id = $2
		JOIN domain_resource_policies d ON d.domain_name = $3
		WHERE kp.access_key = $1`, accessKey, projectID, domainName)

	err := row.Scan(&bundle.KeyPair.AccessKey, &bundle.KeyPair.MaxConcurrentRegular,
		&bundle.KeyPair.MaxConcurrentSystem, &bundle.KeyPair.MaxPendingSessions, &kpSlots, &kpUsed,
		&bundle.Group.ProjectID, &groupSlots, &groupUsed,
		&bundle.Domain.DomainName, &domainSlots, &domainUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PolicyBundle{}, store.ErrNotFound
	}
	if err != nil {
		return model.PolicyBundle{}, fmt.Errorf("read policies: %w", err)
	}
	bundle.KeyPair.TotalResourceSlots = resource.Slot(kpSlots)
	bundle.KeyPair.UsedSlots = resource.Slot(kpUsed)
	bundle.Group.TotalResourceSlots = resource.Slot(groupSlots)
	bundle.Group.UsedSlots = resource.Slot(groupUsed)
	bundle.Domain.TotalResourceSlots = resource.Slot(domainSlots)
	bundle.Domain.UsedSlots = resource.Slot(domainUsed)
	return bundle, nil
}

func (s *Store) ReadScalingGroup(ctx context.Context, name string) (model.ScalingGroup, error) {
	var g model.ScalingGroup
	row := s.db.QueryRowContext(ctx, `
		SELECT name, scheduler_name, selector_name, pending_timeout, enabled
		FROM scaling_groups WHERE name = $1`, name)
	if err := row.Scan(&g.Name, &g.SchedulerName, &g.SelectorName, &g.PendingTimeout, &g.Enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScalingGroup{}, store.ErrNotFound
		}
		return model.ScalingGroup{}, fmt.Errorf("read scaling group: %w", err)
	}
	types, err := s.allowedSessionTypes(ctx, g.Name)
	if err != nil {
		return model.ScalingGroup{}, err
	}
	g.AllowedSessionTypes = types
	return g, nil
}

func (s *Store) allowedSessionTypes(ctx context.Context, scalingGroup string) ([]model.SessionType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_type FROM scaling_group_allowed_session_types WHERE scaling_group = $1`, scalingGroup)
	if err != nil {
		return nil, fmt.Errorf("allowed session types: %w", err)
	}
	defer rows.Close()

	var out []model.SessionType
	for rows.Next() {
		var st model.SessionType
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("scan allowed session type row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) ListScalingGroups(ctx context.Context) ([]model.ScalingGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, scheduler_name, selector_name, pending_timeout, enabled
		FROM scaling_groups WHERE enabled = true ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list scaling groups: %w", err)
	}
	defer rows.Close()

	var out []model.ScalingGroup
	for rows.Next() {
		var g model.ScalingGroup
		if err := rows.Scan(&g.Name, &g.SchedulerName, &g.SelectorName, &g.PendingTimeout, &g.Enabled); err != nil {
			return nil, fmt.Errorf("scan scaling group row: %w", err)
		}
		types, err := s.allowedSessionTypes(ctx, g.Name)
		if err != nil {
			return nil, err
		}
		g.AllowedSessionTypes = types
		out = append(out, g)
	}
	return out, rows.Err()
}

// WithSchedulingTx opens a SERIALIZABLE transaction and retries fn with
// jittered backoff when Postgres reports a 40001 serialization failure, or
// when fn itself returns store.ErrStaleState/store.ErrCapacityConflict —
// both signal another tick raced ahead, exactly the condition the retry
// loop exists for.
func (s *Store) WithSchedulingTx(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	policy := backoff.DefaultPolicy
	policy.MaxAttempts = s.txRetries

	return backoff.Retry(ctx, policy, func(ctx context.Context) error {
		sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}

		tx := &pgTx{sqlTx: sqlTx, buf: events.NewBuffer()}
		if err := fn(ctx, tx); err != nil {
			_ = sqlTx.Rollback()
			if isRetryable(err) {
				logger.Store().Warn().Err(err).Msg("scheduling tx conflict, retrying")
				return backoff.MarkRetryable(err)
			}
			return err
		}

		if err := sqlTx.Commit(); err != nil {
			if isSerializationFailure(err) {
				logger.Store().Warn().Err(err).Msg("commit serialization failure, retrying")
				return backoff.MarkRetryable(err)
			}
			return fmt.Errorf("commit tx: %w", err)
		}

		if s.publisher != nil {
			s.publisher.Flush(tx.buf.Drain())
		}
		return nil
	})
}

func isRetryable(err error) bool {
	return errors.Is(err, store.ErrStaleState) || errors.Is(err, store.ErrCapacityConflict) || isSerializationFailure(err)
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == serializationFailureCode
	}
	return errors.Is(err, store.ErrSerializationFailure)
}

func asPQError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	ok := errors.As(err, &pqErr)
	return pqErr, ok
}

type pgTx struct {
	sqlTx *sql.Tx
	buf   *events.Buffer
}

func (t *pgTx) CreateSession(ctx context.Context, sess model.Session) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, name, access_key, user_id, project_id, domain_name,
		                       scaling_group, session_type, cluster_mode, cluster_size, priority,
		                       starts_at, requested_slots, manual_agent_id, status, status_info,
		                       status_data, created_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		sess.SessionID, sess.Name, sess.AccessKey, sess.UserID, sess.ProjectID, sess.DomainName,
		sess.ScalingGroup, sess.SessionType, sess.ClusterMode, sess.ClusterSize, sess.Priority,
		sess.StartsAt, slotJSON(sess.RequestedSlots), sess.ManualAgentID, model.SessionPending, "",
		statusDataJSON(nil), sess.CreatedAt, model.ResultUndefined)
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == uniqueViolationCode {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}

	for _, k := range sess.Kernels {
		if _, err := t.sqlTx.ExecContext(ctx, `
			INSERT INTO kernels (kernel_id, session_id, role, cluster_idx, image, architecture,
			                     requested_slots, status, status_info, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			k.KernelID, sess.SessionID, k.Role, k.ClusterIdx, k.Image, k.Architecture,
			slotJSON(k.RequestedSlots), model.SessionPending, "", sess.CreatedAt); err != nil {
			return fmt.Errorf("create kernel %s: %w", k.KernelID, err)
		}
	}

	for _, dep := range sess.Dependencies {
		if _, err := t.sqlTx.ExecContext(ctx, `
			INSERT INTO session_dependencies (session_id, depends_on) VALUES ($1, $2)`,
			sess.SessionID, dep); err != nil {
			return fmt.Errorf("create dependency %s->%s: %w", sess.SessionID, dep, err)
		}
	}
	return nil
}

func (t *pgTx) BindKernel(ctx context.Context, kernelID, agentID string, slots resource.Slot) error {
	var availRaw, occupiedRaw slotJSON
	row := t.sqlTx.QueryRowContext(ctx, `
		SELECT available_slots, occupied_slots FROM agents WHERE agent_id = $1 FOR UPDATE`, agentID)
	if err := row.Scan(&availRaw, &occupiedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("lock agent row: %w", err)
	}
	avail := resource.Slot(availRaw)
	occupied := resource.Slot(occupiedRaw)
	remaining, err := resource.Sub(avail, occupied)
	if err != nil {
		return store.ErrCapacityConflict
	}
	if !resource.LessOrEqual(slots, remaining) {
		return store.ErrCapacityConflict
	}

	newOccupied := resource.Add(occupied, slots)
	if _, err := t.sqlTx.ExecContext(ctx, `
		UPDATE agents SET occupied_slots = $1, container_count = container_count + 1
		WHERE agent_id = $2`, slotJSON(newOccupied), agentID); err != nil {
		return fmt.Errorf("update agent occupancy: %w", err)
	}

	res, err := t.sqlTx.ExecContext(ctx, `
		UPDATE kernels SET agent_id = $1, agent_addr = (SELECT addr FROM agents WHERE agent_id = $1)
		WHERE kernel_id = $2`, agentID, kernelID)
	if err != nil {
		return fmt.Errorf("bind kernel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) ReleaseKernel(ctx context.Context, kernelID string) error {
	var agentID sql.NullString
	var slotsRaw slotJSON
	row := t.sqlTx.QueryRowContext(ctx, `
		SELECT agent_id, requested_slots FROM kernels WHERE kernel_id = $1 FOR UPDATE`, kernelID)
	if err := row.Scan(&agentID, &slotsRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("lock kernel row: %w", err)
	}
	if !agentID.Valid || agentID.String == "" {
		return nil
	}

	var occupiedRaw slotJSON
	row = t.sqlTx.QueryRowContext(ctx, `
		SELECT occupied_slots FROM agents WHERE agent_id = $1 FOR UPDATE`, agentID.String)
	if err := row.Scan(&occupiedRaw); err != nil {
		return fmt.Errorf("lock agent row: %w", err)
	}
	reduced, err := resource.Sub(resource.Slot(occupiedRaw), resource.Slot(slotsRaw))
	if err != nil {
		reduced = resource.Slot{}
	}

	if _, err := t.sqlTx.ExecContext(ctx, `
		UPDATE agents SET occupied_slots = $1, container_count = GREATEST(container_count - 1, 0)
		WHERE agent_id = $2`, slotJSON(reduced), agentID.String); err != nil {
		return fmt.Errorf("update agent occupancy: %w", err)
	}
	if _, err := t.sqlTx.ExecContext(ctx, `
		UPDATE kernels SET agent_id = NULL, agent_addr = NULL WHERE kernel_id = $1`, kernelID); err != nil {
		return fmt.Errorf("release kernel: %w", err)
	}
	return nil
}

func (t *pgTx) TransitionSession(ctx context.Context, sessionID string, from, to model.SessionStatus, info string, data map[string]any) error {
	var result model.Result
	if r, ok := data[store.ResultDataKey].(model.Result); ok {
		result = r
	}
	res, err := t.sqlTx.ExecContext(ctx, `
		UPDATE sessions SET status = $1, status_info = $2, status_data = $3,
		       result = CASE WHEN $4 <> '' THEN $4 ELSE result END
		WHERE session_id = $5 AND status = $6`,
		to, info, statusDataJSON(data), string(result), sessionID, from)
	if err != nil {
		return fmt.Errorf("transition session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition session rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrStaleState
	}
	return nil
}

func (t *pgTx) IncrementConcurrency(ctx context.Context, accessKey string, kind model.ConcurrencyKind) (int, error) {
	var count int
	row := t.sqlTx.QueryRowContext(ctx, `
		INSERT INTO concurrency_counters (access_key, kind, count) VALUES ($1, $2, 1)
		ON CONFLICT (access_key, kind) DO UPDATE SET count = concurrency_counters.count + 1
		RETURNING count`, accessKey, kind)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("increment concurrency: %w", err)
	}
	return count, nil
}

func (t *pgTx) DecrementConcurrency(ctx context.Context, accessKey string, kind model.ConcurrencyKind) (int, error) {
	var count int
	row := t.sqlTx.QueryRowContext(ctx, `
		UPDATE concurrency_counters SET count = GREATEST(count - 1, 0)
		WHERE access_key = $1 AND kind = $2
		RETURNING count`, accessKey, kind)
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("decrement concurrency: %w", err)
	}
	return count, nil
}

func (t *pgTx) AppendStatusHistory(ctx context.Context, sessionID string, status model.SessionStatus, info string) error {
	var seq int
	row := t.sqlTx.QueryRowContext(ctx, `
		INSERT INTO status_history_seq (session_id, next_seq) VALUES ($1, 1)
		ON CONFLICT (session_id) DO UPDATE SET next_seq = status_history_seq.next_seq + 1
		RETURNING next_seq`, sessionID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("allocate status history sequence: %w", err)
	}

	if _, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO status_history (session_id, sequence_no, status, info, occurred_at)
		VALUES ($1, $2, $3, $4, now())`, sessionID, seq, status, info); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}

	t.buf.Add(events.Event{
		ID:         uuid.NewString(),
		Kind:       statusEventKind(status),
		SessionID:  sessionID,
		SequenceNo: seq,
		Info:       info,
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

func (t *pgTx) PublishOnCommit(evt events.Event) {
	t.buf.Add(evt)
}

func (t *pgTx) SaveSchedulerCursor(ctx context.Context, cursor model.SchedulerCursor) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO scheduler_cursors (scaling_group, position) VALUES ($1, $2)
		ON CONFLICT (scaling_group) DO UPDATE SET position = $2`,
		cursor.ScalingGroup, cursor.Position)
	if err != nil {
		return fmt.Errorf("save scheduler cursor: %w", err)
	}
	return nil
}

func (t *pgTx) ReadSchedulerCursor(ctx context.Context, scalingGroup string) (model.SchedulerCursor, error) {
	var c model.SchedulerCursor
	c.ScalingGroup = scalingGroup
	row := t.sqlTx.QueryRowContext(ctx, `
		SELECT position FROM scheduler_cursors WHERE scaling_group = $1`, scalingGroup)
	if err := row.Scan(&c.Position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, nil
		}
		return c, fmt.Errorf("read scheduler cursor: %w", err)
	}
	return c, nil
}

func (t *pgTx) ListDependencies(ctx context.Context, sessionID string) ([]model.Dependency, error) {
	rows, err := t.sqlTx.QueryContext(ctx, `
		SELECT session_id, depends_on FROM session_dependencies WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var out []model.Dependency
	for rows.Next() {
		var d model.Dependency
		if err := rows.Scan(&d.SessionID, &d.DependsOn); err != nil {
			return nil, fmt.Errorf("scan dependency row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *pgTx) CountPendingForAccessKey(ctx context.Context, accessKey string) (int, error) {
	var count int
	row := t.sqlTx.QueryRowContext(ctx, `
		SELECT count(*) FROM sessions WHERE access_key = $1 AND status = $2`, accessKey, model.SessionPending)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending for access key: %w", err)
	}
	return count, nil
}

func (t *pgTx) AllowedSessionTypes(ctx context.Context, scalingGroup string) ([]model.SessionType, error) {
	rows, err := t.sqlTx.QueryContext(ctx, `
		SELECT session_type FROM scaling_group_allowed_session_types WHERE scaling_group = $1`, scalingGroup)
	if err != nil {
		return nil, fmt.Errorf("allowed session types: %w", err)
	}
	defer rows.Close()

	var out []model.SessionType
	for rows.Next() {
		var st model.SessionType
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("scan allowed session type row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (t *pgTx) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	var sess model.Session
	var slots slotJSON
	var data statusDataJSON
	row := t.sqlTx.QueryRowContext(ctx, `
		SELECT session_id, name, access_key, status, status_info, status_data, requested_slots, created_at, result
		FROM sessions WHERE session_id = $1 FOR SHARE`, sessionID)
	if err := row.Scan(&sess.SessionID, &sess.Name, &sess.AccessKey, &sess.Status,
		&sess.StatusInfo, &data, &slots, &sess.CreatedAt, &sess.Result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, store.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.RequestedSlots = resource.Slot(slots)
	sess.StatusData = data
	return sess, nil
}
