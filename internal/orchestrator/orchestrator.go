// Package orchestrator drives the per-scaling-group reconciliation loop
// (spec.md §5): one ticker per scaling group acquires a distributed lock,
// runs a scheduling pass over PENDING sessions, advances already-SCHEDULED
// sessions through their agent-lifecycle stages, and finalizes TERMINATING
// sessions. A separate cron job sweeps sessions that outlived their pending
// timeout. Grounded on the teacher's SessionReconciler
// (api/internal/services/session_reconciler.go): a cancellable ticker loop
// over background passes, generalized from ad hoc stuck-session recovery to
// the full scheduling+lifecycle state machine and backed by the distributed
// lock instead of running unconditionally on every API replica.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lablup/baimgr-core/internal/agentrpc"
	"github.com/lablup/baimgr-core/internal/config"
	"github.com/lablup/baimgr-core/internal/lock"
	"github.com/lablup/baimgr-core/internal/logger"
	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// Orchestrator owns one goroutine per enabled scaling group plus the
// pending-timeout reaper. Its lifetime is start(config) -> run -> stop, per
// the Design Note on replacing the source's process-wide root context with
// an explicitly scoped value (spec.md §9).
type Orchestrator struct {
	store   store.Store
	locker  *lock.Locker
	agents  agentrpc.Client
	storage agentrpc.StorageClient
	cfg     config.ScheduleConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cron   *cron.Cron
}

// New constructs an Orchestrator. storageClient may be nil if no scaling
// group mounts vfolders.
func New(st store.Store, locker *lock.Locker, agentClient agentrpc.Client, storageClient agentrpc.StorageClient, cfg config.ScheduleConfig) *Orchestrator {
	return &Orchestrator{
		store:   st,
		locker:  locker,
		agents:  agentClient,
		storage: storageClient,
		cfg:     cfg,
	}
}

// Start reads the enabled scaling groups, launches one tick loop per group
// plus the pending-timeout reaper, and returns once every goroutine has
// been launched. Call Stop to shut everything down; Start must not be
// called again on the same Orchestrator afterward.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	groups, err := o.store.ListScalingGroups(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("list scaling groups: %w", err)
	}

	for _, g := range groups {
		group := g
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.groupLoop(runCtx, group)
		}()
	}

	c := cron.New()
	if _, err := c.AddFunc(o.reaperSchedule(), func() { o.reapPendingTimeouts(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule pending-timeout reaper %q: %w", o.reaperSchedule(), err)
	}
	c.Start()
	o.cron = c

	logger.Orchestrator().Info().Int("scaling_groups", len(groups)).Str("reaper_cron", o.reaperSchedule()).Msg("orchestrator started")
	return nil
}

func (o *Orchestrator) reaperSchedule() string {
	if o.cfg.ReaperCron != "" {
		return o.cfg.ReaperCron
	}
	return "@every 1m"
}

// Stop cancels every group loop and the reaper, then waits for them to
// finish their current tick.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	if o.cron != nil {
		<-o.cron.Stop().Done()
	}
	o.wg.Wait()
	logger.Orchestrator().Info().Msg("orchestrator stopped")
}

func (o *Orchestrator) tickInterval() time.Duration {
	if o.cfg.Interval > 0 {
		return o.cfg.Interval
	}
	return 5 * time.Second
}

func (o *Orchestrator) groupLoop(ctx context.Context, group model.ScalingGroup) {
	ticker := time.NewTicker(o.tickInterval())
	defer ticker.Stop()

	o.tick(ctx, group)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx, group)
		}
	}
}

// tick acquires the scaling group's lock, runs a scheduling pass and a
// lifecycle sweep, and releases the lock. A lock held by another manager
// instance is the expected steady-state case, not an error: this instance
// simply skips the tick.
func (o *Orchestrator) tick(ctx context.Context, group model.ScalingGroup) {
	lockName := "schedule." + group.Name
	lk, ok, err := o.locker.Acquire(ctx, lockName)
	if err != nil {
		logger.Orchestrator().Error().Err(err).Str("scaling_group", group.Name).Msg("failed to acquire scheduling lock")
		return
	}
	if !ok {
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go o.locker.Heartbeat(hbCtx, lk, o.heartbeatInterval())
	defer stopHeartbeat()

	defer func() {
		if err := o.locker.Release(ctx, lk); err != nil {
			logger.Orchestrator().Warn().Err(err).Str("scaling_group", group.Name).Msg("failed to release scheduling lock")
		}
	}()

	o.schedulingPass(ctx, group)
	o.lifecyclePass(ctx, group)
}

func (o *Orchestrator) heartbeatInterval() time.Duration {
	interval := o.tickInterval() / 2
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return interval
}

func (o *Orchestrator) rpcTimeout() time.Duration {
	if o.cfg.RPCTimeout > 0 {
		return o.cfg.RPCTimeout
	}
	return 30 * time.Second
}
