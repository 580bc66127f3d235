// Command schedcore runs the Backend.AI Manager's scheduling core: the
// pending-queue scheduler, agent selector, placement engine, and the
// per-scaling-group reconciliation loop that drives sessions from PENDING
// to RUNNING and back down to TERMINATED.
//
// The agent wire protocol and the HTTP/GraphQL API surface are out of
// scope for this core (spec.md §1 Non-goals); this binary wires only the
// scheduling and lifecycle machinery around store/lock/events.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/lablup/baimgr-core/internal/agentrpc"
	"github.com/lablup/baimgr-core/internal/config"
	"github.com/lablup/baimgr-core/internal/events"
	"github.com/lablup/baimgr-core/internal/lock"
	"github.com/lablup/baimgr-core/internal/logger"
	"github.com/lablup/baimgr-core/internal/orchestrator"
	"github.com/lablup/baimgr-core/internal/store"
	"github.com/lablup/baimgr-core/internal/store/memory"
	"github.com/lablup/baimgr-core/internal/store/postgres"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", getEnv("SCHEDCORE_CONFIG", ""), "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Pretty)

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to construct store")
	}
	defer closeStore()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Lock.Addr, Password: cfg.Lock.Password})
	defer redisClient.Close()
	locker := lock.New(redisClient, cfg.Lock.Lease)

	orch := orchestrator.New(st, locker, newAgentClient(), nil, cfg.Schedule)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to start orchestrator")
	}
	logger.Log.Info().Msg("schedcore started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Log.Info().Msg("shutting down")
	orch.Stop()
}

// buildStore constructs the configured store.Store backend, returning a
// close function the caller must defer. An empty DSN runs against the
// in-process memory store, useful for local development and the exercises
// in spec.md §8 without a Postgres instance.
func buildStore(cfg config.Config) (store.Store, func(), error) {
	if cfg.Store.DSN == "" {
		logger.Log.Warn().Msg("no store DSN configured, running against the in-memory store")
		return memory.New(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	publisher, err := events.NewPublisher(events.Config{
		URL:      cfg.Events.URL,
		User:     cfg.Events.User,
		Password: cfg.Events.Password,
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect event publisher: %w", err)
	}

	pgStore := postgres.New(db, publisher, cfg.Store.TxRetries)
	return pgStore, func() { db.Close() }, nil
}

// newAgentClient returns the agentrpc.Client this binary dispatches kernel
// lifecycle commands through. The real agent wire protocol is a Non-goal
// of this core (spec.md §1), so no transport implementation exists;
// unreachableAgentClient fails every call with errNoAgentTransport, which
// the orchestrator logs and retries on the next tick, as it does for a
// down agent.
func newAgentClient() agentrpc.Client {
	return unreachableAgentClient{}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
