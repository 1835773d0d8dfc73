package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roomlog/internal/config"
	"roomlog/internal/eventlog"
	"roomlog/internal/lunch"
	"roomlog/internal/queue"
	"roomlog/internal/reasons"
	"roomlog/internal/roster"
	"roomlog/internal/syncsvc"
	"roomlog/internal/wellbeing"
)

// The worker replicates room counts to the shared counter service. It
// recomputes counts from the local files whenever the API nudges it, plus
// on a fixed interval so another device's dashboard never goes fully
// stale. Replication is best effort; local derivation never depends on it.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if cfg.Env == "dev" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	installID := cfg.InstallID
	if installID == "" {
		installID = uuid.NewString()
	}

	logStore := eventlog.NewStore(cfg.EventLogPath(), logger)
	taxonomy := reasons.Load(cfg.ReasonsPath(), logger)
	tally := lunch.NewTally(cfg.LunchTallyPath(), logStore, logger)
	rosterStore := roster.NewStore(cfg.RosterPath(), logger)

	redisClient := syncsvc.NewClient(cfg.RedisAddr)
	syncer := syncsvc.New(redisClient, cfg.SyncKey, installID, logger)

	q := newQueue(cfg.QueueBackend, redisClient, logger)

	svc := wellbeing.New(logStore, taxonomy, tally, rosterStore, nil, syncer, logger)

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	if !syncer.Healthy(ctx) {
		logger.Warn("counter sync service not reachable, will keep retrying")
	}

	push := func(reason string) {
		counts := svc.RoomCounts()
		if err := syncer.Push(ctx, counts); err != nil {
			logger.Warn("counts push failed", zap.String("trigger", reason), zap.Error(err))
			return
		}
		logger.Info("counts pushed",
			zap.String("trigger", reason),
			zap.Int("wellbeing", counts.Wellbeing),
			zap.Int("diverse_learners", counts.DiverseLearners),
			zap.Int("lunch", counts.Lunch))
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	logger.Info("worker started", zap.Duration("interval", cfg.SyncInterval))
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				logger.Info("worker stopped")
				return
			}
			push(msg.Kind)
		case <-ticker.C:
			push("interval")
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		}
	}
}

// newQueue selects the nudge backend. The in-memory queue only carries
// nudges within a single process; a worker running beside a separate api
// process will never see them and relies on the interval ticker alone.
func newQueue(backend string, client *redis.Client, logger *zap.Logger) queue.Queue {
	if backend == "memory" {
		logger.Warn("memory queue backend is single-process only; nudges from a separate api process will not arrive")
		return queue.NewInMemory(64)
	}
	return queue.NewRedisQueue(client, "roomlog:nudges")
}
