// Command dispatcher runs the outbox dispatcher loop (spec §4.3): claim
// pending outbox rows, enqueue them on the queue, and record
// retry/backoff state. Adapted from the teacher's cmd/poller/main.go
// ticker loop, generalized into the dispatcher.Dispatcher state machine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/eventcore/internal/clock"
	"github.com/richardliu001/eventcore/internal/config"
	"github.com/richardliu001/eventcore/internal/dispatcher"
	"github.com/richardliu001/eventcore/internal/logger"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/richardliu001/eventcore/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.OutboxEntry{}, &model.DomainEvent{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:        kafka.TCP(cfg.Queue.Brokers...),
		Topic:       cfg.Queue.Topic,
		Balancer:    &kafka.LeastBytes{},
		MaxAttempts: cfg.Queue.WriteMaxAttempts,
	}

	st := store.New(gdb, rdb, kw, log)
	dcfg := dispatcher.Config{
		Period:      cfg.Dispatcher.Period(),
		BatchSize:   cfg.Dispatcher.BatchSize,
		BaseDelay:   cfg.Dispatcher.BaseDelay(),
		CapDelay:    cfg.Dispatcher.CapDelay(),
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
	}
	if dcfg.Period == 0 {
		dcfg = dispatcher.DefaultConfig()
	}
	disp := dispatcher.New(st, clock.System{}, dcfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("eventcore dispatcher started")
	disp.Run(ctx) // blocks until ctx is cancelled by the signal handler
	log.Info("eventcore dispatcher stopped")
}
