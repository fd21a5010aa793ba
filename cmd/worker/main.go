// Command worker runs the queue worker pool (spec §4.4): it consumes
// delivered events and fans each one out to every registered handler,
// guarded by the idempotency ledger. New relative to the teacher, which
// had no consumer-side process; wiring follows the same config -> logger
// -> postgres -> kafka -> component -> run order as cmd/server and
// cmd/dispatcher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/eventcore/internal/clock"
	"github.com/richardliu001/eventcore/internal/config"
	"github.com/richardliu001/eventcore/internal/deadletter"
	"github.com/richardliu001/eventcore/internal/handler"
	"github.com/richardliu001/eventcore/internal/handler/audit"
	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/ledger"
	"github.com/richardliu001/eventcore/internal/logger"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/richardliu001/eventcore/internal/worker"

	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"
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
	if err := gdb.AutoMigrate(&model.ProcessedEvent{}, &model.AuditRow{}, &model.DeadLetter{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Queue.Brokers,
		Topic:   cfg.Queue.Topic,
		GroupID: cfg.Queue.GroupID,
	})
	defer reader.Close()

	ids := idgen.New()
	ldg := ledger.New(gdb, ids)
	dlq := deadletter.New(gdb, ids)

	registry := handler.NewRegistry()
	auditHandler := audit.New(ids)
	registry.MustRegister(auditHandler.Descriptor())

	wcfg := worker.Config{
		Concurrency: cfg.Worker.Concurrency,
		RatePerSec:  rate.Limit(cfg.Worker.RatePerSec),
		RateBurst:   cfg.Worker.RateBurst,
		MaxAttempts: cfg.Worker.MaxAttempts,
		BaseDelay:   cfg.Worker.BaseDelay(),
		CapDelay:    cfg.Worker.CapDelay(),
	}
	if wcfg.Concurrency == 0 {
		wcfg = worker.DefaultConfig()
	}
	w := worker.New(reader, registry, ldg, dlq, clock.System{}, wcfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("eventcore worker started")
	if err := w.Run(ctx); err != nil {
		log.Errorf("worker run: %v", err)
	}
	log.Info("eventcore worker stopped")
}
