// Command server runs the HTTP command API: executeCommand(command) ->
// result over gin routes (spec §6). Adapted from the teacher's
// cmd/server/main.go wiring order (config -> logger -> postgres -> redis
// -> kafka -> service -> router -> serve).
package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/richardliu001/eventcore/internal/clock"
	"github.com/richardliu001/eventcore/internal/command"
	"github.com/richardliu001/eventcore/internal/config"
	"github.com/richardliu001/eventcore/internal/dispatcher"
	"github.com/richardliu001/eventcore/internal/eventstore"
	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/logger"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/richardliu001/eventcore/internal/store"
	httptransport "github.com/richardliu001/eventcore/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Action{}, &model.Policy{}, &model.DomainEvent{}, &model.OutboxEntry{}, &model.ProcessedEvent{}, &model.AuditRow{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:        kafka.TCP(cfg.Queue.Brokers...),
		Topic:       cfg.Queue.Topic,
		Balancer:    &kafka.LeastBytes{},
		MaxAttempts: cfg.Queue.WriteMaxAttempts,
	}

	// 6. store & command service
	st := store.New(gdb, rdb, kw, log)
	ev := eventstore.New(idgen.New(), clock.System{})
	if cfg.Dispatcher.MaxAttempts > 0 {
		ev.MaxAttempts = cfg.Dispatcher.MaxAttempts
	}
	ids := idgen.New()
	svc := command.NewService(st, ev, ids, log)

	// 7. dispatcher handle for the operator surface (getMetrics,
	// triggerProcessing); the actual polling loop runs in cmd/dispatcher,
	// this instance never calls Run.
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

	// 8. gin router
	router := httptransport.NewRouter(svc, disp, ids, cfg.RateLimit, log)

	// 9. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("eventcore server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
