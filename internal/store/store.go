// Package store is the storage adapter layer: gorm-backed repositories for
// aggregate state and the outbox, a Redis-backed dispatcher lease hint and
// metrics cache, and a Kafka writer for queue delivery. Adapted from the
// teacher's internal/repo/repo.go — same locking idioms
// (clause.Locking{Strength:"UPDATE"}), same optimistic-update pattern
// (UPDATE ... WHERE version = ?), generalized from a single Wallet table
// to the Action/Policy aggregate tables and the outbox/ledger tables.
package store

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QueueWriter is the subset of *kafka.Writer the store depends on; a
// narrow interface so tests can substitute a fake queue without a live
// broker, the way the teacher substitutes *redis.Client with redismock.
type QueueWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Store bundles the database, cache, and queue handles every repository
// method needs.
type Store struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Writer QueueWriter
	Log    *zap.SugaredLogger
}

// New constructs a Store.
func New(db *gorm.DB, rdb *redis.Client, w QueueWriter, log *zap.SugaredLogger) *Store {
	return &Store{DB: db, Redis: rdb, Writer: w, Log: log}
}

// Tx returns the gorm handle scoped to ctx, for read-only queries outside
// a writepath transaction.
func (s *Store) Tx(ctx context.Context) *gorm.DB { return s.DB.WithContext(ctx) }
