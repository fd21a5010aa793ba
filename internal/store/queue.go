package store

import (
	"context"
	"time"

	"github.com/richardliu001/eventcore/internal/model"
	"github.com/segmentio/kafka-go"
)

// QueueTopic is the single outbound queue named `domain-events` (spec §6).
const QueueTopic = "domain-events"

// Enqueue publishes an outbox entry's payload onto the external queue,
// keyed by event id so a queue that supports deduplication can coalesce
// duplicate deliveries (spec §4.3 step 4). Mirrors the teacher's
// PublishEvent, generalized from a Wallet-shaped payload to the outbox
// entry's already-denormalized payload blob.
func (s *Store) Enqueue(ctx context.Context, entry model.OutboxEntry) error {
	msg := kafka.Message{
		Key:   []byte(entry.EventID),
		Value: []byte(entry.Payload),
		Time:  time.Now(),
	}
	return s.Writer.WriteMessages(ctx, msg)
}
