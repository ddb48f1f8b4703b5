package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// KafkaTransport writes every event to one topic keyed by room code, so a
// code's events share a partition and keep their order.
//
// Every transport reads through its own consumer group, named after
// groupPrefix plus a random suffix. A fresh group has no committed offset,
// so the reader starts at the newest message and a restarted process never
// replays events published while it was down.
type KafkaTransport struct {
	w      *kafka.Writer
	reader kafka.ReaderConfig
	codec  Codec
	log    *slog.Logger
}

func NewKafkaTransport(brokers []string, topic, groupPrefix string, codec Codec, log *slog.Logger) *KafkaTransport {
	return &KafkaTransport{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		reader: kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupPrefix + "-" + uuid.NewString(),
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        250 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			CommitInterval: time.Second,
		},
		codec: codec,
		log:   log,
	}
}

func (t *KafkaTransport) Name() string { return "kafka" }

func (t *KafkaTransport) Publish(ctx context.Context, ev ChangeEvent) error {
	b, err := t.codec.Marshal(ev)
	if err != nil {
		return err
	}
	return t.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RoomCode),
		Value: b,
		Time:  ev.At,
	})
}

func (t *KafkaTransport) Run(ctx context.Context, deliver func(ChangeEvent)) error {
	r := kafka.NewReader(t.reader)
	defer r.Close()
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			t.log.Warn("kafka feed: read failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		var ev ChangeEvent
		if err := t.codec.Unmarshal(m.Value, &ev); err != nil {
			t.log.Warn("kafka feed: bad message", "offset", m.Offset, "error", err)
			continue
		}
		deliver(ev)
	}
}

func (t *KafkaTransport) Close() error { return t.w.Close() }
