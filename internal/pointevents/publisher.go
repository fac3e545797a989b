// Package pointevents publishes committed point changes.
package pointevents

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/go-petr/pet-points/internal/domain"
)

// HeaderEventID carries a unique id of every published event.
const HeaderEventID = "event_id"

// HeaderType carries the transaction type of the event.
const HeaderType = "type"

// MessageWriter is the part of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes point events as JSON messages keyed by user id.
//
// Messages of one user land on one partition, so consumers see them in commit order.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher returns KafkaPublisher writing asynchronously to the topic.
// Delivery failures are reported to logger.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error().Err(err).Int("messages", len(messages)).Msg("cannot deliver point events")
			}
		},
	}

	return NewPublisher(w)
}

// NewPublisher returns KafkaPublisher over the given writer.
func NewPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish encodes the event and hands it to the writer.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.PointEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.History.UserID, 10)),
		Value: value,
		Time:  event.History.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(uuid.NewString())},
			{Key: HeaderType, Value: []byte(event.History.Type)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages and releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, domain.PointEvent) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
