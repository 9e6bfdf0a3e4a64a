package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"shelterchat/backend/internal/metrics"
	"shelterchat/backend/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one record per committed message, keyed by room
// id so that a room's messages stay on one partition in seq order.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher creates an asynchronous writer. Delivery failures are
// reported through the logger and the post-commit failure counter.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				metrics.PostCommitFailures.WithLabelValues("event").Add(float64(len(messages)))
				logger.Error("kafka delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) PublishMessage(ctx context.Context, msg models.MessagePayload) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.RoomID, 10)),
		Value: b,
		Time:  msg.CreatedAt,
	})
}

// Close flushes pending records.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
