package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fastprodman/walletpay/internal/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var _ Publisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by transaction id, so events of
// one transaction land on one partition in order.
type KafkaPublisher struct {
	w   messageWriter
	now func() time.Time
}

func NewKafkaWriter(cfg config.KafkaConfig, logger *zap.Logger) *kafka.Writer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

func NewKafka(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, now: time.Now}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.TransactionID.String()),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
