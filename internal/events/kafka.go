package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/quotaguard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewPublisher returns a Kafka publisher when enabled and a no-op otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		return NoopPublisher{}
	}

	log = log.Named("events.kafka")
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("kafka delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return writer.Close()
		},
	})
	log.Info("kafka publisher enabled",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
	return &KafkaPublisher{writer: writer, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := toMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(context.WithoutCancel(ctx), msg)
}

func toMessage(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(event.Type)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(event.Version))},
		},
	}, nil
}
