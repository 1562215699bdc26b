// File: internal/audit/kafka_sink.go
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
)

// KafkaSink mirrors audit events onto a broker topic for downstream security
// tooling. The writer runs in async mode: Emit never blocks the request path
// and delivery failures are only logged.
type KafkaSink struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaSink creates a sink producing to the given topic.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	log := logger.Named("audit_kafka_sink")
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("Failed to deliver audit events to Kafka",
					zap.Int("count", len(messages)),
					zap.Error(err),
				)
			}
		},
	}
	return &KafkaSink{writer: writer, logger: log}
}

// Emit serializes the event and hands it to the async writer.
func (s *KafkaSink) Emit(event models.AuditEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal audit event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CorrelationID),
		Value: value,
		Time:  event.Timestamp,
	}); err != nil {
		s.logger.Error("Failed to enqueue audit event", zap.Error(err))
	}
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
