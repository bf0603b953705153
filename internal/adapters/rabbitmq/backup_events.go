package rabbitmq

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// messagePublisher - то, что адаптеру нужно от rabbitmq_producer.Publisher
type messagePublisher interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// BackupEventsPublisher - реализация BackupEventsPort для RabbitMQ
type BackupEventsPublisher struct {
	producer       messagePublisher
	routingKey     string
	publishTimeout time.Duration
}

// backupResultEvent - тело сообщения об итоге цикла
type backupResultEvent struct {
	Event string `json:"event"`
	domain.BackupRecord
}

const backupResultEventName = "backup.cycle.finished"

func NewBackupEventsPublisher(producer messagePublisher, routingKey string) (*BackupEventsPublisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("rabbitmq adapter: producer cannot be nil")
	}
	if routingKey == "" {
		return nil, fmt.Errorf("rabbitmq adapter: routingKey cannot be empty")
	}
	return &BackupEventsPublisher{
		producer:       producer,
		routingKey:     routingKey,
		publishTimeout: 10 * time.Second,
	}, nil
}

func (a *BackupEventsPublisher) PublishBackupResult(ctx context.Context, record domain.BackupRecord) error {
	adapterLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":   "BackupEventsPublisher",
		"routing_key": a.routingKey,
		"cycle_id":    record.CycleID.String(),
	})

	body, err := json.Marshal(backupResultEvent{Event: backupResultEventName, BackupRecord: record})
	if err != nil {
		adapterLogger.Error("Failed to marshal backup result", err, nil)
		return fmt.Errorf("failed to marshal backup result: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    record.CycleID.String(),
		Type:         backupResultEventName,
		Headers:      amqp.Table{"x-backup-status": string(record.Status)},
	}
	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers["x-trace-id"] = traceID
	}

	publishCtx, cancel := context.WithTimeout(ctx, a.publishTimeout)
	defer cancel()

	adapterLogger.Debug("Publishing backup result", nil)
	if err := a.producer.Publish(publishCtx, a.routingKey, msg); err != nil {
		adapterLogger.Error("Failed to publish backup result", err, nil)
		return fmt.Errorf("rabbitmq adapter: failed to publish result of cycle %s: %w", record.CycleID, err)
	}

	adapterLogger.Info("Successfully published backup result", port.Fields{"status": record.Status})
	return nil
}
