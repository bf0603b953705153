package rabbitmq

import (
	"backup-service/internal/constants"
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	routingKey string
	msg        amqp.Publishing
	err        error
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	p.routingKey = routingKey
	p.msg = msg
	return p.err
}

type capturedLog struct {
	msg    string
	fields port.Fields
}

type captureLogger struct {
	fields  port.Fields
	entries *[]capturedLog
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{fields: port.Fields{}, entries: &[]capturedLog{}}
}

func (l *captureLogger) add(msg string, fields port.Fields) {
	merged := port.Fields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	*l.entries = append(*l.entries, capturedLog{msg: msg, fields: merged})
}

func (l *captureLogger) Info(msg string, fields port.Fields)  { l.add(msg, fields) }
func (l *captureLogger) Warn(msg string, fields port.Fields)  { l.add(msg, fields) }
func (l *captureLogger) Debug(msg string, fields port.Fields) { l.add(msg, fields) }
func (l *captureLogger) Error(msg string, err error, fields port.Fields) {
	l.add(msg, fields)
}
func (l *captureLogger) WithFields(fields port.Fields) port.LoggerPort {
	merged := port.Fields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &captureLogger{fields: merged, entries: l.entries}
}

func TestNewBackupEventsPublisherValidatesArguments(t *testing.T) {
	_, err := NewBackupEventsPublisher(nil, constants.RoutingKeyBackupCycleResult)
	require.Error(t, err)

	_, err = NewBackupEventsPublisher(&recordingPublisher{}, "")
	require.Error(t, err)
}

func TestPublishBackupResult(t *testing.T) {
	producer := &recordingPublisher{}
	adapter, err := NewBackupEventsPublisher(producer, constants.RoutingKeyBackupCycleResult)
	require.NoError(t, err)

	record := domain.NewBackupRecord(domain.TriggerSchedule, time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC))
	record.Path = "backups/db-2025-03-14.json"
	record.Succeed(domain.WriteResult{Token: "abc", WriteID: "commit-1", ContentHash: "deadbeef"}, time.Date(2025, 3, 14, 6, 0, 2, 0, time.UTC))

	ctx := contextkeys.ContextWithTraceID(context.Background(), "trace-1")
	require.NoError(t, adapter.PublishBackupResult(ctx, *record))

	require.Equal(t, constants.RoutingKeyBackupCycleResult, producer.routingKey)
	require.Equal(t, "application/json", producer.msg.ContentType)
	require.Equal(t, amqp.Persistent, producer.msg.DeliveryMode)
	require.Equal(t, record.CycleID.String(), producer.msg.MessageId)
	require.Equal(t, "trace-1", producer.msg.Headers["x-trace-id"])
	require.Equal(t, "succeeded", producer.msg.Headers["x-backup-status"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(producer.msg.Body, &body))
	require.Equal(t, "backup.cycle.finished", body["event"])
	require.Equal(t, "backups/db-2025-03-14.json", body["path"])
	require.Equal(t, "abc", body["version_token"])
	require.Equal(t, "succeeded", body["status"])
}

func TestPublishBackupResultWrapsProducerError(t *testing.T) {
	brokerErr := errors.New("channel closed")
	adapter, err := NewBackupEventsPublisher(&recordingPublisher{err: brokerErr}, constants.RoutingKeyBackupCycleResult)
	require.NoError(t, err)

	record := domain.NewBackupRecord(domain.TriggerManual, time.Now())
	err = adapter.PublishBackupResult(context.Background(), *record)
	require.ErrorIs(t, err, brokerErr)
}

func TestPkgLoggerBridgeMapsKeyValues(t *testing.T) {
	logger := newCaptureLogger()
	bridge := NewPkgLoggerBridge(logger)

	bridge.Info("Declaring exchange", "name", constants.BackupExchange, 42, "skipped", "dangling")

	require.Len(t, *logger.entries, 1)
	entry := (*logger.entries)[0]
	require.Equal(t, "Declaring exchange", entry.msg)
	require.Equal(t, port.Fields{"name": constants.BackupExchange}, entry.fields)
}
