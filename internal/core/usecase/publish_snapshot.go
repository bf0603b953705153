package usecase

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"context"
	"errors"
	"fmt"
	"time"
)

type PublishSnapshotUseCase struct {
	store port.ObjectStorePort
	now   func() time.Time
}

func NewPublishSnapshotUseCase(store port.ObjectStorePort, now func() time.Time) *PublishSnapshotUseCase {
	if now == nil {
		now = time.Now
	}
	return &PublishSnapshotUseCase{store: store, now: now}
}

// Execute выполняет условную запись. Конфликт версий не повторяется внутри:
// следующая попытка будет на следующем тике планировщика.
func (uc *PublishSnapshotUseCase) Execute(ctx context.Context, path string, payload []byte, version domain.RemoteVersion) (domain.WriteResult, error) {
	logger := contextkeys.LoggerFromContext(ctx)

	// Хэш считается до кодирования для транспорта
	hash := domain.ContentHash(payload)
	unchanged := version.Exists && version.ContentHash != "" && version.ContentHash == hash

	ucLogger := logger.WithFields(port.Fields{
		"use_case":     "PublishSnapshot",
		"path":         path,
		"content_hash": hash,
		"mode":         writeMode(version),
	})
	if unchanged {
		ucLogger.Info("Payload is identical to the published one", nil)
	}

	req := domain.WriteRequest{
		Path:    path,
		Payload: payload,
		Message: commitMessage(uc.now(), hash),
		Version: version,
	}

	res, err := uc.store.WriteIfMatch(ctx, req)
	if err != nil {
		var conflictErr *domain.ConflictError
		var transportErr *domain.TransportError
		switch {
		case errors.As(err, &conflictErr):
			ucLogger.Warn("Remote object changed since version was resolved", port.Fields{"detail": conflictErr.Detail})
			return domain.WriteResult{}, conflictErr
		case errors.As(err, &transportErr):
			ucLogger.Error("Remote store rejected the write", err, port.Fields{"status_code": transportErr.StatusCode})
			return domain.WriteResult{}, transportErr
		default:
			ucLogger.Error("Write to remote store failed", err, nil)
			return domain.WriteResult{}, &domain.TransportError{Path: path, Err: err}
		}
	}

	res.ContentHash = hash
	res.Unchanged = unchanged
	ucLogger.Info("Snapshot published", port.Fields{"version_token": res.Token, "write_id": res.WriteID})
	return res, nil
}

func writeMode(version domain.RemoteVersion) string {
	if version.Exists {
		return "update"
	}
	return "create"
}

func commitMessage(at time.Time, hash string) string {
	short := hash
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("Database backup %s (sha256:%s)", at.UTC().Format(time.RFC3339), short)
}
