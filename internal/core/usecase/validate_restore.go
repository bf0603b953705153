package usecase

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/contracts"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Коллекции, без которых бэкап считается испорченным. Порядок задает порядок проверки.
var requiredBackupFields = []string{"properties", "clients", "showings"}

// ValidateRestoreUseCase скачивает бэкап и проверяет его структуру.
// В живое хранилище ничего не записывается: применение бэкапа - отдельная ручная операция.
type ValidateRestoreUseCase struct {
	store port.ObjectStorePort
	// preflight проверяет настройки хранилища до обращения к нему. Может быть nil.
	preflight func() error
}

func NewValidateRestoreUseCase(store port.ObjectStorePort, preflight func() error) *ValidateRestoreUseCase {
	return &ValidateRestoreUseCase{store: store, preflight: preflight}
}

func (uc *ValidateRestoreUseCase) Execute(ctx context.Context, name string) (*domain.Snapshot, error) {
	logger := contextkeys.LoggerFromContext(ctx)
	ucLogger := logger.WithFields(port.Fields{
		"use_case":    "ValidateRestore",
		"backup_name": name,
	})

	path, err := domain.BackupPathFromName(name)
	if err != nil {
		ucLogger.Warn("Rejected backup name", port.Fields{"reason": err.Error()})
		return nil, &domain.MalformedBackupError{Reason: err.Error()}
	}
	ucLogger = ucLogger.WithFields(port.Fields{"path": path})

	if uc.preflight != nil {
		if err := uc.preflight(); err != nil {
			ucLogger.Error("Remote store is not configured", err, nil)
			return nil, err
		}
	}

	data, err := uc.store.Fetch(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrBackupNotFound) {
			ucLogger.Warn("Backup not found", nil)
			return nil, fmt.Errorf("%s: %w", path, domain.ErrBackupNotFound)
		}
		ucLogger.Error("Failed to download backup", err, nil)
		return nil, err
	}

	snapshot, err := ValidateBackupPayload(data)
	if err != nil {
		ucLogger.Warn("Backup failed validation", port.Fields{"reason": err.Error()})
		return nil, err
	}

	ucLogger.Info("Backup is valid", port.Fields{"counts": snapshot.Counts(), "timestamp": snapshot.Timestamp})
	return snapshot, nil
}

// ValidateBackupPayload проверяет и разбирает содержимое файла бэкапа.
// properties, clients и showings обязательны (могут быть пустыми), adminActions - нет.
func ValidateBackupPayload(data []byte) (*domain.Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &domain.MalformedBackupError{Reason: "payload is not a JSON object: " + err.Error()}
	}
	if top == nil {
		return nil, &domain.MalformedBackupError{Reason: "payload is not a JSON object"}
	}

	for _, field := range requiredBackupFields {
		raw, ok := top[field]
		if !ok {
			return nil, &domain.MalformedBackupError{Field: field, Reason: "is missing"}
		}
		if !isJSONArray(raw) {
			return nil, &domain.MalformedBackupError{Field: field, Reason: "is not a collection"}
		}
	}
	if raw, ok := top["adminActions"]; ok && !isJSONArray(raw) && !isJSONNull(raw) {
		return nil, &domain.MalformedBackupError{Field: "adminActions", Reason: "is not a collection"}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &domain.MalformedBackupError{Reason: err.Error()}
	}
	if raw, ok := top["adminActions"]; ok && isJSONNull(raw) {
		// adminActions: null равнозначен отсутствию поля
		delete(doc.(map[string]interface{}), "adminActions")
	}
	if err := contracts.ValidateBackup(doc); err != nil {
		return nil, err
	}

	snapshot, err := domain.UnmarshalSnapshot(data)
	if err != nil {
		return nil, &domain.MalformedBackupError{Field: "timestamp", Reason: err.Error()}
	}
	return snapshot, nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
