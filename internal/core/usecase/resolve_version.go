package usecase

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"context"
)

type ResolveVersionUseCase struct {
	store port.ObjectStorePort
}

func NewResolveVersionUseCase(store port.ObjectStorePort) *ResolveVersionUseCase {
	return &ResolveVersionUseCase{store: store}
}

// Execute узнает текущую версию объекта. Отсутствие объекта (первый бэкап за день)
// ошибкой не считается и приводит к созданию.
func (uc *ResolveVersionUseCase) Execute(ctx context.Context, path string) (domain.RemoteVersion, error) {
	logger := contextkeys.LoggerFromContext(ctx)
	ucLogger := logger.WithFields(port.Fields{
		"use_case": "ResolveVersion",
		"path":     path,
	})

	version, err := uc.store.ResolveVersion(ctx, path)
	if err != nil {
		ucLogger.Error("Failed to resolve remote version", err, nil)
		return domain.RemoteVersion{}, &domain.ResolutionError{Path: path, Err: err}
	}

	if !version.Exists {
		ucLogger.Info("Remote object does not exist yet, will create", nil)
	} else {
		ucLogger.Debug("Remote version resolved", port.Fields{"version_token": version.Token})
	}
	return version, nil
}
