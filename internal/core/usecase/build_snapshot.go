package usecase

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"context"
	"time"
)

// BuildSnapshotUseCase читает текущее состояние хранилища CRM целиком.
type BuildSnapshotUseCase struct {
	source port.SnapshotSourcePort
	now    func() time.Time
}

func NewBuildSnapshotUseCase(source port.SnapshotSourcePort, now func() time.Time) *BuildSnapshotUseCase {
	if now == nil {
		now = time.Now
	}
	return &BuildSnapshotUseCase{
		source: source,
		now:    now,
	}
}

// Execute возвращает свежий снапшот. Если хотя бы одно чтение упало,
// снапшот не возвращается вовсе.
// Четыре чтения не объединены в транзакцию.
func (uc *BuildSnapshotUseCase) Execute(ctx context.Context) (*domain.Snapshot, error) {
	logger := contextkeys.LoggerFromContext(ctx)
	ucLogger := logger.WithFields(port.Fields{
		"use_case": "BuildSnapshot",
	})

	takenAt := uc.now()

	reads := []struct {
		name string
		read func(context.Context) ([]domain.Record, error)
	}{
		{"properties", uc.source.GetProperties},
		{"clients", uc.source.GetClients},
		{"showings", uc.source.GetShowings},
		{"adminActions", uc.source.GetAdminActions},
	}

	collections := make([][]domain.Record, len(reads))
	for i, r := range reads {
		records, err := r.read(ctx)
		if err != nil {
			ucLogger.Error("Failed to read collection from store", err, port.Fields{"collection": r.name})
			return nil, &domain.StoreReadError{Collection: r.name, Err: err}
		}
		collections[i] = records
	}

	snapshot := domain.NewSnapshot(takenAt, collections[0], collections[1], collections[2], collections[3])
	ucLogger.Debug("Snapshot built", port.Fields{"counts": snapshot.Counts(), "path": snapshot.Path()})
	return snapshot, nil
}
