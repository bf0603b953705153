package usecases_port

import (
	"backup-service/internal/core/domain"
	"context"
)

type BuildSnapshotPort interface {
	Execute(ctx context.Context) (*domain.Snapshot, error)
}
