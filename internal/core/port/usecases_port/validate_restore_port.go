package usecases_port

import (
	"backup-service/internal/core/domain"
	"context"
)

type ValidateRestorePort interface {
	Execute(ctx context.Context, name string) (*domain.Snapshot, error)
}
