package usecases_port

import (
	"backup-service/internal/core/domain"
	"context"
)

type PublishSnapshotPort interface {
	Execute(ctx context.Context, path string, payload []byte, version domain.RemoteVersion) (domain.WriteResult, error)
}
