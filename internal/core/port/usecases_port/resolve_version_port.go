package usecases_port

import (
	"backup-service/internal/core/domain"
	"context"
)

type ResolveVersionPort interface {
	Execute(ctx context.Context, path string) (domain.RemoteVersion, error)
}
