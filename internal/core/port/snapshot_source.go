package port

import (
	"backup-service/internal/core/domain"
	"context"
)

// SnapshotSourcePort - доступ на чтение к хранилищу CRM.
// Каждый метод возвращает всю коллекцию в порядке, в котором ее отдает хранилище.
type SnapshotSourcePort interface {
	GetProperties(ctx context.Context) ([]domain.Record, error)
	GetClients(ctx context.Context) ([]domain.Record, error)
	GetShowings(ctx context.Context) ([]domain.Record, error)
	GetAdminActions(ctx context.Context) ([]domain.Record, error)
}
