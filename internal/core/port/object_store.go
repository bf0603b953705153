package port

import (
	"backup-service/internal/core/domain"
	"context"
)

// ObjectStorePort - удаленное хранилище объектов с оптимистичной блокировкой.
type ObjectStorePort interface {
	// ResolveVersion возвращает Exists=false, если объекта еще нет. Это не ошибка.
	ResolveVersion(ctx context.Context, path string) (domain.RemoteVersion, error)

	// WriteIfMatch создает объект (Version.Exists == false) или обновляет его,
	// если Version.Token совпадает с текущим. При несовпадении возвращает *domain.ConflictError.
	WriteIfMatch(ctx context.Context, req domain.WriteRequest) (domain.WriteResult, error)

	// Fetch возвращает декодированное содержимое объекта или domain.ErrBackupNotFound
	Fetch(ctx context.Context, path string) ([]byte, error)
}
