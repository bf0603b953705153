package port

import (
	"backup-service/internal/core/domain"
	"context"
)

// BackupEventsPort - контракт для адаптера, который сообщает наружу об итогах циклов
type BackupEventsPort interface {
	PublishBackupResult(ctx context.Context, record domain.BackupRecord) error
}
