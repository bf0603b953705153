package usecases_port

import (
	"backup-service/internal/core/domain"
	"context"
)

// RunBackupCyclePort - один полный цикл snapshot -> resolve -> publish.
// Ошибки цикла не возвращаются, а записываются в BackupRecord.
type RunBackupCyclePort interface {
	Execute(ctx context.Context, trigger string) *domain.BackupRecord
	LastResult() (domain.BackupRecord, bool)
}
