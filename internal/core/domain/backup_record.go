package domain

import (
	"time"

	"github.com/google/uuid"
)

// BackupStatus - итог одного цикла бэкапа
type BackupStatus string

const (
	BackupStatusRunning   BackupStatus = "running"
	BackupStatusSucceeded BackupStatus = "succeeded"
	BackupStatusFailed    BackupStatus = "failed"
)

// Источники запуска цикла
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// BackupRecord - результат одного цикла. Локально не хранится:
// история версий живет в самом удаленном хранилище.
type BackupRecord struct {
	CycleID      uuid.UUID      `json:"cycle_id"`
	Trigger      string         `json:"trigger"`
	Path         string         `json:"path,omitempty"`
	Status       BackupStatus   `json:"status"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	VersionToken VersionToken   `json:"version_token,omitempty"`
	WriteID      string         `json:"write_id,omitempty"`
	ContentHash  string         `json:"content_hash,omitempty"`
	Unchanged    bool           `json:"unchanged"`
	Counts       SnapshotCounts `json:"counts"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// NewBackupRecord - конструктор записи для нового цикла
func NewBackupRecord(trigger string, startedAt time.Time) *BackupRecord {
	return &BackupRecord{
		CycleID:   uuid.New(),
		Trigger:   trigger,
		Status:    BackupStatusRunning,
		StartedAt: startedAt.UTC(),
	}
}

// Succeed фиксирует успешную публикацию
func (r *BackupRecord) Succeed(res WriteResult, at time.Time) {
	finished := at.UTC()
	r.Status = BackupStatusSucceeded
	r.VersionToken = res.Token
	r.WriteID = res.WriteID
	r.ContentHash = res.ContentHash
	r.Unchanged = res.Unchanged
	r.FinishedAt = &finished
}

// Fail фиксирует ошибку цикла
func (r *BackupRecord) Fail(err error, at time.Time) {
	finished := at.UTC()
	r.Status = BackupStatusFailed
	r.ErrorKind = ErrorKind(err)
	if err != nil {
		r.Reason = err.Error()
	}
	r.FinishedAt = &finished
}

// Succeeded - удобная проверка для вызывающего кода
func (r *BackupRecord) Succeeded() bool {
	return r.Status == BackupStatusSucceeded
}
