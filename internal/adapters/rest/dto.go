package rest

import (
	"backup-service/internal/core/domain"
	"time"
)

// SyncRequestDTO - тело POST /api/v1/sync/github
type SyncRequestDTO struct {
	Action string `json:"action"`
}

type SyncResponseDTO struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Hash    string               `json:"hash,omitempty"`
	Backup  *domain.BackupRecord `json:"backup"`
}

// ValidateRestoreRequestDTO - тело POST /api/v1/backups/validate
type ValidateRestoreRequestDTO struct {
	FileName string `json:"fileName"`
}

type ValidateRestoreResponseDTO struct {
	Valid     bool                  `json:"valid"`
	FileName  string                `json:"fileName"`
	Timestamp time.Time             `json:"timestamp"`
	Counts    domain.SnapshotCounts `json:"counts"`
}
