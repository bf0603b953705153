package rest

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"backup-service/internal/core/port/usecases_port"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// BackupTrigger - внеплановый запуск цикла и его последний итог
type BackupTrigger interface {
	Trigger(ctx context.Context, trigger string) *domain.BackupRecord
	LastResult() (domain.BackupRecord, bool)
}

type BackupHandlers struct {
	backups         BackupTrigger
	validateRestore usecases_port.ValidateRestorePort
}

func NewBackupHandlers(backups BackupTrigger, validateRestore usecases_port.ValidateRestorePort) *BackupHandlers {
	return &BackupHandlers{
		backups:         backups,
		validateRestore: validateRestore,
	}
}

// HandleSyncGitHub - обработчик для POST /api/v1/sync/github
func (h *BackupHandlers) HandleSyncGitHub(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "HandleSyncGitHub"})

	userID, _ := r.Context().Value(userIDKey).(uuid.UUID)

	var reqDTO SyncRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		if err == io.EOF {
			WriteJSONError(w, http.StatusBadRequest, "Request body is empty")
			return
		}
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if reqDTO.Action != "sync" {
		WriteJSONError(w, http.StatusBadRequest, "Invalid action")
		return
	}

	syncLogger := logger.WithFields(port.Fields{"user_id": userID.String()})
	syncLogger.Info("Received manual backup request", nil)

	record := h.backups.Trigger(r.Context(), domain.TriggerManual)
	if record.Succeeded() {
		message := "Database backup published"
		if record.Unchanged {
			message = "Database backup published, content unchanged since the previous version"
		}
		RespondWithJSON(w, http.StatusOK, SyncResponseDTO{
			Success: true,
			Message: message,
			Hash:    record.ContentHash,
			Backup:  record,
		})
		return
	}

	syncLogger.Warn("Manual backup failed", port.Fields{"error_kind": record.ErrorKind, "reason": record.Reason})
	RespondWithJSON(w, syncFailureStatus(record.ErrorKind), SyncResponseDTO{
		Success: false,
		Message: record.Reason,
		Backup:  record,
	})
}

func syncFailureStatus(errorKind string) int {
	switch errorKind {
	case "conflict":
		return http.StatusConflict
	case "configuration":
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// HandleValidateRestore - обработчик для POST /api/v1/backups/validate.
// Проверяет бэкап, но ничего не восстанавливает.
func (h *BackupHandlers) HandleValidateRestore(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"handler": "HandleValidateRestore"})

	var reqDTO ValidateRestoreRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		if err == io.EOF {
			WriteJSONError(w, http.StatusBadRequest, "Request body is empty")
			return
		}
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if reqDTO.FileName == "" {
		WriteJSONError(w, http.StatusBadRequest, "Field 'fileName' is required")
		return
	}

	snapshot, err := h.validateRestore.Execute(r.Context(), reqDTO.FileName)
	if err != nil {
		status := restoreFailureStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Restore validation failed", err, port.Fields{"file_name": reqDTO.FileName})
		}
		WriteJSONError(w, status, err.Error())
		return
	}

	RespondWithJSON(w, http.StatusOK, ValidateRestoreResponseDTO{
		Valid:     true,
		FileName:  reqDTO.FileName,
		Timestamp: snapshot.Timestamp,
		Counts:    snapshot.Counts(),
	})
}

func restoreFailureStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedBackup):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBackupNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleLastBackup - обработчик для GET /api/v1/backups/last
func (h *BackupHandlers) HandleLastBackup(w http.ResponseWriter, r *http.Request) {
	record, ok := h.backups.LastResult()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	RespondWithJSON(w, http.StatusOK, record)
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
