package usecase

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"backup-service/internal/core/port/usecases_port"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CycleOptions - настройки цикла бэкапа
type CycleOptions struct {
	// Timeout ограничивает один цикл целиком. 0 - без ограничения.
	Timeout time.Duration
	// Preflight проверяет конфигурацию удаленного хранилища до любых обращений к нему
	Preflight func() error
	// Events получает итог каждого цикла. Может быть nil.
	Events port.BackupEventsPort
	Now    func() time.Time
}

// cycleKey один на все циклы: путь объекта становится известен только после
// сборки снапшота, а около полуночи UTC часы вызывающего и сборщика расходятся
const cycleKey = "backup-cycle"

// RunBackupCycleUseCase - конвейер snapshot -> resolve -> publish.
// Все ошибки цикла перехватываются здесь и попадают в BackupRecord.
type RunBackupCycleUseCase struct {
	builder   usecases_port.BuildSnapshotPort
	resolver  usecases_port.ResolveVersionPort
	publisher usecases_port.PublishSnapshotPort
	opts      CycleOptions

	// Таймер и ручной запуск не должны писать в один путь одновременно:
	// singleflight склеивает одновременные запросы, mutex исключает пересечение циклов.
	group   singleflight.Group
	cycleMu sync.Mutex

	lastMu sync.RWMutex
	last   *domain.BackupRecord
}

func NewRunBackupCycleUseCase(builder usecases_port.BuildSnapshotPort,
	resolver usecases_port.ResolveVersionPort,
	publisher usecases_port.PublishSnapshotPort,
	opts CycleOptions) *RunBackupCycleUseCase {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RunBackupCycleUseCase{
		builder:   builder,
		resolver:  resolver,
		publisher: publisher,
		opts:      opts,
	}
}

// Execute запускает один цикл и возвращает его итог. Никогда не паникует и не возвращает ошибку.
func (uc *RunBackupCycleUseCase) Execute(ctx context.Context, trigger string) *domain.BackupRecord {
	v, _, shared := uc.group.Do(cycleKey, func() (interface{}, error) {
		return uc.runSerialized(ctx, trigger), nil
	})
	record := v.(*domain.BackupRecord)

	if shared {
		contextkeys.LoggerFromContext(ctx).Info("Joined an in-flight backup cycle", port.Fields{
			"trigger":  trigger,
			"cycle_id": record.CycleID.String(),
		})
	}
	copied := *record
	return &copied
}

func (uc *RunBackupCycleUseCase) runSerialized(ctx context.Context, trigger string) *domain.BackupRecord {
	uc.cycleMu.Lock()
	defer uc.cycleMu.Unlock()

	// Начатая публикация должна завершиться сама, даже если вызывающий ушел
	cycleCtx := contextkeys.DetachedContext(ctx)
	if uc.opts.Timeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(cycleCtx, uc.opts.Timeout)
		defer cancel()
	}

	record := domain.NewBackupRecord(trigger, uc.opts.Now())
	cycleLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case": "RunBackupCycle",
		"cycle_id": record.CycleID.String(),
		"trigger":  trigger,
	})
	cycleCtx = contextkeys.ContextWithLogger(cycleCtx, cycleLogger)
	cycleLogger.Info("Backup cycle started", nil)

	err := uc.run(cycleCtx, record)
	if err != nil {
		record.Fail(err, uc.opts.Now())
		cycleLogger.Error("Backup cycle failed", err, port.Fields{
			"path":       record.Path,
			"error_kind": record.ErrorKind,
		})
	} else {
		cycleLogger.Info("Backup cycle completed", port.Fields{
			"path":          record.Path,
			"version_token": record.VersionToken,
			"write_id":      record.WriteID,
			"unchanged":     record.Unchanged,
		})
	}

	uc.remember(record)
	uc.notify(cycleCtx, cycleLogger, record)
	return record
}

func (uc *RunBackupCycleUseCase) run(ctx context.Context, record *domain.BackupRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backup cycle panicked: %v", r)
		}
	}()

	if uc.opts.Preflight != nil {
		if err := uc.opts.Preflight(); err != nil {
			return err
		}
	}

	snapshot, err := uc.builder.Execute(ctx)
	if err != nil {
		return err
	}
	record.Path = snapshot.Path()
	record.Counts = snapshot.Counts()

	payload, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	version, err := uc.resolver.Execute(ctx, record.Path)
	if err != nil {
		return err
	}

	res, err := uc.publisher.Execute(ctx, record.Path, payload, version)
	if err != nil {
		return err
	}

	record.Succeed(res, uc.opts.Now())
	return nil
}

func (uc *RunBackupCycleUseCase) remember(record *domain.BackupRecord) {
	uc.lastMu.Lock()
	defer uc.lastMu.Unlock()
	copied := *record
	uc.last = &copied
}

func (uc *RunBackupCycleUseCase) notify(ctx context.Context, logger port.LoggerPort, record *domain.BackupRecord) {
	if uc.opts.Events == nil {
		return
	}
	if err := uc.opts.Events.PublishBackupResult(ctx, *record); err != nil {
		logger.Warn("Failed to publish backup result event", port.Fields{"error": err.Error()})
	}
}

// LastResult возвращает итог последнего завершенного цикла
func (uc *RunBackupCycleUseCase) LastResult() (domain.BackupRecord, bool) {
	uc.lastMu.RLock()
	defer uc.lastMu.RUnlock()
	if uc.last == nil {
		return domain.BackupRecord{}, false
	}
	return *uc.last, true
}
