package scheduler

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"backup-service/internal/core/port/usecases_port"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ticker - источник тиков. В тестах подменяется на ручной.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type TickerFactory func(interval time.Duration) Ticker

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) Chan() <-chan time.Time { return t.C }

func newTimeTicker(interval time.Duration) Ticker {
	return timeTicker{Ticker: time.NewTicker(interval)}
}

type Option func(*Scheduler)

// WithTickerFactory подменяет источник тиков
func WithTickerFactory(factory TickerFactory) Option {
	return func(s *Scheduler) { s.newTicker = factory }
}

// WithRunOnStart запускает первый цикл сразу, не дожидаясь тика
func WithRunOnStart(enabled bool) Option {
	return func(s *Scheduler) { s.runOnStart = enabled }
}

// Scheduler запускает цикл бэкапа раз в interval, пока его не остановят.
// Пропущенные тики не догоняются: time.Ticker отбрасывает их сам.
type Scheduler struct {
	cycle      usecases_port.RunBackupCyclePort
	interval   time.Duration
	runOnStart bool
	newTicker  TickerFactory
	logger     port.LoggerPort

	// mu упорядочивает wg.Add в Start и wg.Wait в Close
	mu       sync.Mutex
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(cycle usecases_port.RunBackupCyclePort, interval time.Duration, logger port.LoggerPort, opts ...Option) (*Scheduler, error) {
	if cycle == nil {
		return nil, fmt.Errorf("scheduler: cycle use case cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = contextkeys.NoopLogger()
	}

	s := &Scheduler{
		cycle:     cycle,
		interval:  interval,
		newTicker: newTimeTicker,
		logger:    logger.WithFields(port.Fields{"component": "BackupScheduler"}),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start блокируется до отмены ctx или вызова Close. Ошибки отдельных циклов
// логируются и не останавливают планировщик.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Backup scheduler started", port.Fields{
		"interval":     s.interval.String(),
		"run_on_start": s.runOnStart,
	})

	if s.runOnStart {
		s.Trigger(ctx, domain.TriggerStartup)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Backup scheduler stopped: context cancelled", nil)
			return nil
		case <-s.stop:
			s.logger.Info("Backup scheduler stopped", nil)
			return nil
		case <-ticker.Chan():
			s.Trigger(ctx, domain.TriggerSchedule)
		}
	}
}

// Trigger выполняет один цикл вне расписания. Паника цикла превращается в
// неуспешную запись, планировщик продолжает работу.
func (s *Scheduler) Trigger(ctx context.Context, trigger string) (record *domain.BackupRecord) {
	traceID := contextkeys.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
		ctx = contextkeys.ContextWithTraceID(ctx, traceID)
	}
	logger := s.logger
	if contextkeys.HasLogger(ctx) {
		logger = contextkeys.LoggerFromContext(ctx)
	}
	cycleLogger := logger.WithFields(port.Fields{"trace_id": traceID})
	ctx = contextkeys.ContextWithLogger(ctx, cycleLogger)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("backup cycle panicked: %v", r)
			cycleLogger.Error("Recovered from panic in backup cycle", err, port.Fields{"trigger": trigger})
			record = domain.NewBackupRecord(trigger, time.Now())
			record.Fail(err, time.Now())
		}
	}()

	return s.cycle.Execute(ctx, trigger)
}

// LastResult отдает итог последнего завершенного цикла
func (s *Scheduler) LastResult() (domain.BackupRecord, bool) {
	return s.cycle.LastResult()
}

// Close останавливает цикл и дожидается завершения текущей публикации
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
