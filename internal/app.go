package internal

import (
	github_adapter "backup-service/internal/adapters/github"
	logger_adapter "backup-service/internal/adapters/logger"
	"backup-service/internal/adapters/memstore"
	postgres_adapter "backup-service/internal/adapters/postgres"
	rabbitmq_adapter "backup-service/internal/adapters/rabbitmq"
	"backup-service/internal/adapters/rest"
	"backup-service/internal/adapters/scheduler"
	"backup-service/internal/configs"
	"backup-service/internal/constants"
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"backup-service/internal/core/usecase"
	fluentlogger "backup-service/pkg/fluent_logger"
	"backup-service/pkg/postgres"
	"backup-service/pkg/rabbitmq/rabbitmq_common"
	"backup-service/pkg/rabbitmq/rabbitmq_producer"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/jackc/pgx/v5/pgxpool"
)

type App struct {
	config    *configs.AppConfig
	dbPool    *pgxpool.Pool
	apiServer *rest.Server
	scheduler *scheduler.Scheduler

	runCycle        *usecase.RunBackupCycleUseCase
	validateRestore *usecase.ValidateRestoreUseCase

	connManager    *rabbitmq_common.ConnectionManager
	eventsProducer *rabbitmq_producer.Publisher

	logger       port.LoggerPort
	fluentClient *fluent.Fluent

	closeOnce sync.Once
}

func NewApp(envPath ...string) (*App, error) {
	appConfig, err := configs.LoadConfig(envPath...)
	if err != nil {
		return nil, fmt.Errorf("error loading application configuration: %w", err)
	}

	// --- 1. ЛОГГЕРЫ ---
	var activeLoggers []port.LoggerPort

	stdoutLogger := logger_adapter.NewSlogAdapter(logger_adapter.SlogConfig{
		Level:    logger_adapter.ParseLogLevel(appConfig.StdoutLogger.Level),
		IsJSON:   appConfig.StdoutLogger.JSON,
		UseColor: !appConfig.StdoutLogger.JSON,
	})
	activeLoggers = append(activeLoggers, stdoutLogger)

	var fluentClient *fluent.Fluent
	if appConfig.FluentBit.Enabled {
		fluentClient, err = fluentlogger.NewClient(fluentlogger.Config{
			Host:      appConfig.FluentBit.Host,
			Port:      appConfig.FluentBit.Port,
			TagPrefix: appConfig.AppName,
		})
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit client", err, nil)
			return nil, fmt.Errorf("failed to create fluentbit client: %w", err)
		}

		fluentAdapter, err := logger_adapter.NewFluentLoggerAdapter(fluentClient, logger_adapter.ParseLogLevel(appConfig.FluentBit.Level))
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit adapter", err, nil)
			fluentClient.Close()
			return nil, err
		}
		activeLoggers = append(activeLoggers, fluentAdapter)
	}

	multiLogger, err := logger_adapter.NewMultiloggerAdapter(activeLoggers...)
	if err != nil {
		return nil, fmt.Errorf("failed to create multi-logger: %w", err)
	}

	baseLogger := multiLogger.WithFields(port.Fields{"service_name": appConfig.AppName})
	appLogger := baseLogger.WithFields(port.Fields{"component": "app"})
	appLogger.Info("Logger system initialized", port.Fields{
		"active_loggers": len(activeLoggers), "fluent_enabled": appConfig.FluentBit.Enabled,
	})

	application := &App{
		config:       appConfig,
		logger:       appLogger,
		fluentClient: fluentClient,
	}
	// при ошибке ниже освобождаем все, что уже успели создать
	ok := false
	defer func() {
		if !ok {
			application.Close()
		}
	}()

	// --- 2. ХРАНИЛИЩЕ CRM ---
	application.dbPool, err = postgres.NewClient(context.Background(), postgres.Config{
		DatabaseURL:    appConfig.Database.URL,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", err, nil)
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	appLogger.Info("Successfully connected to PostgreSQL pool!", nil)

	snapshotSource, err := postgres_adapter.NewCRMSnapshotAdapter(application.dbPool)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot source: %w", err)
	}

	// --- 3. УДАЛЕННОЕ ХРАНИЛИЩЕ ---
	var objectStore port.ObjectStorePort
	var preflight func() error
	switch appConfig.Backup.Backend {
	case configs.BackendMemory:
		objectStore = memstore.New()
		appLogger.Warn("Using in-memory backup store, backups will not survive a restart", nil)
	default:
		objectStore = github_adapter.NewClient(github_adapter.Config{
			BaseURL:        appConfig.GitHub.APIBaseURL,
			Owner:          appConfig.GitHub.Owner,
			Repository:     appConfig.GitHub.Repository,
			Token:          appConfig.GitHub.Token,
			Branch:         appConfig.GitHub.Branch,
			CommitterName:  appConfig.GitHub.CommitterName,
			CommitterEmail: appConfig.GitHub.CommitterEmail,
			RetryMax:       appConfig.GitHub.RetryMax,
		})
		preflight = appConfig.GitHub.Validate
		if err := preflight(); err != nil {
			// не фатально: каждый цикл будет завершаться ConfigurationError
			appLogger.Warn("GitHub backup store is not configured", port.Fields{"error": err.Error()})
		}
	}
	appLogger.Info("Backup store initialized", port.Fields{"backend": appConfig.Backup.Backend})

	// --- 4. СОБЫТИЯ ОБ ИТОГАХ ЦИКЛОВ ---
	var events port.BackupEventsPort
	if appConfig.RabbitMQ.Enabled {
		bridge := rabbitmq_adapter.NewPkgLoggerBridge(baseLogger.WithFields(port.Fields{"component": "rabbitmq_conn_manager"}))
		application.connManager, err = rabbitmq_common.NewManager(appConfig.RabbitMQ.URL, bridge)
		if err != nil {
			appLogger.Error("Failed to create connection manager", err, nil)
			return nil, fmt.Errorf("failed to create connection manager: %w", err)
		}

		application.eventsProducer, err = rabbitmq_producer.NewPublisher(rabbitmq_producer.PublisherConfig{
			Config:                   rabbitmq_common.Config{URL: appConfig.RabbitMQ.URL},
			ExchangeName:             constants.BackupExchange,
			ExchangeType:             constants.BackupExchangeType,
			DurableExchange:          true,
			DeclareExchangeIfMissing: true,
			Logger:                   rabbitmq_adapter.NewPkgLoggerBridge(baseLogger.WithFields(port.Fields{"component": "backup_events_producer"})),
		}, application.connManager)
		if err != nil {
			appLogger.Error("Failed to create backup events producer", err, nil)
			return nil, fmt.Errorf("failed to create backup events producer: %w", err)
		}

		events, err = rabbitmq_adapter.NewBackupEventsPublisher(application.eventsProducer, constants.RoutingKeyBackupCycleResult)
		if err != nil {
			return nil, fmt.Errorf("failed to create backup events adapter: %w", err)
		}
		appLogger.Info("Backup events publisher initialized", port.Fields{"exchange": constants.BackupExchange})
	}

	// --- 5. USE CASES ---
	buildUC := usecase.NewBuildSnapshotUseCase(snapshotSource, time.Now)
	resolveUC := usecase.NewResolveVersionUseCase(objectStore)
	publishUC := usecase.NewPublishSnapshotUseCase(objectStore, time.Now)
	application.runCycle = usecase.NewRunBackupCycleUseCase(buildUC, resolveUC, publishUC, usecase.CycleOptions{
		Timeout:   appConfig.Backup.CycleTimeout,
		Preflight: preflight,
		Events:    events,
	})
	application.validateRestore = usecase.NewValidateRestoreUseCase(objectStore, preflight)
	appLogger.Info("All use cases initialized.", nil)

	// --- 6. ПЛАНИРОВЩИК И REST ---
	application.scheduler, err = scheduler.NewScheduler(application.runCycle, appConfig.Backup.Interval,
		baseLogger.WithFields(port.Fields{"component": "backup_scheduler"}),
		scheduler.WithRunOnStart(appConfig.Backup.RunOnStart))
	if err != nil {
		return nil, fmt.Errorf("failed to create backup scheduler: %w", err)
	}

	apiHandlers := rest.NewBackupHandlers(application.scheduler, application.validateRestore)
	application.apiServer = rest.NewServer(appConfig.Rest.PORT, apiHandlers, appConfig.CORS.AllowedOrigins, baseLogger)

	ok = true
	return application, nil
}

// Run запускает HTTP сервер и планировщик и блокируется до сигнала ОС
func (a *App) Run() error {
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	var wg sync.WaitGroup
	errorsCh := make(chan error, 2)

	defer func() {
		a.logger.Info("Shutdown sequence initiated...", nil)

		if a.apiServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := a.apiServer.Stop(shutdownCtx); err != nil {
				a.logger.Error("Error during API server shutdown", err, nil)
			}
			cancel()
		}

		// Close планировщика дожидается текущего цикла
		cancelApp()
		wg.Wait()
		a.logger.Info("All background processes finished.", nil)

		a.Close()
	}()

	a.logger.Info("Application is starting...", nil)

	go func() {
		a.logger.Info("Starting HTTP server...", port.Fields{"port": a.config.Rest.PORT})
		if err := a.apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorsCh <- fmt.Errorf("HTTP server start error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.scheduler.Start(appCtx); err != nil {
			a.logger.Error("Backup scheduler stopped with an unexpected error", err, nil)
			errorsCh <- fmt.Errorf("backup scheduler error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	a.logger.Info("Application running. Waiting for signals or component error...", nil)
	select {
	case receivedSignal := <-quit:
		a.logger.Warn("Received OS signal, shutting down...", port.Fields{"signal": receivedSignal.String()})
		return nil
	case err := <-errorsCh:
		a.logger.Error("A critical component failed, shutting down", err, nil)
		return err
	}
}

// RunOnce выполняет один цикл бэкапа вне расписания
func (a *App) RunOnce(ctx context.Context) *domain.BackupRecord {
	ctx = contextkeys.ContextWithLogger(ctx, a.logger.WithFields(port.Fields{"component": "cli"}))
	return a.scheduler.Trigger(ctx, domain.TriggerCLI)
}

// ValidateRestore проверяет выбранный файл бэкапа, ничего не восстанавливая
func (a *App) ValidateRestore(ctx context.Context, name string) (*domain.Snapshot, error) {
	ctx = contextkeys.ContextWithLogger(ctx, a.logger.WithFields(port.Fields{"component": "cli"}))
	return a.validateRestore.Execute(ctx, name)
}

// Close освобождает ресурсы. Повторный вызов ничего не делает.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.scheduler != nil {
			if err := a.scheduler.Close(); err != nil {
				a.logger.Error("Error closing backup scheduler", err, nil)
			}
		}
		if a.eventsProducer != nil {
			if err := a.eventsProducer.Close(); err != nil {
				a.logger.Error("Error closing backup events producer", err, nil)
			}
		}
		if a.connManager != nil {
			if err := a.connManager.Close(); err != nil {
				a.logger.Error("Error closing RabbitMQ connection", err, nil)
			}
		}
		if a.dbPool != nil {
			a.dbPool.Close()
			a.logger.Info("PostgreSQL pool closed.", nil)
		}

		a.logger.Info("Application shut down gracefully.", nil)
		if a.fluentClient != nil {
			if err := a.fluentClient.Close(); err != nil {
				fmt.Printf("ERROR: Error closing fluent client: %v\n", err)
			}
		}
	})
}
