package configs

import (
	"backup-service/internal/core/domain"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

type RESTconfig struct {
	PORT string
}

type DatabaseConfig struct {
	URL string
}

// GitHubConfig - доступ к репозиторию, в который складываются бэкапы
type GitHubConfig struct {
	Token          string
	Repository     string
	Owner          string
	Branch         string
	APIBaseURL     string
	CommitterName  string
	CommitterEmail string
	RetryMax       int
}

// Validate проверяет обязательные настройки до первого обращения к API
func (c GitHubConfig) Validate() error {
	required := map[string]string{
		"GITHUB_TOKEN": c.Token,
		"GITHUB_REPO":  c.Repository,
		"GITHUB_OWNER": c.Owner,
	}
	missing := lo.Filter([]string{"GITHUB_TOKEN", "GITHUB_REPO", "GITHUB_OWNER"}, func(key string, _ int) bool {
		return strings.TrimSpace(required[key]) == ""
	})
	if len(missing) > 0 {
		return &domain.ConfigurationError{Missing: missing}
	}
	return nil
}

// Бэкенды удаленного хранилища
const (
	BackendGitHub = "github"
	BackendMemory = "memory"
)

type BackupConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	RunOnStart   bool
	Backend      string
}

type RabbitMQConfig struct {
	URL     string
	Enabled bool
}

type StdoutLogConfig struct {
	Level string
	JSON  bool
}

type FluentBitConfig struct {
	Host    string
	Port    int
	Enabled bool
	Level   string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// AppConfig хранит всю конфигурацию приложения
type AppConfig struct {
	AppName      string
	Rest         RESTconfig
	Database     DatabaseConfig
	GitHub       GitHubConfig
	Backup       BackupConfig
	RabbitMQ     RabbitMQConfig
	FluentBit    FluentBitConfig
	StdoutLogger StdoutLogConfig
	CORS         CORSConfig
}

// LoadConfig загружает конфигурацию из переменных окружения.
// .env файл необязателен: в контейнере переменные приходят из окружения.
// Отсутствие настроек GitHub здесь не ошибка - цикл бэкапа сам проверит их
// и завершится ConfigurationError, не трогая остальное приложение.
func LoadConfig(envPath ...string) (*AppConfig, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath[0])
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Printf("Info: Could not load .env file (path: %v): %v. Using process environment.\n", envPath, err)
	}

	cfg := &AppConfig{}

	cfg.AppName = getEnvAsString("APP_NAME", "backup-service")
	cfg.Rest.PORT = getEnvAsString("PORT", "8090")

	cfg.Backup.Backend = strings.ToLower(getEnvAsString("BACKUP_BACKEND", BackendGitHub))
	if cfg.Backup.Backend != BackendGitHub && cfg.Backup.Backend != BackendMemory {
		return nil, fmt.Errorf("BACKUP_BACKEND must be %q or %q, got %q", BackendGitHub, BackendMemory, cfg.Backup.Backend)
	}
	cfg.Backup.Interval = getEnvAsDuration("BACKUP_INTERVAL", 6*time.Hour)
	if cfg.Backup.Interval <= 0 {
		return nil, fmt.Errorf("BACKUP_INTERVAL must be positive")
	}
	cfg.Backup.CycleTimeout = getEnvAsDuration("BACKUP_CYCLE_TIMEOUT", 2*time.Minute)
	cfg.Backup.RunOnStart = getEnvAsBool("BACKUP_RUN_ON_START", false)

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	cfg.GitHub.Repository = os.Getenv("GITHUB_REPO")
	if cfg.GitHub.Repository == "" {
		// так переменная называлась в ручном эндпоинте синхронизации
		cfg.GitHub.Repository = os.Getenv("GITHUB_REPOSITORY")
	}
	cfg.GitHub.Owner = os.Getenv("GITHUB_OWNER")
	cfg.GitHub.Branch = os.Getenv("GITHUB_BRANCH")
	cfg.GitHub.APIBaseURL = getEnvAsString("GITHUB_API_URL", "https://api.github.com")
	cfg.GitHub.CommitterName = getEnvAsString("GITHUB_COMMITTER_NAME", "Database Backup")
	cfg.GitHub.CommitterEmail = getEnvAsString("GITHUB_COMMITTER_EMAIL", "backup@system.local")
	cfg.GitHub.RetryMax = getEnvAsInt("GITHUB_RETRY_MAX", 3)

	cfg.RabbitMQ.Enabled = getEnvAsBool("RABBITMQ_ENABLED", false)
	if cfg.RabbitMQ.Enabled {
		cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")
		if cfg.RabbitMQ.URL == "" {
			log.Println("WARNING: RABBITMQ_ENABLED is true, but RABBITMQ_URL is not set. Disabling backup events.")
			cfg.RabbitMQ.Enabled = false
		}
	}

	cfg.FluentBit.Enabled = getEnvAsBool("FLUENTBIT_ENABLED", false)
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			log.Println("WARNING: FLUENTBIT_ENABLED is true, but FLUENTBIT_HOST is not set. Disabling Fluent Bit.")
			cfg.FluentBit.Enabled = false
		}

		cfg.FluentBit.Port = getEnvAsInt("FLUENTBIT_PORT", 24224)
		cfg.FluentBit.Level = getEnvAsString("FLUENTBIT_LOG_LEVEL", "info")
	}

	cfg.StdoutLogger.Level = getEnvAsString("STDOUT_LOG_LEVEL", "debug")
	cfg.StdoutLogger.JSON = getEnvAsBool("STDOUT_LOG_JSON", false)

	cfg.CORS.AllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	return cfg, nil
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt читает переменную окружения как int или возвращает значение по умолчанию
// Логирует ошибку, если переменная есть, но не может быть преобразована в int
func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}

// getEnvAsBool читает переменную окружения как bool или возвращает значение по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as bool: %v. Using default value: %t\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valBool
}

// getEnvAsDuration понимает формат time.ParseDuration ("6h", "90m")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valDur, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as duration: %v. Using default value: %s\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valDur
}

func getEnvAsList(key string, defaultValue []string) []string {
	valStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valStr) == "" {
		return defaultValue
	}
	items := lo.Map(strings.Split(valStr, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	})
	return lo.Compact(items)
}
