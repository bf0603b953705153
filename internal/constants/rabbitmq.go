package constants

// Обменник для событий подсистемы бэкапа
const (
	BackupExchange     = "backup_exchange"
	BackupExchangeType = "direct"
)

// Ключи маршрутизации
const (
	RoutingKeyBackupCycleResult = "backup.cycle.result"
)
