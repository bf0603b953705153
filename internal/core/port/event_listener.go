package port

import "context"

// EventListenerPort определяет контракт для фонового компонента, который
// сам запускает бизнес-логику (по таймеру или по внешнему событию)
type EventListenerPort interface {
	// Start запускает компонент и блокируется до отмены контекста или Close
	Start(ctx context.Context) error

	// Close корректно останавливает компонент, дожидаясь завершения активных задач
	Close() error
}
