package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Виды ошибок подсистемы бэкапа. Конкретные типы ниже отвечают на errors.Is
// соответствующим значением.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrStoreRead       = errors.New("store read error")
	ErrResolution      = errors.New("version resolution error")
	ErrConflict        = errors.New("version conflict")
	ErrTransport       = errors.New("transport error")
	ErrMalformedBackup = errors.New("malformed backup")
	ErrBackupNotFound  = errors.New("backup not found")
)

// ConfigurationError - не заданы обязательные настройки
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// StoreReadError - не удалось прочитать одну из коллекций хранилища
type StoreReadError struct {
	Collection string
	Err        error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("failed to read %s from store: %v", e.Collection, e.Err)
}

func (e *StoreReadError) Unwrap() error        { return e.Err }
func (e *StoreReadError) Is(target error) bool { return target == ErrStoreRead }

// ResolutionError - не удалось узнать текущую версию объекта
type ResolutionError struct {
	Path string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve version of %s: %v", e.Path, e.Err)
}

func (e *ResolutionError) Unwrap() error        { return e.Err }
func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// ConflictError - объект изменился после разрешения версии (переданный токен устарел
// или токен не передан для уже существующего объекта)
type ConflictError struct {
	Path   string
	Token  VersionToken
	Detail string
}

func (e *ConflictError) Error() string {
	token := string(e.Token)
	if token == "" {
		token = "<none>"
	}
	msg := fmt.Sprintf("version conflict on %s (token %s)", e.Path, token)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransportError - сетевая ошибка или ошибка API удаленного хранилища
type TransportError struct {
	Path       string
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("remote store request failed")
	if e.Path != "" {
		b.WriteString(" for " + e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// MalformedBackupError - в файле бэкапа нет ожидаемого поля или оно другого типа
type MalformedBackupError struct {
	Field  string
	Reason string
}

func (e *MalformedBackupError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed backup: %s", e.Reason)
	}
	return fmt.Sprintf("malformed backup: field %q %s", e.Field, e.Reason)
}

func (e *MalformedBackupError) Is(target error) bool { return target == ErrMalformedBackup }

// ErrorKind возвращает короткое имя вида ошибки для логов и событий
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrStoreRead):
		return "store_read"
	case errors.Is(err, ErrResolution):
		return "resolution"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrMalformedBackup):
		return "malformed_backup"
	case errors.Is(err, ErrBackupNotFound):
		return "not_found"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}
