package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// VersionToken - непрозрачный маркер версии объекта в удаленном хранилище.
// Его нужно передавать при каждой записи в существующий объект.
type VersionToken string

// RemoteVersion - результат разрешения версии объекта
type RemoteVersion struct {
	Exists bool
	Token  VersionToken
	// ContentHash - хэш текущего содержимого объекта, если хранилище его отдало
	ContentHash string
}

// WriteRequest - условная запись. Version.Exists == false означает создание,
// иначе запись пройдет только если Version.Token совпадает с текущей версией.
type WriteRequest struct {
	Path    string
	Payload []byte
	Message string
	Version RemoteVersion
}

// WriteResult - ответ хранилища на успешную запись
type WriteResult struct {
	Token       VersionToken `json:"version_token"`
	WriteID     string       `json:"write_id"`
	ContentHash string       `json:"content_hash"`
	// Unchanged - содержимое совпало с уже опубликованным
	Unchanged bool `json:"unchanged"`
}

// ContentHash считает SHA-256 полезной нагрузки до кодирования для транспорта
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
