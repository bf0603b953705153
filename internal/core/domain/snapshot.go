package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Record - одна строка из хранилища CRM. Содержимое не интерпретируется
// и сериализуется как есть.
type Record map[string]any

// Snapshot - неизменяемый срез состояния хранилища на момент Timestamp.
type Snapshot struct {
	Timestamp    time.Time
	Properties   []Record
	Clients      []Record
	Showings     []Record
	AdminActions []Record
}

// SnapshotCounts - размеры коллекций снапшота (для логов и ответов API)
type SnapshotCounts struct {
	Properties   int `json:"properties"`
	Clients      int `json:"clients"`
	Showings     int `json:"showings"`
	AdminActions int `json:"adminActions"`
}

// timestampLayout совпадает с ISO-форматом, который использует админка (миллисекунды, UTC)
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// snapshotDocument задает канонический порядок ключей верхнего уровня.
// Ключи внутри Record сортируются encoding/json.
type snapshotDocument struct {
	Timestamp    string   `json:"timestamp"`
	Properties   []Record `json:"properties"`
	Clients      []Record `json:"clients"`
	Showings     []Record `json:"showings"`
	AdminActions []Record `json:"adminActions"`
}

// NewSnapshot собирает снапшот. Время приводится к UTC и обрезается до миллисекунд,
// чтобы сериализация была обратимой.
func NewSnapshot(takenAt time.Time, properties, clients, showings, adminActions []Record) *Snapshot {
	return &Snapshot{
		Timestamp:    takenAt.UTC().Truncate(time.Millisecond),
		Properties:   nonNil(properties),
		Clients:      nonNil(clients),
		Showings:     nonNil(showings),
		AdminActions: nonNil(adminActions),
	}
}

func nonNil(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	return records
}

// Counts возвращает количество записей в каждой коллекции
func (s *Snapshot) Counts() SnapshotCounts {
	return SnapshotCounts{
		Properties:   len(s.Properties),
		Clients:      len(s.Clients),
		Showings:     len(s.Showings),
		AdminActions: len(s.AdminActions),
	}
}

// Path возвращает путь объекта в удаленном хранилище для дня создания снапшота
func (s *Snapshot) Path() string {
	return BackupPath(s.Timestamp)
}

// Marshal возвращает каноническое текстовое представление снапшота.
// Одинаковый снапшот всегда дает одинаковые байты, поэтому от результата можно считать хэш.
func (s *Snapshot) Marshal() ([]byte, error) {
	doc := snapshotDocument{
		Timestamp:    s.Timestamp.UTC().Format(timestampLayout),
		Properties:   nonNil(s.Properties),
		Clients:      nonNil(s.Clients),
		Showings:     nonNil(s.Showings),
		AdminActions: nonNil(s.AdminActions),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalSnapshot разбирает полезную нагрузку бэкапа без структурной проверки.
// Для данных из внешнего источника используйте usecase валидации восстановления.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var doc snapshotDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	// числа читаем как json.Number, иначе bigint больше 2^53 теряет точность
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to decode snapshot: unexpected data after top-level object")
	}
	for _, records := range [][]Record{doc.Properties, doc.Clients, doc.Showings, doc.AdminActions} {
		for _, record := range records {
			for key, value := range record {
				record[key] = restoreNumbers(value)
			}
		}
	}

	var takenAt time.Time
	if doc.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, doc.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot timestamp %q: %w", doc.Timestamp, err)
		}
		takenAt = parsed
	}

	return NewSnapshot(takenAt, doc.Properties, doc.Clients, doc.Showings, doc.AdminActions), nil
}

// restoreNumbers превращает json.Number в int64, если число целое и помещается,
// иначе в float64. Так повторная сериализация дает те же байты.
func restoreNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for key, item := range v {
			v[key] = restoreNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = restoreNumbers(item)
		}
		return v
	default:
		return value
	}
}

const (
	backupDir     = "backups"
	backupPrefix  = "db-"
	backupSuffix  = ".json"
	backupDateFmt = "2006-01-02"
)

// BackupPath - один объект на календарный день UTC: backups/db-YYYY-MM-DD.json
func BackupPath(t time.Time) string {
	return backupDir + "/" + BackupFileName(t)
}

// BackupFileName возвращает имя файла бэкапа без каталога
func BackupFileName(t time.Time) string {
	return backupPrefix + t.UTC().Format(backupDateFmt) + backupSuffix
}

// BackupPathFromName превращает имя бэкапа, выбранное пользователем, в путь объекта.
// Принимаются "db-2025-01-02.json", "backups/db-2025-01-02.json" и просто "2025-01-02".
func BackupPathFromName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, backupDir+"/")
	if name == "" {
		return "", fmt.Errorf("backup name is empty")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "..") || strings.Contains(name, `\`) {
		return "", fmt.Errorf("invalid backup name %q", name)
	}

	if _, err := time.Parse(backupDateFmt, name); err == nil {
		return backupDir + "/" + backupPrefix + name + backupSuffix, nil
	}
	if !strings.HasSuffix(name, backupSuffix) {
		return "", fmt.Errorf("invalid backup name %q: expected a .json file", name)
	}
	return backupDir + "/" + name, nil
}
