package usecase

import (
	"backup-service/internal/core/domain"
	"context"
	"sync"
	"time"
)

var fixedNow = time.Date(2025, 3, 14, 6, 0, 0, 123456789, time.UTC)

func clock() time.Time { return fixedNow }

// fakeSource - хранилище CRM в памяти, может падать на выбранной коллекции
type fakeSource struct {
	properties   []domain.Record
	clients      []domain.Record
	showings     []domain.Record
	adminActions []domain.Record

	failOn string
	err    error
	reads  []string
}

func (f *fakeSource) read(name string, records []domain.Record) ([]domain.Record, error) {
	f.reads = append(f.reads, name)
	if f.failOn == name {
		return nil, f.err
	}
	return records, nil
}

func (f *fakeSource) GetProperties(ctx context.Context) ([]domain.Record, error) {
	return f.read("properties", f.properties)
}

func (f *fakeSource) GetClients(ctx context.Context) ([]domain.Record, error) {
	return f.read("clients", f.clients)
}

func (f *fakeSource) GetShowings(ctx context.Context) ([]domain.Record, error) {
	return f.read("showings", f.showings)
}

func (f *fakeSource) GetAdminActions(ctx context.Context) ([]domain.Record, error) {
	return f.read("adminActions", f.adminActions)
}

func sampleSource() *fakeSource {
	return &fakeSource{
		properties: []domain.Record{
			{"id": "p-1", "address": "ул. Шевченко, 12 <кв. 4>", "type": "apartment", "status": "available", "price": 85000.0, "area": 54.3, "rooms": 2.0, "photos": []any{"a.jpg", "b.jpg"}},
			{"id": "p-2", "address": "с. Ясногородка", "type": "house", "status": "sold", "price": 120000.5, "area": 140.0, "owner": nil},
		},
		clients: []domain.Record{
			{"id": "c-1", "name": "Олена", "phone": "+380501112233", "callStatus": "reached", "budget": "до 90000"},
		},
		showings: []domain.Record{
			{"id": "s-1", "objectId": "p-1", "date": "2025-03-15", "time": "14:00"},
		},
		adminActions: []domain.Record{
			{"id": "a-1", "adminUsername": "admin", "action": "delete_client", "details": map[string]any{"clientId": "c-9"}, "ipAddress": "10.0.0.1"},
		},
	}
}

// recordingEvents запоминает опубликованные итоги циклов
type recordingEvents struct {
	mu      sync.Mutex
	records []domain.BackupRecord
	err     error
}

func (e *recordingEvents) PublishBackupResult(ctx context.Context, record domain.BackupRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, record)
	return e.err
}

// racingStore пропускает стороннюю запись между resolve и write
type racingStore struct {
	inner interface {
		ResolveVersion(ctx context.Context, path string) (domain.RemoteVersion, error)
		WriteIfMatch(ctx context.Context, req domain.WriteRequest) (domain.WriteResult, error)
		Fetch(ctx context.Context, path string) ([]byte, error)
		Put(path string, payload []byte) domain.VersionToken
	}
	concurrentPayload []byte
}

func (s *racingStore) ResolveVersion(ctx context.Context, path string) (domain.RemoteVersion, error) {
	version, err := s.inner.ResolveVersion(ctx, path)
	if err == nil && s.concurrentPayload != nil {
		s.inner.Put(path, s.concurrentPayload)
	}
	return version, err
}

func (s *racingStore) WriteIfMatch(ctx context.Context, req domain.WriteRequest) (domain.WriteResult, error) {
	return s.inner.WriteIfMatch(ctx, req)
}

func (s *racingStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	return s.inner.Fetch(ctx, path)
}
