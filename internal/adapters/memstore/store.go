package memstore

import (
	"backup-service/internal/core/domain"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type object struct {
	payload    []byte
	token      domain.VersionToken
	generation int
}

// Store - хранилище объектов в памяти с той же семантикой условной записи,
// что и у GitHub Contents API. Используется для локального запуска и в тестах.
type Store struct {
	mu      sync.Mutex
	objects map[string]*object

	resolveCalls int
	writeCalls   int
	fetchCalls   int
}

func New() *Store {
	return &Store{objects: make(map[string]*object)}
}

func (s *Store) ResolveVersion(ctx context.Context, path string) (domain.RemoteVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.RemoteVersion{}, &domain.TransportError{Path: path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveCalls++

	obj, ok := s.objects[path]
	if !ok {
		return domain.RemoteVersion{Exists: false}, nil
	}
	return domain.RemoteVersion{
		Exists:      true,
		Token:       obj.token,
		ContentHash: domain.ContentHash(obj.payload),
	}, nil
}

func (s *Store) WriteIfMatch(ctx context.Context, req domain.WriteRequest) (domain.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.WriteResult{}, &domain.TransportError{Path: req.Path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++

	current, exists := s.objects[req.Path]
	switch {
	case exists && !req.Version.Exists:
		return domain.WriteResult{}, &domain.ConflictError{Path: req.Path, Detail: "object already exists, version token was not supplied"}
	case !exists && req.Version.Exists:
		return domain.WriteResult{}, &domain.ConflictError{Path: req.Path, Token: req.Version.Token, Detail: "object no longer exists"}
	case exists && current.token != req.Version.Token:
		return domain.WriteResult{}, &domain.ConflictError{Path: req.Path, Token: req.Version.Token, Detail: "version token does not match"}
	}

	return s.put(req.Path, req.Payload), nil
}

func (s *Store) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.TransportError{Path: path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++

	obj, ok := s.objects[path]
	if !ok {
		return nil, domain.ErrBackupNotFound
	}
	return append([]byte(nil), obj.payload...), nil
}

// Put безусловно записывает объект, как это сделал бы сторонний писатель.
func (s *Store) Put(path string, payload []byte) domain.VersionToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(path, payload).Token
}

func (s *Store) put(path string, payload []byte) domain.WriteResult {
	generation := 1
	if current, ok := s.objects[path]; ok {
		generation = current.generation + 1
	}
	token := domain.VersionToken(fmt.Sprintf("v%d-%s", generation, domain.ContentHash(payload)[:12]))
	s.objects[path] = &object{
		payload:    append([]byte(nil), payload...),
		token:      token,
		generation: generation,
	}
	return domain.WriteResult{Token: token, WriteID: uuid.NewString()}
}

// Object возвращает текущее содержимое и токен объекта
func (s *Store) Object(path string) ([]byte, domain.VersionToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.payload...), obj.token, true
}

// Calls возвращает количество обращений resolve / write / fetch
func (s *Store) Calls() (resolve, write, fetch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveCalls, s.writeCalls, s.fetchCalls
}
