package usecase

import (
	"backup-service/internal/adapters/memstore"
	"backup-service/internal/core/domain"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCycle(source *fakeSource, store *memstore.Store, opts CycleOptions) *RunBackupCycleUseCase {
	if opts.Now == nil {
		opts.Now = clock
	}
	return NewRunBackupCycleUseCase(
		NewBuildSnapshotUseCase(source, opts.Now),
		NewResolveVersionUseCase(store),
		NewPublishSnapshotUseCase(store, opts.Now),
		opts,
	)
}

func TestBuildSnapshotReadsAllCollections(t *testing.T) {
	source := sampleSource()
	snapshot, err := NewBuildSnapshotUseCase(source, clock).Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"properties", "clients", "showings", "adminActions"}, source.reads)
	require.Equal(t, domain.SnapshotCounts{Properties: 2, Clients: 1, Showings: 1, AdminActions: 1}, snapshot.Counts())
	require.Equal(t, fixedNow.Truncate(time.Millisecond), snapshot.Timestamp)
	require.Equal(t, "backups/db-2025-03-14.json", snapshot.Path())
}

func TestBuildSnapshotFailsOnAnyRead(t *testing.T) {
	for _, collection := range []string{"properties", "clients", "showings", "adminActions"} {
		t.Run(collection, func(t *testing.T) {
			source := sampleSource()
			source.failOn = collection
			source.err = errors.New("disk I/O error")

			snapshot, err := NewBuildSnapshotUseCase(source, clock).Execute(context.Background())
			require.Nil(t, snapshot)

			var readErr *domain.StoreReadError
			require.True(t, errors.As(err, &readErr))
			require.Equal(t, collection, readErr.Collection)
			require.ErrorIs(t, err, source.err)
		})
	}
}

func TestSnapshotRoundTripThroughRestoreValidation(t *testing.T) {
	snapshot, err := NewBuildSnapshotUseCase(sampleSource(), clock).Execute(context.Background())
	require.NoError(t, err)

	payload, err := snapshot.Marshal()
	require.NoError(t, err)

	restored, err := ValidateBackupPayload(payload)
	require.NoError(t, err)
	require.Equal(t, snapshot.Timestamp, restored.Timestamp)
	require.Equal(t, snapshot.Counts(), restored.Counts())
	require.Equal(t, snapshot.Clients, restored.Clients)

	again, err := restored.Marshal()
	require.NoError(t, err)
	require.Equal(t, string(payload), string(again))
}

func TestFirstPublishCreatesWithoutToken(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	path := domain.BackupPath(fixedNow)

	version, err := NewResolveVersionUseCase(store).Execute(ctx, path)
	require.NoError(t, err)
	require.False(t, version.Exists)
	require.Empty(t, version.Token)

	res, err := NewPublishSnapshotUseCase(store, clock).Execute(ctx, path, []byte(`{"n":1}`), version)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, domain.ContentHash([]byte(`{"n":1}`)), res.ContentHash)
	require.False(t, res.Unchanged)
}

func TestSecondPublishUsesFirstToken(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	path := domain.BackupPath(fixedNow)
	resolver := NewResolveVersionUseCase(store)
	publisher := NewPublishSnapshotUseCase(store, clock)

	first, err := publisher.Execute(ctx, path, []byte(`{"n":1}`), domain.RemoteVersion{})
	require.NoError(t, err)

	version, err := resolver.Execute(ctx, path)
	require.NoError(t, err)
	require.True(t, version.Exists)
	require.Equal(t, first.Token, version.Token)

	second, err := publisher.Execute(ctx, path, []byte(`{"n":2}`), version)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	payload, token, ok := store.Object(path)
	require.True(t, ok)
	require.Equal(t, []byte(`{"n":2}`), payload)
	require.Equal(t, second.Token, token)
}

func TestPublishWithoutTokenOnExistingObjectConflicts(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	path := domain.BackupPath(fixedNow)
	store.Put(path, []byte(`{"n":1}`))

	_, err := NewPublishSnapshotUseCase(store, clock).Execute(ctx, path, []byte(`{"n":2}`), domain.RemoteVersion{})

	var conflictErr *domain.ConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Equal(t, path, conflictErr.Path)
}

func TestStaleTokenConflictsAndKeepsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	path := domain.BackupPath(fixedNow)
	inner.Put(path, []byte(`{"n":1}`))

	store := &racingStore{inner: inner, concurrentPayload: []byte(`{"writer":"admin panel"}`)}

	version, err := NewResolveVersionUseCase(store).Execute(ctx, path)
	require.NoError(t, err)

	_, err = NewPublishSnapshotUseCase(store, clock).Execute(ctx, path, []byte(`{"n":2}`), version)
	require.ErrorIs(t, err, domain.ErrConflict)

	payload, _, ok := inner.Object(path)
	require.True(t, ok)
	require.Equal(t, []byte(`{"writer":"admin panel"}`), payload)
}

func TestPublishMarksUnchangedPayload(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	path := domain.BackupPath(fixedNow)
	store.Put(path, []byte(`{"n":1}`))

	version, err := NewResolveVersionUseCase(store).Execute(ctx, path)
	require.NoError(t, err)

	res, err := NewPublishSnapshotUseCase(store, clock).Execute(ctx, path, []byte(`{"n":1}`), version)
	require.NoError(t, err)
	require.True(t, res.Unchanged)
}

func TestPublishWrapsUnknownStoreErrors(t *testing.T) {
	store := &erroringStore{err: errors.New("connection reset by peer")}

	_, err := NewPublishSnapshotUseCase(store, clock).Execute(context.Background(), "backups/db-2025-03-14.json", []byte("{}"), domain.RemoteVersion{})

	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
	require.ErrorIs(t, err, store.err)
	require.NotErrorIs(t, err, domain.ErrConflict)
}

func TestResolveFailureIsResolutionError(t *testing.T) {
	store := &erroringStore{err: &domain.TransportError{StatusCode: 503}}

	_, err := NewResolveVersionUseCase(store).Execute(context.Background(), "backups/db-2025-03-14.json")
	require.ErrorIs(t, err, domain.ErrResolution)
	require.ErrorIs(t, err, domain.ErrTransport)
	require.Equal(t, "resolution", domain.ErrorKind(err))
}

func TestCycleCreatesThenUpdates(t *testing.T) {
	store := memstore.New()
	events := &recordingEvents{}
	cycle := newCycle(sampleSource(), store, CycleOptions{Events: events})

	first := cycle.Execute(context.Background(), domain.TriggerSchedule)
	require.True(t, first.Succeeded(), first.Reason)
	require.Equal(t, "backups/db-2025-03-14.json", first.Path)
	require.Equal(t, domain.SnapshotCounts{Properties: 2, Clients: 1, Showings: 1, AdminActions: 1}, first.Counts)
	require.False(t, first.Unchanged)

	second := cycle.Execute(context.Background(), domain.TriggerSchedule)
	require.True(t, second.Succeeded(), second.Reason)
	require.True(t, second.Unchanged)
	require.NotEqual(t, first.VersionToken, second.VersionToken)

	// токен версии передается хранилищу отдельно и в содержимое не попадает
	payload, token, ok := store.Object(second.Path)
	require.True(t, ok)
	require.Equal(t, second.VersionToken, token)
	require.NotContains(t, string(payload), string(first.VersionToken))
	require.NotContains(t, string(payload), string(token))

	last, ok := cycle.LastResult()
	require.True(t, ok)
	require.Equal(t, second.CycleID, last.CycleID)

	require.Len(t, events.records, 2)
	require.Equal(t, first.CycleID, events.records[0].CycleID)
}

func TestStoreReadFailureMakesNoRemoteCalls(t *testing.T) {
	store := memstore.New()
	source := sampleSource()
	source.failOn = "showings"
	source.err = errors.New("database is locked")

	record := newCycle(source, store, CycleOptions{}).Execute(context.Background(), domain.TriggerSchedule)

	require.Equal(t, domain.BackupStatusFailed, record.Status)
	require.Equal(t, "store_read", record.ErrorKind)
	require.Contains(t, record.Reason, "showings")
	resolve, write, fetch := store.Calls()
	assert.Zero(t, resolve)
	assert.Zero(t, write)
	assert.Zero(t, fetch)
}

func TestMissingConfigurationFailsBeforeAnyCall(t *testing.T) {
	store := memstore.New()
	source := sampleSource()
	preflight := func() error {
		return &domain.ConfigurationError{Missing: []string{"GITHUB_TOKEN", "GITHUB_REPO"}}
	}

	record := newCycle(source, store, CycleOptions{Preflight: preflight}).Execute(context.Background(), domain.TriggerStartup)

	require.Equal(t, "configuration", record.ErrorKind)
	require.Contains(t, record.Reason, "GITHUB_TOKEN, GITHUB_REPO")
	require.Empty(t, source.reads)
	resolve, write, _ := store.Calls()
	require.Zero(t, resolve+write)
}

func TestCycleReportsConflict(t *testing.T) {
	inner := memstore.New()
	inner.Put(domain.BackupPath(fixedNow), []byte(`{}`))
	store := &racingStore{inner: inner, concurrentPayload: []byte(`{"other":true}`)}

	cycle := NewRunBackupCycleUseCase(
		NewBuildSnapshotUseCase(sampleSource(), clock),
		NewResolveVersionUseCase(store),
		NewPublishSnapshotUseCase(store, clock),
		CycleOptions{Now: clock},
	)
	record := cycle.Execute(context.Background(), domain.TriggerManual)

	require.Equal(t, "conflict", record.ErrorKind)
	require.NotNil(t, record.FinishedAt)
}

func TestEventsFailureDoesNotFailCycle(t *testing.T) {
	events := &recordingEvents{err: errors.New("broker unavailable")}
	record := newCycle(sampleSource(), memstore.New(), CycleOptions{Events: events}).Execute(context.Background(), domain.TriggerSchedule)

	require.True(t, record.Succeeded())
	require.Len(t, events.records, 1)
}

func TestCyclePanicBecomesFailedRecord(t *testing.T) {
	cycle := NewRunBackupCycleUseCase(
		panickingBuilder{},
		NewResolveVersionUseCase(memstore.New()),
		NewPublishSnapshotUseCase(memstore.New(), clock),
		CycleOptions{Now: clock},
	)

	record := cycle.Execute(context.Background(), domain.TriggerSchedule)
	require.Equal(t, domain.BackupStatusFailed, record.Status)
	require.Contains(t, record.Reason, "panicked")
}

func TestConcurrentTriggersDoNotRace(t *testing.T) {
	store := memstore.New()
	cycle := newCycle(sampleSource(), store, CycleOptions{})

	var wg sync.WaitGroup
	records := make([]*domain.BackupRecord, 8)
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i] = cycle.Execute(context.Background(), domain.TriggerManual)
		}(i)
	}
	wg.Wait()

	for _, record := range records {
		require.True(t, record.Succeeded(), record.Reason)
	}
}

func TestTriggerAroundMidnightJoinsInFlightCycle(t *testing.T) {
	now := &switchableClock{at: time.Date(2025, 3, 14, 23, 59, 59, 900000000, time.UTC)}
	store := &gatedStore{inner: memstore.New(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	cycle := NewRunBackupCycleUseCase(
		NewBuildSnapshotUseCase(sampleSource(), now.Now),
		NewResolveVersionUseCase(store),
		NewPublishSnapshotUseCase(store, now.Now),
		CycleOptions{Now: now.Now},
	)

	first := make(chan *domain.BackupRecord, 1)
	go func() { first <- cycle.Execute(context.Background(), domain.TriggerSchedule) }()
	<-store.entered

	// второй запуск приходит уже в следующие сутки UTC
	now.Set(time.Date(2025, 3, 15, 0, 0, 0, 100000000, time.UTC))
	second := make(chan *domain.BackupRecord, 1)
	go func() { second <- cycle.Execute(context.Background(), domain.TriggerManual) }()
	time.Sleep(50 * time.Millisecond)
	close(store.release)

	a, b := <-first, <-second
	require.True(t, a.Succeeded(), a.Reason)
	require.Equal(t, a.CycleID, b.CycleID)
	require.Equal(t, "backups/db-2025-03-14.json", b.Path)
	_, write, _ := store.inner.Calls()
	require.Equal(t, 1, write)
}

func TestCycleTimeoutIsApplied(t *testing.T) {
	store := &blockingStore{}
	cycle := NewRunBackupCycleUseCase(
		NewBuildSnapshotUseCase(sampleSource(), clock),
		NewResolveVersionUseCase(store),
		NewPublishSnapshotUseCase(store, clock),
		CycleOptions{Now: clock, Timeout: 20 * time.Millisecond},
	)

	record := cycle.Execute(context.Background(), domain.TriggerSchedule)
	require.Equal(t, "resolution", record.ErrorKind)
	require.Contains(t, record.Reason, context.DeadlineExceeded.Error())
}

func TestCycleSurvivesCallerCancellation(t *testing.T) {
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record := newCycle(sampleSource(), store, CycleOptions{}).Execute(ctx, domain.TriggerSchedule)
	require.True(t, record.Succeeded(), record.Reason)
}

type panickingBuilder struct{}

func (panickingBuilder) Execute(ctx context.Context) (*domain.Snapshot, error) {
	panic("nil store handle")
}

type erroringStore struct{ err error }

func (s *erroringStore) ResolveVersion(ctx context.Context, path string) (domain.RemoteVersion, error) {
	return domain.RemoteVersion{}, s.err
}

func (s *erroringStore) WriteIfMatch(ctx context.Context, req domain.WriteRequest) (domain.WriteResult, error) {
	return domain.WriteResult{}, s.err
}

func (s *erroringStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	return nil, s.err
}

// blockingStore отвечает только по истечении контекста
type blockingStore struct{}

func (blockingStore) ResolveVersion(ctx context.Context, path string) (domain.RemoteVersion, error) {
	<-ctx.Done()
	return domain.RemoteVersion{}, &domain.TransportError{Path: path, Err: ctx.Err()}
}

func (blockingStore) WriteIfMatch(ctx context.Context, req domain.WriteRequest) (domain.WriteResult, error) {
	<-ctx.Done()
	return domain.WriteResult{}, ctx.Err()
}

func (blockingStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type switchableClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *switchableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *switchableClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = at
}

// gatedStore задерживает разрешение версии до сигнала release
type gatedStore struct {
	inner   *memstore.Store
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) ResolveVersion(ctx context.Context, path string) (domain.RemoteVersion, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.inner.ResolveVersion(ctx, path)
}

func (s *gatedStore) WriteIfMatch(ctx context.Context, req domain.WriteRequest) (domain.WriteResult, error) {
	return s.inner.WriteIfMatch(ctx, req)
}

func (s *gatedStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	return s.inner.Fetch(ctx, path)
}
