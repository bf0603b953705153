package main

import (
	"backup-service/internal/core/domain"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeApp struct {
	record    *domain.BackupRecord
	snapshot  *domain.Snapshot
	restore   error
	validated string
	closed    bool
}

func (f *fakeApp) Run() error { return nil }

func (f *fakeApp) RunOnce(ctx context.Context) *domain.BackupRecord { return f.record }

func (f *fakeApp) ValidateRestore(ctx context.Context, name string) (*domain.Snapshot, error) {
	f.validated = name
	return f.snapshot, f.restore
}

func (f *fakeApp) Close() { f.closed = true }

func runCLI(t *testing.T, app *fakeApp, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(func(envFile string) (backupApp, error) {
		return app, nil
	}, &stdout, &stderr)
	root.SetArgs(args)
	code := execute(root)
	return stdout.String(), stderr.String(), code
}

func TestRunOnceSucceeded(t *testing.T) {
	at := time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC)
	record := domain.NewBackupRecord(domain.TriggerCLI, at)
	record.Path = "backups/db-2025-03-14.json"
	record.Succeed(domain.WriteResult{Token: "sha-1"}, at)
	app := &fakeApp{record: record}

	stdout, _, code := runCLI(t, app, "run-once", "-o", "json")
	require.Equal(t, 0, code)
	require.True(t, app.closed)

	var decoded domain.BackupRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	require.Equal(t, domain.VersionToken("sha-1"), decoded.VersionToken)
}

func TestRunOnceFailedCycleExitsNonZero(t *testing.T) {
	at := time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC)
	record := domain.NewBackupRecord(domain.TriggerCLI, at)
	record.Fail(&domain.ConfigurationError{Missing: []string{"GITHUB_TOKEN"}}, at)

	stdout, stderr, code := runCLI(t, &fakeApp{record: record}, "run-once")
	require.Equal(t, 1, code)
	require.Contains(t, stdout, "configuration")
	require.Contains(t, stderr, "GITHUB_TOKEN")
}

func TestValidateRestoreCommand(t *testing.T) {
	snapshot := domain.NewSnapshot(time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC),
		[]domain.Record{{"id": "p-1"}}, []domain.Record{{"id": "c-1"}, {"id": "c-2"}}, nil, nil)
	app := &fakeApp{snapshot: snapshot}

	stdout, _, code := runCLI(t, app, "validate-restore", "db-2025-03-14.json")
	require.Equal(t, 0, code)
	require.Equal(t, "db-2025-03-14.json", app.validated)
	require.Contains(t, stdout, "backups/db-2025-03-14.json")
}

func TestValidateRestoreCommandReportsKind(t *testing.T) {
	app := &fakeApp{restore: &domain.MalformedBackupError{Field: "clients", Reason: "is missing"}}

	_, stderr, code := runCLI(t, app, "validate-restore", "2025-03-14")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "malformed_backup")
	require.Contains(t, stderr, `"clients"`)
}

func TestValidateRestoreRequiresName(t *testing.T) {
	_, _, code := runCLI(t, &fakeApp{}, "validate-restore")
	require.Equal(t, 1, code)
}

func TestFactoryErrorIsReported(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(func(envFile string) (backupApp, error) {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}, &stdout, &stderr)
	root.SetArgs([]string{"run-once", "--env-file", "/etc/backup.env"})

	require.Equal(t, 1, execute(root))
	require.Contains(t, stderr.String(), "DATABASE_URL")
}
