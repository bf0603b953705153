package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKind(t *testing.T) {
	cause := errors.New("boom")
	cases := map[string]error{
		"":                 nil,
		"configuration":    &ConfigurationError{Missing: []string{"GITHUB_TOKEN"}},
		"store_read":       &StoreReadError{Collection: "clients", Err: cause},
		"resolution":       &ResolutionError{Path: "p", Err: &TransportError{StatusCode: 500}},
		"conflict":         fmt.Errorf("publish: %w", &ConflictError{Path: "p"}),
		"transport":        &TransportError{Err: context.DeadlineExceeded},
		"malformed_backup": &MalformedBackupError{Field: "clients", Reason: "is missing"},
		"not_found":        fmt.Errorf("backups/db-2025-03-14.json: %w", ErrBackupNotFound),
		"internal":         cause,
	}
	for want, err := range cases {
		require.Equal(t, want, ErrorKind(err), "%v", err)
	}
}

func TestTypedErrorsMatchTheirKind(t *testing.T) {
	cause := errors.New("connection refused")

	storeErr := &StoreReadError{Collection: "properties", Err: cause}
	require.ErrorIs(t, storeErr, ErrStoreRead)
	require.ErrorIs(t, storeErr, cause)
	require.NotErrorIs(t, storeErr, ErrTransport)

	transportErr := &TransportError{Path: "p", StatusCode: 502, Detail: "Bad Gateway", Err: cause}
	require.ErrorIs(t, transportErr, ErrTransport)
	require.Equal(t, "remote store request failed for p (status 502): Bad Gateway: connection refused", transportErr.Error())

	conflictErr := &ConflictError{Path: "p"}
	require.ErrorIs(t, conflictErr, ErrConflict)
	require.NotErrorIs(t, conflictErr, ErrTransport)
	require.Equal(t, "version conflict on p (token <none>)", conflictErr.Error())

	malformed := &MalformedBackupError{Field: "clients", Reason: "is missing"}
	require.Equal(t, `malformed backup: field "clients" is missing`, malformed.Error())
}
