package eventlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndCount(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer func() { _ = log.Close() }()

	log.Record("sess-1", EventTurnStarted, "")
	log.Recordf("sess-1", EventWorkerCalled, "cycle %d", 1)
	log.Record("sess-2", EventTurnStarted, "")

	n, err := log.Count("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = log.Count("sess-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = log.Count("sess-3")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = log.CountType("sess-1", EventWorkerCalled)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = log.CountType("sess-1", EventTurnFailed)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNilLogIsSafe(t *testing.T) {
	var log *Log
	log.Record("sess", EventTurnStarted, "")
	log.Recordf("sess", EventTurnFailed, "err %v", "x")

	n, err := log.Count("sess")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = log.CountType("sess", EventTurnFailed)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, log.Close())
}
