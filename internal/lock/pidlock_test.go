package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := PathFor(filepath.Join(t.TempDir(), "data", "queue.db"))
	l, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	pid, ok := ReadPID(lockPath)
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
	assert.Equal(t, lockPath, l.Path())
}

func TestAcquirePIDLockIsExclusive(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "queue.db.lock")
	first, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)

	_, err = AcquirePIDLock(lockPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by pid")

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestAcquirePIDLockEmptyPath(t *testing.T) {
	_, err := AcquirePIDLock("")
	assert.Error(t, err)
}

func TestReadPIDMissing(t *testing.T) {
	_, ok := ReadPID(filepath.Join(t.TempDir(), "none"))
	assert.False(t, ok)
}
