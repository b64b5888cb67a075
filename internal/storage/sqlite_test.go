package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteBootstrapsTables(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "queue.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", "build_queue").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "build_queue", name)

	// Bootstrapping twice is harmless.
	assert.NoError(t, BootstrapSQLite(context.Background(), db))
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	assert.Error(t, err)
}
