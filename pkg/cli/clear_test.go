package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/storage"
	"github.com/platinummonkey/beacon/pkg/telemetry"
)

func TestClearCommand_RequiresConfirmation(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})
	err := root.Execute([]string{"clear"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestClearCommand_FilesystemStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BEACON_CONFIG_FILE", "")
	t.Setenv("BEACON_STORAGE_TYPE", "filesystem")
	t.Setenv("BEACON_FILESYSTEM_ROOT", dir)

	store, err := storage.NewFileSystemStore(dir)
	require.NoError(t, err)
	for _, session := range []string{"a", "b"} {
		session, step, status := session, telemetry.StepInstall, telemetry.StatusSuccess
		_, err := store.Insert(context.Background(), &telemetry.Event{SessionID: &session, Step: &step, Status: &status})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	var out bytes.Buffer
	root := NewRootCommand(&out)
	require.NoError(t, root.Execute([]string{"clear", "--yes"}))
	assert.Contains(t, out.String(), "Deleted 2 events from filesystem store")

	reopened, err := storage.NewFileSystemStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	count, err := reopened.Count(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestClearCommand_InvalidConfig(t *testing.T) {
	t.Setenv("BEACON_STORAGE_TYPE", "mongodb")

	root := NewRootCommand(&bytes.Buffer{})
	err := root.Execute([]string{"clear", "--yes", "--config", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
