package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupCreateRequiresDatabase(t *testing.T) {
	isolate(t)

	err := runBackupCreate(backupCreateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestBackupCreateAndList(t *testing.T) {
	dir := isolate(t)
	createDatabase(t, filepath.Join(dir, "app.db"))

	quiet = true
	defer func() { quiet = false }()
	require.NoError(t, runBackupCreate(backupCreateCmd, nil))

	output := captureStdout(t, func() {
		require.NoError(t, runBackupList(backupListCmd, nil))
	})
	assert.Contains(t, output, "BACKUP")
	assert.Contains(t, output, "manual_backup_")
}

func TestBackupListEmpty(t *testing.T) {
	isolate(t)

	output := captureStdout(t, func() {
		require.NoError(t, runBackupList(backupListCmd, nil))
	})
	assert.Contains(t, output, "No backups found")
}

func TestBackupRestoreWithoutBackups(t *testing.T) {
	isolate(t)

	err := runBackupRestore(backupRestoreCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no backups available")
}

func TestBackupRestoreLatest(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "app.db")
	createDatabase(t, path)

	quiet = true
	defer func() { quiet = false }()
	require.NoError(t, runBackupCreate(backupCreateCmd, nil))

	require.NoError(t, runBackupRestore(backupRestoreCmd, nil))
	assert.True(t, fileExists(path))
}
