package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorHealthyEnvironment(t *testing.T) {
	isolate(t)

	var err error
	output := captureStdout(t, func() {
		err = runDoctor(doctorCmd, nil)
	})
	require.NoError(t, err)

	assert.Contains(t, output, "Checking configuration...")
	assert.Contains(t, output, "no configuration file, using defaults")
	assert.Contains(t, output, "Checking database location...")
	assert.Contains(t, output, "database file will be created on first open")
	assert.Contains(t, output, "Environment looks healthy.")
}

func TestDoctorJSON(t *testing.T) {
	dir := isolate(t)
	createDatabase(t, filepath.Join(dir, "app.db"))

	doctorJSON = true
	defer func() { doctorJSON = false }()

	var err error
	output := captureStdout(t, func() {
		err = runDoctor(doctorCmd, nil)
	})
	require.NoError(t, err)

	var report doctorReport
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.True(t, report.Healthy)
	assert.True(t, report.DatabaseExists)
	assert.NotZero(t, report.DatabaseSize)
	require.NotNil(t, report.Resolution)
	assert.Equal(t, "app.db", filepath.Base(report.Resolution.ResolvedPath))
	assert.False(t, report.NetworkPath)
}

func TestDoctorReportsExistingBackups(t *testing.T) {
	dir := isolate(t)
	createDatabase(t, filepath.Join(dir, "app.db"))

	quiet = true
	err := runBackupCreate(backupCreateCmd, nil)
	quiet = false
	require.NoError(t, err)

	report := collectDoctorReport(t.Context())
	assert.Equal(t, 1, report.BackupCount)
	assert.Contains(t, report.LatestBackup, "manual_backup_")
}
