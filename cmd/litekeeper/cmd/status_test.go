package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/storage"
)

func TestStatusOpensThroughPipeline(t *testing.T) {
	dir := isolate(t)
	createDatabase(t, filepath.Join(dir, "app.db"))
	statusJSON = true
	defer func() { statusJSON = false }()

	var err error
	output := captureStdout(t, func() {
		err = runStatus(statusCmd, nil)
	})
	require.NoError(t, err)

	var view struct {
		Status core.StorageStatus   `json:"status"`
		Health storage.HealthReport `json:"health"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &view))

	assert.Equal(t, core.StateConnected, view.Status.State)
	assert.True(t, view.Status.IsConnected)
	assert.False(t, view.Status.IsFallback)
	assert.Equal(t, core.IntegrityHealthy, view.Status.IntegrityStatus)
	assert.Equal(t, 1, view.Health.TotalProbes)
}

// A database that does not exist yet is created on open; the integrity
// verdict stays unknown because there was nothing to verify.
func TestStatusTextOutputForFreshDatabase(t *testing.T) {
	isolate(t)

	var err error
	output := captureStdout(t, func() {
		err = runStatus(statusCmd, nil)
	})
	require.NoError(t, err)

	assert.Contains(t, output, "State: connected")
	assert.Contains(t, output, "Integrity: unknown")
	assert.Contains(t, output, "Probes: 1 total, 0 failed")
}
