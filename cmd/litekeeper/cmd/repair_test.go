package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairRebuildsHealthyDatabase(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "app.db")
	createDatabase(t, path)

	repairPath = path
	defer func() { repairPath = "" }()

	var err error
	output := captureStdout(t, func() {
		err = runRepair(repairCmd, nil)
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Rebuilt")
	assert.Contains(t, output, "pre-repair backup")
}

func TestRepairMissingFile(t *testing.T) {
	isolate(t)

	repairPath = filepath.Join(t.TempDir(), "missing.db")
	defer func() { repairPath = "" }()

	err := runRepair(repairCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
