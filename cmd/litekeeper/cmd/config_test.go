package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShowPrintsFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: TestApp\n"), 0o644))

	cfgFile = path
	defer func() { cfgFile = "" }()

	var err error
	output := captureStdout(t, func() {
		err = runConfigShow(configShowCmd, nil)
	})
	require.NoError(t, err)
	assert.Contains(t, output, path)
	assert.Contains(t, output, "name: TestApp")
}

func TestConfigShowDefaults(t *testing.T) {
	isolate(t)

	var err error
	output := captureStdout(t, func() {
		err = runConfigShow(configShowCmd, nil)
	})
	require.NoError(t, err)
	assert.Contains(t, output, "built-in defaults")
	assert.Contains(t, output, "journal_mode: wal")
}

func TestConfigPathWithoutFile(t *testing.T) {
	isolate(t)

	err := runConfigPath(configPathCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "litekeeper init")
}

func TestConfigPathFindsProjectFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".litekeeper.yaml"), []byte("app:\n  name: TestApp\n"), 0o644))

	var err error
	output := captureStdout(t, func() {
		err = runConfigPath(configPathCmd, nil)
	})
	require.NoError(t, err)
	assert.Contains(t, output, ".litekeeper.yaml")
}
