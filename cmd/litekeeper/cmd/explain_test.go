package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplainListsKinds(t *testing.T) {
	output := captureStdout(t, func() {
		require.NoError(t, runExplain(explainCmd, nil))
	})

	assert.Contains(t, output, "Known error kinds:")
	assert.Contains(t, output, "file_locked")
	assert.Contains(t, output, "corruption")
	assert.Contains(t, output, "disk_full")
	assert.Contains(t, output, "security_software")
}

func TestExplainRendersKind(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	output := captureStdout(t, func() {
		require.NoError(t, runExplain(explainCmd, []string{"file_locked"}))
	})

	assert.Contains(t, output, "# file_locked")
	assert.Contains(t, output, "Suggested fixes")
}

func TestExplainAcceptsUppercaseKind(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	output := captureStdout(t, func() {
		require.NoError(t, runExplain(explainCmd, []string{"DISK_FULL"}))
	})
	assert.Contains(t, output, "# disk_full")
}

func TestExplainUnknownKindSuggests(t *testing.T) {
	err := runExplain(explainCmd, []string{"corupt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown error kind")
	assert.Contains(t, err.Error(), `"corruption"`)
}

func TestExplainUnknownKindWithoutMatch(t *testing.T) {
	err := runExplain(explainCmd, []string{"zzzqqq"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestSuggestKind(t *testing.T) {
	assert.Equal(t, "file_locked", suggestKind("locked"))
	assert.Equal(t, "", suggestKind("zzzqqq"))
}
