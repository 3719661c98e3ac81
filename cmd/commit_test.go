package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentexa/import-cli/internal/commit"
	"github.com/dentexa/import-cli/internal/history"
	"github.com/dentexa/import-cli/internal/model"
)

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invalid: [3, 7]\nconflicts: [12]\nskipped: []\n"), 0o644))

	sel, err := loadOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, sel.Invalid)
	assert.Equal(t, []int{12}, sel.Conflicts)
	assert.Empty(t, sel.Skipped)
}

func TestLoadOverrides_EmptyPath(t *testing.T) {
	sel, err := loadOverrides("")
	require.NoError(t, err)
	assert.True(t, sel.Empty())
}

func TestLoadOverrides_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invalid: [not-closed\n"), 0o644))

	_, err := loadOverrides(path)
	require.Error(t, err)
}

func TestConfirm(t *testing.T) {
	for input, want := range map[string]bool{
		"y\n":   true,
		"Y\n":   true,
		"yes\n": true,
		"n\n":   false,
		"\n":    false,
	} {
		cmd := &cobra.Command{}
		cmd.SetIn(bytes.NewBufferString(input))
		cmd.SetOut(new(bytes.Buffer))
		assert.Equal(t, want, confirm(cmd, 1, 2), "input %q", input)
	}
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, history.StatusComplete, runStatus(commit.Result{Created: 3}))
	assert.Equal(t, history.StatusPartial, runStatus(commit.Result{
		Failures: []model.RowFailure{{Index: 1}},
	}))
	assert.Equal(t, history.StatusCancelled, runStatus(commit.Result{Cancelled: true}))
}
