package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Expectation: newRootCmd should create root command with serve and check subcommands.
func Test_newRootCmd_SubcommandsAdded_Success(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	rootCmd := newRootCmd(ctx)

	require.NotNil(t, rootCmd)
	require.Equal(t, "netwatch", rootCmd.Use)
	require.True(t, rootCmd.SilenceUsage)
	require.True(t, rootCmd.CompletionOptions.DisableDefaultCmd)

	commands := rootCmd.Commands()
	require.Len(t, commands, 2)

	commandNames := make([]string, len(commands))
	for i, cmd := range commands {
		commandNames[i] = cmd.Name()
	}
	require.Contains(t, commandNames, "serve")
	require.Contains(t, commandNames, "check")
}

// Expectation: newCheckCmd should return error when config.json is missing.
func Test_newCheckCmd_ConfigFileNotFound_Error(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	checkCmd := newCheckCmd()
	checkCmd.SetOut(io.Discard)
	checkCmd.SetErr(io.Discard)
	checkCmd.SetArgs([]string{"--data-dir", tmpDir})

	err := checkCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "config.json")
}

// Expectation: newCheckCmd should return error when devices.json is invalid JSON.
func Test_newCheckCmd_InvalidDevicesJSON_Error(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.json"),
		[]byte(`{"web_port":8080,"ping_interval":0,"smtp":null,"users":[]}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "devices.json"), []byte("not json"), 0o600))

	checkCmd := newCheckCmd()
	checkCmd.SetOut(io.Discard)
	checkCmd.SetErr(io.Discard)
	checkCmd.SetArgs([]string{"--data-dir", tmpDir})

	err := checkCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "devices.json")
}

// Expectation: newCheckCmd should succeed when both documents are syntactically valid.
func Test_newCheckCmd_ValidDocuments_Success(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.json"),
		[]byte(`{"web_port":8080,"ping_interval":0,"smtp":null,"users":[]}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "devices.json"), []byte("[]"), 0o600))

	checkCmd := newCheckCmd()
	checkCmd.SetOut(io.Discard)
	checkCmd.SetErr(io.Discard)
	checkCmd.SetArgs([]string{"--data-dir", tmpDir})

	require.NoError(t, checkCmd.Execute())
}
