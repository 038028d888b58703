package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"resolve", "restore", "runs", "fields"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "bimattr", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestResolveCommand_Flags(t *testing.T) {
	for _, name := range []string{"model", "templates", "enrichment", "answers", "report", "save"} {
		flag := resolveCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "resolve should have --%s flag", name)
	}
	assert.Equal(t, "false", resolveCmd.Flags().Lookup("save").DefValue)
}

func TestRestoreCommand_Flags(t *testing.T) {
	for _, name := range []string{"model", "run", "answers"} {
		assert.NotNil(t, restoreCmd.Flags().Lookup(name), "restore should have --%s flag", name)
	}
}

func TestRunsCommand_Flags(t *testing.T) {
	flag := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "runs command should have --limit flag")
	assert.Equal(t, "50", flag.DefValue)
}

func TestRootCommand_PreRunWrapsLoggerError(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	t.Setenv("BIMATTR_LOG_LEVEL", "bogus")

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
	assert.Contains(t, err.Error(), "config: parse log level")
}
