package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "marcbridge", cmd.Use)
	assert.Contains(t, cmd.Long, "tag/subfield")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"convert", "batch", "rules", "replay", "warnings", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "base-url", "rules"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue, name)
	}
}

func TestConvertCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	convertCmd, _, err := cmd.Find([]string{"convert"})
	require.NoError(t, err)

	outputFlag := convertCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	formatFlag := convertCmd.Flags().Lookup("output-format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "json", formatFlag.DefValue)

	modelFlag := convertCmd.Flags().Lookup("model")
	require.NotNil(t, modelFlag)
	assert.Equal(t, "m", modelFlag.Shorthand)
}

func TestBatchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	batchCmd, _, err := cmd.Find([]string{"batch"})
	require.NoError(t, err)

	workersFlag := batchCmd.Flags().Lookup("workers")
	require.NotNil(t, workersFlag)
	assert.Equal(t, "0", workersFlag.DefValue)

	require.NotNil(t, batchCmd.Flags().Lookup("db"))
	require.NotNil(t, batchCmd.Flags().Lookup("out-dir"))
}

func TestStoreCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"replay", "warnings"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			dbFlag := sub.Flags().Lookup("db")
			require.NotNil(t, dbFlag)
			// --db is required, so default is empty
			assert.Equal(t, "", dbFlag.DefValue)
		})
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := execute(t, "--format", "invalid", "rules")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRequiredModelFlag(t *testing.T) {
	_, _, err := execute(t, "convert", "record.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestLoggerDefaultsToDiscard(t *testing.T) {
	opts := &RootOptions{}
	require.NotNil(t, opts.Logger())
}
