package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "deadbolt", cmd.Use)
	assert.Contains(t, cmd.Long, "exactly one firing")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"pass", "dispatch", "verify", "status"}

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
}

func TestCommonFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, cmdName := range []string{"pass", "dispatch", "verify", "status"} {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err)

			dbFlag := subCmd.Flags().Lookup("db")
			require.NotNil(t, dbFlag)
			assert.Equal(t, "deadbolt.db", dbFlag.DefValue)

			evidenceFlag := subCmd.Flags().Lookup("evidence")
			require.NotNil(t, evidenceFlag)
			assert.Equal(t, ".", evidenceFlag.DefValue)

			policyFlag := subCmd.Flags().Lookup("policy")
			require.NotNil(t, policyFlag)
			assert.Equal(t, "FEED_LOCK.cue", policyFlag.DefValue)
		})
	}
}

func TestPassCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	passCmd, _, err := cmd.Find([]string{"pass"})
	require.NoError(t, err)

	outboxFlag := passCmd.Flags().Lookup("outbox")
	require.NotNil(t, outboxFlag)
	assert.Equal(t, "out/outbox", outboxFlag.DefValue)
}

func TestStatusCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	statusCmd, _, err := cmd.Find([]string{"status"})
	require.NoError(t, err)

	healthFlag := statusCmd.Flags().Lookup("health")
	require.NotNil(t, healthFlag)
	assert.Equal(t, "5", healthFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
