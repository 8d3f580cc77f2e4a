package internal

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestRegisterCommandFlags(t *testing.T) {
	port, flush := Port, FlushInterval
	t.Cleanup(func() { Port, FlushInterval = port, flush })

	t.Setenv("PORT", "9100")
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	require.NoError(t, RegisterCommandFlags(cmd, []*Flag{&PortFlag, &FlushIntervalFlag}))
	require.Equal(t, 9100, Port)

	cmd.SetArgs([]string{"--flush-interval", "50ms"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, 50*time.Millisecond, FlushInterval)
	require.NoError(t, ValidateEnv())
}

func TestRegisterCommandFlagsRejectsBadEnv(t *testing.T) {
	t.Setenv("CLOSE_TIMEOUT", "soon")
	cmd := &cobra.Command{Use: "test"}
	require.Error(t, RegisterCommandFlags(cmd, []*Flag{&CloseTimeoutFlag}))
}

func TestValidateEnv(t *testing.T) {
	level := LogLevel
	t.Cleanup(func() { LogLevel = level })
	LogLevel = "loud"
	require.Error(t, ValidateEnv())
}

func TestCommandLineOverridesEnv(t *testing.T) {
	timeout := ShutdownTimeout
	t.Cleanup(func() { ShutdownTimeout = timeout })

	t.Setenv("SHUTDOWN_TIMEOUT", "20s")
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	require.NoError(t, RegisterCommandFlags(cmd, []*Flag{&ShutdownTimeoutFlag}))
	require.Equal(t, 20*time.Second, ShutdownTimeout)

	cmd.SetArgs([]string{"--shutdown-timeout", "3s"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, 3*time.Second, ShutdownTimeout)
}
