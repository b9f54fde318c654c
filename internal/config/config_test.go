package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, uint32(3), cfg.MinWdtSeconds)
	require.Equal(t, uint32(10), cfg.RecWaitSeconds)
	require.Equal(t, uint32(3), cfg.RecoveryAttemptsCap)
	require.False(t, cfg.AllowUnsecureDefault)
	require.True(t, cfg.NotifyExitReset)
}

func TestLoadBytesOverridesOnlyGivenFields(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
min_wdt_seconds = 5
allow_unsecure_default = true
`))
	require.NoError(t, err)

	require.Equal(t, uint32(5), cfg.MinWdtSeconds)
	require.True(t, cfg.AllowUnsecureDefault)
	// fields the snippet didn't mention keep Default()'s values.
	require.Equal(t, uint32(10), cfg.RecWaitSeconds)
	require.Equal(t, uint32(3), cfg.RecoveryAttemptsCap)
	require.True(t, cfg.NotifyExitReset)
}

func TestLoadBytesRejectsMalformedToml(t *testing.T) {
	_, err := LoadBytes([]byte("this is not = valid [ toml"))
	require.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/path/rotcore.toml")
	require.Error(t, err)
}
