package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "matchwatcher", cfg.App.Name)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ErrorBackoff)
	assert.Equal(t, int64(0x6d776368), cfg.Scheduler.AdvisoryLockKey)
	assert.Equal(t, 10*time.Second, cfg.Sports.RequestTimeout)
	assert.Equal(t, 5.0, cfg.Sports.RequestsPerSec)
	assert.Equal(t, 50, cfg.Patterns.BufferCapacity)
	assert.Equal(t, 2*time.Hour, cfg.Patterns.Retention)
	assert.False(t, cfg.Alerting.Enabled)
	assert.Equal(t, "match.alerts", cfg.Alerting.NATS.SubjectPrefix)
	assert.Equal(t, 100000, cfg.Export.MaxDataPoints)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
scheduler:
  interval: 15s
  error_backoff: 5s
sports:
  base_url: https://api.example.test
  api_key: secret
alerting:
  enabled: true
  sms:
    enabled: true
    account_sid: sid
    auth_token: token
    from: "+15559990000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ErrorBackoff)
	assert.Equal(t, "https://api.example.test", cfg.Sports.BaseURL)
	assert.True(t, cfg.Alerting.SMS.Enabled)
	assert.Equal(t, "sid", cfg.Alerting.SMS.AccountSID)
	// Untouched sections keep their defaults.
	assert.Equal(t, 50, cfg.Patterns.BufferCapacity)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MATCHWATCHER_SPORTS_API_KEY", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Sports.APIKey)
}

func TestLoadRejectsEnabledSMSWithoutCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alerting:\n  sms:\n    enabled: true\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_sid")
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Scheduler.Interval = 0
	assert.Error(t, cfg.Validate())

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.Patterns.BufferCapacity = 0
	assert.Error(t, cfg.Validate())
}
