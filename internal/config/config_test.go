package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "fetchopus.sqlite", cfg.Database.Path)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 20*time.Second, cfg.Scheduler.InitialDelay)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 4999, cfg.Scheduler.ErrorLogMaxLength)
	assert.Equal(t, time.Minute, cfg.Browse.EvictInterval)
	assert.Equal(t, 10*time.Minute, cfg.Browse.MaxIdle)
	assert.Equal(t, 30*time.Second, cfg.SSH.Timeout)
	assert.Equal(t, 30*time.Second, cfg.FTP.Timeout)
	assert.Empty(t, cfg.Metrics.Listen)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	content := `
database:
  path: /var/lib/fetchopus/jobs.sqlite
scheduler:
  interval: 1m
  maxAttempts: 5
ssh:
  knownHosts: /etc/ssh/ssh_known_hosts
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	t.Setenv("FETCHOPUS_SCHEDULER_MAXATTEMPTS", "7")
	t.Setenv("FETCHOPUS_METRICS_LISTEN", ":9100")

	cfg, err := Load(New(), file)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/fetchopus/jobs.sqlite", cfg.Database.Path)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 7, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, "/etc/ssh/ssh_known_hosts", cfg.SSH.KnownHosts)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FETCHOPUS_SCHEDULER_INTERVAL", "0s")
	_, err := Load(New(), "")
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	defer log.SetFormatter(log.StandardLogger().Formatter)

	cfg := &Config{}
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	require.NoError(t, SetupLogging(cfg))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	cfg.Log.Level = "loud"
	assert.Error(t, SetupLogging(cfg))

	cfg.Log.Level = "info"
	cfg.Log.Format = "xml"
	assert.Error(t, SetupLogging(cfg))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
