package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.HasHeader)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "imapsync", cfg.Imapsync.Binary)
	assert.Equal(t, []string{"--ssl1", "--noid"}, cfg.Imapsync.Flags)
	assert.Zero(t, cfg.Imapsync.Timeout)
	assert.False(t, cfg.Remote.Enabled())
	assert.Equal(t, 22, cfg.Remote.Port)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imapmigrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source_host: imap.old.example
dest_host: imap.new.example
record_source_path: /data/creds.csv
has_header: false
max_concurrency: 3
imapsync:
  binary: /usr/local/bin/imapsync
  flags: ["--ssl1", "--ssl2", "--noid"]
  timeout: 2h
remote:
  host: migrate-box
  user: ops
`), 0o600))

	t.Setenv("IMAPMIGRATE_MAX_CONCURRENCY", "5")
	t.Setenv("IMAPMIGRATE_IMAPSYNC_FLAGS", "--ssl1 --noid --dry")
	t.Setenv("IMAPMIGRATE_REMOTE_PORT", "2222")
	t.Setenv("IMAPMIGRATE_REMOTE_KNOWN_HOSTS", "/etc/ssh/ssh_known_hosts")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "imap.old.example", cfg.SourceHost)
	assert.Equal(t, "imap.new.example", cfg.DestHost)
	assert.Equal(t, "/data/creds.csv", cfg.RecordSourcePath)
	assert.False(t, cfg.HasHeader)
	assert.Equal(t, 5, cfg.MaxConcurrency)
	assert.Equal(t, "/usr/local/bin/imapsync", cfg.Imapsync.Binary)
	assert.Equal(t, []string{"--ssl1", "--noid", "--dry"}, cfg.Imapsync.Flags)
	assert.Equal(t, 2*time.Hour, cfg.Imapsync.Timeout)
	assert.Equal(t, "migrate-box", cfg.Remote.Host)
	assert.Equal(t, "ops", cfg.Remote.User)
	assert.Equal(t, 2222, cfg.Remote.Port)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "/etc/ssh/ssh_known_hosts", cfg.Remote.KnownHosts)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrency: [1"), 0o600))
	_, err = Load(path)
	require.Error(t, err)

	t.Setenv("IMAPMIGRATE_MAX_CONCURRENCY", "lots")
	_, err = Load("")
	require.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrency = -1
	cfg.LogLevel = "chatty"
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"source host is required",
		"destination host is required",
		"CSV file path is required",
		"must not be negative",
		"log level",
		"console or json",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateRemote(t *testing.T) {
	cfg := Default()
	cfg.SourceHost, cfg.DestHost, cfg.RecordSourcePath = "a", "b", "c.csv"
	require.NoError(t, cfg.Validate())

	cfg.Remote.Host = "migrate-box"
	cfg.Remote.PasswordEnv = "IMAPMIGRATE_TEST_REMOTE_PW"
	t.Setenv("IMAPMIGRATE_TEST_REMOTE_PW", "")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAPMIGRATE_TEST_REMOTE_PW is empty")

	t.Setenv("IMAPMIGRATE_TEST_REMOTE_PW", "boxpw")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "boxpw", cfg.Remote.Password())
}

func TestConcurrency(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrency = 7
	assert.Equal(t, 7, cfg.Concurrency())

	cfg.MaxConcurrency = 0
	want := runtime.NumCPU() / 4
	if want < 1 {
		want = 1
	}
	assert.Equal(t, want, cfg.Concurrency())
	assert.GreaterOrEqual(t, cfg.Concurrency(), 1)
}
