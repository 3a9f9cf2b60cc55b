package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tastythames/imap-migrator/internal/scheduler"
)

const EnvPrefix = "IMAPMIGRATE_"

type Config struct {
	SourceHost       string `yaml:"source_host" env:"SOURCE_HOST"`
	DestHost         string `yaml:"dest_host" env:"DEST_HOST"`
	RecordSourcePath string `yaml:"record_source_path" env:"CSV_FILE"`
	HasHeader        bool   `yaml:"has_header" env:"CSV_HAS_HEADER"`

	// MaxConcurrency 0 means DefaultConcurrency.
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`

	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT"`
	MetricsFile string `yaml:"metrics_file" env:"METRICS_FILE"`

	Imapsync Imapsync `yaml:"imapsync" envPrefix:"IMAPSYNC_"`
	Remote   Remote   `yaml:"remote" envPrefix:"REMOTE_"`
}

type Imapsync struct {
	Binary  string        `yaml:"binary" env:"BINARY"`
	Flags   []string      `yaml:"flags" env:"FLAGS" envSeparator:" "`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Remote runs imapsync on another host over SSH when Host is set.
type Remote struct {
	Host        string        `yaml:"host" env:"HOST"`
	Port        int           `yaml:"port" env:"PORT"`
	User        string        `yaml:"user" env:"USER"`
	PasswordEnv string        `yaml:"password_env" env:"PASSWORD_ENV"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// KnownHosts enables host key checking against an OpenSSH known_hosts file.
	KnownHosts  string        `yaml:"known_hosts" env:"KNOWN_HOSTS"`
}

func (r Remote) Enabled() bool { return r.Host != "" }

// Password reads the SSH password from the variable named by PasswordEnv.
func (r Remote) Password() string { return os.Getenv(r.PasswordEnv) }

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		HasHeader: true,
		LogLevel:  "info",
		LogFormat: "console",
		Imapsync: Imapsync{
			Binary: "imapsync",
			Flags:  []string{"--ssl1", "--noid"},
		},
		Remote: Remote{
			Port:        22,
			User:        "root",
			PasswordEnv: EnvPrefix + "REMOTE_PASSWORD",
			Timeout:     10 * time.Second,
		},
	}
}

// Load layers defaults, the YAML file at path (if any) and the
// environment. Flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("yaml unmarshal: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// Concurrency resolves MaxConcurrency against the CPU count. The result
// is always at least 1.
func (c *Config) Concurrency() int {
	if c.MaxConcurrency > 0 {
		return c.MaxConcurrency
	}
	return scheduler.DefaultConcurrency(runtime.NumCPU())
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.SourceHost == "" {
		err = multierr.Append(err, errors.New("source host is required"))
	}
	if c.DestHost == "" {
		err = multierr.Append(err, errors.New("destination host is required"))
	}
	if c.RecordSourcePath == "" {
		err = multierr.Append(err, errors.New("CSV file path is required"))
	}
	if c.MaxConcurrency < 0 {
		err = multierr.Append(err, fmt.Errorf("max concurrency must not be negative, got %d", c.MaxConcurrency))
	}
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log level: %w", lerr))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		err = multierr.Append(err, fmt.Errorf("log format must be console or json, got %q", c.LogFormat))
	}
	if c.Imapsync.Binary == "" {
		err = multierr.Append(err, errors.New("imapsync binary is required"))
	}
	if c.Imapsync.Timeout < 0 {
		err = multierr.Append(err, errors.New("imapsync timeout must not be negative"))
	}
	if c.Remote.Enabled() {
		if c.Remote.Port < 1 || c.Remote.Port > 65535 {
			err = multierr.Append(err, fmt.Errorf("remote port out of range: %d", c.Remote.Port))
		}
		if c.Remote.User == "" {
			err = multierr.Append(err, errors.New("remote user is required"))
		}
		if c.Remote.Password() == "" {
			err = multierr.Append(err, fmt.Errorf("remote password: %s is empty", c.Remote.PasswordEnv))
		}
	}
	return err
}
