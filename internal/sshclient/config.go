package sshclient

import (
	"time"
)

type Config struct {
	Timeout    time.Duration
	Port       int
	// KnownHosts is an OpenSSH known_hosts file. Empty disables host key
	// checking.
	KnownHosts string
}

// DefaultConfig is port 22 with a 10s dial and handshake timeout.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Port:    22,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Port <= 0 {
		c.Port = d.Port
	}
	return c
}
