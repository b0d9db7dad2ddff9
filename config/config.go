// Package config defines the runtime configuration for execgate and
// the layers it is assembled from: defaults, a YAML file, EXECGATE_*
// environment variables, and command-line flags, each overriding the
// one before.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	ncerr "execgate/internal/errors"
	"execgate/tunnel"
	"execgate/util"
)

// Run modes.
const (
	ModeAuto       = "auto" // service if started by the service manager
	ModeForeground = "foreground"
	ModeService    = "service"
)

// Config holds every tuneable for one gateway run.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	ListenAddr  string `yaml:"listen"`
	MaxSessions int    `yaml:"max_sessions"` // 0 = unlimited

	// ── Program ──────────────────────────────────────────────────────
	Root string `yaml:"root"`
	Ext  string `yaml:"ext"`

	// ── Sessions ─────────────────────────────────────────────────────
	ChunkSize    int           `yaml:"chunk_size"`
	KillGrace    time.Duration `yaml:"kill_grace"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	GracePeriod  time.Duration `yaml:"grace_period"`

	// ── Run mode ─────────────────────────────────────────────────────
	Mode        string `yaml:"mode"`
	ServiceName string `yaml:"service_name"`
	StatusAddr  string `yaml:"status_addr"` // "" disables the endpoint

	// ── SSH gateway ──────────────────────────────────────────────────
	Tunnel TunnelConfig `yaml:"tunnel"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int `yaml:"verbose"`

	// Set from the command line only.
	ConfigFile string `yaml:"-"`
	DryRun     bool   `yaml:"-"`
}

// TunnelConfig publishes the listener on a remote SSH gateway instead
// of binding it locally.
type TunnelConfig struct {
	Target        string        `yaml:"target"` // user@host[:port]; "" disables
	BindAddr      string        `yaml:"bind_addr"`
	RemotePort    int           `yaml:"remote_port"`
	KeyPath       string        `yaml:"key_path"`
	Password      bool          `yaml:"password"` // prompt interactively
	UseAgent      bool          `yaml:"use_agent"`
	StrictHostKey bool          `yaml:"strict_host_key"`
	KnownHosts    string        `yaml:"known_hosts"`
	ConnTimeout   time.Duration `yaml:"conn_timeout"`
	KeepAlive     time.Duration `yaml:"keepalive"`
}

// Enabled reports whether a gateway is configured.
func (t *TunnelConfig) Enabled() bool { return t.Target != "" }

// SSHConfig converts the settings for the tunnel package.
func (t *TunnelConfig) SSHConfig() (*tunnel.SSHConfig, error) {
	user, host, port, err := tunnel.ParseTarget(t.Target)
	if err != nil {
		return nil, err
	}
	return &tunnel.SSHConfig{
		User:          user,
		Host:          host,
		Port:          port,
		KeyPath:       t.KeyPath,
		PromptPass:    t.Password,
		UseAgent:      t.UseAgent,
		StrictHostKey: t.StrictHostKey,
		KnownHosts:    t.KnownHosts,
		ConnTimeout:   t.ConnTimeout,
		KeepAlive:     t.KeepAlive,
	}, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *ncerr.ConfigError.
func (c *Config) Validate() error {
	if c.Tunnel.Enabled() {
		if _, err := c.Tunnel.SSHConfig(); err != nil {
			return &ncerr.ConfigError{
				Field:   "tunnel",
				Value:   c.Tunnel.Target,
				Message: err.Error(),
				Hint:    "use --tunnel user@gateway.example.com[:22]",
			}
		}
		if c.Tunnel.RemotePort < 0 || c.Tunnel.RemotePort > 65535 {
			return &ncerr.ConfigError{
				Field:   "remote-port",
				Value:   c.Tunnel.RemotePort,
				Message: "must be between 0 and 65535",
			}
		}
	} else if c.ListenAddr == "" {
		return &ncerr.ConfigError{
			Field:   "listen",
			Message: "listen address is required",
			Hint:    "e.g. --listen " + DefaultListenAddr,
		}
	} else if _, _, err := util.SplitAddr(c.ListenAddr); err != nil {
		return &ncerr.ConfigError{
			Field:   "listen",
			Value:   c.ListenAddr,
			Message: err.Error(),
			Hint:    "use host:port, e.g. 127.0.0.1:4001 or :4001",
		}
	}

	if c.Root == "" {
		return &ncerr.ConfigError{Field: "root", Message: "directory is required"}
	}
	if fi, err := os.Stat(c.Root); err != nil || !fi.IsDir() {
		return &ncerr.ConfigError{
			Field:   "root",
			Value:   c.Root,
			Message: "directory does not exist",
			Hint:    "point --root at the directory holding the program",
		}
	}

	if !strings.HasPrefix(c.Ext, ".") || len(c.Ext) < 2 {
		return &ncerr.ConfigError{
			Field:   "ext",
			Value:   c.Ext,
			Message: "extension must start with a dot",
			Hint:    "e.g. --ext " + DefaultExt,
		}
	}

	if c.ChunkSize < 1 {
		return &ncerr.ConfigError{Field: "chunk-size", Value: c.ChunkSize, Message: "must be positive"}
	}
	for _, d := range []struct {
		field string
		v     time.Duration
	}{
		{"kill-grace", c.KillGrace},
		{"drain-timeout", c.DrainTimeout},
		{"grace-period", c.GracePeriod},
	} {
		if d.v < 0 {
			return &ncerr.ConfigError{Field: d.field, Value: d.v, Message: "must not be negative"}
		}
	}
	if c.MaxSessions < 0 {
		return &ncerr.ConfigError{
			Field:   "max-sessions",
			Value:   c.MaxSessions,
			Message: "must not be negative",
			Hint:    "0 means unlimited",
		}
	}

	switch c.Mode {
	case ModeAuto, ModeForeground, ModeService:
	default:
		return &ncerr.ConfigError{
			Field:   "mode",
			Value:   c.Mode,
			Message: "unknown run mode",
			Hint:    fmt.Sprintf("one of %s, %s, %s", ModeAuto, ModeForeground, ModeService),
		}
	}
	if c.Mode == ModeService && c.ServiceName == "" {
		return &ncerr.ConfigError{Field: "service-name", Message: "service mode needs a service name"}
	}

	return nil
}
