package config

import (
	"runtime"
	"time"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultListenAddr is where the gateway accepts connections.
	DefaultListenAddr = "0.0.0.0:4001"

	// DefaultExt is the extension of the program to launch.
	DefaultExt = ".exe"

	// DefaultChunkSize is the read size for every stream.
	DefaultChunkSize = 4096

	// DefaultKillGrace is how long a child gets after stdin closes
	// before it is killed.
	DefaultKillGrace = 250 * time.Millisecond

	// DefaultDrainTimeout bounds how long output is flushed to the
	// client after the child ends.
	DefaultDrainTimeout = 250 * time.Millisecond

	// DefaultGracePeriod is how long shutdown waits for in-flight
	// sessions before terminating them.
	DefaultGracePeriod = 5 * time.Second

	// DefaultServiceName is the Windows service name.
	DefaultServiceName = "ChallengeProxy"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the SSH gateway connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultKeepAlive is the SSH keepalive interval.
	DefaultKeepAlive = 30 * time.Second
)

// DefaultRoot returns the directory scanned for the program: the
// challenge drive on Windows, the working directory elsewhere.
func DefaultRoot() string {
	if runtime.GOOS == "windows" {
		return `Y:\`
	}
	return "."
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		ListenAddr:   DefaultListenAddr,
		Root:         DefaultRoot(),
		Ext:          DefaultExt,
		ChunkSize:    DefaultChunkSize,
		KillGrace:    DefaultKillGrace,
		DrainTimeout: DefaultDrainTimeout,
		GracePeriod:  DefaultGracePeriod,
		Mode:         ModeAuto,
		ServiceName:  DefaultServiceName,
		Verbose:      1,
		Tunnel: TunnelConfig{
			ConnTimeout: DefaultConnTimeout,
			KeepAlive:   DefaultKeepAlive,
		},
	}
}
