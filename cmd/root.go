// Package cmd wires up the CLI flags and dispatches to the gateway core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"execgate/config"
	"execgate/internal/core"
	"execgate/internal/lifecycle"
	"execgate/internal/locator"
	"execgate/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X execgate/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Output streams; tests redirect them.
var (
	stdout io.Writer = os.Stdout //nolint:gochecknoglobals
	stderr io.Writer = os.Stderr //nolint:gochecknoglobals
)

// cliOptions are flags that steer the CLI itself rather than the run.
type cliOptions struct {
	showVersion bool
	showHelp    bool
}

// Execute parses args, assembles the configuration, and runs the
// gateway until it is stopped.
func Execute(ctx context.Context, args []string) error {
	cfg, opts, fs, err := loadConfig(args)
	if err != nil {
		return err
	}
	if opts.showHelp {
		printUsage(fs)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "execgate %s\n", version)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(stderr)
	if f, ok := stderr.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		logger.SetTimestamps(true)
	}

	if cfg.DryRun {
		return dryRun(cfg)
	}

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if mode.Name() == config.ModeService {
		sink, err := lifecycle.OpenEventLog(cfg.ServiceName)
		if err != nil {
			logger.Warn("event log unavailable: %v", err)
		} else {
			logger.AddSink(sink)
		}
	}
	defer logger.Sync() //nolint:errcheck

	logger.Verbose("execgate %s starting in %s mode", version, mode.Name())
	return mode.Run(ctx)
}

// loadConfig layers defaults, the config file, the environment, and
// finally any flags given on the command line.
//
// Flags are parsed twice: once to find --config and the CLI-only
// options, then again over the fully layered Config so that only the
// flags actually given override it.
func loadConfig(args []string) (*config.Config, *cliOptions, *flag.FlagSet, error) {
	probe := config.Default()
	opts := &cliOptions{}
	fs := newFlagSet(probe, opts)
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, nil, fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}
	if opts.showHelp || opts.showVersion {
		return probe, opts, fs, nil
	}

	cfg := config.Default()
	path := probe.ConfigFile
	if path == "" {
		path = os.Getenv(config.EnvConfigFile)
	}
	if path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			return nil, nil, nil, err
		}
		cfg.ConfigFile = path
	}
	config.LoadFromEnv(cfg)

	if err := newFlagSet(cfg, &cliOptions{}).Parse(args); err != nil {
		return nil, nil, nil, err
	}
	return cfg, opts, fs, nil
}

func newFlagSet(cfg *config.Config, opts *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("execgate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML configuration file (or $"+config.EnvConfigFile+")")

	// ── listener ─────────────────────────────────────────────────
	fs.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "Address to accept connections on")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Concurrent session limit (0 = unlimited)")

	// ── program ──────────────────────────────────────────────────
	fs.StringVar(&cfg.Root, "root", cfg.Root, "Directory holding the program to launch")
	fs.StringVar(&cfg.Ext, "ext", cfg.Ext, "Extension of the program to launch")

	// ── sessions ─────────────────────────────────────────────────
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Bytes per read on every stream")
	fs.DurationVar(&cfg.KillGrace, "kill-grace", cfg.KillGrace, "Wait after closing stdin before killing the child")
	fs.DurationVar(&cfg.DrainTimeout, "drain-timeout", cfg.DrainTimeout, "Time to flush output after the child ends")
	fs.DurationVar(&cfg.GracePeriod, "grace-period", cfg.GracePeriod, "Time in-flight sessions get on shutdown")

	// ── run mode ─────────────────────────────────────────────────
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Run mode: auto, foreground or service")
	fs.StringVar(&cfg.ServiceName, "service-name", cfg.ServiceName, "Windows service name")
	fs.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "Serve /healthz and /metrics on this address")

	// ── SSH gateway ──────────────────────────────────────────────
	tc := &cfg.Tunnel
	fs.StringVarP(&tc.Target, "tunnel", "T", tc.Target, "Publish on an SSH gateway: user@host[:port]")
	fs.IntVar(&tc.RemotePort, "remote-port", tc.RemotePort, "Port to bind on the gateway (0 = gateway picks)")
	fs.StringVar(&tc.BindAddr, "remote-bind-address", tc.BindAddr, "Address to bind on the gateway")
	fs.StringVar(&tc.KeyPath, "ssh-key", tc.KeyPath, "SSH private key file")
	fs.BoolVar(&tc.Password, "ssh-password", tc.Password, "Prompt for SSH password")
	fs.BoolVar(&tc.UseAgent, "ssh-agent", tc.UseAgent, "Use SSH agent")
	fs.BoolVar(&tc.StrictHostKey, "strict-hostkey", tc.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&tc.KnownHosts, "known-hosts", tc.KnownHosts, "Custom known_hosts path")
	fs.DurationVar(&tc.ConnTimeout, "conn-timeout", tc.ConnTimeout, "SSH connection timeout")
	fs.DurationVar(&tc.KeepAlive, "keepalive", tc.KeepAlive, "SSH keepalive interval (0 disables)")

	// ── output ───────────────────────────────────────────────────
	verbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	cfg.Verbose = verbose // CountVarP resets its target
	fs.BoolVarP(&cfg.DryRun, "dry-run", "n", cfg.DryRun, "Validate the configuration and locate the program, then exit")

	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }
	return fs
}

// dryRun reports what a run would use without binding anything.
func dryRun(cfg *config.Config) error {
	loc := &locator.DirLocator{Root: cfg.Root, Ext: cfg.Ext}
	path, err := loc.Locate()
	if err != nil {
		return fmt.Errorf("dry run: %w", err)
	}

	listen := cfg.ListenAddr
	if cfg.Tunnel.Enabled() {
		listen = fmt.Sprintf("%s via %s", util.FormatAddr(cfg.Tunnel.BindAddr, cfg.Tunnel.RemotePort), cfg.Tunnel.Target)
	}
	fmt.Fprintf(stdout, "listen:  %s\n", listen)
	fmt.Fprintf(stdout, "program: %s\n", path)
	fmt.Fprintf(stdout, "mode:    %s\n", cfg.Mode)
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `execgate – TCP gateway to a console program v%s

Every accepted connection launches a fresh copy of the single program
found in --root and bridges the socket to its stdin, stdout and stderr.

Usage:
  execgate [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  execgate --root ./challenge                  Serve on 0.0.0.0:4001
  execgate -l 127.0.0.1:9000 --ext .bin        Custom address and extension
  execgate -T ops@bastion --remote-port 4001   Publish on an SSH gateway
  execgate --config /etc/execgate.yaml -v      Settings from a file
`)
}
