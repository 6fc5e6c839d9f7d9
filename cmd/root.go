// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"tlsnc/config"
	"tlsnc/internal/core"
	"tlsnc/internal/metrics"
	"tlsnc/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X tlsnc/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate tlsnc mode.
//
// Settings are layered: defaults, then the --config file, then TLSNC_*
// environment variables, then flags.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Defaults()
	if path := configPath(args); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("tlsnc", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Listen mode (TLS server)")
	fs.IntVarP(&cfg.LocalPort, "port", "p", cfg.LocalPort, "Local port number")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")
	fs.BoolVarP(&cfg.KeepOpen, "keep-open", "k", cfg.KeepOpen, "Accept multiple connections (with -l)")
	fs.BoolVarP(&cfg.ZeroIO, "zero-io", "z", cfg.ZeroIO, "Handshake only, then close")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Extra dial attempts on refused/reset connections")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Bound on sending close_notify at exit")

	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Connect/handshake timeout in seconds")

	// ── TLS ──────────────────────────────────────────────────────
	fs.StringVar(&cfg.CAFile, "ca-file", cfg.CAFile, "PEM roots to trust (client) or to verify clients with (server)")
	fs.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "PEM certificate to present")
	fs.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "PEM private key for --cert")
	fs.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "Override SNI and verification name")
	fs.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "Skip peer certificate verification")
	fs.StringSliceVar(&cfg.ALPN, "alpn", cfg.ALPN, "ALPN protocols to offer (comma-separated)")
	fs.StringVar(&cfg.MinTLS, "tls-min", cfg.MinTLS, "Minimum TLS version (1.0-1.3)")

	// ── execution ────────────────────────────────────────────────
	fs.StringVarP(&cfg.Execute, "exec", "e", cfg.Execute, "Execute program after connect")
	fs.StringVarP(&cfg.Command, "command", "c", cfg.Command, "Execute shell command after connect")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the target via SSH jump host [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "Print connection metrics as JSON on exit")

	var showVersion, showHelp, dryRun bool
	var cfgFile string
	fs.StringVar(&cfgFile, "config", "", "TOML config file")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("tlsnc %s\n", version)
		return nil
	}

	cfg.Timeout = time.Duration(timeoutSec) * time.Second

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		printSummary(os.Stderr, cfg)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	var stats *metrics.Collector
	if cfg.Stats {
		stats = metrics.New()
		defer func() { fmt.Fprintln(os.Stderr, stats.JSON()) }()
	}

	mode, err := core.Build(cfg, logger, stats)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config before the full flag set exists, since the
// file supplies that flag set's defaults.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		switch len(remaining) {
		case 0: // tlsnc -l -p PORT
		case 1:
			cfg.Host = remaining[0]
		case 2:
			cfg.Host = remaining[0]
			port, err := config.ParsePort(remaining[1])
			if err != nil {
				return fmt.Errorf("port: %w", err)
			}
			cfg.LocalPort = port
		default:
			return fmt.Errorf("too many arguments for listen mode")
		}
		return nil
	}

	// Connect mode: host port
	switch len(remaining) {
	case 0:
		return fmt.Errorf("hostname required (use --help for usage)")
	case 1:
		return fmt.Errorf("port required")
	case 2:
	default:
		return fmt.Errorf("too many arguments: expected <host> <port>")
	}
	cfg.Host = remaining[0]
	port, err := config.ParsePort(remaining[1])
	if err != nil {
		return fmt.Errorf("port: %w", err)
	}
	cfg.Port = port
	return nil
}

// printSummary describes what a run would do.
func printSummary(w io.Writer, cfg *config.Config) {
	if cfg.Listen {
		fmt.Fprintf(w, "listen %s (tls, cert %s)\n", util.FormatAddr(cfg.Host, cfg.LocalPort), cfg.CertFile)
	} else {
		fmt.Fprintf(w, "connect %s (tls >= %s)\n", util.FormatAddr(cfg.Host, cfg.Port), cfg.MinTLS)
	}
	if cfg.TunnelEnabled {
		fmt.Fprintf(w, "via ssh %s@%s:%d\n", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tlsnc – TLS Network Connectivity Tool v%s

A netcat for TLS, with SSH jump-host support.

Usage:
  tlsnc [options] <host> <port>                     Connect
  tlsnc -l -p <port> --cert <f> --key <f>           Listen
  tlsnc -z [options] <host> <port>                  Handshake check
  tlsnc -T user@gateway <host> <port>               Via jump host

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  tlsnc example.com 443                             TLS connect
  printf 'GET / HTTP/1.0\r\n\r\n' | tlsnc example.com 443
  tlsnc -vz --alpn h2 example.com 443               Show negotiated params
  tlsnc --ca-file ca.pem --cert me.pem --key me.key api.internal 8443
  tlsnc -l -p 8443 --cert srv.pem --key srv.key     TLS listener
  tlsnc -T admin@bastion db-internal 5432           Through a bastion
  tlsnc -l -p 8443 -T admin@bastion --cert srv.pem --key srv.key
                                                    Listen on the bastion
`)
}
