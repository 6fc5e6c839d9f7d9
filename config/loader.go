package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TLSNC_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := envInt("TLSNC_PORT"); v > 0 {
		cfg.LocalPort = v
	}
	if envBool("TLSNC_LISTEN") {
		cfg.Listen = true
	}
	if envBool("TLSNC_NO_DNS") {
		cfg.NoDNS = true
	}
	if envBool("TLSNC_KEEP_OPEN") {
		cfg.KeepOpen = true
	}
	if v := envInt("TLSNC_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}
	if v := envInt("TLSNC_RETRIES"); v > 0 {
		cfg.Retries = v
	}

	// TLS
	if v := os.Getenv("TLSNC_CA_FILE"); v != "" {
		cfg.CAFile = v
	}
	if v := os.Getenv("TLSNC_CERT"); v != "" {
		cfg.CertFile = v
	}
	if v := os.Getenv("TLSNC_KEY"); v != "" {
		cfg.KeyFile = v
	}
	if v := os.Getenv("TLSNC_SERVER_NAME"); v != "" {
		cfg.ServerName = v
	}
	if envBool("TLSNC_INSECURE") {
		cfg.Insecure = true
	}
	if v := os.Getenv("TLSNC_ALPN"); v != "" {
		cfg.ALPN = splitList(v)
	}
	if v := os.Getenv("TLSNC_TLS_MIN"); v != "" {
		cfg.MinTLS = v
	}

	// SSH tunnel
	if v := os.Getenv("TLSNC_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("TLSNC_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("TLSNC_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("TLSNC_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("TLSNC_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("TLSNC_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("TLSNC_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
