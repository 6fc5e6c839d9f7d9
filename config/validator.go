package config

import (
	ncerr "tlsnc/internal/errors"
	"tlsnc/internal/security"
)

// Validate checks that the configuration is internally consistent.
// Every failure is a *errors.ConfigError naming the offending flag.
func (c *Config) Validate() error {
	if c.Listen {
		if c.LocalPort == 0 {
			return &ncerr.ConfigError{
				Field:   "port",
				Message: "listen mode requires a port",
				Hint:    "use -l -p <port>",
			}
		}
		if c.CertFile == "" {
			return &ncerr.ConfigError{
				Field:   "cert",
				Message: "listen mode requires a server certificate",
				Hint:    "use --cert <file> --key <file>",
			}
		}
		if c.ZeroIO {
			return &ncerr.ConfigError{Field: "zero-io", Message: "listen mode and zero-I/O mode are mutually exclusive"}
		}
	} else {
		if c.Host == "" {
			return &ncerr.ConfigError{Field: "host", Message: "hostname is required", Hint: "use --help for usage"}
		}
		if c.Port == 0 {
			return &ncerr.ConfigError{Field: "port", Message: "destination port is required"}
		}
	}

	if c.CertFile != "" && c.KeyFile == "" {
		return &ncerr.ConfigError{Field: "key", Message: "required with --cert"}
	}
	if c.KeyFile != "" && c.CertFile == "" {
		return &ncerr.ConfigError{Field: "cert", Message: "required with --key"}
	}

	if _, err := security.ParseVersion(c.MinTLS); err != nil {
		return &ncerr.ConfigError{
			Field:   "tls-min",
			Value:   c.MinTLS,
			Message: "unknown TLS version",
			Hint:    "use one of 1.0, 1.1, 1.2, 1.3",
		}
	}

	if c.Retries < 0 {
		return &ncerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}

	if c.Execute != "" && c.Command != "" {
		return &ncerr.ConfigError{Field: "exec", Message: "-e and -c are mutually exclusive"}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}

	if c.Insecure && c.CAFile != "" {
		return &ncerr.ConfigError{
			Field:   "insecure",
			Message: "--insecure and --ca-file are mutually exclusive",
			Hint:    "drop --insecure to verify against the CA file",
		}
	}

	return nil
}
