// Package security builds the *tls.Config values tlsnc hands to
// tlsstream contexts.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"tlsnc/util"
)

var (
	ErrCertFileRequired = errors.New("security: tls cert file required")
	ErrKeyFileRequired  = errors.New("security: tls key file required")
	ErrNoCertificates   = errors.New("security: no certificates in ca file")
	ErrUnknownVersion   = errors.New("security: unknown tls version")
)

// Options is the TLS material for one side of a connection.
type Options struct {
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
	Insecure   bool
	ALPN       []string
	MinVersion uint16
}

// ValidateClient reports the first inconsistency in a client profile.
func (o Options) ValidateClient() error {
	certSet := strings.TrimSpace(o.CertFile) != ""
	keySet := strings.TrimSpace(o.KeyFile) != ""
	if certSet && !keySet {
		return ErrKeyFileRequired
	}
	if keySet && !certSet {
		return ErrCertFileRequired
	}
	return nil
}

// ValidateServer reports the first inconsistency in a server profile.
// A server always needs a key pair.
func (o Options) ValidateServer() error {
	if strings.TrimSpace(o.CertFile) == "" {
		return ErrCertFileRequired
	}
	if strings.TrimSpace(o.KeyFile) == "" {
		return ErrKeyFileRequired
	}
	return nil
}

// ClientConfig builds a client configuration.  A CA file replaces the
// system roots; a key pair enables client authentication.
func ClientConfig(o Options, logger *util.Logger) (*tls.Config, error) {
	if err := o.ValidateClient(); err != nil {
		return nil, err
	}

	conf := &tls.Config{
		ServerName:         o.ServerName,
		NextProtos:         o.ALPN,
		MinVersion:         minVersion(o.MinVersion),
		InsecureSkipVerify: o.Insecure, //nolint:gosec // explicit --insecure
	}

	if o.CAFile != "" {
		pool, err := loadPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		conf.RootCAs = pool
		logger.Verbose("TLS: trusting roots from %s", o.CAFile)
	}

	if o.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("security: load key pair: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
		logger.Verbose("TLS: presenting client certificate %s", o.CertFile)
	}

	if o.Insecure {
		logger.Warn("TLS: peer certificate verification disabled")
	}
	return conf, nil
}

// ServerConfig builds a server configuration.  A CA file turns on
// mandatory client certificate verification.
func ServerConfig(o Options, logger *util.Logger) (*tls.Config, error) {
	if err := o.ValidateServer(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("security: load key pair: %w", err)
	}

	conf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   o.ALPN,
		MinVersion:   minVersion(o.MinVersion),
	}

	if o.CAFile != "" {
		pool, err := loadPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		conf.ClientCAs = pool
		conf.ClientAuth = tls.RequireAndVerifyClientCert
		logger.Verbose("TLS: requiring client certificates signed by %s", o.CAFile)
	}
	return conf, nil
}

// ParseVersion maps "1.0" through "1.3" to the crypto/tls constant.
// The empty string yields zero, meaning the package default.
func ParseVersion(s string) (uint16, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tls") {
	case "":
		return 0, nil
	case "1.0", "10":
		return tls.VersionTLS10, nil
	case "1.1", "11":
		return tls.VersionTLS11, nil
	case "1.2", "12":
		return tls.VersionTLS12, nil
	case "1.3", "13":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, s)
}

func minVersion(v uint16) uint16 {
	if v == 0 {
		return tls.VersionTLS12
	}
	return v
}

func loadPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("security: read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificates, path)
	}
	return pool, nil
}
