package capability

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"tlsnc/internal/session"
)

// Probe sends nothing and reports the negotiated TLS parameters.  It
// backs zero-I/O mode, where only the handshake matters.
type Probe struct{}

type connectionStater interface {
	ConnectionState() tls.ConnectionState
}

// Handle logs a one-line summary of the handshake.
func (p *Probe) Handle(_ context.Context, sess *session.Session) error {
	cs, ok := sess.TLS.(connectionStater)
	if !ok {
		sess.Logger.Info("handshake ok")
		return nil
	}
	sess.Logger.Info("handshake ok: %s", Describe(cs.ConnectionState()))
	return nil
}

// Describe formats the interesting parts of a connection state.
func Describe(cs tls.ConnectionState) string {
	parts := []string{
		tls.VersionName(cs.Version),
		tls.CipherSuiteName(cs.CipherSuite),
	}
	if cs.NegotiatedProtocol != "" {
		parts = append(parts, "alpn="+cs.NegotiatedProtocol)
	}
	if len(cs.PeerCertificates) > 0 {
		leaf := cs.PeerCertificates[0]
		parts = append(parts, fmt.Sprintf("subject=%q", leaf.Subject.CommonName))
		parts = append(parts, fmt.Sprintf("expires=%s (%s)",
			leaf.NotAfter.UTC().Format("2006-01-02"), humanize.Time(leaf.NotAfter)))
	}
	return strings.Join(parts, " ")
}
