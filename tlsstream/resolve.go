package tlsstream

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	ncerr "tlsnc/internal/errors"
)

// Addr is a resolved, directly dialable address.
type Addr struct {
	Network string // "tcp4", "tcp6", or "tcp" when left to the dialer
	Address string // host:port
}

func (a Addr) String() string { return a.Network + "/" + a.Address }

// Resolver turns a host and numeric port into candidate addresses.
// Connectors only ever dial the first candidate.
type Resolver interface {
	Resolve(ctx context.Context, host string, port uint16) ([]Addr, error)
}

// SystemResolver resolves names with the host resolver.  IP literals
// are returned as-is without a lookup.
type SystemResolver struct {
	// Resolver defaults to net.DefaultResolver.
	Resolver *net.Resolver
	// NoDNS rejects anything that is not an IP literal.
	NoDNS bool
}

// Resolve implements Resolver.
func (r SystemResolver) Resolve(ctx context.Context, host string, port uint16) ([]Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []Addr{addrFor(ip, port)}, nil
	}
	if r.NoDNS {
		return nil, fmt.Errorf("cannot parse %q as an IP address (DNS disabled)", host)
	}

	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	ips, err := res.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, ncerr.ErrNoAddress
	}

	out := make([]Addr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, addrFor(ip, port))
	}
	return out, nil
}

func addrFor(ip netip.Addr, port uint16) Addr {
	ip = ip.Unmap()
	network := "tcp6"
	if ip.Is4() {
		network = "tcp4"
	}
	return Addr{Network: network, Address: netip.AddrPortFrom(ip, port).String()}
}

// PassthroughResolver performs no lookup and leaves the name to the
// dialer.  Use it when the dialer resolves on the far side, as an SSH
// jump host does.
type PassthroughResolver struct{}

// Resolve implements Resolver.
func (PassthroughResolver) Resolve(_ context.Context, host string, port uint16) ([]Addr, error) {
	return []Addr{{
		Network: "tcp",
		Address: net.JoinHostPort(host, strconv.Itoa(int(port))),
	}}, nil
}
