package tunnel

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "tlsnc/internal/errors"
	"tlsnc/util"
)

// startGateway runs an in-process SSH server that accepts clientKey,
// serves direct-tcpip channels and honours tcpip-forward requests on
// loopback.  It returns the host and port.
func startGateway(t *testing.T, clientKey ssh.PublicKey) (string, int) {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientKey.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveGateway(nc, cfg)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func serveGateway(nc net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}
	defer sconn.Close()
	go serveForwards(sconn, reqs)

	for nch := range chans {
		if nch.ChannelType() != "direct-tcpip" {
			nch.Reject(ssh.UnknownChannelType, "unsupported") //nolint:errcheck
			continue
		}
		var req struct {
			Host     string
			Port     uint32
			OrigHost string
			OrigPort uint32
		}
		if err := ssh.Unmarshal(nch.ExtraData(), &req); err != nil {
			nch.Reject(ssh.ConnectionFailed, "bad payload") //nolint:errcheck
			continue
		}
		target, err := net.Dial("tcp", net.JoinHostPort(req.Host, strconv.Itoa(int(req.Port))))
		if err != nil {
			nch.Reject(ssh.ConnectionFailed, err.Error()) //nolint:errcheck
			continue
		}
		ch, creqs, err := nch.Accept()
		if err != nil {
			target.Close()
			continue
		}
		go ssh.DiscardRequests(creqs)
		go func() {
			io.Copy(ch, target) //nolint:errcheck
			ch.Close()
		}()
		go func() {
			io.Copy(target, ch) //nolint:errcheck
			target.Close()
		}()
	}
}

// serveForwards handles the gateway side of remote listening.
func serveForwards(sconn *ssh.ServerConn, reqs <-chan *ssh.Request) {
	var mu sync.Mutex
	listeners := map[uint32]net.Listener{}
	defer func() {
		mu.Lock()
		for _, ln := range listeners {
			ln.Close()
		}
		mu.Unlock()
	}()

	for req := range reqs {
		switch req.Type {
		case "tcpip-forward":
			var fr forwardRequest
			if err := ssh.Unmarshal(req.Payload, &fr); err != nil {
				req.Reply(false, nil) //nolint:errcheck
				continue
			}
			ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(fr.Port))))
			if err != nil {
				req.Reply(false, nil) //nolint:errcheck
				continue
			}
			port := uint32(ln.Addr().(*net.TCPAddr).Port)
			mu.Lock()
			listeners[port] = ln
			mu.Unlock()
			req.Reply(true, ssh.Marshal(&forwardReply{Port: port})) //nolint:errcheck
			go acceptForwards(sconn, ln, fr.Addr, port)
		case "cancel-tcpip-forward":
			var fr forwardRequest
			ssh.Unmarshal(req.Payload, &fr) //nolint:errcheck
			mu.Lock()
			if ln, ok := listeners[fr.Port]; ok {
				ln.Close()
				delete(listeners, fr.Port)
			}
			mu.Unlock()
			req.Reply(true, nil) //nolint:errcheck
		default:
			if req.WantReply {
				req.Reply(false, nil) //nolint:errcheck
			}
		}
	}
}

func acceptForwards(sconn *ssh.ServerConn, ln net.Listener, bindAddr string, port uint32) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		origin := conn.RemoteAddr().(*net.TCPAddr)
		payload := forwardedPayload{
			Addr:       bindAddr,
			Port:       port,
			OriginAddr: origin.IP.String(),
			OriginPort: uint32(origin.Port),
		}
		ch, creqs, err := sconn.OpenChannel("forwarded-tcpip", ssh.Marshal(&payload))
		if err != nil {
			conn.Close()
			continue
		}
		go ssh.DiscardRequests(creqs)
		go func() {
			io.Copy(ch, conn) //nolint:errcheck
			ch.Close()
		}()
		go func() {
			io.Copy(conn, ch) //nolint:errcheck
			conn.Close()
		}()
	}
}

func echoTarget(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn) //nolint:errcheck
			}()
		}
	}()
	return ln.Addr().String()
}

func TestSSHTunnel_ForwardsConnection(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	pub := writeTestKey(t, keyPath, nil)
	host, port := startGateway(t, pub)
	target := echoTarget(t)

	tun := NewSSHTunnel(&SSHConfig{
		User:        "tester",
		Host:        host,
		Port:        port,
		KeyPath:     keyPath,
		ConnTimeout: 2 * time.Second,
	}, util.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Close()

	if !tun.IsAlive() {
		t.Fatal("tunnel should be alive after Connect")
	}

	conn, err := tun.Dial(ctx, "tcp", target)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("echo = %q, want %q", buf, "ping")
	}

	if err := tun.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if tun.IsAlive() {
		t.Error("tunnel should be down after Close")
	}
}

func TestSSHTunnel_RejectedKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath, nil)
	other := writeTestKey(t, filepath.Join(t.TempDir(), "id_other"), nil)
	host, port := startGateway(t, other)

	tun := NewSSHTunnel(&SSHConfig{
		User:    "tester",
		Host:    host,
		Port:    port,
		KeyPath: keyPath,
	}, util.Discard())

	err := tun.Connect(context.Background())
	var sshErr *ncerr.SSHError
	if !errors.As(err, &sshErr) || sshErr.Op != "handshake" {
		t.Fatalf("err = %v, want ssh handshake error", err)
	}
}

func TestSSHTunnel_DialBeforeConnect(t *testing.T) {
	tun := NewSSHTunnel(&SSHConfig{Host: "bastion.invalid"}, util.Discard())
	_, err := tun.Dial(context.Background(), "tcp", "example.com:443")
	if !errors.Is(err, ncerr.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestSSHTunnel_RemoteListen(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	pub := writeTestKey(t, keyPath, nil)
	host, port := startGateway(t, pub)

	tun := NewSSHTunnel(&SSHConfig{
		User:        "tester",
		Host:        host,
		Port:        port,
		KeyPath:     keyPath,
		ConnTimeout: 2 * time.Second,
	}, util.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Close()

	ln, err := tun.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	bound := ln.Addr().(*net.TCPAddr).Port
	if bound == 0 {
		t.Fatal("gateway-assigned port not reported")
	}

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(c, c) //nolint:errcheck
	}()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(bound)))
	if err != nil {
		t.Fatalf("dial gateway port: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("pong")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "pong" {
		t.Errorf("echo = %q, want %q", buf, "pong")
	}

	if _, err := tun.Listen("127.0.0.1:0"); err == nil {
		t.Error("second Listen on one tunnel should fail")
	}
}

func TestSSHTunnel_ListenClosedUnblocksAccept(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	pub := writeTestKey(t, keyPath, nil)
	host, port := startGateway(t, pub)

	tun := NewSSHTunnel(&SSHConfig{User: "tester", Host: host, Port: port, KeyPath: keyPath}, util.Discard())
	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Close()

	ln, err := tun.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		done <- err
	}()
	ln.Close()

	select {
	case err := <-done:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("Accept err = %v, want net.ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return after Close")
	}
}

func TestSSHTunnel_ListenBeforeConnect(t *testing.T) {
	tun := NewSSHTunnel(&SSHConfig{Host: "bastion.invalid"}, util.Discard())
	if _, err := tun.Listen("127.0.0.1:0"); !errors.Is(err, ncerr.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestSSHTunnel_KeepAliveKeepsTunnelUp(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	pub := writeTestKey(t, keyPath, nil)
	host, port := startGateway(t, pub)
	target := echoTarget(t)

	tun := NewSSHTunnel(&SSHConfig{
		User:      "tester",
		Host:      host,
		Port:      port,
		KeyPath:   keyPath,
		KeepAlive: 10 * time.Millisecond,
	}, util.Discard())
	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Several probes go out; the gateway answers them with a failure
	// reply, which still proves it is alive.
	time.Sleep(80 * time.Millisecond)
	if !tun.IsAlive() {
		t.Fatal("keepalive replies should keep the tunnel up")
	}

	conn, err := tun.Dial(context.Background(), "tcp", target)
	if err != nil {
		t.Fatalf("Dial after keepalives: %v", err)
	}
	conn.Close()

	if err := tun.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := tun.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSSHConfig_Address(t *testing.T) {
	cfg := &SSHConfig{Host: "::1", Port: 2222}
	if got := cfg.Address(); got != "[::1]:2222" {
		t.Errorf("Address() = %q", got)
	}
}
