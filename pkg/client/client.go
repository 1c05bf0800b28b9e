// Package client implements the Casino Blackjack Protocol client side: LAN
// discovery, the TLS connection with its version handshake, and the response
// pump that tracks the conversation state.
package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/stephen-hansen/cbp/pkg/protocol"
)

// ErrVersionRejected is returned by the handshake when the server refuses the
// client's protocol version.
var ErrVersionRejected = errors.New("client: server rejected protocol version")

// ProtocolVersion is the protocol version this client speaks.
const ProtocolVersion uint32 = 1

const (
	defaultDiscoveryPort = 21211
	discoveryProbe       = "CBP\x00"
)

// Discover broadcasts a discovery probe on the LAN and returns the service
// address (host:port) of the first server that answers. The loopback
// interface is probed too, so a server on the same machine is found even when
// broadcast traffic is filtered.
func Discover(timeout time.Duration, log slog.Logger) (string, error) {
	return DiscoverPort(defaultDiscoveryPort, timeout, log)
}

// DiscoverPort is Discover against a non-standard discovery port.
func DiscoverPort(port uint16, timeout time.Duration, log slog.Logger) (string, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return "", fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer conn.Close()

	for _, host := range []string{"255.255.255.255", "127.0.0.1"} {
		dst := &net.UDPAddr{IP: net.ParseIP(host), Port: int(port)}
		if _, err := conn.WriteTo([]byte(discoveryProbe), dst); err != nil {
			log.Debugf("discovery probe to %s failed: %v", dst, err)
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	buf := make([]byte, 64)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return "", fmt.Errorf("no server discovered: %w", err)
		}
		reply, _, ok := bytes.Cut(buf[:n], []byte{0})
		if !ok {
			log.Tracef("malformed discovery reply from %s", addr)
			continue
		}
		port, err := strconv.Atoi(string(reply))
		if err != nil || port < 1 || port > 65535 {
			log.Tracef("bad port in discovery reply from %s", addr)
			continue
		}
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			continue
		}
		log.Debugf("discovered server %s:%d", host, port)
		return net.JoinHostPort(host, strconv.Itoa(port)), nil
	}
}

// Config configures a client connection.
type Config struct {
	// ServerAddr is the host:port of the service port.
	ServerAddr string

	// TLSConfig is used for the connection. Nil verifies against the
	// system roots; self-hosted servers usually need InsecureSkipVerify
	// or a pinned certificate.
	TLSConfig *tls.Config

	// Version is the protocol version to announce. 0 means
	// ProtocolVersion.
	Version uint32

	Log slog.Logger
}

// Client is one connection to a server. Responses stream out of the Responses
// channel in wire order; the client advances its conversation state from the
// reply codes as they pass through.
type Client struct {
	conn net.Conn
	br   *bufio.Reader
	log  slog.Logger

	mu     sync.Mutex
	state  protocol.State
	closed bool

	// Responses carries every response after the version handshake. It is
	// closed when the connection drops.
	Responses chan protocol.Response
}

// Dial connects over TLS, runs the version handshake, and starts the response
// pump.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Version == 0 {
		cfg.Version = ProtocolVersion
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	dialer := &tls.Dialer{Config: cfg.TLSConfig}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.ServerAddr, err)
	}
	c := New(conn, cfg.Log)
	if err := c.handshake(cfg.Version); err != nil {
		conn.Close()
		return nil, err
	}
	go c.run()
	return c, nil
}

// New wraps an established connection without handshaking or starting the
// pump. Dial is the normal entry point; New exists for tests and custom
// transports, which call Handshake and Run themselves.
func New(conn net.Conn, log slog.Logger) *Client {
	return &Client{
		conn:      conn,
		br:        bufio.NewReader(conn),
		log:       log,
		state:     protocol.StateVersion,
		Responses: make(chan protocol.Response, 16),
	}
}

// Handshake announces version and consumes the server's verdict.
func (c *Client) Handshake(version uint32) error {
	return c.handshake(version)
}

func (c *Client) handshake(version uint32) error {
	if err := c.Send(protocol.Version{Version: version}); err != nil {
		return err
	}
	resp, err := protocol.ReadResponse(c.br)
	if err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	vr, ok := resp.(protocol.VersionResponse)
	if !ok {
		return fmt.Errorf("handshake failed: unexpected reply %s", resp.Code())
	}
	c.advance(vr.RC)
	if vr.RC != protocol.RCVersionOK {
		return fmt.Errorf("%w: server speaks version %d", ErrVersionRejected, vr.Version)
	}
	c.log.Debugf("handshake complete, server version %d", vr.Version)
	return nil
}

// Run pumps responses until the connection drops. Dial starts this
// automatically.
func (c *Client) Run() {
	c.run()
}

func (c *Client) run() {
	defer close(c.Responses)
	for {
		resp, err := protocol.ReadResponse(c.br)
		if err != nil {
			if !c.isClosed() {
				c.log.Debugf("connection lost: %v", err)
			}
			return
		}
		st := c.advance(resp.Code())
		c.Responses <- resp
		if st == protocol.StateClosed {
			c.Close()
			return
		}
	}
}

// advance applies the reply code to the conversation state.
func (c *Client) advance(rc protocol.ReplyCode) protocol.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = protocol.ClientNext(c.state, rc)
	if c.state != prev {
		c.log.Tracef("state %s -> %s on %s", prev, c.state, rc)
	}
	return c.state
}

// State returns the current conversation state.
func (c *Client) State() protocol.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send writes one command PDU. Sends are serialized; the caller is trusted to
// send commands legal in the current state, since the server rejects the rest
// without breaking the connection.
func (c *Client) Send(cmd protocol.Command) error {
	buf := protocol.EncodeCommand(cmd)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	_, err := c.conn.Write(buf)
	return err
}

// Close tears the connection down. The Responses channel closes once the pump
// notices.
func (c *Client) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.state = protocol.StateClosed
	c.mu.Unlock()
	if already {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
