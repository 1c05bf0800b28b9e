package server

import (
	"bytes"
	"fmt"
	"net"

	"github.com/decred/slog"
)

// discoveryProbe is the datagram clients broadcast to find a server.
var discoveryProbe = []byte("CBP\x00")

// DiscoveryResponder answers LAN discovery probes on a UDP port. A probe
// carrying exactly "CBP\0" is answered with the service port as a
// NUL-terminated ASCII decimal; everything else is ignored.
type DiscoveryResponder struct {
	log         slog.Logger
	conn        net.PacketConn
	servicePort uint16
}

// NewDiscoveryResponder binds the discovery UDP port.
func NewDiscoveryResponder(port, servicePort uint16, log slog.Logger) (*DiscoveryResponder, error) {
	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind discovery port %d: %w", port, err)
	}
	return &DiscoveryResponder{
		log:         log,
		conn:        conn,
		servicePort: servicePort,
	}, nil
}

// Addr returns the bound UDP address.
func (d *DiscoveryResponder) Addr() net.Addr {
	return d.conn.LocalAddr()
}

// Run answers probes until Close. Run returns once the socket closes.
func (d *DiscoveryResponder) Run() {
	d.log.Infof("discovery responder on %s", d.conn.LocalAddr())
	reply := []byte(fmt.Sprintf("%d\x00", d.servicePort))
	buf := make([]byte, 64)
	for {
		n, addr, err := d.conn.ReadFrom(buf)
		if err != nil {
			d.log.Debugf("discovery responder exiting: %v", err)
			return
		}
		if !bytes.Equal(buf[:n], discoveryProbe) {
			d.log.Tracef("ignoring malformed probe from %s", addr)
			continue
		}
		if _, err := d.conn.WriteTo(reply, addr); err != nil {
			d.log.Debugf("discovery reply to %s failed: %v", addr, err)
		}
	}
}

// Close releases the UDP socket, stopping Run.
func (d *DiscoveryResponder) Close() error {
	return d.conn.Close()
}
