package server

import (
	"net"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startResponder(t *testing.T) *DiscoveryResponder {
	t.Helper()
	// Port 0 binds an ephemeral port so tests do not fight over 21211.
	d, err := NewDiscoveryResponder(0, DefaultServicePort, slog.Disabled)
	require.NoError(t, err)
	go d.Run()
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDiscoveryProbe(t *testing.T) {
	d := startResponder(t)

	conn, err := net.Dial("udp", d.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("CBP\x00"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("21210\x00"), buf[:n])
}

func TestDiscoveryIgnoresMalformedProbes(t *testing.T) {
	d := startResponder(t)

	conn, err := net.Dial("udp", d.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	// Wrong magic, a truncated probe, and a probe with trailing bytes all
	// go unanswered; the next valid probe still gets the port.
	for _, probe := range [][]byte{[]byte("XYZ\x00"), []byte("CB"), []byte("CBP\x00extra")} {
		_, err = conn.Write(probe)
		require.NoError(t, err)
	}
	_, err = conn.Write([]byte("CBP\x00"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("21210\x00"), buf[:n])
}
