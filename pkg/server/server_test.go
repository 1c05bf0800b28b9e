package server

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	crand "crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephen-hansen/cbp/pkg/protocol"
)

// testTLSConfig builds a throwaway self-signed server certificate.
func testTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"cbp test"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(crand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}

// newTestServer starts a server on a loopback TLS listener with short phase
// windows and a seeded deck.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := New(Config{
		Credentials: map[string]string{"foo": "bar"},
		BetWindow:   250 * time.Millisecond,
		TurnWindow:  250 * time.Millisecond,
		Seed:        7,
	}, slog.Disabled, slog.Disabled)
	lis, err := tls.Listen("tcp", "127.0.0.1:0", testTLSConfig(t))
	require.NoError(t, err)
	go srv.Serve(lis)
	t.Cleanup(srv.Shutdown)
	return srv, lis.Addr().String()
}

// testClient drives one connection with the protocol codec.
type testClient struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func dialTest(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	return &testClient{t: t, conn: conn, br: bufio.NewReader(conn)}
}

func (c *testClient) send(cmd protocol.Command) {
	c.t.Helper()
	_, err := c.conn.Write(protocol.EncodeCommand(cmd))
	require.NoError(c.t, err)
}

func (c *testClient) recv() protocol.Response {
	c.t.Helper()
	resp, err := protocol.ReadResponse(c.br)
	require.NoError(c.t, err)
	return resp
}

// expect reads one response and requires the given reply code.
func (c *testClient) expect(rc protocol.ReplyCode) protocol.Response {
	c.t.Helper()
	resp := c.recv()
	require.Equal(c.t, rc, resp.Code(), "unexpected reply %s", resp.Code())
	return resp
}

// recvUntil discards responses (broadcasts, deal notices) until one carries
// the given reply code.
func (c *testClient) recvUntil(rc protocol.ReplyCode) protocol.Response {
	c.t.Helper()
	for {
		resp := c.recv()
		if resp.Code() == rc {
			return resp
		}
	}
}

// auth completes the handshake and authenticates as foo.
func (c *testClient) auth() {
	c.t.Helper()
	c.send(protocol.Version{Version: ProtocolVersion})
	c.expect(protocol.RCVersionOK)
	c.send(protocol.User{Name: "foo"})
	c.expect(protocol.RCNeedPassword)
	c.send(protocol.Pass{Password: "bar"})
	c.expect(protocol.RCAuthOK)
}

func TestVersionHandshake(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)

	c.send(protocol.Version{Version: ProtocolVersion})
	resp := c.expect(protocol.RCVersionOK)
	assert.Equal(t, ProtocolVersion, resp.(protocol.VersionResponse).Version)
}

func TestVersionMismatchCloses(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)

	c.send(protocol.Version{Version: 99})
	resp := c.expect(protocol.RCVersionBad)
	assert.Equal(t, ProtocolVersion, resp.(protocol.VersionResponse).Version)

	_, err := protocol.ReadResponse(c.br)
	assert.Error(t, err, "connection should be closed after version mismatch")
}

func TestAuthentication(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)

	c.send(protocol.Version{Version: ProtocolVersion})
	c.expect(protocol.RCVersionOK)

	// Wrong password returns to USERNAME.
	c.send(protocol.User{Name: "foo"})
	c.expect(protocol.RCNeedPassword)
	c.send(protocol.Pass{Password: "wrong"})
	c.expect(protocol.RCAuthFailed)

	// Unknown user fails the same way.
	c.send(protocol.User{Name: "nobody"})
	c.expect(protocol.RCNeedPassword)
	c.send(protocol.Pass{Password: "bar"})
	c.expect(protocol.RCAuthFailed)

	c.send(protocol.User{Name: "foo"})
	c.expect(protocol.RCNeedPassword)
	c.send(protocol.Pass{Password: "bar"})
	c.expect(protocol.RCAuthOK)
}

func TestBalanceCommands(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)
	c.auth()

	c.send(protocol.GetBalance{})
	resp := c.expect(protocol.RCBalance)
	assert.Equal(t, uint32(0), resp.(protocol.BalanceResponse).Balance)

	c.send(protocol.UpdateBalance{Delta: 1000})
	c.expect(protocol.RCBalanceUpdated)
	c.send(protocol.GetBalance{})
	resp = c.expect(protocol.RCBalance)
	assert.Equal(t, uint32(1000), resp.(protocol.BalanceResponse).Balance)

	// An adjustment that would go negative is dropped whole.
	c.send(protocol.UpdateBalance{Delta: -2000})
	c.expect(protocol.RCBalanceUpdated)
	c.send(protocol.GetBalance{})
	resp = c.expect(protocol.RCBalance)
	assert.Equal(t, uint32(1000), resp.(protocol.BalanceResponse).Balance)
}

func TestBalanceSharedAcrossConnections(t *testing.T) {
	_, addr := newTestServer(t)

	c1 := dialTest(t, addr)
	c1.auth()
	c1.send(protocol.UpdateBalance{Delta: 500})
	c1.expect(protocol.RCBalanceUpdated)

	c2 := dialTest(t, addr)
	c2.auth()
	c2.send(protocol.GetBalance{})
	resp := c2.expect(protocol.RCBalance)
	assert.Equal(t, uint32(500), resp.(protocol.BalanceResponse).Balance)
}

func TestTableRegistry(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)
	c.auth()

	// Table 0 exists from startup.
	c.send(protocol.GetTables{})
	resp := c.expect(protocol.RCTableList)
	tables := resp.(protocol.ListTablesResponse).Tables
	require.Len(t, tables, 1)
	assert.Equal(t, uint16(0), tables[0].TableID)
	assert.Equal(t, protocol.DefaultTableSettings().Block(), tables[0].Settings)

	c.send(protocol.AddTable{Settings: "max-players:3\nbet-limits:10-100\n"})
	resp = c.expect(protocol.RCTableAdded)
	id := resp.(protocol.AddTableResponse).TableID
	assert.Equal(t, uint16(1), id)

	c.send(protocol.GetTables{})
	resp = c.expect(protocol.RCTableList)
	assert.Len(t, resp.(protocol.ListTablesResponse).Tables, 2)

	c.send(protocol.RemoveTable{TableID: id})
	c.expect(protocol.RCTableRemoved)

	c.send(protocol.RemoveTable{TableID: 42})
	c.expect(protocol.RCNoSuchTable)

	c.send(protocol.JoinTable{TableID: 42})
	c.expect(protocol.RCNoSuchTable)
}

func TestAddTableMalformedSettingsFallBack(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)
	c.auth()

	// Inverted bet limits and an unknown key are ignored; the new table
	// carries the defaults.
	c.send(protocol.AddTable{Settings: "bet-limits:100-10\nshoe-size:4\n"})
	resp := c.expect(protocol.RCTableAdded)
	id := resp.(protocol.AddTableResponse).TableID

	c.send(protocol.GetTables{})
	tables := c.expect(protocol.RCTableList).(protocol.ListTablesResponse).Tables
	for _, td := range tables {
		if td.TableID == id {
			assert.Equal(t, protocol.DefaultTableSettings().Block(), td.Settings)
		}
	}
}

func TestJoinAndPlayRound(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)
	c.auth()

	c.send(protocol.UpdateBalance{Delta: 1000})
	c.expect(protocol.RCBalanceUpdated)

	c.send(protocol.JoinTable{TableID: 0})
	resp := c.recvUntil(protocol.RCJoinedTable)
	assert.Equal(t, protocol.DefaultTableSettings().Block(),
		resp.(protocol.JoinTableResponse).Settings)

	// The "accepting bets" broadcast precedes the bet acknowledgment.
	c.send(protocol.Bet{Amount: 50})
	c.recvUntil(protocol.RCActionOK)

	// Deal notices and card hands arrive, then the turn opens. A dealt
	// natural skips the turn entirely.
	for {
		resp := c.recv()
		if resp.Code() == protocol.RCYourTurn {
			hand := resp.(protocol.CardHandResponse)
			assert.Equal(t, protocol.HolderPlayer, hand.Holder)
			assert.Len(t, hand.Cards, 2)
			c.send(protocol.Stand{})
			c.recvUntil(protocol.RCActionOK)
			break
		}
		if resp.Code() == protocol.RCCardBlackjack {
			break
		}
	}

	// Dealer draws broadcast, then the payout lands.
	win := c.recvUntil(protocol.RCWinnings).(protocol.WinningsResponse)

	c.send(protocol.GetBalance{})
	bal := c.recvUntil(protocol.RCBalance).(protocol.BalanceResponse)
	assert.Equal(t, 1000-50+win.Winnings, bal.Balance)

	c.send(protocol.LeaveTable{})
	c.recvUntil(protocol.RCLeftTable)

	// Back in ACCOUNT, lobby commands work again.
	c.send(protocol.GetTables{})
	c.expect(protocol.RCTableList)
}

func TestCommandGate(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)
	c.auth()

	// Game commands are rejected in ACCOUNT without a state change.
	c.send(protocol.Hit{})
	c.expect(protocol.RCBadCommand)
	c.send(protocol.Bet{Amount: 50})
	c.expect(protocol.RCBadCommand)

	c.send(protocol.GetBalance{})
	c.expect(protocol.RCBalance)
}

func TestQuitClosesConnection(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)
	c.auth()

	c.send(protocol.Quit{})
	_, err := protocol.ReadResponse(c.br)
	assert.Error(t, err)
}

func TestUnknownCommandClosesConnection(t *testing.T) {
	_, addr := newTestServer(t)
	c := dialTest(t, addr)
	c.auth()

	_, err := c.conn.Write([]byte{9, 9})
	require.NoError(t, err)
	_, err = protocol.ReadResponse(c.br)
	assert.Error(t, err)
}
