package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/decred/slog"

	"github.com/stephen-hansen/cbp/pkg/blackjack"
	"github.com/stephen-hansen/cbp/pkg/protocol"
)

// session is one client connection: its reader goroutine, its DFA state, and
// its seat at a table when it has one. It implements blackjack.Seat so the
// table engine can write to the client and drive its state directly.
//
// The session mutex serializes PDU writes and the state fields. It is never
// held while calling into a table; the table engine in turn acquires it (via
// Send/SetState) only from outside its own action entry points, so the lock
// order is always table then session.
type session struct {
	srv  *Server
	conn net.Conn
	br   *bufio.Reader
	log  slog.Logger

	mu       sync.Mutex
	closed   bool
	state    protocol.State
	username string
	account  *Account
	table    *blackjack.Table
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		srv:   srv,
		conn:  conn,
		br:    bufio.NewReader(conn),
		log:   srv.log,
		state: protocol.StateVersion,
	}
}

// run is the connection's read loop. It exits on Quit, on an unrecoverable
// protocol error, or when the connection drops; the deferred cleanup releases
// the table seat either way.
func (s *session) run() {
	defer func() {
		s.leaveTable()
		s.srv.removeSession(s)
		s.close()
		s.log.Debugf("%s: connection closed", s.conn.RemoteAddr())
	}()
	s.log.Debugf("%s: connection accepted", s.conn.RemoteAddr())

	for {
		cmd, err := protocol.ReadCommand(s.br)
		if err != nil {
			switch {
			case errors.Is(err, protocol.ErrFieldTooLong):
				// The stream is still framed; reject and go on.
				s.rejectCommand()
				continue
			case errors.Is(err, protocol.ErrUnknownCommand):
				s.log.Warnf("%s: unknown command header, dropping connection", s.conn.RemoteAddr())
			case errors.Is(err, io.EOF):
			default:
				if !s.isClosed() {
					s.log.Debugf("%s: read failed: %v", s.conn.RemoteAddr(), err)
				}
			}
			return
		}

		if _, ok := cmd.(protocol.Quit); ok {
			return
		}
		st := s.State()
		if !protocol.Accepts(st, cmd) {
			if st == protocol.StateVersion {
				// The handshake failed before it began.
				s.Send(protocol.VersionResponse{
					RC:      protocol.RCVersionBad,
					Version: s.srv.cfg.Version,
				})
				return
			}
			s.rejectCommand()
			continue
		}
		if !s.dispatch(st, cmd) {
			return
		}
	}
}

// rejectCommand answers a command that is illegal in the current state. The
// state does not change.
func (s *session) rejectCommand() {
	st := s.State()
	rc := protocol.RCBadCommand
	body := "Command not accepted in state " + st.String() + ".\n"
	switch {
	case st == protocol.StateUsername:
		body = "Expected USER.\n"
	case st == protocol.StatePassword:
		body = "Expected PASS.\n"
	case st.AtTable():
		rc = protocol.RCBadGameCommand
	}
	s.Send(protocol.ASCIIResponse{RC: rc, Body: body})
}

// leaveTable releases the table seat, if any. The binding is cleared before
// calling into the table so the engine's Kick of a racing shutdown is a
// no-op.
func (s *session) leaveTable() *blackjack.Table {
	s.mu.Lock()
	t := s.table
	s.table = nil
	s.mu.Unlock()
	if t != nil {
		t.RemovePlayer(s)
	}
	return t
}

// currentTable returns the table the session is seated at, nil if none.
func (s *session) currentTable() *blackjack.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

func (s *session) setTable(t *blackjack.Table) {
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
}

// close tears the connection down. Safe to call multiple times and from any
// goroutine.
func (s *session) close() {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.state = protocol.StateClosed
	s.mu.Unlock()
	if !already {
		s.conn.Close()
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Username returns the authenticated username.
func (s *session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Send writes one response PDU to the client. Writes are serialized under the
// session mutex so concurrent table broadcasts and handler replies never
// interleave mid-PDU.
func (s *session) Send(resp protocol.Response) {
	buf := protocol.EncodeResponse(resp)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.conn.Write(buf); err != nil {
		s.log.Debugf("%s: write failed: %v", s.conn.RemoteAddr(), err)
		s.closed = true
		s.state = protocol.StateClosed
		s.conn.Close()
	}
}

// State returns the connection's DFA state.
func (s *session) State() protocol.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the connection's DFA state.
func (s *session) SetState(st protocol.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = st
}

// Kick forces the connection back to ACCOUNT and drops its table binding.
// Called by the table engine when the table shuts down under the player.
func (s *session) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = nil
	if !s.closed {
		s.state = protocol.StateAccount
	}
}

// Credit adds winnings to the account balance.
func (s *session) Credit(amount uint32) bool {
	return s.acct().Credit(amount)
}

// Debit takes a stake out of the account balance.
func (s *session) Debit(amount uint32) bool {
	return s.acct().Debit(amount)
}

// Balance returns the account balance.
func (s *session) Balance() uint32 {
	return s.acct().Balance()
}

// acct returns the session's account. Only reachable after authentication;
// the DFA gate keeps balance-touching commands out of earlier states.
func (s *session) acct() *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}
