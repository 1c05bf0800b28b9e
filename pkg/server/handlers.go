package server

import (
	"errors"

	"github.com/stephen-hansen/cbp/pkg/blackjack"
	"github.com/stephen-hansen/cbp/pkg/protocol"
)

// dispatch routes a gate-approved command to the handler for the current
// state. It returns false when the connection must close.
func (s *session) dispatch(st protocol.State, cmd protocol.Command) bool {
	switch st {
	case protocol.StateVersion:
		return s.handleVersion(cmd.(protocol.Version))
	case protocol.StateUsername:
		s.handleUser(cmd.(protocol.User))
	case protocol.StatePassword:
		s.handlePass(cmd.(protocol.Pass))
	case protocol.StateAccount:
		s.handleAccount(cmd)
	default:
		s.handleGame(cmd)
	}
	return true
}

// handleVersion runs the version handshake. A mismatch is answered with the
// server's version under 5-0-1 and the connection closes.
func (s *session) handleVersion(cmd protocol.Version) bool {
	if cmd.Version != s.srv.cfg.Version {
		s.log.Debugf("%s: version mismatch: client %d, server %d",
			s.conn.RemoteAddr(), cmd.Version, s.srv.cfg.Version)
		s.Send(protocol.VersionResponse{
			RC:      protocol.RCVersionBad,
			Version: s.srv.cfg.Version,
		})
		return false
	}
	s.Send(protocol.VersionResponse{
		RC:      protocol.RCVersionOK,
		Version: s.srv.cfg.Version,
	})
	s.SetState(protocol.StateUsername)
	return true
}

func (s *session) handleUser(cmd protocol.User) {
	s.mu.Lock()
	s.username = cmd.Name
	s.mu.Unlock()
	s.Send(protocol.ASCIIResponse{
		RC:   protocol.RCNeedPassword,
		Body: "Provide password.\n",
	})
	s.SetState(protocol.StatePassword)
}

// handlePass finishes authentication. Failure names no reason and returns the
// client to USERNAME.
func (s *session) handlePass(cmd protocol.Pass) {
	username := s.Username()
	want, ok := s.srv.cfg.Credentials[username]
	if !ok || want != cmd.Password {
		s.log.Infof("%s: authentication failed for %q", s.conn.RemoteAddr(), username)
		s.Send(protocol.ASCIIResponse{
			RC:   protocol.RCAuthFailed,
			Body: "Authentication failed.\n",
		})
		s.SetState(protocol.StateUsername)
		return
	}
	acct := s.srv.account(username)
	s.mu.Lock()
	s.account = acct
	s.mu.Unlock()
	s.log.Infof("%s: %s authenticated", s.conn.RemoteAddr(), username)
	s.Send(protocol.ASCIIResponse{
		RC:   protocol.RCAuthOK,
		Body: "Authentication successful.\n",
	})
	s.SetState(protocol.StateAccount)
}

// handleAccount serves the lobby: balance queries, the table registry, and
// joining a table.
func (s *session) handleAccount(cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.GetBalance:
		s.Send(protocol.BalanceResponse{Balance: s.Balance()})

	case protocol.UpdateBalance:
		s.updateBalance(c.Delta)

	case protocol.GetTables:
		tables := s.srv.listTables()
		if len(tables) == 0 {
			s.Send(protocol.ASCIIResponse{
				RC:   protocol.RCNoTables,
				Body: "No tables available.\n",
			})
			return
		}
		s.Send(protocol.ListTablesResponse{Tables: tables})

	case protocol.AddTable:
		settings := protocol.ParseTableSettings(c.Settings)
		if !settings.Valid() {
			s.Send(protocol.ASCIIResponse{
				RC:   protocol.RCBadGameCommand,
				Body: "Invalid table settings.\n",
			})
			return
		}
		id := s.srv.addTable(settings)
		s.Send(protocol.AddTableResponse{TableID: id})

	case protocol.RemoveTable:
		if !s.srv.removeTable(c.TableID) {
			s.Send(protocol.ASCIIResponse{
				RC:   protocol.RCNoSuchTable,
				Body: "No table with that id.\n",
			})
			return
		}
		s.Send(protocol.ASCIIResponse{
			RC:   protocol.RCTableRemoved,
			Body: "Table removed.\n",
		})

	case protocol.JoinTable:
		s.joinTable(c.TableID)
	}
}

// joinTable seats the session at a table. The join reply (3-1-0 with the
// settings block, or 1-1-0 mid-round) comes from the table engine once the
// seat is taken.
func (s *session) joinTable(id uint16) {
	if s.currentTable() != nil {
		// A join raced the table's admission of the previous one.
		s.Send(protocol.ASCIIResponse{
			RC:   protocol.RCBadCommand,
			Body: "Already at a table.\n",
		})
		return
	}
	t, ok := s.srv.getTable(id)
	if !ok {
		s.Send(protocol.ASCIIResponse{
			RC:   protocol.RCNoSuchTable,
			Body: "No table with that id.\n",
		})
		return
	}
	s.setTable(t)
	err := t.AddPlayer(s)
	if err == nil {
		return
	}
	s.setTable(nil)
	switch {
	case errors.Is(err, blackjack.ErrTableFull):
		s.Send(protocol.ASCIIResponse{
			RC:   protocol.RCTableFull,
			Body: "Table is full.\n",
		})
	case errors.Is(err, blackjack.ErrTableClosed):
		s.Send(protocol.ASCIIResponse{
			RC:   protocol.RCTableClosing,
			Body: "The table is being closed.\n",
		})
	}
}

// handleGame serves the seated states. The DFA gate has already matched the
// command to the state, so Bet only arrives during ENTER_BETS and the turn
// actions only during TURN; a stale turn action that raced the turn window
// closing surfaces as ErrNotSeated from the table and is rejected.
func (s *session) handleGame(cmd protocol.Command) {
	t := s.currentTable()
	if t == nil {
		// Kicked between the gate check and now.
		s.rejectCommand()
		return
	}

	var err error
	switch c := cmd.(type) {
	case protocol.GetBalance:
		s.Send(protocol.BalanceResponse{Balance: s.Balance()})
		return
	case protocol.UpdateBalance:
		s.updateBalance(c.Delta)
		return
	case protocol.LeaveTable:
		s.leaveTable()
		s.Send(protocol.ASCIIResponse{
			RC:   protocol.RCLeftTable,
			Body: "You have left the table.\n",
		})
		s.SetState(protocol.StateAccount)
		return
	case protocol.Chat:
		err = t.Chat(s, c.Message)
	case protocol.Bet:
		err = t.PlaceBet(s, c.Amount)
	case protocol.Hit:
		err = t.Hit(s)
	case protocol.Stand:
		err = t.Stand(s)
	case protocol.DoubleDown:
		err = t.DoubleDown(s)
	}
	if err != nil {
		s.Send(protocol.ASCIIResponse{
			RC:   protocol.RCBadGameCommand,
			Body: "Action not available.\n",
		})
	}
}

// updateBalance applies a signed delta to the account. Deltas that would
// leave the unsigned 32-bit range are dropped whole; the reply does not
// distinguish the two outcomes.
func (s *session) updateBalance(delta int32) {
	if !s.acct().Adjust(int64(delta)) {
		s.log.Debugf("%s: balance adjustment %d rejected", s.conn.RemoteAddr(), delta)
	}
	s.Send(protocol.ASCIIResponse{
		RC:   protocol.RCBalanceUpdated,
		Body: "Balance updated.\n",
	})
}
