// Package server implements the Casino Blackjack Protocol server: the
// TCP/TLS acceptor, per-connection sessions, the shared account and table
// registries, and the UDP discovery responder.
package server

import (
	"errors"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/stephen-hansen/cbp/pkg/blackjack"
	"github.com/stephen-hansen/cbp/pkg/protocol"
)

// ProtocolVersion is the protocol version this server speaks.
const ProtocolVersion uint32 = 1

// Default ports.
const (
	DefaultServicePort   = 21210
	DefaultDiscoveryPort = 21211
)

// Config holds the server configuration.
type Config struct {
	// Version is the advertised protocol version. 0 means
	// ProtocolVersion.
	Version uint32

	// ServicePort is the TCP service port, reported by discovery.
	ServicePort uint16

	// Credentials is the read-only username to password table.
	Credentials map[string]string

	// BetWindow and TurnWindow override the table phase windows.
	// 0 keeps the protocol defaults. Tests shrink these.
	BetWindow  time.Duration
	TurnWindow time.Duration

	// Seed makes table decks deterministic when non-zero.
	Seed int64
}

// Server is one CBP server instance. All state is in-memory and
// process-lifetime.
type Server struct {
	cfg      Config
	log      slog.Logger
	tableLog slog.Logger

	accountsMu sync.Mutex
	accounts   map[string]*Account

	tablesMu    sync.Mutex
	tables      map[uint16]*blackjack.Table
	nextTableID uint16

	sessionsMu sync.Mutex
	sessions   map[*session]struct{}

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a server. Table id 0 exists from startup with the default
// settings.
func New(cfg Config, log, tableLog slog.Logger) *Server {
	if cfg.Version == 0 {
		cfg.Version = ProtocolVersion
	}
	if cfg.ServicePort == 0 {
		cfg.ServicePort = DefaultServicePort
	}
	s := &Server{
		cfg:      cfg,
		log:      log,
		tableLog: tableLog,
		accounts: make(map[string]*Account),
		tables:   make(map[uint16]*blackjack.Table),
		sessions: make(map[*session]struct{}),
		quit:     make(chan struct{}),
	}
	s.tables[0] = s.newTable(0, protocol.DefaultTableSettings())
	s.nextTableID = 1
	return s
}

// Serve accepts connections on lis until Shutdown. lis must already carry
// TLS; each accepted connection gets its own session goroutine.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Infof("accepting connections on %s", lis.Addr())
	go func() {
		<-s.quit
		lis.Close()
	}()
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		sess := newSession(s, conn)
		s.sessionsMu.Lock()
		s.sessions[sess] = struct{}{}
		s.sessionsMu.Unlock()
		go sess.run()
	}
}

// Shutdown stops accepting, shuts every table down, and closes every live
// session.
func (s *Server) Shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })

	s.tablesMu.Lock()
	tables := make([]*blackjack.Table, 0, len(s.tables))
	for _, t := range s.tables {
		tables = append(tables, t)
	}
	s.tables = make(map[uint16]*blackjack.Table)
	s.tablesMu.Unlock()
	for _, t := range tables {
		t.Shutdown()
	}

	s.sessionsMu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessionsMu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}
	s.log.Infof("server shut down")
}

func (s *Server) removeSession(sess *session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess)
	s.sessionsMu.Unlock()
}

// account returns the Account for username, creating it with a zero balance
// on first successful authentication.
func (s *Server) account(username string) *Account {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		acct = &Account{}
		s.accounts[username] = acct
	}
	return acct
}

func (s *Server) newTable(id uint16, settings protocol.TableSettings) *blackjack.Table {
	seed := s.cfg.Seed
	if seed != 0 {
		seed += int64(id)
	} else {
		seed = time.Now().UnixNano()
	}
	return blackjack.NewTable(blackjack.TableConfig{
		ID:         id,
		Log:        s.tableLog,
		Settings:   settings,
		BetWindow:  s.cfg.BetWindow,
		TurnWindow: s.cfg.TurnWindow,
		Rand:       rand.New(rand.NewSource(seed)),
	})
}

// addTable allocates the next table id under the registry lock and inserts
// the new table.
func (s *Server) addTable(settings protocol.TableSettings) uint16 {
	s.tablesMu.Lock()
	id := s.nextTableID
	s.nextTableID++
	t := s.newTable(id, settings)
	s.tables[id] = t
	s.tablesMu.Unlock()
	s.log.Infof("added table %d", id)
	return id
}

// getTable looks a table up by id.
func (s *Server) getTable(id uint16) (*blackjack.Table, bool) {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	t, ok := s.tables[id]
	return t, ok
}

// removeTable shuts a table down, kicking its players, and deletes it from
// the registry.
func (s *Server) removeTable(id uint16) bool {
	s.tablesMu.Lock()
	t, ok := s.tables[id]
	if ok {
		delete(s.tables, id)
	}
	s.tablesMu.Unlock()
	if !ok {
		return false
	}
	t.Shutdown()
	s.log.Infof("removed table %d", id)
	return true
}

// listTables returns the table listing in id order.
func (s *Server) listTables() []protocol.TableData {
	s.tablesMu.Lock()
	tables := make([]*blackjack.Table, 0, len(s.tables))
	for _, t := range s.tables {
		tables = append(tables, t)
	}
	s.tablesMu.Unlock()

	sort.Slice(tables, func(i, j int) bool { return tables[i].ID() < tables[j].ID() })
	out := make([]protocol.TableData, 0, len(tables))
	for _, t := range tables {
		out = append(out, protocol.TableData{
			TableID:  t.ID(),
			Settings: t.Settings().Block(),
		})
	}
	return out
}
