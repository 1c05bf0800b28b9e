package blackjack

import (
	"sync"

	"github.com/stephen-hansen/cbp/pkg/protocol"
)

// Seat is the table engine's view of a seated connection. The server's
// session type implements it; tests use an in-memory fake.
//
// Implementations serialize Send and SetState internally so the table engine
// and the connection handler can both drive them.
type Seat interface {
	// Username returns the authenticated username.
	Username() string

	// Send writes one response PDU to the client. Writes to the same seat
	// are atomic at PDU granularity and FIFO ordered.
	Send(resp protocol.Response)

	// State and SetState access the connection's DFA state.
	State() protocol.State
	SetState(s protocol.State)

	// Kick forces the connection back to ACCOUNT and clears its table
	// binding. Used when the table shuts down under the player.
	Kick()

	// Credit and Debit adjust the account balance, reporting false when
	// the adjustment would leave the unsigned 32-bit range.
	Credit(amount uint32) bool
	Debit(amount uint32) bool

	// Balance returns the current account balance.
	Balance() uint32
}

// PlayerInfo is the per-seat round state at one table. The internal lock
// wraps every field mutation, every write to the seat, and every DFA
// transition the table engine makes, so a disconnecting player can never be
// written to after the fact.
type PlayerInfo struct {
	mu   sync.Mutex
	seat Seat

	bet          uint32
	hand         []protocol.Card
	lastSoft     uint8
	lastHard     uint8
	disconnected bool
}

func newPlayerInfo(seat Seat) *PlayerInfo {
	return &PlayerInfo{seat: seat}
}

// Username returns the seat's username.
func (p *PlayerInfo) Username() string {
	return p.seat.Username()
}

// Bet returns the current-round bet, 0 if none placed.
func (p *PlayerInfo) Bet() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bet
}

// Hand returns a copy of the current hand.
func (p *PlayerInfo) Hand() []protocol.Card {
	p.mu.Lock()
	defer p.mu.Unlock()
	hand := make([]protocol.Card, len(p.hand))
	copy(hand, p.hand)
	return hand
}

// Disconnect marks the player gone. All subsequent writes and state
// transitions through this PlayerInfo are suppressed.
func (p *PlayerInfo) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
}

// Disconnected reports whether the player has disconnected.
func (p *PlayerInfo) Disconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

// send writes resp to the seat unless the player has disconnected.
func (p *PlayerInfo) send(resp protocol.Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnected {
		return
	}
	p.seat.Send(resp)
}

// setState transitions the seat's DFA state unless the player has
// disconnected.
func (p *PlayerInfo) setState(s protocol.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnected {
		return
	}
	p.seat.SetState(s)
}

// state reads the seat's DFA state.
func (p *PlayerInfo) state() protocol.State {
	return p.seat.State()
}

// setBet records the accepted bet.
func (p *PlayerInfo) setBet(amount uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bet = amount
}

// addCard appends card to the hand and returns the recomputed values.
func (p *PlayerInfo) addCard(card protocol.Card) (soft, hard uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hand = append(p.hand, card)
	p.lastSoft, p.lastHard = HandValues(p.hand)
	return p.lastSoft, p.lastHard
}

// values returns the last computed hand values.
func (p *PlayerInfo) values() (soft, hard uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSoft, p.lastHard
}

// handLen returns the number of cards held.
func (p *PlayerInfo) handLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hand)
}

// resetRound clears the bet and hand for a fresh round.
func (p *PlayerInfo) resetRound() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bet = 0
	p.hand = p.hand[:0]
	p.lastSoft, p.lastHard = 0, 0
}

// handResponse builds a CardHandResponse for the player's current hand.
func (p *PlayerInfo) handResponse(rc protocol.ReplyCode) protocol.CardHandResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	cards := make([]protocol.Card, len(p.hand))
	copy(cards, p.hand)
	return protocol.CardHandResponse{
		RC:     rc,
		Holder: protocol.HolderPlayer,
		Soft:   p.lastSoft,
		Hard:   p.lastHard,
		Cards:  cards,
	}
}
