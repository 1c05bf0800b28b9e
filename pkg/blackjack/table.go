package blackjack

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/stephen-hansen/cbp/pkg/protocol"
)

var (
	// ErrTableFull is returned when a join would exceed max_players.
	ErrTableFull = errors.New("blackjack: table is full")

	// ErrTableClosed is returned when joining a table that is shutting
	// down.
	ErrTableClosed = errors.New("blackjack: table is closed")

	// ErrNotSeated is returned when a game action arrives from a
	// connection the table does not know.
	ErrNotSeated = errors.New("blackjack: player not seated at table")
)

// Default phase windows.
const (
	DefaultBetWindow  = 15 * time.Second
	DefaultTurnWindow = 30 * time.Second
)

// TableConfig holds configuration for a new blackjack table.
type TableConfig struct {
	ID         uint16
	Log        slog.Logger
	Settings   protocol.TableSettings
	BetWindow  time.Duration // 0 means DefaultBetWindow
	TurnWindow time.Duration // 0 means DefaultTurnWindow
	Rand       *rand.Rand    // 0 means time-seeded
}

// Table is one blackjack game room. A round loop goroutine runs whenever the
// table has at least one seated or pending player; it owns the phase
// sequencing while the connection handlers call the action methods
// (PlaceBet, Hit, Stand, DoubleDown, Chat, RemovePlayer).
//
// The table lock guards the players/pending/deck/dealer fields and is never
// held across the inter-phase waits.
type Table struct {
	id         uint16
	log        slog.Logger
	settings   protocol.TableSettings
	betWindow  time.Duration
	turnWindow time.Duration

	mu      sync.Mutex
	players []*PlayerInfo // seated, fixed round order
	pending []*PlayerInfo // admitted at the next round boundary
	deck    *Deck
	dealer  []protocol.Card
	round   []*PlayerInfo // players with a live bet this round
	turn    *PlayerInfo   // player whose TURN window is open
	running bool
	closed  bool

	// wake is pulsed by action methods so the round loop can cut its
	// phase waits short. Spurious wakeups are fine; the loop re-checks.
	wake chan struct{}
}

// NewTable creates a new table. Settings are validated by the caller.
func NewTable(cfg TableConfig) *Table {
	if cfg.BetWindow == 0 {
		cfg.BetWindow = DefaultBetWindow
	}
	if cfg.TurnWindow == 0 {
		cfg.TurnWindow = DefaultTurnWindow
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Table{
		id:         cfg.ID,
		log:        cfg.Log,
		settings:   cfg.Settings,
		betWindow:  cfg.BetWindow,
		turnWindow: cfg.TurnWindow,
		deck:       NewDeck(cfg.Settings.NumberDecks, cfg.Rand),
		wake:       make(chan struct{}, 1),
	}
}

// ID returns the table id.
func (t *Table) ID() uint16 {
	return t.id
}

// Settings returns the table's immutable settings.
func (t *Table) Settings() protocol.TableSettings {
	return t.settings
}

// Seats returns the current seated and pending player counts.
func (t *Table) Seats() (seated, pending int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.players), len(t.pending)
}

// AddPlayer seats a new player. The player lands in the pending set and is
// admitted at the next round boundary; if no round loop is running one is
// started, so an empty table admits immediately. Joining mid-round gets a
// 1-1-0 notice and the IN_PROGRESS state.
func (t *Table) AddPlayer(seat Seat) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTableClosed
	}
	if len(t.players)+len(t.pending) >= t.settings.MaxPlayers {
		t.mu.Unlock()
		return ErrTableFull
	}
	pi := newPlayerInfo(seat)
	t.pending = append(t.pending, pi)
	wasRunning := t.running
	t.running = true
	t.mu.Unlock()

	if wasRunning {
		pi.send(protocol.ASCIIResponse{
			RC:   protocol.RCRoundInfo,
			Body: "Round in progress, please wait for the next round.\n",
		})
		pi.setState(protocol.StateInProgress)
	} else {
		go t.run()
	}
	t.log.Debugf("table %d: %s joined", t.id, seat.Username())
	return nil
}

// RemovePlayer releases seat's place at the table, voluntarily or because
// the connection dropped. The player forfeits any bet already placed this
// round.
func (t *Table) RemovePlayer(seat Seat) {
	t.mu.Lock()
	pi := t.findSeat(seat)
	if pi != nil {
		t.players = removePlayer(t.players, pi)
		t.pending = removePlayer(t.pending, pi)
		if t.turn == pi {
			t.turn = nil
		}
	}
	t.mu.Unlock()
	if pi == nil {
		return
	}
	pi.Disconnect()
	t.signal()
	t.log.Debugf("table %d: %s left", t.id, seat.Username())
}

// PlaceBet validates and records a bet during ENTER_BETS. Rejections leave
// the player in ENTER_BETS; acceptance debits the account and moves the
// player to WAIT_FOR_TURN.
func (t *Table) PlaceBet(seat Seat, amount uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pi := t.findSeat(seat)
	if pi == nil {
		return ErrNotSeated
	}
	// A bet racing the window close can arrive after the player was
	// already requeued for the next round. Only active seats still in
	// ENTER_BETS may stake.
	if !t.isActive(pi) || pi.state() != protocol.StateEnterBets {
		pi.send(protocol.ASCIIResponse{
			RC:   protocol.RCBadGameCommand,
			Body: "No bets are being accepted right now.\n",
		})
		return nil
	}
	if amount < t.settings.BetMin || amount > t.settings.BetMax {
		pi.send(protocol.ASCIIResponse{
			RC:   protocol.RCBadGameCommand,
			Body: "Bet not in range allowed by table.\n",
		})
		return nil
	}
	if !seat.Debit(amount) {
		pi.send(protocol.ASCIIResponse{
			RC:   protocol.RCBadGameCommand,
			Body: "You do not have sufficient funds to make this bet.\n",
		})
		return nil
	}
	pi.setBet(amount)
	pi.send(protocol.ASCIIResponse{
		RC:   protocol.RCActionOK,
		Body: "Accepted bet, please wait for turn.\n",
	})
	pi.setState(protocol.StateWaitForTurn)
	t.signal()
	return nil
}

// Hit draws one card for the player whose turn it is. The resulting value
// picks the reply code: under 21 keeps the turn open, 21 or a bust ends it.
func (t *Table) Hit(seat Seat) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pi := t.findSeat(seat)
	if pi == nil || t.turn != pi {
		return ErrNotSeated
	}
	soft, hard := pi.addCard(t.deck.Draw())
	best := BestValue(soft, hard)

	var rc protocol.ReplyCode
	done := true
	switch {
	case best > 21:
		rc = protocol.RCCardBust
	case best == 21 && pi.handLen() == 2:
		rc = protocol.RCCardBlackjack
	case best == 21:
		rc = protocol.RCCardTwentyOne
	default:
		rc = protocol.RCCardDealt
		done = false
	}
	pi.send(pi.handResponse(rc))
	if done {
		pi.setState(protocol.StateWaitForDealer)
		t.turn = nil
		t.signal()
	}
	return nil
}

// Stand ends the player's turn.
func (t *Table) Stand(seat Seat) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pi := t.findSeat(seat)
	if pi == nil || t.turn != pi {
		return ErrNotSeated
	}
	pi.send(protocol.ASCIIResponse{
		RC:   protocol.RCActionOK,
		Body: "Standing.\n",
	})
	pi.setState(protocol.StateWaitForDealer)
	t.turn = nil
	t.signal()
	return nil
}

// DoubleDown doubles the stake, draws exactly one card, and ends the turn.
// It requires balance for a second stake of the original size.
func (t *Table) DoubleDown(seat Seat) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pi := t.findSeat(seat)
	if pi == nil || t.turn != pi {
		return ErrNotSeated
	}
	bet := pi.Bet()
	if !seat.Debit(bet) {
		pi.send(protocol.ASCIIResponse{
			RC:   protocol.RCBadGameCommand,
			Body: "You do not have sufficient funds to double down.\n",
		})
		return nil
	}
	pi.setBet(bet * 2)
	pi.addCard(t.deck.Draw())
	pi.send(pi.handResponse(protocol.RCCardDoubleDown))
	pi.setState(protocol.StateWaitForDealer)
	t.turn = nil
	t.signal()
	return nil
}

// Chat broadcasts a message from seat to everyone at the table.
func (t *Table) Chat(seat Seat, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.findSeat(seat) == nil {
		return ErrNotSeated
	}
	t.broadcastLocked(protocol.ASCIIResponse{
		RC:   protocol.RCChat,
		Body: fmt.Sprintf("%s: %s\n", seat.Username(), message),
	})
	return nil
}

// Shutdown kicks every current and pending player back to ACCOUNT and marks
// the table closed. Used by RemoveTable and server shutdown.
func (t *Table) Shutdown() {
	t.mu.Lock()
	t.closed = true
	kicked := make([]*PlayerInfo, 0, len(t.players)+len(t.pending))
	kicked = append(kicked, t.players...)
	kicked = append(kicked, t.pending...)
	t.players = nil
	t.pending = nil
	t.turn = nil
	t.mu.Unlock()

	for _, pi := range kicked {
		pi.send(protocol.ASCIIResponse{
			RC:   protocol.RCTableClosing,
			Body: "The table is being closed.\n",
		})
		pi.Disconnect()
		pi.seat.Kick()
	}
	t.signal()
	t.log.Infof("table %d: shut down, kicked %d players", t.id, len(kicked))
}

// run is the round loop. It exits, clearing the running flag, when the table
// has no seated and no pending players left.
func (t *Table) run() {
	t.log.Debugf("table %d: round loop starting", t.id)
	for {
		if !t.admit() {
			t.log.Debugf("table %d: round loop exiting", t.id)
			return
		}
		t.collectBets()
		if !t.deal() {
			// Nobody bet; restart the round without advancing.
			continue
		}
		t.playerTurns()
		t.dealerDraws()
		t.settle()
	}
}

// admit moves pending players into the active set, greets them with the
// settings block, and opens the bet phase. It returns false when the table
// emptied out.
func (t *Table) admit() bool {
	t.mu.Lock()
	t.players = dropDisconnected(t.players)
	t.pending = dropDisconnected(t.pending)
	if t.closed || len(t.players)+len(t.pending) == 0 {
		t.running = false
		t.mu.Unlock()
		return false
	}
	admitted := t.pending
	t.players = append(t.players, t.pending...)
	t.pending = nil
	t.mu.Unlock()

	settings := t.settings.Block()
	for _, pi := range admitted {
		pi.send(protocol.JoinTableResponse{Settings: settings})
		pi.setState(protocol.StateEnterBets)
	}
	t.broadcast(protocol.ASCIIResponse{
		RC:   protocol.RCRoundInfo,
		Body: "Accepting bets!\n",
	})
	return true
}

// collectBets waits out the bet window, cutting it short once every seated
// player has a bet in. Players without a bet when the window closes are
// notified, moved to IN_PROGRESS, and requeued for the next round.
func (t *Table) collectBets() {
	deadline := time.Now().Add(t.betWindow)
	for !t.allBetsIn() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		select {
		case <-t.wake:
		case <-time.After(remaining):
		}
	}

	t.mu.Lock()
	var slow []*PlayerInfo
	keep := t.players[:0]
	for _, pi := range t.players {
		if pi.Disconnected() {
			continue
		}
		if pi.Bet() == 0 {
			slow = append(slow, pi)
			t.pending = append(t.pending, pi)
			continue
		}
		keep = append(keep, pi)
	}
	t.players = keep
	t.mu.Unlock()

	for _, pi := range slow {
		pi.send(protocol.ASCIIResponse{
			RC:   protocol.RCTimeout,
			Body: "Bet window expired, sitting out this round.\n",
		})
		pi.setState(protocol.StateInProgress)
	}
}

// allBetsIn reports whether every connected seated player has placed a bet.
func (t *Table) allBetsIn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, pi := range t.players {
		if pi.Disconnected() {
			continue
		}
		if pi.Bet() == 0 {
			return false
		}
	}
	return true
}

// deal hands out the initial cards: one to each bettor, one visible dealer
// card, then the bettors' second card. It returns false when no bets stood.
func (t *Table) deal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dealer = t.dealer[:0]
	t.round = t.round[:0]
	for _, pi := range t.players {
		if !pi.Disconnected() && pi.Bet() > 0 {
			t.round = append(t.round, pi)
		}
	}
	if len(t.round) == 0 {
		return false
	}

	t.broadcastLocked(protocol.ASCIIResponse{
		RC:   protocol.RCRoundInfo,
		Body: "Starting round, dealing cards.\n",
	})
	for _, pi := range t.round {
		pi.addCard(t.deck.Draw())
		pi.send(pi.handResponse(protocol.RCCardDealt))
	}
	t.dealer = append(t.dealer, t.deck.Draw())
	t.broadcastLocked(t.dealerHandLocked(protocol.RCCardDealt))
	for _, pi := range t.round {
		pi.addCard(t.deck.Draw())
		pi.send(pi.handResponse(protocol.RCCardDealt))
	}
	return true
}

// playerTurns runs each bettor's turn in seating order. Natural blackjacks
// skip the turn; everyone else gets the turn window to act.
func (t *Table) playerTurns() {
	t.mu.Lock()
	order := make([]*PlayerInfo, len(t.round))
	copy(order, t.round)
	t.mu.Unlock()

	for _, pi := range order {
		if pi.Disconnected() {
			continue
		}
		soft, hard := pi.values()
		if pi.handLen() == 2 && BestValue(soft, hard) == 21 {
			pi.send(pi.handResponse(protocol.RCCardBlackjack))
			pi.setState(protocol.StateWaitForDealer)
			t.broadcast(protocol.ASCIIResponse{
				RC:   protocol.RCRoundInfo,
				Body: fmt.Sprintf("%s has blackjack!\n", pi.Username()),
			})
			continue
		}

		t.mu.Lock()
		t.turn = pi
		t.mu.Unlock()
		pi.setState(protocol.StateTurn)
		pi.send(pi.handResponse(protocol.RCYourTurn))

		deadline := time.Now().Add(t.turnWindow)
		for t.turnOpen(pi) {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			select {
			case <-t.wake:
			case <-time.After(remaining):
			}
		}

		// Force a stand if the window expired with the turn still open.
		t.mu.Lock()
		expired := t.turn == pi
		t.turn = nil
		t.mu.Unlock()
		if expired && !pi.Disconnected() {
			pi.send(protocol.ASCIIResponse{
				RC:   protocol.RCTimeout,
				Body: "Turn timed out, standing.\n",
			})
			pi.setState(protocol.StateWaitForDealer)
		}
	}
}

// turnOpen reports whether pi's turn is still in progress.
func (t *Table) turnOpen(pi *PlayerInfo) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.turn == pi && !pi.Disconnected() && pi.state() == protocol.StateTurn
}

// dealerDraws plays out the dealer hand: hit until bust, 21, a best value of
// 18 or more, hard 17, or soft 17 with hit-soft-17 off.
func (t *Table) dealerDraws() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		soft, hard := HandValues(t.dealer)
		best := BestValue(soft, hard)
		if hard > 21 || best == 21 || best >= 18 || hard == 17 {
			break
		}
		if soft == 17 && !t.settings.HitSoft17 {
			break
		}
		t.dealer = append(t.dealer, t.deck.Draw())
		t.broadcastLocked(t.dealerHandLocked(protocol.RCCardDealt))
	}
}

// settle pays out every live bet per the payoff table, clears round state,
// and returns the players to ENTER_BETS for the next round.
func (t *Table) settle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	dSoft, dHard := HandValues(t.dealer)
	dealerValue := BestValue(dSoft, dHard)
	dealerNatural := len(t.dealer) == 2 && dealerValue == 21

	for _, pi := range t.round {
		if pi.Disconnected() {
			continue
		}
		bet := pi.Bet()
		if bet == 0 {
			continue
		}
		soft, hard := pi.values()
		value := BestValue(soft, hard)
		natural := pi.handLen() == 2 && value == 21

		payout := t.payout(bet, value, natural, dealerValue, dealerNatural)
		if payout > 0 {
			pi.seat.Credit(payout)
		}
		pi.send(protocol.WinningsResponse{RC: protocol.RCWinnings, Winnings: payout})
		pi.resetRound()
		pi.setState(protocol.StateEnterBets)
	}
	t.round = t.round[:0]
	t.dealer = t.dealer[:0]
}

// payout computes the settlement for one hand.
func (t *Table) payout(bet uint32, value uint8, natural bool, dealerValue uint8, dealerNatural bool) uint32 {
	win := func() uint32 {
		v := uint64(bet) * uint64(t.settings.PayoffHigh) / uint64(t.settings.PayoffLow)
		if v > math.MaxUint32 {
			return math.MaxUint32
		}
		return uint32(v)
	}
	switch {
	case value > 21:
		return 0
	case dealerValue > 21 || value > dealerValue:
		return win()
	case value == dealerValue && value == 21 && natural && !dealerNatural:
		return win()
	case value == dealerValue && value == 21 && dealerNatural && !natural:
		return 0
	case value == dealerValue:
		return bet
	default:
		return 0
	}
}

// dealerHandLocked builds the dealer's CardHandResponse. Caller holds t.mu.
func (t *Table) dealerHandLocked(rc protocol.ReplyCode) protocol.CardHandResponse {
	soft, hard := HandValues(t.dealer)
	cards := make([]protocol.Card, len(t.dealer))
	copy(cards, t.dealer)
	return protocol.CardHandResponse{
		RC:     rc,
		Holder: protocol.HolderDealer,
		Soft:   soft,
		Hard:   hard,
		Cards:  cards,
	}
}

// broadcast sends resp to every seated and pending player.
func (t *Table) broadcast(resp protocol.Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcastLocked(resp)
}

// broadcastLocked is broadcast with t.mu already held.
func (t *Table) broadcastLocked(resp protocol.Response) {
	for _, pi := range t.players {
		pi.send(resp)
	}
	for _, pi := range t.pending {
		pi.send(resp)
	}
}

// signal pulses the wake channel without blocking.
func (t *Table) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// isActive reports whether pi is in the active set (not pending). Caller
// holds t.mu.
func (t *Table) isActive(pi *PlayerInfo) bool {
	for _, p := range t.players {
		if p == pi {
			return true
		}
	}
	return false
}

// findSeat returns the PlayerInfo bound to seat, seated or pending. Caller
// holds t.mu.
func (t *Table) findSeat(seat Seat) *PlayerInfo {
	for _, pi := range t.players {
		if pi.seat == seat {
			return pi
		}
	}
	for _, pi := range t.pending {
		if pi.seat == seat {
			return pi
		}
	}
	return nil
}

func removePlayer(players []*PlayerInfo, target *PlayerInfo) []*PlayerInfo {
	for i, pi := range players {
		if pi == target {
			return append(players[:i], players[i+1:]...)
		}
	}
	return players
}

func dropDisconnected(players []*PlayerInfo) []*PlayerInfo {
	keep := players[:0]
	for _, pi := range players {
		if !pi.Disconnected() {
			keep = append(keep, pi)
		}
	}
	return keep
}
